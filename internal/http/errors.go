package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/steamm-router/internal/aggregator"
	"github.com/hxuan190/steamm-router/internal/common"
	"github.com/hxuan190/steamm-router/internal/http/httputil"
)

// httpError maps router and aggregator errors onto HTTP errors.
func httpError(err error) *common.HttpError {
	switch {
	case errors.Is(err, aggregator.ErrSameToken),
		errors.Is(err, aggregator.ErrInvalidAmount),
		errors.Is(err, aggregator.ErrInvalidSlippage),
		errors.Is(err, aggregator.ErrMissingSender),
		errors.Is(err, aggregator.ErrInvalidRoute):
		return common.HTTPErrorBadRequest(err.Error())
	case errors.Is(err, aggregator.ErrNoViableRoute),
		errors.Is(err, aggregator.ErrUnknownBank):
		return common.HTTPErrorNotFound("no route found: " + err.Error())
	case errors.Is(err, aggregator.ErrInputCoin),
		errors.Is(err, aggregator.ErrRouteNotLive),
		errors.Is(err, aggregator.ErrStalePrice),
		errors.Is(err, aggregator.ErrQuoteFailed):
		return common.HTTPErrorUnprocessable(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return common.HTTPErrorUnavailable("chain request timed out")
	}
	return common.HTTPErrorInternalError("")
}

func fail(c *gin.Context, err error) {
	e := httpError(err)
	if e.StatusCode >= 500 {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("[httpService] request failed")
	}
	httputil.Fail(c, e)
}
