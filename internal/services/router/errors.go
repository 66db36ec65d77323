package router

import "errors"

var (
	ErrNoViableRoute   = errors.New("no viable route")
	ErrQuoteFailed     = errors.New("route quote failed")
	ErrStalePrice      = errors.New("oracle price is stale")
	ErrExecutionFailed = errors.New("route execution failed")
	ErrRouteNotLive    = errors.New("route pool is not live")
	ErrMissingEvents   = errors.New("simulation did not emit the expected quote events")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInputCoin       = errors.New("input coin does not cover the route")
	ErrMissingSigner   = errors.New("signer is required to execute")
)
