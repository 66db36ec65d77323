package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/metrics"
	"github.com/hxuan190/steamm-router/internal/services/builder"
)

// foldHops threads an accumulator through a route's hops in order. Each step
// sees the value the previous hop produced; nothing else carries state
// between hops.
func foldHops[T any](hops []resolvedHop, acc T, step func(acc T, i int, h *resolvedHop) T) T {
	for i := range hops {
		acc = step(acc, i, &hops[i])
	}
	return acc
}

// appendQuote folds one route into the draft. The running amount starts as
// amountIn converted to the first bank's bTokens, each hop's quote call takes
// the previous call's result, and the final bToken amount is converted back
// to the output coin and emitted as a RouteQuote.
func appendQuote(d *draft, r *resolvedRoute, amountIn uint64) {
	in := d.b.PureU64(amountIn)
	start := d.calls.ToBTokens(d.b, r.bankIn, in)

	out := foldHops(r.hops, start, func(amount builder.Argument, _ int, h *resolvedHop) builder.Argument {
		return h.strat.quote(d, h, amount)
	})

	d.calls.EmitRouteQuote(d.b, in, d.calls.FromBTokens(d.b, r.bankOut, out))
}

// simulateQuotes runs the quote folds of all routes in one simulation.
func simulateQuotes(ctx context.Context, env *Env, routes []*resolvedRoute, amountIn uint64) ([]*domain.Quote, error) {
	d := newDraft(env)
	for _, r := range routes {
		appendQuote(d, r, amountIn)
	}
	if err := d.b.Err(); err != nil {
		return nil, err
	}

	kind := "single"
	if len(routes) > 1 {
		kind = "batch"
	}

	res, err := env.Chain.Simulate(ctx, d.b)
	if err != nil {
		metrics.SimulationRequests.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("simulate: %w", err)
	}
	if !res.Success {
		metrics.SimulationRequests.WithLabelValues(kind, "aborted").Inc()
		return nil, fmt.Errorf("simulation aborted: %s", res.Error)
	}
	metrics.SimulationRequests.WithLabelValues(kind, "ok").Inc()

	return extractQuotes(env.Config.Packages, res.Events, routes)
}

// QuoteRoute simulates route for amountIn at current chain state. Any hop
// failure fails the whole route with ErrQuoteFailed.
func QuoteRoute(ctx context.Context, env *Env, route domain.Route, amountIn uint64) (*domain.Quote, error) {
	if amountIn == 0 {
		return nil, ErrInvalidAmount
	}
	start := time.Now()
	status := "ok"
	defer func() {
		metrics.QuoteRequests.WithLabelValues("route", status).Inc()
		metrics.QuoteDuration.WithLabelValues("route").Observe(time.Since(start).Seconds())
	}()

	r, err := resolveRoute(ctx, env, newPriceCache(), route)
	if err != nil {
		status = quoteStatus(err)
		return nil, fmt.Errorf("%w: %w", ErrQuoteFailed, err)
	}
	quotes, err := simulateQuotes(ctx, env, []*resolvedRoute{r}, amountIn)
	if err != nil {
		status = "failed"
		return nil, fmt.Errorf("%w: %w", ErrQuoteFailed, err)
	}
	return quotes[0], nil
}

func quoteStatus(err error) string {
	if errors.Is(err, ErrStalePrice) {
		return "stale_price"
	}
	return "failed"
}
