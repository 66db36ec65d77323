package router

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/metrics"
)

// RouteQuote is the outcome of quoting one candidate.
type RouteQuote struct {
	Route domain.Route
	Quote *domain.Quote
	Err   error
}

// QuoteRoutes quotes every candidate. All resolvable routes go into one
// combined simulation; if that aborts, each route is simulated on its own,
// concurrently, so one failing candidate does not sink the rest. The result
// is index-aligned with routes.
func QuoteRoutes(ctx context.Context, env *Env, routes []domain.Route, amountIn uint64) []RouteQuote {
	results := make([]RouteQuote, len(routes))
	if amountIn == 0 {
		for i := range routes {
			results[i] = RouteQuote{Route: routes[i], Err: ErrInvalidAmount}
		}
		return results
	}

	prices := newPriceCache()
	var (
		batch []*resolvedRoute
		index []int
	)
	for i, route := range routes {
		results[i].Route = route
		r, err := resolveRoute(ctx, env, prices, route)
		if err != nil {
			results[i].Err = fmt.Errorf("%w: %w", ErrQuoteFailed, err)
			continue
		}
		batch = append(batch, r)
		index = append(index, i)
	}
	if len(batch) == 0 {
		return results
	}

	quotes, err := simulateQuotes(ctx, env, batch, amountIn)
	if err == nil {
		for k, q := range quotes {
			results[index[k]].Quote = q
		}
		return results
	}
	if len(batch) == 1 {
		results[index[0]].Err = fmt.Errorf("%w: %w", ErrQuoteFailed, err)
		return results
	}

	metrics.BatchFallbacks.Inc()
	log.Debug().Err(err).Int("routes", len(batch)).Msg("[router] combined quote aborted, quoting routes one by one")

	var g errgroup.Group
	if env.Config.QuoteConcurrency > 0 {
		g.SetLimit(env.Config.QuoteConcurrency)
	}
	for k, r := range batch {
		slot := &results[index[k]]
		g.Go(func() error {
			qs, err := simulateQuotes(ctx, env, []*resolvedRoute{r}, amountIn)
			if err != nil {
				slot.Err = fmt.Errorf("%w: %w", ErrQuoteFailed, err)
				return nil
			}
			slot.Quote = qs[0]
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// BestOf picks the quoted route with the strictly largest output. Ties keep
// the earliest route, so identical inputs always select the same route.
func BestOf(results []RouteQuote) (int, error) {
	best := -1
	for i, res := range results {
		if res.Err != nil || res.Quote == nil {
			continue
		}
		if best < 0 || res.Quote.AmountOut > results[best].Quote.AmountOut {
			best = i
		}
	}
	if best < 0 {
		return -1, ErrNoViableRoute
	}
	return best, nil
}

// SelectBestRoute quotes all candidates and returns the one with the maximum
// output. It never touches chain state.
func SelectBestRoute(ctx context.Context, env *Env, routes []domain.Route, amountIn uint64) (domain.Route, *domain.Quote, error) {
	if len(routes) == 0 {
		return domain.Route{}, nil, ErrNoViableRoute
	}
	start := time.Now()
	results := QuoteRoutes(ctx, env, routes, amountIn)
	metrics.QuoteDuration.WithLabelValues("select").Observe(time.Since(start).Seconds())

	best, err := BestOf(results)
	if err != nil {
		metrics.QuoteRequests.WithLabelValues("select", "no_route").Inc()
		for i, res := range results {
			log.Debug().Err(res.Err).Int("route", i).Str("path", res.Route.String()).Msg("[router] candidate failed")
		}
		return domain.Route{}, nil, err
	}
	metrics.QuoteRequests.WithLabelValues("select", "ok").Inc()
	return results[best].Route, results[best].Quote, nil
}
