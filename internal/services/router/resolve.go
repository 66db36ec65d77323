package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/metrics"
)

// resolvedHop is a hop with everything needed to emit its calls: its
// strategy, both pool banks and, for oracle pools, feeds and pending updates.
type resolvedHop struct {
	domain.Hop
	strat   strategy
	bankA   *domain.Bank
	bankB   *domain.Bank
	feeds   [2]*domain.OracleFeed
	updates [2]*domain.PriceUpdate
}

func (h *resolvedHop) bTokens() (in, out string) {
	return h.Pool.BTokens(h.AToB)
}

type resolvedRoute struct {
	route   domain.Route
	bankIn  *domain.Bank
	bankOut *domain.Bank
	hops    []resolvedHop
}

// resolveRoute does every lookup and network read a route needs, so emitting
// its calls afterwards cannot fail halfway through a shared bundle.
func resolveRoute(ctx context.Context, env *Env, prices *priceCache, route domain.Route) (*resolvedRoute, error) {
	if err := route.Validate(); err != nil {
		return nil, err
	}
	snap := env.Snapshot

	bankIn, err := snap.BankByCoin(route.TokenIn())
	if err != nil {
		return nil, err
	}
	bankOut, err := snap.BankByCoin(route.TokenOut())
	if err != nil {
		return nil, err
	}

	r := &resolvedRoute{route: route, bankIn: bankIn, bankOut: bankOut, hops: make([]resolvedHop, len(route.Hops))}
	for i, hop := range route.Hops {
		h := &r.hops[i]
		h.Hop = hop
		if h.strat, err = strategyFor(hop.Pool.Quoter); err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		if h.bankA, err = snap.BankByBToken(hop.Pool.BTokenTypeA); err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		if h.bankB, err = snap.BankByBToken(hop.Pool.BTokenTypeB); err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		if !h.strat.needsOracle() {
			continue
		}
		for side, index := range [2]uint64{hop.Pool.OracleIndexA, hop.Pool.OracleIndexB} {
			feed, err := snap.Oracle(index)
			if err != nil {
				return nil, fmt.Errorf("hop %d: %w", i, err)
			}
			h.feeds[side] = feed
			if h.updates[side], err = prices.refresh(ctx, env, feed); err != nil {
				return nil, fmt.Errorf("hop %d: %w", i, err)
			}
		}
	}
	return r, nil
}

type priceState struct {
	update *domain.PriceUpdate
	err    error
}

// priceCache remembers, for one request, whether each feed is fresh on chain
// or which attestation must be posted first.
type priceCache struct {
	mu    sync.Mutex
	feeds map[uint64]priceState
}

func newPriceCache() *priceCache {
	return &priceCache{feeds: make(map[uint64]priceState)}
}

// refresh returns nil when the on-chain attestation is within the staleness
// window, otherwise a fresh update to inject. An update that cannot be fetched
// or is itself stale is ErrStalePrice.
func (c *priceCache) refresh(ctx context.Context, env *Env, feed *domain.OracleFeed) (*domain.PriceUpdate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.feeds[feed.Index]; ok {
		return st.update, st.err
	}
	st := c.fetch(ctx, env, feed)
	c.feeds[feed.Index] = st
	return st.update, st.err
}

func (c *priceCache) fetch(ctx context.Context, env *Env, feed *domain.OracleFeed) priceState {
	if env.Prices == nil {
		return priceState{err: fmt.Errorf("%w: no price source for feed %s", ErrStalePrice, feed.FeedID)}
	}
	staleness := env.Config.OracleStaleness
	now := env.now()

	published, err := env.Prices.PublishTime(ctx, feed)
	if err == nil && now.Sub(published) <= staleness {
		return priceState{}
	}
	if err != nil {
		log.Debug().Err(err).Str("feed", feed.FeedID).Msg("[router] on-chain price unreadable, fetching attestation")
	}

	upd, err := env.Prices.LatestUpdate(ctx, feed)
	if err != nil {
		metrics.OracleRefreshes.WithLabelValues("error").Inc()
		return priceState{err: fmt.Errorf("%w: feed %s: %w", ErrStalePrice, feed.FeedID, err)}
	}
	if age := upd.Age(now); age > staleness {
		metrics.OracleRefreshes.WithLabelValues("stale").Inc()
		return priceState{err: fmt.Errorf("%w: feed %s attestation is %s old", ErrStalePrice, feed.FeedID, age)}
	}
	metrics.OracleRefreshes.WithLabelValues("ok").Inc()
	return priceState{update: upd}
}
