package router

import (
	"fmt"

	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/services/builder"
)

// strategy appends the quote and swap calls of one pool kind. One value per
// QuoterKind; hops carry the resolved strategy so call sites never branch on
// the kind again.
type strategy interface {
	kind() domain.QuoterKind
	needsOracle() bool
	// quote returns the hop's bToken amount out.
	quote(d *draft, h *resolvedHop, amountIn builder.Argument) builder.Argument
	// swap moves value between coinA and coinB in place.
	swap(d *draft, h *resolvedHop, coinA, coinB, amountIn, minOut builder.Argument) builder.Argument
}

type cpmmStrategy struct{}

func (cpmmStrategy) kind() domain.QuoterKind { return domain.QuoterCPMM }
func (cpmmStrategy) needsOracle() bool       { return false }

func (cpmmStrategy) quote(d *draft, h *resolvedHop, amountIn builder.Argument) builder.Argument {
	return d.calls.QuoteCPMM(d.b, h.Pool, h.AToB, amountIn)
}

func (cpmmStrategy) swap(d *draft, h *resolvedHop, coinA, coinB, amountIn, minOut builder.Argument) builder.Argument {
	return d.calls.SwapCPMM(d.b, h.Pool, coinA, coinB, h.AToB, amountIn, minOut)
}

// oracleStrategy serves both oracle quoter versions; they share an ABI and
// differ only in module name.
type oracleStrategy struct {
	k domain.QuoterKind
}

func (s oracleStrategy) kind() domain.QuoterKind { return s.k }
func (oracleStrategy) needsOracle() bool         { return true }

func (oracleStrategy) quote(d *draft, h *resolvedHop, amountIn builder.Argument) builder.Argument {
	return d.calls.QuoteOracle(d.b, h.Pool, d.oracleArgs(h), h.AToB, amountIn)
}

func (oracleStrategy) swap(d *draft, h *resolvedHop, coinA, coinB, amountIn, minOut builder.Argument) builder.Argument {
	return d.calls.SwapOracle(d.b, h.Pool, d.oracleArgs(h), coinA, coinB, h.AToB, amountIn, minOut)
}

var strategies = map[domain.QuoterKind]strategy{
	domain.QuoterCPMM:  cpmmStrategy{},
	domain.QuoterOMM:   oracleStrategy{k: domain.QuoterOMM},
	domain.QuoterOMMV2: oracleStrategy{k: domain.QuoterOMMV2},
}

func strategyFor(k domain.QuoterKind) (strategy, error) {
	s, ok := strategies[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownQuoter, k)
	}
	return s, nil
}

// draft is a bundle under construction plus the oracle feeds already
// refreshed inside it.
type draft struct {
	b         *builder.Bundle
	calls     *builder.Calls
	fee       uint64
	refreshed map[uint64]struct{}
}

func newDraft(env *Env) *draft {
	return &draft{
		b:         builder.New(),
		calls:     env.calls(),
		fee:       env.Config.OracleUpdateFee,
		refreshed: make(map[uint64]struct{}),
	}
}

// oracleArgs posts any pending price updates for the hop's feeds, once per
// bundle, then reads both prices.
func (d *draft) oracleArgs(h *resolvedHop) builder.OracleArgs {
	for side, feed := range h.feeds {
		upd := h.updates[side]
		if upd == nil {
			continue
		}
		if _, done := d.refreshed[feed.Index]; done {
			continue
		}
		d.calls.UpdatePriceFeed(d.b, feed, upd.Data, d.fee)
		d.refreshed[feed.Index] = struct{}{}
	}
	return builder.OracleArgs{
		BankA:  h.bankA,
		BankB:  h.bankB,
		PriceA: d.calls.OraclePrice(d.b, h.feeds[0]),
		PriceB: d.calls.OraclePrice(d.b, h.feeds[1]),
	}
}
