package router

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/metrics"
	"github.com/hxuan190/steamm-router/internal/services/builder"
)

type ExecuteParams struct {
	Sender    string
	Recipient string
	InputCoin domain.CoinRef
	// SlippageBps nil uses the configured default.
	SlippageBps *uint16
}

// Plan is a built, unsigned route execution.
type Plan struct {
	Route  domain.Route
	Quote  *domain.Quote
	Bundle *builder.Bundle

	// OutputCoin is the underlying output coin, already transferred to the
	// recipient by the last command.
	OutputCoin   builder.Argument
	MinAmountOut uint64
	Stages       []domain.ExecutionStage
}

func (p *Plan) stage(name string, hop int) {
	p.Stages = append(p.Stages, domain.ExecutionStage{Name: name, Hop: hop})
}

// swapLeg is the accumulator of the execution fold: the coin the next hop
// spends, and the intermediate coins left behind so far.
type swapLeg struct {
	coin          builder.Argument
	intermediates []intermediate
}

type intermediate struct {
	coin  builder.Argument
	bank  *domain.Bank
	btype string
}

// BuildRoute assembles the atomic bundle for route:
// mint the first bToken from the input coin, swap hop by hop on the previous
// hop's actual output, guard only the final hop with the quoted minimum, burn
// the first and last bTokens back to their coins and settle intermediate dust.
func BuildRoute(ctx context.Context, env *Env, route domain.Route, quote *domain.Quote, params ExecuteParams) (*Plan, error) {
	if quote == nil || quote.AmountIn == 0 {
		return nil, ErrInvalidAmount
	}
	if err := env.CheckLive(route); err != nil {
		return nil, err
	}
	in := params.InputCoin
	if domain.NormalizeType(in.CoinType) != domain.NormalizeType(route.TokenIn()) {
		return nil, fmt.Errorf("%w: coin is %s, route starts at %s", ErrInputCoin, in.CoinType, route.TokenIn())
	}
	if !in.FromGas && in.Balance < quote.AmountIn {
		return nil, fmt.Errorf("%w: balance %d below %d", ErrInputCoin, in.Balance, quote.AmountIn)
	}

	slippage := env.Config.DefaultSlippageBps
	if params.SlippageBps != nil {
		slippage = *params.SlippageBps
	}
	minOut, err := MinAmountOut(quote.AmountOut, slippage)
	if err != nil {
		return nil, err
	}

	r, err := resolveRoute(ctx, env, newPriceCache(), route)
	if err != nil {
		return nil, err
	}

	d := newDraft(env)
	b, calls := d.b, d.calls
	plan := &Plan{Route: route, Quote: quote, Bundle: b, MinAmountOut: minOut}

	var payer builder.Argument
	if in.FromGas {
		payer = b.SplitCoins(b.Gas(), b.PureU64(quote.AmountIn)).Nested(0)
	} else {
		payer = b.OwnedObject(in.ObjectRef)
	}

	firstBT, _ := r.hops[0].bTokens()
	first := calls.MintBToken(b, r.bankIn, payer, b.PureU64(quote.AmountIn))
	plan.stage(domain.StageMinted, 0)

	last := len(r.hops) - 1
	leg := foldHops(r.hops, swapLeg{coin: first}, func(leg swapLeg, i int, h *resolvedHop) swapLeg {
		inBT, outBT := h.bTokens()
		out := calls.CoinZero(b, outBT)
		amount := calls.CoinValue(b, inBT, leg.coin)

		guard := b.PureU64(0)
		if i == last {
			guard = calls.ToBTokens(b, r.bankOut, b.PureU64(minOut))
		}

		coinA, coinB := leg.coin, out
		if !h.AToB {
			coinA, coinB = out, leg.coin
		}
		h.strat.swap(d, h, coinA, coinB, amount, guard)
		plan.stage(domain.StageSwapping, i)

		if i > 0 {
			bank := h.bankA
			if !h.AToB {
				bank = h.bankB
			}
			leg.intermediates = append(leg.intermediates, intermediate{coin: leg.coin, bank: bank, btype: inBT})
		}
		leg.coin = out
		return leg
	})

	// First bToken: whatever hop 0 did not take goes back into the payer.
	rest := calls.BurnBToken(b, r.bankIn, first, calls.CoinValue(b, firstBT, first))
	b.MergeCoins(payer, rest)
	calls.DestroyZero(b, firstBT, first)
	if in.FromGas {
		b.MergeCoins(b.Gas(), payer)
	}

	settleDust(d, env.Config.DustPolicy, leg.intermediates)

	_, lastBT := r.hops[last].bTokens()
	output := calls.BurnBToken(b, r.bankOut, leg.coin, calls.CoinValue(b, lastBT, leg.coin))
	calls.DestroyZero(b, lastBT, leg.coin)
	plan.stage(domain.StageUnwrapping, 0)

	recipient := params.Recipient
	if recipient == "" {
		recipient = params.Sender
	}
	b.TransferObjects([]builder.Argument{output}, b.PureAddress(recipient))
	plan.OutputCoin = output
	plan.stage(domain.StageSettled, 0)

	if err := b.Err(); err != nil {
		return nil, err
	}
	return plan, nil
}

// settleDust makes sure no intermediate bToken is dropped: each is either
// destroyed when empty or handed to the sender, as a bToken or redeemed.
func settleDust(d *draft, policy DustPolicy, coins []intermediate) {
	for _, c := range coins {
		switch policy {
		case DustRedeem:
			under := d.calls.BurnBToken(d.b, c.bank, c.coin, d.calls.CoinValue(d.b, c.btype, c.coin))
			d.calls.DestroyZero(d.b, c.btype, c.coin)
			d.calls.DestroyOrTransfer(d.b, c.bank.CoinType, under)
		default:
			d.calls.DestroyOrTransfer(d.b, c.btype, c.coin)
		}
	}
}

// ExecuteRoute builds, signs and submits the route bundle. The bundle is all
// or nothing; a rejected bundle is returned as ErrExecutionFailed and never
// retried.
func ExecuteRoute(ctx context.Context, env *Env, route domain.Route, quote *domain.Quote, params ExecuteParams, signer Signer) (*domain.ExecutionResult, error) {
	start := time.Now()
	status := "ok"
	defer func() {
		metrics.ExecutionRequests.WithLabelValues(status).Inc()
		metrics.ExecutionDuration.Observe(time.Since(start).Seconds())
	}()

	if signer == nil {
		status = "build_failed"
		return nil, ErrMissingSigner
	}
	if params.Sender == "" {
		params.Sender = signer.Address()
	}
	plan, err := BuildRoute(ctx, env, route, quote, params)
	if err != nil {
		status = "build_failed"
		return nil, err
	}

	res, err := env.Chain.Submit(ctx, plan.Bundle, signer)
	if err != nil {
		status = "submit_failed"
		return nil, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
	}
	if !res.Success {
		status = "aborted"
		return res, fmt.Errorf("%w: %s", ErrExecutionFailed, res.Error)
	}

	recipient := params.Recipient
	if recipient == "" {
		recipient = params.Sender
	}
	res.AmountOut = received(res.BalanceChanges, recipient, route.TokenOut())

	log.Info().
		Str("digest", res.Digest).
		Str("route", route.String()).
		Uint64("amountIn", quote.AmountIn).
		Uint64("quotedOut", quote.AmountOut).
		Uint64("amountOut", res.AmountOut).
		Msg("[router] route executed")
	return res, nil
}

func received(changes []domain.BalanceChange, owner, coinType string) uint64 {
	owner = domain.NormalizeAddress(owner)
	coinType = domain.NormalizeType(coinType)
	var total int64
	for _, c := range changes {
		if domain.NormalizeAddress(c.Owner) == owner && domain.NormalizeType(c.CoinType) == coinType {
			total += c.Amount
		}
	}
	if total < 0 {
		return 0
	}
	return uint64(total)
}
