package aggregator_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/steamm-router/internal/adapters/chain/chaintest"
	"github.com/hxuan190/steamm-router/internal/aggregator"
	"github.com/hxuan190/steamm-router/internal/common"
	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/services/builder"
	"github.com/hxuan190/steamm-router/internal/services/router"
)

var pkgs = builder.Packages{
	Steamm:  "0x5a",
	Scripts: "0x5b",
	Oracles: "0x5c",
}

var (
	tokA = domain.NormalizeType("0xa::coin_a::COIN_A")
	tokB = domain.NormalizeType("0xb::coin_b::COIN_B")
	tokC = domain.NormalizeType("0xc::coin_c::COIN_C")
	sui  = domain.NormalizeType(common.SuiCoinType)

	user = domain.NormalizeAddress("0xa11ce")
)

// ledgerSource serves the ledger's current view, or queued snapshots first
// when a test needs the registry to change between calls.
type ledgerSource struct {
	mu     sync.Mutex
	ledger *chaintest.Ledger
	queued []*domain.Snapshot
	err    error
	calls  int
}

func (s *ledgerSource) Snapshot(context.Context) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.queued) > 0 {
		snap := s.queued[0]
		s.queued = s.queued[1:]
		return snap, nil
	}
	return s.ledger.Snapshot(), nil
}

type harness struct {
	ledger *chaintest.Ledger
	source *ledgerSource
	svc    *aggregator.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := chaintest.NewLedger(pkgs)
	for _, tok := range []string{tokA, tokB, tokC, sui} {
		l.AddBank(tok, 1, 1)
	}
	src := &ledgerSource{ledger: l}
	prices := &chaintest.Prices{Ledger: l, Updates: map[uint64]*domain.PriceUpdate{}}
	return &harness{
		ledger: l,
		source: src,
		svc:    aggregator.New(src, l, prices, router.DefaultConfig(pkgs)),
	}
}

func cpmmOut(amount, resIn, resOut, feeBps uint64) uint64 {
	gross := router.MulDiv(amount, resOut, resIn+amount)
	return gross - router.MulDiv(gross, feeBps, common.BpsDenominator)
}

func TestQuotePicksBestCandidate(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddCPMM(tokA, tokC, 100_000, 100_000, 30)
	h.ledger.AddCPMM(tokA, tokB, 10_000_000, 10_000_000, 30)
	h.ledger.AddCPMM(tokB, tokC, 10_000_000, 10_000_000, 30)

	// Short-form addresses resolve to the same coins.
	res, err := h.svc.Quote(context.Background(), "0xa::coin_a::COIN_A", "0xc::coin_c::COIN_C", 50_000)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	assert.Len(t, res.Route.Hops, 2)

	mid := cpmmOut(50_000, 10_000_000, 10_000_000, 30)
	assert.Equal(t, cpmmOut(mid, 10_000_000, 10_000_000, 30), res.Quote.AmountOut)
	for _, c := range res.Candidates {
		require.NoError(t, c.Err)
		assert.LessOrEqual(t, c.Quote.AmountOut, res.Quote.AmountOut)
	}
	assert.NotNil(t, res.Snapshot)
}

func TestQuoteRejectsBadRequests(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddCPMM(tokA, tokB, 1_000_000, 1_000_000, 30)

	_, err := h.svc.Quote(context.Background(), tokA, "0xa::coin_a::COIN_A", 10)
	assert.ErrorIs(t, err, aggregator.ErrSameToken)

	_, err = h.svc.Quote(context.Background(), tokA, tokB, 0)
	assert.ErrorIs(t, err, aggregator.ErrInvalidAmount)

	_, err = h.svc.Quote(context.Background(), tokA, tokC, 10)
	assert.ErrorIs(t, err, aggregator.ErrNoViableRoute)
	assert.Zero(t, h.ledger.Simulations)

	h.source.err = errors.New("registry down")
	_, err = h.svc.Quote(context.Background(), tokA, tokB, 10)
	assert.ErrorContains(t, err, "registry down")
}

func TestFindRoutesHonorsMaxRoutes(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddCPMM(tokA, tokC, 1_000_000, 1_000_000, 30)
	h.ledger.AddCPMM(tokA, tokB, 1_000_000, 1_000_000, 30)
	h.ledger.AddCPMM(tokB, tokC, 1_000_000, 1_000_000, 30)

	routes, err := h.svc.FindRoutes(context.Background(), tokA, tokC)
	require.NoError(t, err)
	require.Len(t, routes, 2)

	h.svc.Config().MaxRoutes = 1
	routes, err = h.svc.FindRoutes(context.Background(), tokA, tokC)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Len(t, routes[0].Hops, 1, "shortest kept")
}

func TestBuildSwapSelectsInputCoin(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddCPMM(tokA, tokB, 1_000_000, 1_000_000, 30)
	h.ledger.Mint(user, tokA, 5_000)
	coin := h.ledger.Mint(user, tokA, 80_000)

	plan, err := h.svc.BuildSwap(context.Background(), &domain.SwapRequest{
		Sender: "0xa11ce", InputType: tokA, OutputType: tokB, Amount: 20_000,
	})
	require.NoError(t, err)

	assert.Equal(t, coin.ObjectID, plan.InputCoin.ObjectID)
	assert.Equal(t, cpmmOut(20_000, 1_000_000, 1_000_000, 30), plan.Quote.AmountOut)
	minOut, err := router.MinAmountOut(plan.Quote.AmountOut, 50)
	require.NoError(t, err)
	assert.Equal(t, minOut, plan.MinAmountOut)
	assert.NotEmpty(t, plan.TxKind)
	assert.Equal(t, byte(0), plan.TxKind[0])
	assert.NotEmpty(t, plan.Stages)

	assert.Zero(t, h.ledger.Submissions, "building never submits")
	assert.Equal(t, uint64(85_000), h.ledger.Balance(user, tokA))
}

func TestBuildSwapFromGas(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddCPMM(sui, tokA, 1_000_000, 1_000_000, 30)

	plan, err := h.svc.BuildSwap(context.Background(), &domain.SwapRequest{
		Sender: user, InputType: common.SuiCoinType, OutputType: tokA, Amount: 1_000, SlippageBps: ptr(uint16(100)),
	})
	require.NoError(t, err)
	assert.True(t, plan.InputCoin.FromGas)
	minOut, _ := router.MinAmountOut(plan.Quote.AmountOut, 100)
	assert.Equal(t, minOut, plan.MinAmountOut)
}

func TestBuildSwapErrors(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddCPMM(tokA, tokB, 1_000_000, 1_000_000, 30)

	_, err := h.svc.BuildSwap(context.Background(), &domain.SwapRequest{InputType: tokA, OutputType: tokB, Amount: 10})
	assert.ErrorIs(t, err, aggregator.ErrMissingSender)

	_, err = h.svc.BuildSwap(context.Background(), &domain.SwapRequest{Sender: user, InputType: tokA, OutputType: tokB, Amount: 10})
	assert.ErrorIs(t, err, aggregator.ErrInputCoin)

	h.ledger.Mint(user, tokA, 100)
	_, err = h.svc.BuildSwap(context.Background(), &domain.SwapRequest{
		Sender: user, InputType: tokA, OutputType: tokB, Amount: 10, SlippageBps: ptr(uint16(10_000)),
	})
	assert.ErrorIs(t, err, aggregator.ErrInvalidSlippage)
}

func TestExecuteSwapSettles(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddCPMM(tokA, tokB, 1_000_000, 1_000_000, 30)
	h.ledger.Mint(user, tokA, 30_000)

	res, err := h.svc.ExecuteSwap(context.Background(), &domain.SwapRequest{
		InputType: tokA, OutputType: tokB, Amount: 30_000,
	}, chaintest.Signer{Addr: user})
	require.NoError(t, err)
	assert.True(t, res.Success)

	want := cpmmOut(30_000, 1_000_000, 1_000_000, 30)
	assert.Equal(t, want, res.AmountOut)
	assert.Equal(t, want, h.ledger.Balance(user, tokB))
	assert.Zero(t, h.ledger.Balance(user, tokA))
	assert.Equal(t, 1, h.ledger.Submissions)
}

func TestExecuteSwapWithoutSigner(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddCPMM(tokA, tokB, 1_000_000, 1_000_000, 30)

	_, err := h.svc.ExecuteSwap(context.Background(), &domain.SwapRequest{
		Sender: user, InputType: tokA, OutputType: tokB, Amount: 10,
	}, nil)
	assert.ErrorIs(t, err, aggregator.ErrMissingSigner)
	assert.Zero(t, h.source.calls)
}

func TestExecuteSwapRefetchesRegistry(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddCPMM(tokA, tokB, 1_000_000, 1_000_000, 30)
	h.ledger.Mint(user, tokA, 30_000)

	empty, _ := domain.NewSnapshot(nil, nil, nil)
	h.source.queued = []*domain.Snapshot{h.ledger.Snapshot(), empty}

	_, err := h.svc.ExecuteSwap(context.Background(), &domain.SwapRequest{
		Sender: user, InputType: tokA, OutputType: tokB, Amount: 30_000,
	}, chaintest.Signer{Addr: user})
	assert.ErrorIs(t, err, aggregator.ErrRouteNotLive)
	assert.Equal(t, 2, h.source.calls)
	assert.Zero(t, h.ledger.Submissions)
}

func ptr[T any](v T) *T {
	return &v
}
