package router_test

import (
	"testing"
	"time"

	"github.com/hxuan190/steamm-router/internal/adapters/chain/chaintest"
	"github.com/hxuan190/steamm-router/internal/common"
	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/services/builder"
	"github.com/hxuan190/steamm-router/internal/services/router"
)

var testPackages = builder.Packages{
	Steamm:         "0x5a",
	Scripts:        "0x5b",
	Oracles:        "0x5c",
	OracleRegistry: "0x5d",
	Pyth:           "0x5e",
	PythState:      "0x5f",
	WormholeState:  "0x60",
}

var (
	tokA = domain.NormalizeType("0xa::coin_a::COIN_A")
	tokB = domain.NormalizeType("0xb::coin_b::COIN_B")
	tokC = domain.NormalizeType("0xc::coin_c::COIN_C")
	tokD = domain.NormalizeType("0xd::coin_d::COIN_D")
	tokE = domain.NormalizeType("0xe::coin_e::COIN_E")
	sui  = domain.NormalizeType(common.SuiCoinType)

	user  = domain.NormalizeAddress("0xa11ce")
	other = domain.NormalizeAddress("0xb0b")
)

// testNow is fixed so oracle publish times compare exactly.
var testNow = time.Unix(1_700_000_000, 0)

type fixture struct {
	ledger *chaintest.Ledger
	prices *chaintest.Prices
	cfg    *router.Config
	banks  map[string]*chaintest.Bank
}

// newFixture registers 1:1 banks for A through E.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := chaintest.NewLedger(testPackages)
	l.Now = func() time.Time { return testNow }
	f := &fixture{
		ledger: l,
		prices: &chaintest.Prices{Ledger: l, Updates: map[uint64]*domain.PriceUpdate{}},
		cfg:    router.DefaultConfig(testPackages),
		banks:  make(map[string]*chaintest.Bank),
	}
	for _, tok := range []string{tokA, tokB, tokC, tokD, tokE} {
		f.banks[tok] = l.AddBank(tok, 1, 1)
	}
	return f
}

func (f *fixture) env() *router.Env {
	return &router.Env{
		Snapshot: f.ledger.Snapshot(),
		Chain:    f.ledger,
		Prices:   f.prices,
		Config:   f.cfg,
		Now:      f.ledger.Now,
	}
}

func (f *fixture) routes(env *router.Env, from, to string) []domain.Route {
	return router.NewGraph(env.Snapshot.Pools).FindRoutes(from, to, f.cfg.MaxHops)
}

// cpmmOut is the pool's constant-product output net of the swap fee.
func cpmmOut(amount, resIn, resOut, feeBps uint64) uint64 {
	gross := router.MulDiv(amount, resOut, resIn+amount)
	return gross - router.MulDiv(gross, feeBps, common.BpsDenominator)
}

func u16(v uint16) *uint16 {
	return &v
}
