package persistence

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/steamm-router/internal/domain"
)

func TestStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "registry.db")
	s, err := NewStorage(path)
	require.NoError(t, err)
	defer s.Close()

	oracle := &domain.Pool{
		ID: "0x11", Quoter: domain.QuoterOMMV2, QuoterType: "0x5a::omm_v2::OracleQuoterV2",
		BTokenTypeA: "0xb1::b::BA", BTokenTypeB: "0xb2::b::BB", LpTokenType: "0x5a::lp::LP",
		SwapFeeBps: 30, OracleIndexA: 1, OracleIndexB: 2, CreatedAtMs: 20,
		// Derived fields are not stored.
		CoinTypeA: "0xa::a::A",
	}
	in := &Records{
		Pools: []*domain.Pool{
			{ID: "0x10", Quoter: domain.QuoterCPMM, QuoterType: "0x5a::cpmm::CpQuoter", BTokenTypeA: "0xb1::b::BA", BTokenTypeB: "0xb2::b::BB", SwapFeeBps: 100, CreatedAtMs: 10},
			oracle,
		},
		Banks: []*domain.Bank{
			{ID: "0xba1", CoinType: "0xa::a::A", BTokenType: "0xb1::b::BA", LendingMarketID: "0x1e", LendingMarketType: "0x1e::s::MAIN", CreatedAtMs: 1},
		},
		Oracles: []*domain.OracleFeed{{Index: 2, FeedID: "0xfeed", PriceInfoObjectID: "0xf02"}},
		Cursors: map[string]string{"pools": "c2", "banks": "c1"},
	}
	require.NoError(t, s.Save(in))
	require.NoError(t, s.Save(&Records{Cursors: map[string]string{"oracles": "c3", "pools": "c4"}}))

	out, err := s.Load()
	require.NoError(t, err)

	require.Len(t, out.Pools, 2)
	sort.Slice(out.Pools, func(i, j int) bool { return out.Pools[i].ID < out.Pools[j].ID })
	assert.Equal(t, in.Pools[0], out.Pools[0])
	want := *oracle
	want.CoinTypeA = ""
	assert.Equal(t, &want, out.Pools[1])

	assert.Equal(t, in.Banks, out.Banks)
	assert.Equal(t, in.Oracles, out.Oracles)
	assert.Equal(t, map[string]string{"pools": "c4", "banks": "c1", "oracles": "c3"}, out.Cursors)
}

func TestSaveIgnoresEmptyRecords(t *testing.T) {
	assert.True(t, (&Records{}).Empty())
	assert.False(t, (&Records{Cursors: map[string]string{"pools": "1"}}).Empty())

	s := &Storage{}
	assert.NoError(t, s.Save(nil))
	assert.NoError(t, s.Save(&Records{}))
}
