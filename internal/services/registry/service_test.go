package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/steamm-router/internal/adapters/persistence"
	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/services/builder"
)

var testPkgs = builder.Packages{Steamm: "0x5a", Oracles: "0x5c"}

// fakeEvents serves per-type event logs; a cursor is the index of the next
// event, as a string.
type fakeEvents struct {
	mu      sync.Mutex
	logs    map[string][]domain.Event
	err     error
	queried map[string][]string
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{logs: make(map[string][]domain.Event), queried: make(map[string][]string)}
}

func (f *fakeEvents) add(eventType string, ev domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[eventType] = append(f.logs[eventType], ev)
}

func (f *fakeEvents) QueryEvents(_ context.Context, eventType, cursor string, limit int) (*domain.EventPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried[eventType] = append(f.queried[eventType], cursor)
	if f.err != nil {
		return nil, f.err
	}
	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	log := f.logs[eventType]
	end := min(start+limit, len(log))
	page := &domain.EventPage{Cursor: cursor, HasMore: end < len(log)}
	if end > start {
		page.Events = append(page.Events, log[start:end]...)
		page.Cursor = strconv.Itoa(end)
	}
	return page, nil
}

type memStore struct {
	saved []*persistence.Records
	load  *persistence.Records
}

func (m *memStore) Save(r *persistence.Records) error {
	m.saved = append(m.saved, r)
	return nil
}

func (m *memStore) Load() (*persistence.Records, error) {
	if m.load == nil {
		return &persistence.Records{}, nil
	}
	return m.load, nil
}

func (m *memStore) Close() error { return nil }

func bankEvent(seq int, coin, btoken string) domain.Event {
	return domain.Event{
		Timestamp: int64(seq),
		ParsedJSON: []byte(fmt.Sprintf(`{"event":{"bank_id":"0xba%d","coin_type":{"name":"%s"},"btoken_type":{"name":"%s"},`+
			`"lending_market_id":"0x1e","lending_market_type":{"name":"1e::suilend::MAIN_POOL"}}}`, seq, coin, btoken)),
	}
}

func poolEvent(seq int, id, btA, btB, quoter string) domain.Event {
	return domain.Event{
		Timestamp: int64(seq),
		ParsedJSON: []byte(fmt.Sprintf(`{"event":{"pool_id":"%s","coin_type_a":{"name":"%s"},"coin_type_b":{"name":"%s"},`+
			`"quoter_type":{"name":"%s"},"lp_token_type":{"name":"c::lp::LP"},"swap_fee_bps":"30",`+
			`"oracle_index_a":"1","oracle_index_b":"2"}}`, id, btA, btB, quoter)),
	}
}

func oracleEvent(index int) domain.Event {
	parts := make([]string, 32)
	for i := range parts {
		parts[i] = strconv.Itoa(index)
	}
	bytes := "[" + strings.Join(parts, ",") + "]"
	return domain.Event{
		ParsedJSON: []byte(fmt.Sprintf(`{"oracle_index":"%d","price_identifier":{"bytes":%s},"price_info_object_id":"0x%x"}`,
			index, bytes, 0xf00+index)),
	}
}

const (
	cpmmQuoter = "5a::cpmm::CpQuoter"
	ommQuoter  = "5a::omm_v2::OracleQuoterV2"
)

func seedProtocol(src *fakeEvents) {
	src.add(testPkgs.NewBankEventType(), bankEvent(1, "a::a::A", "b1::b::BA"))
	src.add(testPkgs.NewBankEventType(), bankEvent(2, "b::b::B", "b2::b::BB"))
	src.add(testPkgs.NewPoolEventType(), poolEvent(3, "0x10", "b1::b::BA", "b2::b::BB", cpmmQuoter))
	src.add(testPkgs.NewPoolEventType(), poolEvent(4, "0x11", "b2::b::BB", "b1::b::BA", ommQuoter))
	src.add(testPkgs.NewOracleEventType(), oracleEvent(1))
	src.add(testPkgs.NewOracleEventType(), oracleEvent(2))
}

func TestSyncBuildsSnapshot(t *testing.T) {
	src := newFakeEvents()
	seedProtocol(src)
	svc := New(src, nil, testPkgs, 1)

	snap, err := svc.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Pools, 2)
	assert.Same(t, snap, svc.Current())

	cpmm, ok := snap.Pool(domain.NormalizeAddress("0x10"))
	require.True(t, ok)
	assert.Equal(t, domain.QuoterCPMM, cpmm.Quoter)
	assert.Equal(t, domain.NormalizeType("0xa::a::A"), cpmm.CoinTypeA)
	assert.Equal(t, domain.NormalizeType("0xb::b::B"), cpmm.CoinTypeB)
	assert.Equal(t, uint64(30), cpmm.SwapFeeBps)
	assert.Zero(t, cpmm.OracleIndexA, "indices only kept for oracle pools")

	omm, ok := snap.Pool(domain.NormalizeAddress("0x11"))
	require.True(t, ok)
	assert.Equal(t, domain.QuoterOMMV2, omm.Quoter)
	assert.Equal(t, uint64(1), omm.OracleIndexA)
	assert.Equal(t, uint64(2), omm.OracleIndexB)

	feed, err := snap.Oracle(2)
	require.NoError(t, err)
	assert.Equal(t, "0x"+strings.Repeat("02", 32), feed.FeedID)
	assert.Equal(t, domain.NormalizeAddress("0xf02"), feed.PriceInfoObjectID)

	// Page size 1 walks the log one event at a time.
	assert.Equal(t, []string{"", "1"}, src.queried[testPkgs.NewPoolEventType()])
}

func TestSyncIsIncremental(t *testing.T) {
	src := newFakeEvents()
	seedProtocol(src)
	svc := New(src, nil, testPkgs, 50)

	_, err := svc.Sync(context.Background())
	require.NoError(t, err)

	src.add(testPkgs.NewBankEventType(), bankEvent(5, "c::c::C", "b3::b::BC"))
	src.add(testPkgs.NewPoolEventType(), poolEvent(6, "0x12", "b2::b::BB", "b3::b::BC", cpmmQuoter))

	snap, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Pools, 3)
	assert.Equal(t, 3, snap.BankCount())

	pools := src.queried[testPkgs.NewPoolEventType()]
	assert.Equal(t, []string{"", "2"}, pools)
	oracles := src.queried[testPkgs.NewOracleEventType()]
	assert.Equal(t, "2", oracles[len(oracles)-1])
}

func TestSyncKeepsSnapshotWhenNothingChanged(t *testing.T) {
	src := newFakeEvents()
	seedProtocol(src)
	svc := New(src, nil, testPkgs, 50)

	first, err := svc.Sync(context.Background())
	require.NoError(t, err)
	again, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, again)

	// Cursor-only progress over undecodable events publishes nothing new.
	src.add(testPkgs.NewPoolEventType(), domain.Event{ParsedJSON: []byte(`not json`)})
	again, err = svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, again)

	src.add(testPkgs.NewOracleEventType(), oracleEvent(3))
	next, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, next)
}

func TestSyncWaitsForBanks(t *testing.T) {
	src := newFakeEvents()
	src.add(testPkgs.NewBankEventType(), bankEvent(1, "a::a::A", "b1::b::BA"))
	src.add(testPkgs.NewPoolEventType(), poolEvent(2, "0x10", "b1::b::BA", "b2::b::BB", cpmmQuoter))
	svc := New(src, nil, testPkgs, 50)

	snap, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Pools)

	src.add(testPkgs.NewBankEventType(), bankEvent(3, "b::b::B", "b2::b::BB"))
	snap, err = svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Pools, 1)
}

func TestSyncSkipsMalformedEvents(t *testing.T) {
	src := newFakeEvents()
	seedProtocol(src)
	src.add(testPkgs.NewPoolEventType(), domain.Event{ParsedJSON: []byte(`{"event":{"pool_id":""}}`)})
	src.add(testPkgs.NewPoolEventType(), poolEvent(9, "0x13", "b1::b::BA", "b2::b::BB", "5a::stable::StableQuoter"))
	src.add(testPkgs.NewPoolEventType(), domain.Event{ParsedJSON: []byte(`not json`)})
	svc := New(src, nil, testPkgs, 50)

	snap, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Pools, 2)

	_, err = svc.Sync(context.Background())
	require.NoError(t, err)
	pools := src.queried[testPkgs.NewPoolEventType()]
	assert.Equal(t, "5", pools[len(pools)-1], "cursor moves past skipped events")
}

func TestSnapshotFallsBackToPrevious(t *testing.T) {
	src := newFakeEvents()
	svc := New(src, nil, testPkgs, 50)

	src.err = errors.New("fullnode down")
	_, err := svc.Snapshot(context.Background())
	require.Error(t, err)

	src.err = nil
	seedProtocol(src)
	first, err := svc.Snapshot(context.Background())
	require.NoError(t, err)

	src.err = errors.New("fullnode down")
	again, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, again)
}

func TestSyncPersistsAndResumes(t *testing.T) {
	src := newFakeEvents()
	seedProtocol(src)
	store := &memStore{}
	svc := New(src, store, testPkgs, 50)

	_, err := svc.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	saved := store.saved[0]
	assert.Len(t, saved.Pools, 2)
	assert.Len(t, saved.Banks, 2)
	assert.Len(t, saved.Oracles, 2)
	assert.Equal(t, map[string]string{KindPools: "2", KindBanks: "2", KindOracles: "2"}, saved.Cursors)

	// Nothing new: nothing saved.
	_, err = svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Len(t, store.saved, 1)

	// A restarted registry starts from the stored records and cursors.
	restarted := newFakeEvents()
	seedProtocol(restarted)
	svc2 := New(restarted, &memStore{load: saved}, testPkgs, 50)
	snap, err := svc2.Sync(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Pools, 2)
	assert.Equal(t, []string{"2"}, restarted.queried[testPkgs.NewPoolEventType()])
}
