// Package chaintest provides an in-memory ledger that executes bundles with
// the same command semantics the protocol exposes on chain.
package chaintest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"github.com/hxuan190/steamm-router/internal/common"
	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/services/builder"
	"github.com/hxuan190/steamm-router/internal/services/router"
)

const protocolFeeShareBps = 2000

type Pool struct {
	domain.Pool
	ReserveA uint64
	ReserveB uint64
	// Oracle pools only: price of one unit of A and B in a common quote unit.
	FeedA *Feed
	FeedB *Feed
	// Retain units of every swap input are left in the caller's coin.
	Retain uint64
}

func (p *Pool) intake(amount uint64) uint64 {
	if amount > p.Retain {
		return amount - p.Retain
	}
	return amount
}

// Bank converts at Rate underlying units per RateDen bTokens.
type Bank struct {
	domain.Bank
	Rate    uint64
	RateDen uint64
}

type Feed struct {
	domain.OracleFeed
	Price       uint64
	PublishTime time.Time
}

type coinObj struct {
	id       string
	typ      string
	amount   uint64
	owner    string
	consumed bool
}

type state struct {
	pools map[string]*Pool
	banks map[string]*Bank
	feeds map[string]*Feed
	coins map[string]*coinObj
}

func (s *state) clone() *state {
	c := &state{
		pools: make(map[string]*Pool, len(s.pools)),
		banks: make(map[string]*Bank, len(s.banks)),
		feeds: make(map[string]*Feed, len(s.feeds)),
		coins: make(map[string]*coinObj, len(s.coins)),
	}
	for k, v := range s.pools {
		p := *v
		c.pools[k] = &p
	}
	for k, v := range s.banks {
		b := *v
		c.banks[k] = &b
	}
	for k, v := range s.feeds {
		f := *v
		c.feeds[k] = &f
	}
	for k, v := range s.coins {
		cc := *v
		c.coins[k] = &cc
	}
	// Feed pointers held by pools must follow the clone.
	for _, p := range c.pools {
		if p.FeedA != nil {
			p.FeedA = c.feeds[p.FeedA.PriceInfoObjectID]
		}
		if p.FeedB != nil {
			p.FeedB = c.feeds[p.FeedB.PriceInfoObjectID]
		}
	}
	return c
}

// Ledger is safe for concurrent use; every Simulate works on a private copy
// of the state.
type Ledger struct {
	mu   sync.Mutex
	st   *state
	pkgs builder.Packages
	seq  uint64

	Now       func() time.Time
	Staleness time.Duration
	// EmitBCS makes HopQuote events carry raw BCS instead of JSON.
	EmitBCS bool
	// SimulateErr fails Simulate at the transport level.
	SimulateErr error
	// AbortBatches makes any simulation with more than one RouteQuote abort.
	AbortBatches bool
	// BeforeSubmit runs against the live state right before a submission
	// executes, to move the chain between quote and execution.
	BeforeSubmit func(l *Ledger)

	Simulations int
	Submissions int
	Signed      [][]byte
}

func NewLedger(pkgs builder.Packages) *Ledger {
	return &Ledger{
		st: &state{
			pools: make(map[string]*Pool),
			banks: make(map[string]*Bank),
			feeds: make(map[string]*Feed),
			coins: make(map[string]*coinObj),
		},
		pkgs:      pkgs,
		Now:       time.Now,
		Staleness: 60 * time.Second,
	}
}

func (l *Ledger) nextID() string {
	l.seq++
	return domain.NormalizeAddress(fmt.Sprintf("%x", 0x1000+l.seq))
}

func digestFor(id string) string {
	var raw [32]byte
	copy(raw[:], id)
	return base58.Encode(raw[:])
}

// AddBank registers a bank for coinType. rate/rateDen is the underlying value
// of one bToken.
func (l *Ledger) AddBank(coinType string, rate, rateDen uint64) *Bank {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID()
	b := &Bank{
		Bank: domain.Bank{
			ID:                id,
			CoinType:          domain.NormalizeType(coinType),
			BTokenType:        domain.NormalizeType(fmt.Sprintf("0xb%d::btoken::B", l.seq)),
			LendingMarketID:   domain.NormalizeAddress("0x1e"),
			LendingMarketType: domain.NormalizeType("0x1e::suilend::MAIN_POOL"),
		},
		Rate:    rate,
		RateDen: rateDen,
	}
	l.st.banks[id] = b
	return b
}

func (l *Ledger) bankByCoin(st *state, coinType string) *Bank {
	for _, b := range st.banks {
		if b.CoinType == domain.NormalizeType(coinType) {
			return b
		}
	}
	return nil
}

func (l *Ledger) addPool(kind domain.QuoterKind, coinA, coinB string, resA, resB, feeBps uint64) *Pool {
	bankA := l.bankByCoin(l.st, coinA)
	bankB := l.bankByCoin(l.st, coinB)
	if bankA == nil || bankB == nil {
		panic("chaintest: add banks before pools")
	}
	id := l.nextID()
	p := &Pool{
		Pool: domain.Pool{
			ID:          id,
			Quoter:      kind,
			BTokenTypeA: bankA.BTokenType,
			BTokenTypeB: bankB.BTokenType,
			LpTokenType: domain.NormalizeType(fmt.Sprintf("0xc%d::lp::LP", l.seq)),
			SwapFeeBps:  feeBps,
			CreatedAtMs: int64(l.seq),
		},
		ReserveA: resA,
		ReserveB: resB,
	}
	l.st.pools[id] = p
	return p
}

// AddCPMM adds a constant-product pool over the bTokens of coinA and coinB.
func (l *Ledger) AddCPMM(coinA, coinB string, resA, resB, feeBps uint64) *Pool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addPool(domain.QuoterCPMM, coinA, coinB, resA, resB, feeBps)
}

func (l *Ledger) AddOraclePool(kind domain.QuoterKind, coinA, coinB string, resA, resB, feeBps uint64, feedA, feedB *Feed) *Pool {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.addPool(kind, coinA, coinB, resA, resB, feeBps)
	p.FeedA, p.FeedB = feedA, feedB
	p.OracleIndexA, p.OracleIndexB = feedA.Index, feedB.Index
	return p
}

func (l *Ledger) AddFeed(index, price uint64, published time.Time) *Feed {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := &Feed{
		OracleFeed: domain.OracleFeed{
			Index:             index,
			FeedID:            fmt.Sprintf("0x%064x", 0xfeed0+index),
			PriceInfoObjectID: l.nextID(),
		},
		Price:       price,
		PublishTime: published,
	}
	l.st.feeds[f.PriceInfoObjectID] = f
	return f
}

// Mint creates an owned coin.
func (l *Ledger) Mint(owner, coinType string, amount uint64) domain.CoinRef {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID()
	c := &coinObj{id: id, typ: domain.NormalizeType(coinType), amount: amount, owner: domain.NormalizeAddress(owner)}
	l.st.coins[id] = c
	return domain.CoinRef{
		ObjectRef: domain.ObjectRef{ObjectID: id, Version: 1, Digest: digestFor(id)},
		CoinType:  c.typ,
		Balance:   amount,
	}
}

// Balance sums the coins of coinType held by owner.
func (l *Ledger) Balance(owner, coinType string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return balanceOf(l.st, domain.NormalizeAddress(owner), domain.NormalizeType(coinType))
}

func balanceOf(st *state, owner, coinType string) uint64 {
	var total uint64
	for _, c := range st.coins {
		if c.owner == owner && c.typ == coinType {
			total += c.amount
		}
	}
	return total
}

// CoinsOf counts coins of coinType held by owner.
func (l *Ledger) CoinsOf(owner, coinType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.st.coins {
		if c.owner == domain.NormalizeAddress(owner) && c.typ == domain.NormalizeType(coinType) {
			n++
		}
	}
	return n
}

// SetRetain makes swaps on poolID leave retain units of their input behind.
func (l *Ledger) SetRetain(poolID string, retain uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.pools[domain.NormalizeAddress(poolID)].Retain = retain
}

// SetReserves mutates a pool; used from BeforeSubmit or between quotes.
// Callers inside BeforeSubmit already hold the lock.
func (l *Ledger) SetReserves(poolID string, a, b uint64) {
	p := l.st.pools[domain.NormalizeAddress(poolID)]
	p.ReserveA, p.ReserveB = a, b
}

func (l *Ledger) Pool(poolID string) Pool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.st.pools[domain.NormalizeAddress(poolID)]
}

func (l *Ledger) FeedPublishTime(priceInfoObjectID string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.feeds[priceInfoObjectID].PublishTime
}

// Snapshot returns the registry view of the ledger.
func (l *Ledger) Snapshot() *domain.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	var (
		pools []*domain.Pool
		banks []*domain.Bank
		feeds []*domain.OracleFeed
	)
	for _, p := range l.st.pools {
		dp := p.Pool
		pools = append(pools, &dp)
	}
	for _, b := range l.st.banks {
		db := b.Bank
		banks = append(banks, &db)
	}
	for _, f := range l.st.feeds {
		df := f.OracleFeed
		feeds = append(feeds, &df)
	}
	snap, _ := domain.NewSnapshot(pools, banks, feeds)
	return snap
}

// Simulate executes b against a copy of the state.
func (l *Ledger) Simulate(ctx context.Context, b *builder.Bundle) (*domain.SimulationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Simulations++
	if l.SimulateErr != nil {
		return nil, l.SimulateErr
	}
	if err := encodable(b); err != nil {
		return nil, err
	}

	if l.AbortBatches && b.CountCalls("quote_script::emit_route_quote") > 1 {
		return &domain.SimulationResult{Success: false, Error: "MoveAbort: batch rejected"}, nil
	}

	x := &exec{l: l, st: l.st.clone(), b: b, sender: common.ZeroAddress}
	if err := x.run(); err != nil {
		return &domain.SimulationResult{Success: false, Error: err.Error(), SlippageExceeded: errors.Is(err, errSlippage)}, nil
	}
	return &domain.SimulationResult{Success: true, Events: x.events}, nil
}

// Submit executes b and commits the result when every command succeeds.
func (l *Ledger) Submit(ctx context.Context, b *builder.Bundle, signer router.Signer) (*domain.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Submissions++

	sender := domain.NormalizeAddress(signer.Address())
	b.SetSharedVersions(sharedVersions(b))
	txBytes, err := b.EncodeTransactionData(sender, builder.GasData{Price: 1000, Budget: 50_000_000})
	if err != nil {
		return nil, err
	}
	if _, err := signer.Sign(ctx, txBytes); err != nil {
		return nil, err
	}
	l.Signed = append(l.Signed, txBytes)

	if l.BeforeSubmit != nil {
		l.BeforeSubmit(l)
	}

	x := &exec{l: l, st: l.st.clone(), b: b, sender: sender}
	digest := digestFor(fmt.Sprintf("tx%d", l.Submissions))
	if err := x.run(); err != nil {
		return &domain.ExecutionResult{Digest: digest, Success: false, Error: err.Error()}, nil
	}

	changes := balanceChanges(l.st, x.st)
	l.st = x.st
	return &domain.ExecutionResult{Digest: digest, Success: true, Events: x.events, BalanceChanges: changes}, nil
}

// Prepare encodes b as a TransactionKind with every shared version set to 1.
func (l *Ledger) Prepare(ctx context.Context, b *builder.Bundle) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.SetSharedVersions(sharedVersions(b))
	return b.EncodeKind()
}

// SelectCoin returns the smallest coin of coinType owned by owner that holds
// at least amount.
func (l *Ledger) SelectCoin(_ context.Context, owner, coinType string, amount uint64) (domain.CoinRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner = domain.NormalizeAddress(owner)
	coinType = domain.NormalizeType(coinType)

	var best *coinObj
	for _, c := range l.st.coins {
		if c.owner != owner || c.typ != coinType || c.amount < amount {
			continue
		}
		if best == nil || c.amount < best.amount || (c.amount == best.amount && c.id < best.id) {
			best = c
		}
	}
	if best == nil {
		return domain.CoinRef{}, fmt.Errorf("no %s coin of %d for %s", coinType, amount, owner)
	}
	return domain.CoinRef{
		ObjectRef: domain.ObjectRef{ObjectID: best.id, Version: 1, Digest: digestFor(best.id)},
		CoinType:  best.typ,
		Balance:   best.amount,
	}, nil
}

func sharedVersions(b *builder.Bundle) map[string]uint64 {
	out := make(map[string]uint64)
	for _, id := range b.SharedObjectIDs() {
		out[id] = 1
	}
	return out
}

// encodable checks the bundle serializes, the way a node would reject it.
func encodable(b *builder.Bundle) error {
	b.SetSharedVersions(sharedVersions(b))
	_, err := b.EncodeKind()
	return err
}

func balanceChanges(before, after *state) []domain.BalanceChange {
	type key struct{ owner, typ string }
	sums := make(map[key]int64)
	for _, c := range before.coins {
		if c.owner != "" {
			sums[key{c.owner, c.typ}] -= int64(c.amount)
		}
	}
	for _, c := range after.coins {
		if c.owner != "" {
			sums[key{c.owner, c.typ}] += int64(c.amount)
		}
	}
	var out []domain.BalanceChange
	for k, v := range sums {
		if v != 0 {
			out = append(out, domain.BalanceChange{Owner: k.owner, CoinType: k.typ, Amount: v})
		}
	}
	return out
}

// EncodeUpdate is the attestation format update_price_feed accepts here:
// price and publish time in seconds, both little-endian u64.
func EncodeUpdate(price uint64, published time.Time) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[:8], price)
	binary.LittleEndian.PutUint64(buf[8:], uint64(published.Unix()))
	return buf
}

// Signer signs with a fixed address.
type Signer struct {
	Addr string
}

func (s Signer) Address() string {
	return s.Addr
}

func (s Signer) Sign(_ context.Context, txBytes []byte) (string, error) {
	if len(txBytes) == 0 {
		return "", errors.New("empty transaction")
	}
	return base58.Encode(txBytes[:8]), nil
}

// Prices serves on-chain publish times from the ledger and attestations
// from Updates.
type Prices struct {
	Ledger  *Ledger
	Updates map[uint64]*domain.PriceUpdate
	Err     error

	mu      sync.Mutex
	Fetches int
}

func (p *Prices) PublishTime(_ context.Context, feed *domain.OracleFeed) (time.Time, error) {
	return p.Ledger.FeedPublishTime(feed.PriceInfoObjectID), nil
}

func (p *Prices) LatestUpdate(_ context.Context, feed *domain.OracleFeed) (*domain.PriceUpdate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Fetches++
	if p.Err != nil {
		return nil, p.Err
	}
	u, ok := p.Updates[feed.Index]
	if !ok {
		return nil, fmt.Errorf("no attestation for feed %d", feed.Index)
	}
	return u, nil
}
