package domain

import (
	"fmt"
	"sort"
	"time"
)

// Snapshot is a read-only view of the protocol registry at one point in time.
// A snapshot is never mutated after NewSnapshot returns, so it is safe to share
// between concurrent requests.
type Snapshot struct {
	Pools   []*Pool
	TakenAt time.Time

	pools         map[string]*Pool
	banksByCoin   map[string]*Bank
	banksByBToken map[string]*Bank
	oracles       map[uint64]*OracleFeed
}

// NewSnapshot indexes the registry records. Pools whose bTokens have no known
// bank cannot be wrapped into and are left out; their ids are returned.
func NewSnapshot(pools []*Pool, banks []*Bank, oracles []*OracleFeed) (*Snapshot, []string) {
	s := &Snapshot{
		TakenAt:       time.Now(),
		pools:         make(map[string]*Pool, len(pools)),
		banksByCoin:   make(map[string]*Bank, len(banks)),
		banksByBToken: make(map[string]*Bank, len(banks)),
		oracles:       make(map[uint64]*OracleFeed, len(oracles)),
	}
	for _, b := range banks {
		s.banksByCoin[b.CoinType] = b
		s.banksByBToken[b.BTokenType] = b
	}
	for _, o := range oracles {
		s.oracles[o.Index] = o
	}

	var skipped []string
	for _, p := range pools {
		bankA, okA := s.banksByBToken[p.BTokenTypeA]
		bankB, okB := s.banksByBToken[p.BTokenTypeB]
		if !okA || !okB || bankA.CoinType == bankB.CoinType {
			skipped = append(skipped, p.ID)
			continue
		}
		resolved := *p
		resolved.CoinTypeA = bankA.CoinType
		resolved.CoinTypeB = bankB.CoinType
		s.pools[p.ID] = &resolved
		s.Pools = append(s.Pools, &resolved)
	}
	sort.Slice(s.Pools, func(i, j int) bool {
		if s.Pools[i].CreatedAtMs != s.Pools[j].CreatedAtMs {
			return s.Pools[i].CreatedAtMs < s.Pools[j].CreatedAtMs
		}
		return s.Pools[i].ID < s.Pools[j].ID
	})
	return s, skipped
}

func (s *Snapshot) Pool(id string) (*Pool, bool) {
	p, ok := s.pools[id]
	return p, ok
}

func (s *Snapshot) BankByCoin(coinType string) (*Bank, error) {
	b, ok := s.banksByCoin[coinType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBank, coinType)
	}
	return b, nil
}

func (s *Snapshot) BankByBToken(bTokenType string) (*Bank, error) {
	b, ok := s.banksByBToken[bTokenType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBank, bTokenType)
	}
	return b, nil
}

func (s *Snapshot) Oracle(index uint64) (*OracleFeed, error) {
	o, ok := s.oracles[index]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOracle, index)
	}
	return o, nil
}

// Banks returns all banks ordered by coin type.
func (s *Snapshot) Banks() []*Bank {
	out := make([]*Bank, 0, len(s.banksByCoin))
	for _, b := range s.banksByCoin {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CoinType < out[j].CoinType })
	return out
}

func (s *Snapshot) BankCount() int {
	return len(s.banksByCoin)
}
