package domain

import (
	"fmt"
	"strings"
)

// QuoterKind is the pricing strategy a pool was created with. The set is
// closed; anything else is rejected when the registry is decoded.
type QuoterKind uint8

const (
	QuoterCPMM QuoterKind = iota + 1
	QuoterOMM
	QuoterOMMV2
)

func (k QuoterKind) String() string {
	switch k {
	case QuoterCPMM:
		return "cpmm"
	case QuoterOMM:
		return "omm"
	case QuoterOMMV2:
		return "omm_v2"
	default:
		return "UNKNOWN"
	}
}

// IsOracle reports whether swaps through the pool need fresh oracle prices.
func (k QuoterKind) IsOracle() bool {
	return k == QuoterOMM || k == QuoterOMMV2
}

// ParseQuoterKind resolves a quoter type tag such as
// "0xabc::omm_v2::OracleQuoterV2" into its kind.
func ParseQuoterKind(typeTag string) (QuoterKind, error) {
	parts := strings.Split(StructBase(typeTag), "::")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownQuoter, typeTag)
	}
	switch parts[1] + "::" + parts[2] {
	case "cpmm::CpQuoter":
		return QuoterCPMM, nil
	case "omm::OracleQuoter":
		return QuoterOMM, nil
	case "omm_v2::OracleQuoterV2":
		return QuoterOMMV2, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownQuoter, typeTag)
}

// Pool is an immutable liquidity pair. Pools hold bTokens on chain; the
// underlying coin types are resolved through banks when a snapshot is built.
type Pool struct {
	ID          string     `json:"id"`
	Quoter      QuoterKind `json:"quoter"`
	QuoterType  string     `json:"quoterType"`
	BTokenTypeA string     `json:"bTokenTypeA"`
	BTokenTypeB string     `json:"bTokenTypeB"`
	CoinTypeA   string     `json:"coinTypeA"`
	CoinTypeB   string     `json:"coinTypeB"`
	LpTokenType string     `json:"lpTokenType"`
	SwapFeeBps  uint64     `json:"swapFeeBps"`

	// Oracle registry indices, only meaningful for oracle quoters.
	OracleIndexA uint64 `json:"oracleIndexA,omitempty"`
	OracleIndexB uint64 `json:"oracleIndexB,omitempty"`

	CreatedAtMs int64 `json:"createdAtMs"`
}

// TokenOut returns the coin on the other side of token, if the pool has it.
func (p *Pool) TokenOut(tokenIn string) (string, bool, bool) {
	switch tokenIn {
	case p.CoinTypeA:
		return p.CoinTypeB, true, true
	case p.CoinTypeB:
		return p.CoinTypeA, false, true
	}
	return "", false, false
}

// BTokens returns the pool's bToken types in swap direction.
func (p *Pool) BTokens(aToB bool) (in, out string) {
	if aToB {
		return p.BTokenTypeA, p.BTokenTypeB
	}
	return p.BTokenTypeB, p.BTokenTypeA
}

// Bank wraps one underlying coin into its interest-bearing bToken.
type Bank struct {
	ID                string `json:"id"`
	CoinType          string `json:"coinType"`
	BTokenType        string `json:"bTokenType"`
	LendingMarketID   string `json:"lendingMarketId"`
	LendingMarketType string `json:"lendingMarketType"`
	CreatedAtMs       int64  `json:"createdAtMs"`
}

// TypeArgs are the <P, T, BT> arguments every bank entry point takes.
func (b *Bank) TypeArgs() []string {
	return []string{b.LendingMarketType, b.CoinType, b.BTokenType}
}

// OracleFeed binds an oracle registry index to a price feed.
type OracleFeed struct {
	Index             uint64 `json:"index"`
	FeedID            string `json:"feedId"`
	PriceInfoObjectID string `json:"priceInfoObjectId"`
}
