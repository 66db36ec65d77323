package registry

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"

	"github.com/hxuan190/steamm-router/internal/domain"
)

var ErrMalformedEvent = errors.New("malformed registry event")

// typeName is how a std::type_name::TypeName renders in event JSON; the
// address carries no 0x prefix.
type typeName struct {
	Name string `json:"name"`
}

func (t typeName) normalized() string {
	return domain.NormalizeType(t.Name)
}

type newPoolResult struct {
	Event struct {
		PoolID       string   `json:"pool_id"`
		CoinTypeA    typeName `json:"coin_type_a"`
		CoinTypeB    typeName `json:"coin_type_b"`
		QuoterType   typeName `json:"quoter_type"`
		LpTokenType  typeName `json:"lp_token_type"`
		SwapFeeBps   string   `json:"swap_fee_bps"`
		OracleIndexA string   `json:"oracle_index_a"`
		OracleIndexB string   `json:"oracle_index_b"`
	} `json:"event"`
}

type newBankEvent struct {
	Event struct {
		BankID            string   `json:"bank_id"`
		CoinType          typeName `json:"coin_type"`
		BTokenType        typeName `json:"btoken_type"`
		LendingMarketID   string   `json:"lending_market_id"`
		LendingMarketType typeName `json:"lending_market_type"`
	} `json:"event"`
}

type newOracleEvent struct {
	OracleIndex     string `json:"oracle_index"`
	// vector<u8> renders as a JSON number array.
	PriceIdentifier struct {
		Bytes []uint16 `json:"bytes"`
	} `json:"price_identifier"`
	PriceInfoObjectID string `json:"price_info_object_id"`
}

func parseOptionalU64(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// decodePool reads a pool creation event. The pool's coin types are its
// bToken types; the underlying coins come from banks.
func decodePool(ev domain.Event) (*domain.Pool, error) {
	var raw newPoolResult
	if err := sonic.Unmarshal(ev.ParsedJSON, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	e := raw.Event
	if e.PoolID == "" || e.CoinTypeA.Name == "" || e.CoinTypeB.Name == "" {
		return nil, fmt.Errorf("%w: pool event %s missing fields", ErrMalformedEvent, ev.TxDigest)
	}
	kind, err := domain.ParseQuoterKind(e.QuoterType.normalized())
	if err != nil {
		return nil, err
	}
	fee, err := parseOptionalU64(e.SwapFeeBps)
	if err != nil {
		return nil, fmt.Errorf("%w: swap_fee_bps: %w", ErrMalformedEvent, err)
	}
	pool := &domain.Pool{
		ID:          domain.NormalizeAddress(e.PoolID),
		Quoter:      kind,
		QuoterType:  e.QuoterType.normalized(),
		BTokenTypeA: e.CoinTypeA.normalized(),
		BTokenTypeB: e.CoinTypeB.normalized(),
		LpTokenType: e.LpTokenType.normalized(),
		SwapFeeBps:  fee,
		CreatedAtMs: ev.Timestamp,
	}
	if kind.IsOracle() {
		if pool.OracleIndexA, err = parseOptionalU64(e.OracleIndexA); err != nil {
			return nil, fmt.Errorf("%w: oracle_index_a: %w", ErrMalformedEvent, err)
		}
		if pool.OracleIndexB, err = parseOptionalU64(e.OracleIndexB); err != nil {
			return nil, fmt.Errorf("%w: oracle_index_b: %w", ErrMalformedEvent, err)
		}
	}
	return pool, nil
}

func decodeBank(ev domain.Event) (*domain.Bank, error) {
	var raw newBankEvent
	if err := sonic.Unmarshal(ev.ParsedJSON, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	e := raw.Event
	if e.BankID == "" || e.CoinType.Name == "" || e.BTokenType.Name == "" {
		return nil, fmt.Errorf("%w: bank event %s missing fields", ErrMalformedEvent, ev.TxDigest)
	}
	return &domain.Bank{
		ID:                domain.NormalizeAddress(e.BankID),
		CoinType:          e.CoinType.normalized(),
		BTokenType:        e.BTokenType.normalized(),
		LendingMarketID:   domain.NormalizeAddress(e.LendingMarketID),
		LendingMarketType: e.LendingMarketType.normalized(),
		CreatedAtMs:       ev.Timestamp,
	}, nil
}

func decodeOracle(ev domain.Event) (*domain.OracleFeed, error) {
	var raw newOracleEvent
	if err := sonic.Unmarshal(ev.ParsedJSON, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	index, err := strconv.ParseUint(raw.OracleIndex, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: oracle_index: %w", ErrMalformedEvent, err)
	}
	if len(raw.PriceIdentifier.Bytes) != 32 || raw.PriceInfoObjectID == "" {
		return nil, fmt.Errorf("%w: oracle event %s missing fields", ErrMalformedEvent, ev.TxDigest)
	}
	id := make([]byte, len(raw.PriceIdentifier.Bytes))
	for i, b := range raw.PriceIdentifier.Bytes {
		if b > 0xff {
			return nil, fmt.Errorf("%w: price_identifier byte %d", ErrMalformedEvent, b)
		}
		id[i] = byte(b)
	}
	return &domain.OracleFeed{
		Index:             index,
		FeedID:            "0x" + hex.EncodeToString(id),
		PriceInfoObjectID: domain.NormalizeAddress(raw.PriceInfoObjectID),
	}, nil
}
