package router

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	bin "github.com/gagliardetto/binary"

	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/services/builder"
)

// u64 values render as decimal strings in event JSON.
type hopQuoteJSON struct {
	PoolID       string `json:"pool_id"`
	AmountIn     string `json:"amount_in"`
	AmountOut    string `json:"amount_out"`
	ProtocolFees string `json:"protocol_fees"`
	PoolFees     string `json:"pool_fees"`
	A2B          bool   `json:"a2b"`
}

type routeQuoteJSON struct {
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}

func parseU64s(fields ...string) ([]uint64, error) {
	out := make([]uint64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid u64 %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}

// decodeHopQuote reads a HopQuote event, preferring the raw BCS payload
// (pool_id: ID, amount_in, amount_out, protocol_fees, pool_fees: u64, a2b: bool).
func decodeHopQuote(ev domain.Event) (domain.HopQuote, error) {
	if len(ev.BCS) > 0 {
		return decodeHopQuoteBCS(ev.BCS)
	}
	var raw hopQuoteJSON
	if err := sonic.Unmarshal(ev.ParsedJSON, &raw); err != nil {
		return domain.HopQuote{}, fmt.Errorf("decode hop quote: %w", err)
	}
	v, err := parseU64s(raw.AmountIn, raw.AmountOut, raw.ProtocolFees, raw.PoolFees)
	if err != nil {
		return domain.HopQuote{}, fmt.Errorf("decode hop quote: %w", err)
	}
	return domain.HopQuote{
		PoolID:    domain.NormalizeAddress(raw.PoolID),
		AToB:      raw.A2B,
		AmountIn:  v[0],
		AmountOut: v[1],
		Fees:      domain.Fees{Protocol: v[2], Pool: v[3]},
	}, nil
}

func decodeHopQuoteBCS(data []byte) (domain.HopQuote, error) {
	dec := bin.NewBinDecoder(data)
	id, err := dec.ReadNBytes(32)
	if err != nil {
		return domain.HopQuote{}, fmt.Errorf("decode hop quote: %w", err)
	}
	var v [4]uint64
	for i := range v {
		if v[i], err = dec.ReadUint64(binary.LittleEndian); err != nil {
			return domain.HopQuote{}, fmt.Errorf("decode hop quote: %w", err)
		}
	}
	a2b, err := dec.ReadBool()
	if err != nil {
		return domain.HopQuote{}, fmt.Errorf("decode hop quote: %w", err)
	}
	return domain.HopQuote{
		PoolID:    "0x" + hex.EncodeToString(id),
		AToB:      a2b,
		AmountIn:  v[0],
		AmountOut: v[1],
		Fees:      domain.Fees{Protocol: v[2], Pool: v[3]},
	}, nil
}

func decodeRouteQuote(ev domain.Event) (amountIn, amountOut uint64, err error) {
	var raw routeQuoteJSON
	if err := sonic.Unmarshal(ev.ParsedJSON, &raw); err != nil {
		return 0, 0, fmt.Errorf("decode route quote: %w", err)
	}
	v, err := parseU64s(raw.AmountIn, raw.AmountOut)
	if err != nil {
		return 0, 0, fmt.Errorf("decode route quote: %w", err)
	}
	return v[0], v[1], nil
}

// extractQuotes splits a simulation's events between the routes that were
// folded into the bundle, in bundle order: each route owns one HopQuote per
// hop followed by one RouteQuote.
func extractQuotes(pkgs builder.Packages, events []domain.Event, routes []*resolvedRoute) ([]*domain.Quote, error) {
	hopType := domain.NormalizeType(pkgs.HopQuoteEventType())
	routeType := domain.NormalizeType(pkgs.RouteQuoteEventType())

	var hopEvents, routeEvents []domain.Event
	for _, ev := range events {
		switch domain.NormalizeType(ev.Type) {
		case hopType:
			hopEvents = append(hopEvents, ev)
		case routeType:
			routeEvents = append(routeEvents, ev)
		}
	}

	total := 0
	for _, r := range routes {
		total += len(r.hops)
	}
	if len(hopEvents) != total || len(routeEvents) != len(routes) {
		return nil, fmt.Errorf("%w: got %d hop and %d route events for %d hops in %d routes",
			ErrMissingEvents, len(hopEvents), len(routeEvents), total, len(routes))
	}

	quotes := make([]*domain.Quote, len(routes))
	cursor := 0
	for i, r := range routes {
		q := &domain.Quote{Hops: make([]domain.HopQuote, 0, len(r.hops))}
		for j := range r.hops {
			hq, err := decodeHopQuote(hopEvents[cursor])
			if err != nil {
				return nil, err
			}
			cursor++
			if hq.PoolID != domain.NormalizeAddress(r.hops[j].Pool.ID) {
				return nil, fmt.Errorf("%w: route %d hop %d quoted pool %s", ErrMissingEvents, i, j, hq.PoolID)
			}
			q.Hops = append(q.Hops, hq)
			q.Fees = q.Fees.Add(hq.Fees)
		}
		in, out, err := decodeRouteQuote(routeEvents[i])
		if err != nil {
			return nil, err
		}
		q.AmountIn = in
		q.AmountOut = out
		quotes[i] = q
	}
	return quotes, nil
}
