package router

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/services/builder"
)

var eventPkgs = builder.Packages{Scripts: "0x5b"}

const eventPool = "0x00000000000000000000000000000000000000000000000000000000000010aa"

func hopEvent(pool string, in, out uint64) domain.Event {
	return domain.Event{
		Type: eventPkgs.HopQuoteEventType(),
		ParsedJSON: []byte(`{"pool_id":"` + pool + `","amount_in":"` + strconv.FormatUint(in, 10) + `","amount_out":"` + strconv.FormatUint(out, 10) +
			`","protocol_fees":"4","pool_fees":"16","a2b":true}`),
	}
}

func routeEvent(in, out uint64) domain.Event {
	return domain.Event{
		Type:       eventPkgs.RouteQuoteEventType(),
		ParsedJSON: []byte(`{"amount_in":"` + strconv.FormatUint(in, 10) + `","amount_out":"` + strconv.FormatUint(out, 10) + `"}`),
	}
}

func oneHopRoute(poolID string) *resolvedRoute {
	return &resolvedRoute{hops: []resolvedHop{{Hop: domain.Hop{Pool: &domain.Pool{ID: poolID}, AToB: true}}}}
}

func TestDecodeHopQuoteJSONAndBCSAgree(t *testing.T) {
	fromJSON, err := decodeHopQuote(hopEvent(eventPool, 1_000, 990))
	require.NoError(t, err)

	id, _ := hex.DecodeString(eventPool[2:])
	raw := append([]byte{}, id...)
	for _, v := range []uint64{1_000, 990, 4, 16} {
		raw = binary.LittleEndian.AppendUint64(raw, v)
	}
	raw = append(raw, 1)
	fromBCS, err := decodeHopQuote(domain.Event{BCS: raw})
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromBCS)
	assert.Equal(t, domain.Fees{Protocol: 4, Pool: 16}, fromBCS.Fees)
}

func TestDecodeHopQuoteRejectsMalformed(t *testing.T) {
	_, err := decodeHopQuote(domain.Event{BCS: []byte{1, 2, 3}})
	assert.Error(t, err)

	ev := hopEvent(eventPool, 1, 1)
	ev.ParsedJSON = []byte(`{"pool_id":"0x1","amount_in":"-5","amount_out":"1","protocol_fees":"0","pool_fees":"0","a2b":true}`)
	_, err = decodeHopQuote(ev)
	assert.Error(t, err)
}

func TestExtractQuotesSplitsByRoute(t *testing.T) {
	other := domain.NormalizeAddress("0x10bb")
	events := []domain.Event{
		hopEvent(eventPool, 100, 90),
		routeEvent(100, 90),
		{Type: "0x2::unrelated::Event"},
		hopEvent(other, 100, 80),
		routeEvent(100, 80),
	}
	quotes, err := extractQuotes(eventPkgs, events, []*resolvedRoute{oneHopRoute(eventPool), oneHopRoute(other)})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, uint64(90), quotes[0].AmountOut)
	assert.Equal(t, uint64(80), quotes[1].AmountOut)
	assert.Equal(t, domain.Fees{Protocol: 4, Pool: 16}, quotes[1].Fees)
}

func TestExtractQuotesDetectsMismatch(t *testing.T) {
	_, err := extractQuotes(eventPkgs, []domain.Event{routeEvent(100, 90)}, []*resolvedRoute{oneHopRoute(eventPool)})
	assert.ErrorIs(t, err, ErrMissingEvents)

	events := []domain.Event{hopEvent(domain.NormalizeAddress("0x10cc"), 100, 90), routeEvent(100, 90)}
	_, err = extractQuotes(eventPkgs, events, []*resolvedRoute{oneHopRoute(eventPool)})
	assert.ErrorIs(t, err, ErrMissingEvents)
}
