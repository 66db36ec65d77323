package oracle

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/steamm-router/internal/domain"
)

const feedID = "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"

func TestLatestParsesAttestation(t *testing.T) {
	update := []byte("PNAU-attestation")
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/updates/price/latest", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"binary": {"encoding": "base64", "data": ["` + base64.StdEncoding.EncodeToString(update) + `"]},
			"parsed": [{"id": "e62d", "price": {"price": "6512345678901", "conf": "2500000000", "expo": -8, "publish_time": 1700000000}}]
		}`))
	}))
	defer srv.Close()

	h := NewHermes(srv.URL+"/", time.Second)
	u, err := h.Latest(context.Background(), feedID)
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "ids%5B%5D=e62df6c8")
	assert.Contains(t, gotQuery, "encoding=base64")
	assert.Equal(t, feedID, u.FeedID)
	assert.Equal(t, update, u.Data)
	assert.True(t, decimal.RequireFromString("65123.45678901").Equal(u.Price), u.Price.String())
	assert.True(t, decimal.NewFromInt(25).Equal(u.Confidence), u.Confidence.String())
	assert.Equal(t, time.Unix(1_700_000_000, 0), u.PublishTime)
}

func TestLatestErrors(t *testing.T) {
	status := http.StatusServiceUnavailable
	body := `busy`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()
	h := NewHermes(srv.URL, time.Second)

	_, err := h.Latest(context.Background(), feedID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")

	status, body = http.StatusOK, `{"binary":{"data":[]},"parsed":[]}`
	_, err = h.Latest(context.Background(), feedID)
	assert.ErrorIs(t, err, ErrNoAttestation)

	status, body = http.StatusOK, `{"binary":{"data":["%%%"]},"parsed":[{"price":{"price":"1","conf":"0","expo":0}}]}`
	_, err = h.Latest(context.Background(), feedID)
	assert.Error(t, err)

	status, body = http.StatusOK, `{"binary":{"data":["AA=="]},"parsed":[{"price":{"price":"one","conf":"0","expo":0}}]}`
	_, err = h.Latest(context.Background(), feedID)
	assert.Error(t, err)
}

type fixedChain time.Time

func (f fixedChain) PublishTime(context.Context, *domain.OracleFeed) (time.Time, error) {
	return time.Time(f), nil
}

func TestSourceCombinesChainAndHermes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"binary":{"data":["AQI="]},"parsed":[{"price":{"price":"5","conf":"1","expo":0,"publish_time":1700000050}}]}`))
	}))
	defer srv.Close()

	onChain := time.Unix(1_700_000_000, 0)
	src := &Source{Chain: fixedChain(onChain), Hermes: NewHermes(srv.URL, time.Second)}
	feed := &domain.OracleFeed{Index: 1, FeedID: feedID}

	ts, err := src.PublishTime(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, onChain, ts)

	u, err := src.LatestUpdate(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, u.Data)
	assert.Equal(t, 50*time.Second, u.PublishTime.Sub(onChain))
}
