package http

import (
	"bytes"
	"context"
	"encoding/base64"
	gohttp "net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/steamm-router/internal/adapters/chain/chaintest"
	"github.com/hxuan190/steamm-router/internal/aggregator"
	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/http/middlewares"
	"github.com/hxuan190/steamm-router/internal/services/builder"
	"github.com/hxuan190/steamm-router/internal/services/router"
)

var (
	tokA = domain.NormalizeType("0xa::coin_a::COIN_A")
	tokB = domain.NormalizeType("0xb::coin_b::COIN_B")
	tokC = domain.NormalizeType("0xc::coin_c::COIN_C")
	user = domain.NormalizeAddress("0xa11ce")
)

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

type ledgerSnapshots struct {
	ledger *chaintest.Ledger
}

func (s ledgerSnapshots) Snapshot(context.Context) (*domain.Snapshot, error) {
	return s.ledger.Snapshot(), nil
}

type testServer struct {
	ledger *chaintest.Ledger
	pool   *chaintest.Pool
	engine *gin.Engine
}

func newTestServer(t *testing.T, limiter *middlewares.RateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	pkgs := builder.Packages{Steamm: "0x5a", Scripts: "0x5b", Oracles: "0x5c"}
	l := chaintest.NewLedger(pkgs)
	for _, tok := range []string{tokA, tokB, tokC} {
		l.AddBank(tok, 1, 1)
	}
	pool := l.AddCPMM(tokA, tokB, 1_000_000, 1_000_000, 30)
	prices := &chaintest.Prices{Ledger: l, Updates: map[uint64]*domain.PriceUpdate{}}
	svc := aggregator.New(ledgerSnapshots{l}, l, prices, router.DefaultConfig(pkgs))
	return &testServer{ledger: l, pool: pool, engine: NewRouter(svc, limiter)}
}

func (s *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		raw, err := sonic.Marshal(body)
		require.NoError(t, err)
		buf.Write(raw)
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func pairQuery(path, from, to string, extra url.Values) string {
	q := url.Values{"from": {from}, "to": {to}}
	for k, v := range extra {
		q[k] = v
	}
	return path + "?" + q.Encode()
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, gohttp.MethodGet, "/health", nil)
	assert.Equal(t, gohttp.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestPoolEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, gohttp.MethodGet, "/api/v1/pools?limit=1000", nil)
	require.Equal(t, gohttp.StatusOK, w.Code)
	list := decode[PoolListResponse](t, w)
	assert.True(t, list.Success)
	assert.Equal(t, 1, list.Data.Total)
	assert.Equal(t, 500, list.Data.Limit)
	require.Len(t, list.Data.Pools, 1)
	assert.Equal(t, "cpmm", list.Data.Pools[0].Quoter)
	assert.Equal(t, tokA, list.Data.Pools[0].CoinTypeA)
	assert.Nil(t, list.Data.Pools[0].OracleIndexA)

	w = s.do(t, gohttp.MethodGet, "/api/v1/pools?page=3", nil)
	require.Equal(t, gohttp.StatusOK, w.Code)
	assert.Empty(t, decode[PoolListResponse](t, w).Data.Pools)

	w = s.do(t, gohttp.MethodGet, "/api/v1/pools?page=100000000000000001&limit=100", nil)
	require.Equal(t, gohttp.StatusOK, w.Code)
	far := decode[PoolListResponse](t, w).Data
	assert.Empty(t, far.Pools)
	assert.Equal(t, 1, far.Pages)

	w = s.do(t, gohttp.MethodGet, "/api/v1/pools/"+s.pool.ID, nil)
	require.Equal(t, gohttp.StatusOK, w.Code)
	assert.Equal(t, uint64(30), decode[PoolInfo](t, w).Data.SwapFeeBps)

	w = s.do(t, gohttp.MethodGet, "/api/v1/pools/0xdead", nil)
	assert.Equal(t, gohttp.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[any](t, w).Code)

	w = s.do(t, gohttp.MethodGet, "/api/v1/pools/banks", nil)
	require.Equal(t, gohttp.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Bank](t, w).Data, 3)
}

func TestRoutesEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.ledger.AddCPMM(tokB, tokC, 1_000_000, 1_000_000, 30)

	w := s.do(t, gohttp.MethodGet, pairQuery("/api/v1/routes", "0xa::coin_a::COIN_A", tokC, nil), nil)
	require.Equal(t, gohttp.StatusOK, w.Code)
	res := decode[RoutesResponse](t, w).Data
	assert.Equal(t, tokA, res.From)
	require.Len(t, res.Routes, 1)
	assert.Equal(t, []string{tokA, tokB, tokC}, res.Routes[0].Path)
	assert.Equal(t, 2, res.Routes[0].HopCount)

	w = s.do(t, gohttp.MethodGet, "/api/v1/routes?from="+url.QueryEscape(tokA), nil)
	assert.Equal(t, gohttp.StatusBadRequest, w.Code)
}

func TestQuoteEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, gohttp.MethodGet, pairQuery("/api/v1/quote", tokA, tokB, url.Values{"amount": {"10000"}, "slippageBps": {"100"}}), nil)
	require.Equal(t, gohttp.StatusOK, w.Code, w.Body.String())
	res := decode[QuoteResponse](t, w).Data

	gross := router.MulDiv(10_000, 1_000_000, 1_010_000)
	out := gross - router.MulDiv(gross, 30, 10_000)
	minOut, _ := router.MinAmountOut(out, 100)
	assert.Equal(t, "10000", res.AmountIn)
	assert.Equal(t, strconv.FormatUint(out, 10), res.AmountOut)
	assert.Equal(t, strconv.FormatUint(minOut, 10), res.MinAmountOut)
	assert.Equal(t, uint16(100), res.SlippageBps)
	assert.Equal(t, 1, res.HopCount)
	require.Len(t, res.Hops, 1)
	assert.Equal(t, "cpmm", res.Hops[0].Quoter)
	require.Len(t, res.Candidates, 1)
	assert.Empty(t, res.Candidates[0].Error)

	tests := map[string]struct {
		target string
		status int
	}{
		"missing amount": {pairQuery("/api/v1/quote", tokA, tokB, nil), gohttp.StatusBadRequest},
		"zero amount":    {pairQuery("/api/v1/quote", tokA, tokB, url.Values{"amount": {"0"}}), gohttp.StatusBadRequest},
		"same token":     {pairQuery("/api/v1/quote", tokA, "0xa::coin_a::COIN_A", url.Values{"amount": {"5"}}), gohttp.StatusBadRequest},
		"no route":       {pairQuery("/api/v1/quote", tokA, tokC, url.Values{"amount": {"5"}}), gohttp.StatusNotFound},
		"bad slippage":   {pairQuery("/api/v1/quote", tokA, tokB, url.Values{"amount": {"5"}, "slippageBps": {"10000"}}), gohttp.StatusBadRequest},
	}
	for name, tt := range tests {
		w := s.do(t, gohttp.MethodGet, tt.target, nil)
		assert.Equal(t, tt.status, w.Code, name)
		assert.False(t, decode[any](t, w).Success, name)
	}
}

func TestSwapEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	coin := s.ledger.Mint(user, tokA, 50_000)

	w := s.do(t, gohttp.MethodPost, "/api/v1/swap", SwapHandlerRequest{
		Sender: "0xa11ce", From: tokA, To: tokB, Amount: "20000",
	})
	require.Equal(t, gohttp.StatusOK, w.Code, w.Body.String())
	res := decode[SwapHandlerResponse](t, w).Data

	assert.Equal(t, coin.ObjectID, res.InputCoin.ObjectID)
	assert.Equal(t, []string{"minted", "swapping(0)", "unwrapping", "settled"}, res.Stages)
	kind, err := base64.StdEncoding.DecodeString(res.TransactionKind)
	require.NoError(t, err)
	assert.NotEmpty(t, kind)
	assert.Zero(t, s.ledger.Submissions)

	w = s.do(t, gohttp.MethodPost, "/api/v1/swap", map[string]any{"from": tokA, "to": tokB, "amount": "1"})
	assert.Equal(t, gohttp.StatusBadRequest, w.Code)

	w = s.do(t, gohttp.MethodPost, "/api/v1/swap", SwapHandlerRequest{
		Sender: "0xb0b", From: tokA, To: tokB, Amount: "20000",
	})
	assert.Equal(t, gohttp.StatusUnprocessableEntity, w.Code, "sender holds no coin")
}

func TestRateLimitedAPI(t *testing.T) {
	s := newTestServer(t, middlewares.NewRateLimiter(0.001, 1))

	w := s.do(t, gohttp.MethodGet, "/api/v1/pools", nil)
	assert.Equal(t, gohttp.StatusOK, w.Code)
	w = s.do(t, gohttp.MethodGet, "/api/v1/pools", nil)
	assert.Equal(t, gohttp.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decode[any](t, w).Code)

	// Operational endpoints are not limited.
	w = s.do(t, gohttp.MethodGet, "/health", nil)
	assert.Equal(t, gohttp.StatusOK, w.Code)
}
