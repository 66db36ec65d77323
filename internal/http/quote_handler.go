package http

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/steamm-router/internal/aggregator"
	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/http/httputil"
	"github.com/hxuan190/steamm-router/internal/services/router"
)

type QuoteHandler struct {
	aggregatorSvc *aggregator.Service
}

func NewQuoteHandler(aggregatorSvc *aggregator.Service) *QuoteHandler {
	return &QuoteHandler{aggregatorSvc: aggregatorSvc}
}

func (h *QuoteHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.getQuote)
}

func (h *QuoteHandler) Root() string {
	return "/quote"
}

// QuoteRequest represents the parameters for requesting a swap quote
type QuoteRequest struct {
	PairRequest

	// Amount in the input coin's smallest units
	Amount string `form:"amount" binding:"required" example:"1000000000"`

	// Slippage tolerance in basis points (1 bps = 0.01%), applied to
	// minAmountOut. Defaults to the server setting.
	SlippageBps *uint16 `form:"slippageBps" example:"50"`
}

// HopInfo is one hop of the quoted route. Amounts and fees are in bToken units.
type HopInfo struct {
	PoolID    string      `json:"poolId"`
	Quoter    string      `json:"quoter" enums:"cpmm,omm,omm_v2"`
	TokenIn   string      `json:"tokenIn"`
	TokenOut  string      `json:"tokenOut"`
	AmountIn  string      `json:"amountIn" example:"998000"`
	AmountOut string      `json:"amountOut" example:"1993000"`
	Fees      domain.Fees `json:"fees"`
}

// CandidateInfo is the outcome of quoting one candidate route.
type CandidateInfo struct {
	RouteInfo
	AmountOut string `json:"amountOut,omitempty"`
	Error     string `json:"error,omitempty"`
}

// QuoteResponse contains the best route and every candidate's outcome
type QuoteResponse struct {
	From string `json:"from"`
	To   string `json:"to"`

	// Amounts in underlying smallest units
	AmountIn  string `json:"amountIn" example:"1000000000"`
	AmountOut string `json:"amountOut" example:"1993000"`

	// amountOut after slippage; the executed swap aborts below it
	MinAmountOut string `json:"minAmountOut" example:"1983035"`
	SlippageBps  uint16 `json:"slippageBps" example:"50"`

	// amountOut / amountIn in smallest units
	EffectivePrice string `json:"effectivePrice" example:"0.001993"`

	// Fees summed over hops, each in that hop's output bToken units
	Fees domain.Fees `json:"fees"`

	Path     []string  `json:"path"`
	HopCount int       `json:"hopCount" example:"2"`
	Hops     []HopInfo `json:"hops"`

	Candidates []CandidateInfo `json:"candidates"`
}

func (h *QuoteHandler) buildQuoteResponse(res *aggregator.QuoteResult, slippageBps uint16, minOut uint64) QuoteResponse {
	q := res.Quote
	price := decimal.Zero
	if q.AmountIn > 0 {
		price = decimal.NewFromUint64(q.AmountOut).Div(decimal.NewFromUint64(q.AmountIn))
	}

	hops := make([]HopInfo, 0, len(q.Hops))
	for i, hq := range q.Hops {
		hop := res.Route.Hops[i]
		hops = append(hops, HopInfo{
			PoolID:    hq.PoolID,
			Quoter:    hop.Pool.Quoter.String(),
			TokenIn:   hop.TokenIn,
			TokenOut:  hop.TokenOut,
			AmountIn:  strconv.FormatUint(hq.AmountIn, 10),
			AmountOut: strconv.FormatUint(hq.AmountOut, 10),
			Fees:      hq.Fees,
		})
	}

	candidates := make([]CandidateInfo, 0, len(res.Candidates))
	for _, rq := range res.Candidates {
		ci := CandidateInfo{RouteInfo: toRouteInfo(rq.Route)}
		if rq.Err != nil {
			ci.Error = rq.Err.Error()
		} else if rq.Quote != nil {
			ci.AmountOut = strconv.FormatUint(rq.Quote.AmountOut, 10)
		}
		candidates = append(candidates, ci)
	}

	return QuoteResponse{
		From:           res.Route.TokenIn(),
		To:             res.Route.TokenOut(),
		AmountIn:       strconv.FormatUint(q.AmountIn, 10),
		AmountOut:      strconv.FormatUint(q.AmountOut, 10),
		MinAmountOut:   strconv.FormatUint(minOut, 10),
		SlippageBps:    slippageBps,
		EffectivePrice: price.StringFixed(12),
		Fees:           q.Fees,
		Path:           res.Route.Path(),
		HopCount:       res.Route.Len(),
		Hops:           hops,
		Candidates:     candidates,
	}
}

// @Summary Get swap quote
// @Description Quotes every candidate route between two coins by simulating it against current chain state and returns the one with the largest output.
// @Description Oracle pools refresh stale prices inside the simulation. Candidates that fail are listed with their error.
// @Tags quote
// @Produce json
// @Param from query string true "Input coin type" example("0x2::sui::SUI")
// @Param to query string true "Output coin type"
// @Param amount query string true "Amount in smallest units" example("1000000000")
// @Param slippageBps query int false "Slippage tolerance in basis points" example(50)
// @Success 200 {object} QuoteResponse "Best route and candidate outcomes"
// @Failure 400 {object} httputil.Response "Invalid request parameters"
// @Failure 404 {object} httputil.Response "No route found between the coins"
// @Router /api/v1/quote [get]
func (h *QuoteHandler) getQuote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.BadRequest(c, "invalid query parameters: "+err.Error())
		return
	}
	amount, err := strconv.ParseUint(req.Amount, 10, 64)
	if err != nil || amount == 0 {
		httputil.BadRequest(c, "invalid amount: must be a positive integer")
		return
	}
	slippage := h.aggregatorSvc.Config().DefaultSlippageBps
	if req.SlippageBps != nil {
		slippage = *req.SlippageBps
	}

	res, err := h.aggregatorSvc.Quote(c.Request.Context(), req.From, req.To, amount)
	if err != nil {
		fail(c, err)
		return
	}
	minOut, err := router.MinAmountOut(res.Quote.AmountOut, slippage)
	if err != nil {
		fail(c, err)
		return
	}

	httputil.Success(c, h.buildQuoteResponse(res, slippage, minOut))
}
