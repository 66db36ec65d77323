package http

import (
	"encoding/base64"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/steamm-router/internal/aggregator"
	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/http/httputil"
	"github.com/hxuan190/steamm-router/internal/metrics"
)

type SwapHandler struct {
	aggregatorSvc *aggregator.Service
}

func NewSwapHandler(aggregatorSvc *aggregator.Service) *SwapHandler {
	return &SwapHandler{aggregatorSvc: aggregatorSvc}
}

func (h *SwapHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.POST("", h.buildSwap)
}

func (h *SwapHandler) Root() string {
	return "/swap"
}

// SwapHandlerRequest represents the parameters for building a swap bundle
type SwapHandlerRequest struct {
	// Address that will sign the transaction and owns the input coin
	Sender string `json:"sender" binding:"required" example:"0x5f6c2a5bd4b0e8a9c0f7e6d5c4b3a29180f7e6d5c4b3a29180f7e6d5c4b3a291"`

	// Receives the output coin; defaults to sender
	Recipient string `json:"recipient,omitempty"`

	From   string `json:"from" binding:"required" example:"0x2::sui::SUI"`
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required" example:"1000000000"`

	// Slippage tolerance in basis points; server default when omitted
	SlippageBps *uint16 `json:"slippageBps,omitempty" example:"50"`

	// Coin to pay from. When omitted the server picks a coin of the sender
	// holding at least amount, or splits from gas for SUI.
	InputCoin *domain.CoinRef `json:"inputCoin,omitempty"`
}

// SwapHandlerResponse contains the unsigned bundle and swap details
type SwapHandlerResponse struct {
	// Base64 BCS TransactionKind. The wallet adds sender, gas and signature.
	TransactionKind string `json:"transactionKind"`

	AmountIn     string `json:"amountIn" example:"1000000000"`
	AmountOut    string `json:"amountOut" example:"1993000"`
	MinAmountOut string `json:"minAmountOut" example:"1983035"`

	InputCoin domain.CoinRef `json:"inputCoin"`

	Path     []string `json:"path"`
	Pools    []string `json:"pools"`
	HopCount int      `json:"hopCount" example:"2"`

	// Execution stages in bundle order
	Stages []string `json:"stages" example:"minted,swapping(0),swapping(1),unwrapping,settled"`
}

// @Summary Build swap transaction
// @Description Selects the best route and builds one atomic bundle: wrap the input into bTokens, swap hop by hop on the previous hop's actual output, unwrap, and settle intermediate dust.
// @Description Only the last hop carries the minimum output guard. Nothing is submitted.
// @Tags swap
// @Accept json
// @Produce json
// @Param request body SwapHandlerRequest true "Swap request"
// @Success 200 {object} SwapHandlerResponse "Unsigned bundle ready to sign"
// @Failure 400 {object} httputil.Response "Invalid request parameters"
// @Failure 404 {object} httputil.Response "No route found between the coins"
// @Failure 422 {object} httputil.Response "Input coin or oracle prices unusable"
// @Router /api/v1/swap [post]
func (h *SwapHandler) buildSwap(c *gin.Context) {
	var req SwapHandlerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	amount, err := strconv.ParseUint(req.Amount, 10, 64)
	if err != nil || amount == 0 {
		httputil.BadRequest(c, "invalid amount: must be a positive integer")
		return
	}

	plan, err := h.aggregatorSvc.BuildSwap(c.Request.Context(), &domain.SwapRequest{
		Sender:      req.Sender,
		Recipient:   req.Recipient,
		InputType:   req.From,
		OutputType:  req.To,
		Amount:      amount,
		SlippageBps: req.SlippageBps,
		InputCoin:   req.InputCoin,
	})
	if err != nil {
		metrics.SwapBuilds.WithLabelValues("error").Inc()
		fail(c, err)
		return
	}
	metrics.SwapBuilds.WithLabelValues("ok").Inc()

	stages := make([]string, len(plan.Stages))
	for i, s := range plan.Stages {
		stages[i] = s.String()
	}
	httputil.Success(c, SwapHandlerResponse{
		TransactionKind: base64.StdEncoding.EncodeToString(plan.TxKind),
		AmountIn:        strconv.FormatUint(plan.Quote.AmountIn, 10),
		AmountOut:       strconv.FormatUint(plan.Quote.AmountOut, 10),
		MinAmountOut:    strconv.FormatUint(plan.MinAmountOut, 10),
		InputCoin:       plan.InputCoin,
		Path:            plan.Route.Path(),
		Pools:           plan.Route.PoolIDs(),
		HopCount:        plan.Route.Len(),
		Stages:          stages,
	})
}
