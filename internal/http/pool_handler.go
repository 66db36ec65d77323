package http

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/steamm-router/internal/aggregator"
	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/http/httputil"
)

type PoolHandler struct {
	aggregatorSvc *aggregator.Service
}

func NewPoolHandler(aggregatorSvc *aggregator.Service) *PoolHandler {
	return &PoolHandler{aggregatorSvc: aggregatorSvc}
}

func (h *PoolHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.listPools)
	pub.GET("/banks", h.listBanks)
	pub.GET("/:id", h.getPool)
}

func (h *PoolHandler) Root() string {
	return "/pools"
}

// PoolInfo is one routable pool. Coin types are the underlying coins.
type PoolInfo struct {
	ID          string `json:"id" example:"0x7e3c0b2a8f45f2a1d8c4e4a9d1f0c7b1d6e5a4c3b2a1908f7e6d5c4b3a291807"`
	Quoter      string `json:"quoter" enums:"cpmm,omm,omm_v2" example:"cpmm"`
	CoinTypeA   string `json:"coinTypeA" example:"0x2::sui::SUI"`
	CoinTypeB   string `json:"coinTypeB"`
	BTokenTypeA string `json:"bTokenTypeA"`
	BTokenTypeB string `json:"bTokenTypeB"`
	SwapFeeBps  uint64 `json:"swapFeeBps" example:"30"`

	OracleIndexA *uint64 `json:"oracleIndexA,omitempty"`
	OracleIndexB *uint64 `json:"oracleIndexB,omitempty"`
}

type PoolListResponse struct {
	Pools []PoolInfo `json:"pools"`
	Total int        `json:"total" example:"42"`
	Page  int        `json:"page" example:"1"`
	Limit int        `json:"limit" example:"100"`
	Pages int        `json:"pages" example:"1"`
}

func toPoolInfo(p *domain.Pool) PoolInfo {
	info := PoolInfo{
		ID:          p.ID,
		Quoter:      p.Quoter.String(),
		CoinTypeA:   p.CoinTypeA,
		CoinTypeB:   p.CoinTypeB,
		BTokenTypeA: p.BTokenTypeA,
		BTokenTypeB: p.BTokenTypeB,
		SwapFeeBps:  p.SwapFeeBps,
	}
	if p.Quoter.IsOracle() {
		a, b := p.OracleIndexA, p.OracleIndexB
		info.OracleIndexA, info.OracleIndexB = &a, &b
	}
	return info
}

// @Summary List pools
// @Description Routable pools of the current registry snapshot, oldest first.
// @Tags pools
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size, max 500" default(100)
// @Success 200 {object} PoolListResponse
// @Router /api/v1/pools [get]
func (h *PoolHandler) listPools(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	snap, err := h.aggregatorSvc.Snapshot(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	total := len(snap.Pools)

	pages := (total + limit - 1) / limit
	offset, end := total, total
	if page-1 < pages {
		offset = (page - 1) * limit
		end = min(offset+limit, total)
	}

	pools := make([]PoolInfo, 0, end-offset)
	for _, p := range snap.Pools[offset:end] {
		pools = append(pools, toPoolInfo(p))
	}

	httputil.Success(c, PoolListResponse{
		Pools: pools,
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: pages,
	})
}

// @Summary List banks
// @Description Every coin the router can wrap into a bToken.
// @Tags pools
// @Produce json
// @Success 200 {array} domain.Bank
// @Router /api/v1/pools/banks [get]
func (h *PoolHandler) listBanks(c *gin.Context) {
	snap, err := h.aggregatorSvc.Snapshot(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	httputil.Success(c, snap.Banks())
}

// @Summary Get pool
// @Tags pools
// @Produce json
// @Param id path string true "Pool object id"
// @Success 200 {object} PoolInfo
// @Failure 404 {object} httputil.Response
// @Router /api/v1/pools/{id} [get]
func (h *PoolHandler) getPool(c *gin.Context) {
	snap, err := h.aggregatorSvc.Snapshot(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	pool, ok := snap.Pool(domain.NormalizeAddress(c.Param("id")))
	if !ok {
		httputil.NotFound(c, "pool not found")
		return
	}
	httputil.Success(c, toPoolInfo(pool))
}
