package http

import (
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/steamm-router/internal/aggregator"
	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/http/httputil"
)

type RouteHandler struct {
	aggregatorSvc *aggregator.Service
}

func NewRouteHandler(aggregatorSvc *aggregator.Service) *RouteHandler {
	return &RouteHandler{aggregatorSvc: aggregatorSvc}
}

func (h *RouteHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.getRoutes)
}

func (h *RouteHandler) Root() string {
	return "/routes"
}

type PairRequest struct {
	// Underlying coin type to sell
	From string `form:"from" binding:"required" example:"0x2::sui::SUI"`
	// Underlying coin type to buy
	To string `form:"to" binding:"required" example:"0xdba34672e30cb065b1f93e3ab55318768fd6fef66c15942c9f7cb846e2f900e7::usdc::USDC"`
}

// RouteInfo is one candidate path.
type RouteInfo struct {
	// Token sequence from input to output
	Path []string `json:"path"`
	// Pool used by each hop, in order
	Pools    []string `json:"pools"`
	HopCount int      `json:"hopCount" example:"2"`
}

type RoutesResponse struct {
	From   string      `json:"from"`
	To     string      `json:"to"`
	Routes []RouteInfo `json:"routes"`
}

func toRouteInfo(r domain.Route) RouteInfo {
	return RouteInfo{Path: r.Path(), Pools: r.PoolIDs(), HopCount: r.Len()}
}

// @Summary List candidate routes
// @Description Every simple path between two coins through the registry's pools, shortest first, capped at the configured maximum. An empty list means the coins are not connected.
// @Tags routes
// @Produce json
// @Param from query string true "Input coin type"
// @Param to query string true "Output coin type"
// @Success 200 {object} RoutesResponse
// @Failure 400 {object} httputil.Response
// @Router /api/v1/routes [get]
func (h *RouteHandler) getRoutes(c *gin.Context) {
	var req PairRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.BadRequest(c, "invalid query parameters: "+err.Error())
		return
	}

	routes, err := h.aggregatorSvc.FindRoutes(c.Request.Context(), req.From, req.To)
	if err != nil {
		fail(c, err)
		return
	}

	infos := make([]RouteInfo, 0, len(routes))
	for _, r := range routes {
		infos = append(infos, toRouteInfo(r))
	}
	httputil.Success(c, RoutesResponse{
		From:   domain.NormalizeType(req.From),
		To:     domain.NormalizeType(req.To),
		Routes: infos,
	})
}
