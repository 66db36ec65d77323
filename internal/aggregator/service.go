// Package aggregator is the request-level facade over the registry, the chain
// client and the router: each call takes a fresh snapshot and runs the router
// operations against it.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/steamm-router/internal/adapters/chain"
	"github.com/hxuan190/steamm-router/internal/adapters/oracle"
	"github.com/hxuan190/steamm-router/internal/common"
	"github.com/hxuan190/steamm-router/internal/config"
	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/services"
	"github.com/hxuan190/steamm-router/internal/services/builder"
	"github.com/hxuan190/steamm-router/internal/services/registry"
	"github.com/hxuan190/steamm-router/internal/services/router"
)

const AGGREGATOR_SERVICE = "aggregator-service"

var (
	// Error aliases
	ErrNoViableRoute   = router.ErrNoViableRoute
	ErrQuoteFailed     = router.ErrQuoteFailed
	ErrStalePrice      = router.ErrStalePrice
	ErrExecutionFailed = router.ErrExecutionFailed
	ErrRouteNotLive    = router.ErrRouteNotLive
	ErrInvalidAmount   = router.ErrInvalidAmount
	ErrInvalidSlippage = router.ErrInvalidSlippage
	ErrInputCoin       = router.ErrInputCoin
	ErrMissingSigner   = router.ErrMissingSigner

	ErrInvalidRoute = domain.ErrInvalidRoute
	ErrUnknownBank  = domain.ErrUnknownBank

	ErrSameToken     = errors.New("input and output token are the same")
	ErrMissingSender = errors.New("sender is required")
)

// SnapshotSource hands out the registry view a request works on.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*domain.Snapshot, error)
}

// Chain is the remote protocol plus the wallet-side reads a swap needs.
type Chain interface {
	router.Chain
	SelectCoin(ctx context.Context, owner, coinType string, amount uint64) (domain.CoinRef, error)
	Prepare(ctx context.Context, b *builder.Bundle) ([]byte, error)
}

type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	registry SnapshotSource
	chain    Chain
	prices   router.PriceSource
	config   *router.Config

	// graph is rebuilt only when the snapshot changes.
	mu        sync.Mutex
	graph     *router.Graph
	graphSnap *domain.Snapshot
}

// New builds the facade outside the container.
func New(reg SnapshotSource, c Chain, prices router.PriceSource, cfg *router.Config) *Service {
	svc := &Service{registry: reg, chain: c, prices: prices, config: cfg}
	svc.logger = services.NewServiceLogger(svc)
	return svc
}

func (svc *Service) ID() string {
	return AGGREGATOR_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.logger = services.NewServiceLogger(svc)
	routerCfg := c.GetConfig(config.ROUTER_CONFIG_KEY).(*config.RouterConfig)
	protocolCfg := c.GetConfig(config.PROTOCOL_CONFIG_KEY).(*config.ProtocolConfig)
	oracleCfg := c.GetConfig(config.ORACLE_CONFIG_KEY).(*config.OracleConfig)

	chainSvc := c.Instance(chain.CHAIN_SERVICE).(*chain.Service)
	svc.registry = c.Instance(registry.REGISTRY_SERVICE).(*registry.Service)
	svc.chain = chainSvc.Client
	svc.prices = &oracle.Source{
		Chain:  chainSvc.Client,
		Hermes: oracle.NewHermes(oracleCfg.HermesURL, oracleCfg.RequestTimeout),
	}

	svc.config = routerCfg.RouterConfig(protocolCfg.Packages())
	svc.config.OracleUpdateFee = oracleCfg.UpdateFee
	return nil
}

func (svc *Service) Start() error {
	svc.logger.Info().
		Int("maxHops", svc.config.MaxHops).
		Int("maxRoutes", svc.config.MaxRoutes).
		Str("dustPolicy", string(svc.config.DustPolicy)).
		Msg("[aggregatorService] ready")
	return nil
}

func (svc *Service) Stop() error {
	return nil
}

func (svc *Service) Config() *router.Config {
	return svc.config
}

func (svc *Service) env(snap *domain.Snapshot) *router.Env {
	return &router.Env{Snapshot: snap, Chain: svc.chain, Prices: svc.prices, Config: svc.config}
}

func (svc *Service) graphFor(snap *domain.Snapshot) *router.Graph {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.graphSnap != snap {
		svc.graph = router.NewGraph(snap.Pools)
		svc.graphSnap = snap
	}
	return svc.graph
}

// Snapshot returns the current registry view.
func (svc *Service) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	return svc.registry.Snapshot(ctx)
}

// FindRoutes lists candidate routes between two underlying coin types, at
// most MaxRoutes of them, shortest first.
func (svc *Service) FindRoutes(ctx context.Context, from, to string) ([]domain.Route, error) {
	_, routes, err := svc.candidates(ctx, from, to)
	return routes, err
}

func (svc *Service) candidates(ctx context.Context, from, to string) (*domain.Snapshot, []domain.Route, error) {
	from, to = domain.NormalizeType(from), domain.NormalizeType(to)
	if from == to {
		return nil, nil, ErrSameToken
	}
	snap, err := svc.registry.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	routes := svc.graphFor(snap).FindRoutes(from, to, svc.config.MaxHops)
	return snap, router.LimitRoutes(routes, svc.config.MaxRoutes), nil
}

// QuoteResult is the best route for a request together with every
// candidate's individual outcome, index-aligned with Candidates.
type QuoteResult struct {
	Route      domain.Route
	Quote      *domain.Quote
	Candidates []router.RouteQuote
	Snapshot   *domain.Snapshot
}

// Quote finds and quotes every candidate route and picks the best one.
func (svc *Service) Quote(ctx context.Context, from, to string, amount uint64) (*QuoteResult, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	snap, routes, err := svc.candidates(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, ErrNoViableRoute
	}

	results := router.QuoteRoutes(ctx, svc.env(snap), routes, amount)
	best, err := router.BestOf(results)
	if err != nil {
		svc.logger.Debug().Str("from", from).Str("to", to).Int("candidates", len(routes)).Msg("[aggregatorService] no candidate quoted")
		return nil, err
	}
	return &QuoteResult{
		Route:      results[best].Route,
		Quote:      results[best].Quote,
		Candidates: results,
		Snapshot:   snap,
	}, nil
}

// SwapPlan is an unsigned swap: the TransactionKind bytes a wallet completes
// with gas and a signature.
type SwapPlan struct {
	Route        domain.Route
	Quote        *domain.Quote
	InputCoin    domain.CoinRef
	MinAmountOut uint64
	Stages       []domain.ExecutionStage
	TxKind       []byte
}

func (svc *Service) selectRoute(ctx context.Context, req *domain.SwapRequest) (*QuoteResult, router.ExecuteParams, error) {
	if req.Sender == "" {
		return nil, router.ExecuteParams{}, ErrMissingSender
	}
	q, err := svc.Quote(ctx, req.InputType, req.OutputType, req.Amount)
	if err != nil {
		return nil, router.ExecuteParams{}, err
	}

	params := router.ExecuteParams{
		Sender:      domain.NormalizeAddress(req.Sender),
		Recipient:   req.Recipient,
		SlippageBps: req.SlippageBps,
	}
	if params.Recipient != "" {
		params.Recipient = domain.NormalizeAddress(params.Recipient)
	}

	switch {
	case req.InputCoin != nil:
		params.InputCoin = *req.InputCoin
	case domain.NormalizeType(req.InputType) == domain.NormalizeType(common.SuiCoinType):
		params.InputCoin = domain.CoinRef{CoinType: common.SuiCoinType, FromGas: true}
	default:
		coin, err := svc.chain.SelectCoin(ctx, params.Sender, q.Route.TokenIn(), req.Amount)
		if err != nil {
			return nil, router.ExecuteParams{}, fmt.Errorf("%w: %w", ErrInputCoin, err)
		}
		params.InputCoin = coin
	}
	return q, params, nil
}

// BuildSwap selects the best route for req and returns it as an unsigned
// bundle. Nothing is submitted.
func (svc *Service) BuildSwap(ctx context.Context, req *domain.SwapRequest) (*SwapPlan, error) {
	q, params, err := svc.selectRoute(ctx, req)
	if err != nil {
		return nil, err
	}
	plan, err := router.BuildRoute(ctx, svc.env(q.Snapshot), q.Route, q.Quote, params)
	if err != nil {
		return nil, err
	}
	kind, err := svc.chain.Prepare(ctx, plan.Bundle)
	if err != nil {
		return nil, fmt.Errorf("prepare bundle: %w", err)
	}

	svc.logger.Info().
		Str("route", q.Route.String()).
		Uint64("amountIn", q.Quote.AmountIn).
		Uint64("quotedOut", q.Quote.AmountOut).
		Uint64("minOut", plan.MinAmountOut).
		Msg("[aggregatorService] swap built")
	return &SwapPlan{
		Route:        q.Route,
		Quote:        q.Quote,
		InputCoin:    params.InputCoin,
		MinAmountOut: plan.MinAmountOut,
		Stages:       plan.Stages,
		TxKind:       kind,
	}, nil
}

// ExecuteSwap selects the best route and submits it signed by signer. The
// registry is refetched before building, so a route whose pool vanished
// since the quote fails with ErrRouteNotLive.
func (svc *Service) ExecuteSwap(ctx context.Context, req *domain.SwapRequest, signer router.Signer) (*domain.ExecutionResult, error) {
	if signer == nil {
		return nil, ErrMissingSigner
	}
	if req.Sender == "" {
		req.Sender = signer.Address()
	}
	q, params, err := svc.selectRoute(ctx, req)
	if err != nil {
		return nil, err
	}
	snap, err := svc.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return router.ExecuteRoute(ctx, svc.env(snap), q.Route, q.Quote, params, signer)
}
