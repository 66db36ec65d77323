package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registry metrics
	RegistryPools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "steamm_router_registry_pools",
		Help: "Number of routable pools in the latest registry snapshot",
	})

	RegistryBanks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "steamm_router_registry_banks",
		Help: "Number of banks in the latest registry snapshot",
	})

	RegistryEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steamm_router_registry_events_total",
			Help: "Registry events ingested, by kind",
		},
		[]string{"kind"},
	)

	RegistrySyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "steamm_router_registry_sync_duration_seconds",
		Help:    "Time to sync the registry from the event log",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	// Route search
	RouteSearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "steamm_router_route_search_duration_seconds",
		Help:    "Depth-first route enumeration duration in seconds",
		Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	RoutesFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "steamm_router_routes_found",
		Help:    "Candidate routes per search",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
	})

	// Quotes
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steamm_router_quote_requests_total",
			Help: "Total number of quote requests",
		},
		[]string{"kind", "status"},
	)

	QuoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steamm_router_quote_duration_seconds",
			Help:    "Quote duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"kind"},
	)

	SimulationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steamm_router_simulations_total",
			Help: "Quote simulations sent to the chain",
		},
		[]string{"kind", "status"},
	)

	BatchFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steamm_router_batch_fallbacks_total",
		Help: "Combined quote simulations that aborted and were split per route",
	})

	OracleRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steamm_router_oracle_refreshes_total",
			Help: "Oracle attestations fetched because the on-chain price was stale",
		},
		[]string{"status"},
	)

	// Execution
	ExecutionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steamm_router_executions_total",
			Help: "Route executions by outcome",
		},
		[]string{"status"},
	)

	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "steamm_router_execution_duration_seconds",
		Help:    "Route execution duration in seconds, build to finality",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	SwapBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steamm_router_swap_builds_total",
			Help: "Unsigned swap bundles built for wallets",
		},
		[]string{"status"},
	)

	// Chain transport
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steamm_router_rpc_requests_total",
			Help: "JSON-RPC calls to the fullnode",
		},
		[]string{"method", "status"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steamm_router_rpc_duration_seconds",
			Help:    "JSON-RPC call duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steamm_router_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steamm_router_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
