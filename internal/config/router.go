package config

import (
	"errors"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"

	"github.com/hxuan190/steamm-router/internal/services/builder"
	"github.com/hxuan190/steamm-router/internal/services/router"
)

type RouterConfig struct {
	// DBPath is the BoltDB file holding the registry and its event cursors.
	// Empty disables persistence.
	DBPath string

	// EventPageSize is the page size of registry event queries.
	EventPageSize int

	MaxHops          int
	MaxRoutes        int
	QuoteConcurrency int

	OracleStaleness    time.Duration
	DustPolicy         router.DustPolicy
	DefaultSlippageBps uint16
}

func (c *RouterConfig) Key() string {
	return ROUTER_CONFIG_KEY
}

func (c *RouterConfig) Load() error {
	c.DBPath = common.GetEnvOrDefault("ROUTER_DB_PATH", "./data/steamm-router.db")
	c.EventPageSize = common.GetEnvOrDefaultInt("ROUTER_EVENT_PAGE_SIZE", 50)
	c.MaxHops = common.GetEnvOrDefaultInt("ROUTER_MAX_HOPS", 4)
	c.MaxRoutes = common.GetEnvOrDefaultInt("ROUTER_MAX_ROUTES", 0)
	c.QuoteConcurrency = common.GetEnvOrDefaultInt("ROUTER_QUOTE_CONCURRENCY", 4)
	c.OracleStaleness = time.Duration(common.GetEnvOrDefaultInt("ROUTER_ORACLE_STALENESS_SECONDS", 15)) * time.Second
	c.DefaultSlippageBps = uint16(common.GetEnvOrDefaultInt("ROUTER_DEFAULT_SLIPPAGE_BPS", 50))

	policy, err := router.ParseDustPolicy(common.GetEnvOrDefault("ROUTER_DUST_POLICY", string(router.DustReturn)))
	if err != nil {
		return err
	}
	c.DustPolicy = policy
	return c.Validate()
}

func (c *RouterConfig) Validate() error {
	if c.MaxHops < 0 || c.MaxRoutes < 0 {
		return errors.New("invalid router config: limits must not be negative")
	}
	if c.EventPageSize <= 0 || c.EventPageSize > 1000 {
		return errors.New("invalid router config: event page size must be in (0, 1000]")
	}
	if c.DefaultSlippageBps > 10_000 {
		return errors.New("invalid router config: slippage above 100%")
	}
	if c.OracleStaleness <= 0 {
		return errors.New("invalid router config: oracle staleness must be positive")
	}
	return nil
}

// RouterConfig builds the router settings for the given packages.
func (c *RouterConfig) RouterConfig(pkgs builder.Packages) *router.Config {
	cfg := router.DefaultConfig(pkgs)
	cfg.MaxHops = c.MaxHops
	cfg.MaxRoutes = c.MaxRoutes
	cfg.QuoteConcurrency = c.QuoteConcurrency
	cfg.OracleStaleness = c.OracleStaleness
	cfg.DustPolicy = c.DustPolicy
	cfg.DefaultSlippageBps = c.DefaultSlippageBps
	return cfg
}
