package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/steamm-router/internal/services/builder"
	"github.com/hxuan190/steamm-router/internal/services/router"
)

func TestRouterConfigLoad(t *testing.T) {
	t.Setenv("ROUTER_ORACLE_STALENESS_SECONDS", "30")
	t.Setenv("ROUTER_DUST_POLICY", "redeem")
	t.Setenv("ROUTER_MAX_HOPS", "3")
	t.Setenv("ROUTER_EVENT_PAGE_SIZE", "50")
	t.Setenv("ROUTER_DEFAULT_SLIPPAGE_BPS", "50")

	var c RouterConfig
	require.NoError(t, c.Load())
	assert.Equal(t, 30*time.Second, c.OracleStaleness)
	assert.Equal(t, router.DustRedeem, c.DustPolicy)

	cfg := c.RouterConfig(builder.Packages{Steamm: "0x5a"})
	assert.Equal(t, 30*time.Second, cfg.OracleStaleness)
	assert.Equal(t, 3, cfg.MaxHops)
}

func TestRouterConfigRejects(t *testing.T) {
	tests := map[string]map[string]string{
		"zero staleness":  {"ROUTER_ORACLE_STALENESS_SECONDS": "0"},
		"unknown policy":  {"ROUTER_DUST_POLICY": "burn"},
		"huge slippage":   {"ROUTER_DEFAULT_SLIPPAGE_BPS": "10001"},
		"negative routes": {"ROUTER_MAX_ROUTES": "-1"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("ROUTER_EVENT_PAGE_SIZE", "50")
			t.Setenv("ROUTER_ORACLE_STALENESS_SECONDS", "15")
			t.Setenv("ROUTER_DUST_POLICY", "return")
			t.Setenv("ROUTER_DEFAULT_SLIPPAGE_BPS", "50")
			t.Setenv("ROUTER_MAX_ROUTES", "0")
			for k, v := range env {
				t.Setenv(k, v)
			}
			var c RouterConfig
			assert.Error(t, c.Load())
		})
	}
}
