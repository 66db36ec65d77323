package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/steamm-router/internal/adapters/chain"
	"github.com/hxuan190/steamm-router/internal/aggregator"
	"github.com/hxuan190/steamm-router/internal/common"
	"github.com/hxuan190/steamm-router/internal/config"
	"github.com/hxuan190/steamm-router/internal/http"
	"github.com/hxuan190/steamm-router/internal/services"
	"github.com/hxuan190/steamm-router/internal/services/registry"
)

// @title Steamm Router API
// @version 1.0-beta
// @description Multi-hop swap router for Steamm pools.
// @description
// @description ## - Features
// @description - **Route discovery**: every simple path between two coins, across constant-product and oracle pools
// @description - **Simulated quotes**: each candidate is quoted by dry-running the real swap math on chain
// @description - **Atomic execution**: one bundle wraps, swaps, unwraps and settles, or nothing happens
// @description - **Oracle refresh**: stale Pyth prices are updated inside the same bundle
// @description
// @description ## - Usage Tips
// @description - Coin types are full Move type tags, e.g. `0x2::sui::SUI`
// @description - Amounts are in smallest units (MIST for SUI: 1 SUI = 1,000,000,000)
// @description - Default slippage is 50 bps (0.5%) and guards only the final output
// @description - Rate Limit: 10 requests/second per IP (burst: 20)
// @description
// @BasePath /
// @schemes https http
// @tag.name pools
// @tag.description Registry of pools and banks
// @tag.name routes
// @tag.description Candidate routes between two coins
// @tag.name quote
// @tag.description Best route with simulated output
// @tag.name swap
// @tag.description Build unsigned swap bundles ready for signing

func main() {
	common.InitRuntime()

	// load env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file, using process environment")
	}

	general := &config.GeneralConfig{}

	// di container config
	conf := container.NewConf(
		general,
		&config.ChainConfig{},
		&config.ProtocolConfig{},
		&config.RouterConfig{},
		&config.OracleConfig{},
	)

	// di container
	dic, err := container.New(
		// config
		conf,

		// services
		&chain.Service{},
		&registry.Service{},
		&aggregator.Service{},

		&http.HTTPService{},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create di container")
		return
	}
	services.SetLevel(general.LogLevel)

	if err := dic.Run(); err != nil {
		log.Error().Err(err).Msg("failed to run di container")
		return
	}

	log.Info().Msg("Shutting down services...")
	if err := dic.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("Shutdown complete")
}
