package config

import (
	"errors"
	"strconv"

	"github.com/andrew-solarstorm/go-packages/common"
)

const (
	EventSourceRPC     = "rpc"
	EventSourceGraphQL = "graphql"
)

type ChainConfig struct {
	RPCUrl     string
	GraphQLUrl string
	// EventSource selects where registry events are read from: "rpc" or "graphql".
	EventSource string

	RequestsPerSecond float64
	Burst             int

	// SimulationSender is the address dev-inspect runs as.
	SimulationSender string
	GasBudget        uint64
}

func (c *ChainConfig) Key() string {
	return CHAIN_CONFIG_KEY
}

func (c *ChainConfig) Load() error {
	c.RPCUrl = common.GetEnvOrDefault("RPC_URL", "https://fullnode.mainnet.sui.io:443")
	c.GraphQLUrl = common.GetEnvOrDefault("GRAPHQL_URL", "")
	c.EventSource = common.GetEnvOrDefault("EVENT_SOURCE", EventSourceRPC)
	rps, err := strconv.ParseFloat(common.GetEnvOrDefault("RPC_REQUESTS_PER_SECOND", "20"), 64)
	if err != nil {
		return err
	}
	c.RequestsPerSecond = rps
	c.Burst = common.GetEnvOrDefaultInt("RPC_BURST", 10)
	c.SimulationSender = common.GetEnvOrDefault("SIMULATION_SENDER", "0x0")
	c.GasBudget = uint64(common.GetEnvOrDefaultInt("GAS_BUDGET", 50_000_000))
	return c.Validate()
}

func (c *ChainConfig) Validate() error {
	if c.RPCUrl == "" {
		return errors.New("invalid chain config: RPC_URL is required")
	}
	switch c.EventSource {
	case EventSourceRPC:
	case EventSourceGraphQL:
		if c.GraphQLUrl == "" {
			return errors.New("invalid chain config: GRAPHQL_URL is required for the graphql event source")
		}
	default:
		return errors.New("invalid chain config: EVENT_SOURCE must be rpc or graphql")
	}
	if c.GasBudget == 0 {
		return errors.New("invalid chain config: GAS_BUDGET must be positive")
	}
	return nil
}
