package chain

import (
	"context"
	"time"

	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/steamm-router/internal/config"
	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/services"
)

const CHAIN_SERVICE = "chain-client-svc"

// EventSource pages through events of one Move type.
type EventSource interface {
	QueryEvents(ctx context.Context, eventType, cursor string, limit int) (*domain.EventPage, error)
}

// Service owns the fullnode client and the configured registry event source.
type Service struct {
	container.BaseDIInstance

	Client *Client
	Events EventSource

	logger *services.ServiceLogger
}

func (svc *Service) ID() string {
	return CHAIN_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.logger = services.NewServiceLogger(svc)
	cfg := c.GetConfig(config.CHAIN_CONFIG_KEY).(*config.ChainConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, events, err := Dial(ctx, cfg)
	if err != nil {
		return err
	}
	svc.Client = client
	svc.Events = events
	svc.logger.Info().Str("rpc", cfg.RPCUrl).Str("events", cfg.EventSource).Msg("[chainService] configured")
	return nil
}

// Dial connects the fullnode client and picks the registry event source the
// config asks for.
func Dial(ctx context.Context, cfg *config.ChainConfig) (*Client, EventSource, error) {
	client, err := NewClient(ctx, Options{
		RPCURL:            cfg.RPCUrl,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		GasBudget:         cfg.GasBudget,
		SimulationSender:  cfg.SimulationSender,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.EventSource == config.EventSourceGraphQL {
		return client, NewGraphQLEvents(cfg.GraphQLUrl), nil
	}
	return client, client, nil
}

func (svc *Service) Start() error {
	return nil
}

func (svc *Service) Stop() error {
	if svc.Client != nil {
		svc.Client.Close()
	}
	return nil
}
