package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/services/builder"
)

// Chain is the remote protocol: a read-only simulation entry and a committing
// submit entry, both taking a whole bundle.
type Chain interface {
	Simulate(ctx context.Context, b *builder.Bundle) (*domain.SimulationResult, error)
	Submit(ctx context.Context, b *builder.Bundle, signer Signer) (*domain.ExecutionResult, error)
}

// Signer signs encoded transaction data. Key custody is the caller's concern.
type Signer interface {
	Address() string
	Sign(ctx context.Context, txBytes []byte) (string, error)
}

// PriceSource supplies oracle attestations. PublishTime reports the
// attestation currently stored on chain for the feed.
type PriceSource interface {
	PublishTime(ctx context.Context, feed *domain.OracleFeed) (time.Time, error)
	LatestUpdate(ctx context.Context, feed *domain.OracleFeed) (*domain.PriceUpdate, error)
}

type DustPolicy string

const (
	// DustReturn sends non-empty intermediate bTokens back to the caller and
	// destroys empty ones.
	DustReturn DustPolicy = "return"
	// DustRedeem burns intermediate bTokens to their underlying coin first.
	DustRedeem DustPolicy = "redeem"
)

func ParseDustPolicy(s string) (DustPolicy, error) {
	switch DustPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case DustReturn, "":
		return DustReturn, nil
	case DustRedeem:
		return DustRedeem, nil
	}
	return "", fmt.Errorf("unknown dust policy %q", s)
}

type Config struct {
	Packages builder.Packages

	// MaxHops bounds route length; 0 means unbounded.
	MaxHops int
	// MaxRoutes caps how many candidates are quoted, shortest first; 0 quotes all.
	MaxRoutes        int
	QuoteConcurrency int

	OracleStaleness time.Duration
	OracleUpdateFee uint64

	DustPolicy         DustPolicy
	DefaultSlippageBps uint16
}

func DefaultConfig(pkgs builder.Packages) *Config {
	return &Config{
		Packages:           pkgs,
		MaxHops:            4,
		QuoteConcurrency:   4,
		OracleStaleness:    15 * time.Second,
		OracleUpdateFee:    1,
		DustPolicy:         DustReturn,
		DefaultSlippageBps: 50,
	}
}

// Env carries everything a router operation reads: the registry snapshot the
// request started from, the remote protocol and configuration.
type Env struct {
	Snapshot *domain.Snapshot
	Chain    Chain
	Prices   PriceSource
	Config   *Config

	// Now defaults to time.Now.
	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) calls() *builder.Calls {
	return builder.NewCalls(e.Config.Packages)
}

// CheckLive reports ErrRouteNotLive if any hop's pool is missing from the
// env's snapshot.
func (e *Env) CheckLive(route domain.Route) error {
	for i, h := range route.Hops {
		if _, ok := e.Snapshot.Pool(h.Pool.ID); !ok {
			return fmt.Errorf("%w: hop %d pool %s", ErrRouteNotLive, i, h.Pool.ID)
		}
	}
	return nil
}
