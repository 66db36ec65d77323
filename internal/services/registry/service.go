// Package registry mirrors the protocol's pools, banks and oracle feeds from
// the chain event log into immutable snapshots.
package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	container "github.com/thehyperflames/dicontainer-go"
	"golang.org/x/sync/errgroup"

	"github.com/hxuan190/steamm-router/internal/adapters/chain"
	"github.com/hxuan190/steamm-router/internal/adapters/persistence"
	"github.com/hxuan190/steamm-router/internal/config"
	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/metrics"
	"github.com/hxuan190/steamm-router/internal/services"
	"github.com/hxuan190/steamm-router/internal/services/builder"
)

const REGISTRY_SERVICE = "registry-svc"

const (
	KindPools   = "pools"
	KindBanks   = "banks"
	KindOracles = "oracles"
)

// Store persists synced records. persistence.Storage implements it.
type Store interface {
	Save(r *persistence.Records) error
	Load() (*persistence.Records, error)
	Close() error
}

type Service struct {
	container.BaseDIInstance

	chainSvc *chain.Service
	source   chain.EventSource
	store    Store
	pkgs     builder.Packages
	pageSize int

	// syncMu serializes syncs; the maps below are only touched under it.
	syncMu  sync.Mutex
	pools   map[string]*domain.Pool
	banks   map[string]*domain.Bank
	oracles map[uint64]*domain.OracleFeed
	cursors map[string]string
	loaded  bool

	snapshot atomic.Pointer[domain.Snapshot]
	logger   *services.ServiceLogger
}

// New builds a registry outside the container. store may be nil.
func New(source chain.EventSource, store Store, pkgs builder.Packages, pageSize int) *Service {
	svc := &Service{source: source, store: store, pkgs: pkgs, pageSize: pageSize}
	svc.init()
	return svc
}

func (svc *Service) init() {
	svc.pools = make(map[string]*domain.Pool)
	svc.banks = make(map[string]*domain.Bank)
	svc.oracles = make(map[uint64]*domain.OracleFeed)
	svc.cursors = make(map[string]string)
	if svc.pageSize <= 0 {
		svc.pageSize = 50
	}
	svc.logger = services.NewServiceLogger(svc)
}

func (svc *Service) ID() string {
	return REGISTRY_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	routerCfg := c.GetConfig(config.ROUTER_CONFIG_KEY).(*config.RouterConfig)
	protocolCfg := c.GetConfig(config.PROTOCOL_CONFIG_KEY).(*config.ProtocolConfig)

	svc.chainSvc = c.Instance(chain.CHAIN_SERVICE).(*chain.Service)
	svc.pkgs = protocolCfg.Packages()
	svc.pageSize = routerCfg.EventPageSize
	svc.init()

	if routerCfg.DBPath != "" {
		storage, err := persistence.NewStorage(routerCfg.DBPath)
		if err != nil {
			return err
		}
		svc.store = storage
	}
	return nil
}

func (svc *Service) Start() error {
	if svc.source == nil && svc.chainSvc != nil {
		svc.source = svc.chainSvc.Events
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	snap, err := svc.Sync(ctx)
	if err != nil {
		return err
	}
	svc.logger.Info().Int("pools", len(snap.Pools)).Int("banks", snap.BankCount()).Msg("[registryService] initial sync done")
	return nil
}

func (svc *Service) Stop() error {
	if svc.store != nil {
		return svc.store.Close()
	}
	return nil
}

// Current returns the last synced snapshot without touching the chain.
func (svc *Service) Current() *domain.Snapshot {
	return svc.snapshot.Load()
}

// Snapshot syncs new events and returns a fresh snapshot. If the chain is
// unreachable the previous snapshot is returned with the error logged, as
// long as there is one.
func (svc *Service) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	snap, err := svc.Sync(ctx)
	if err != nil {
		if prev := svc.snapshot.Load(); prev != nil {
			svc.logger.Warn().Err(err).Msg("[registryService] sync failed, serving previous snapshot")
			return prev, nil
		}
		return nil, err
	}
	return snap, nil
}

type kindSync struct {
	kind      string
	eventType string
	apply     func(ev domain.Event, delta *persistence.Records) error
}

// Sync reads every event after the stored cursors, persists the new records
// together with the advanced cursors and publishes a new snapshot.
func (svc *Service) Sync(ctx context.Context) (*domain.Snapshot, error) {
	svc.syncMu.Lock()
	defer svc.syncMu.Unlock()
	start := time.Now()

	if !svc.loaded {
		if err := svc.loadStore(); err != nil {
			return nil, err
		}
		svc.loaded = true
	}

	kinds := []kindSync{
		{KindPools, svc.pkgs.NewPoolEventType(), func(ev domain.Event, d *persistence.Records) error {
			p, err := decodePool(ev)
			if err != nil {
				return err
			}
			d.Pools = append(d.Pools, p)
			return nil
		}},
		{KindBanks, svc.pkgs.NewBankEventType(), func(ev domain.Event, d *persistence.Records) error {
			b, err := decodeBank(ev)
			if err != nil {
				return err
			}
			d.Banks = append(d.Banks, b)
			return nil
		}},
		{KindOracles, svc.pkgs.NewOracleEventType(), func(ev domain.Event, d *persistence.Records) error {
			o, err := decodeOracle(ev)
			if err != nil {
				return err
			}
			d.Oracles = append(d.Oracles, o)
			return nil
		}},
	}

	deltas := make([]*persistence.Records, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range kinds {
		cursor := svc.cursors[k.kind]
		g.Go(func() error {
			d, err := svc.fetch(gctx, k, cursor)
			if err != nil {
				return fmt.Errorf("sync %s: %w", k.kind, err)
			}
			deltas[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	delta := &persistence.Records{Cursors: make(map[string]string)}
	for _, d := range deltas {
		delta.Pools = append(delta.Pools, d.Pools...)
		delta.Banks = append(delta.Banks, d.Banks...)
		delta.Oracles = append(delta.Oracles, d.Oracles...)
		for k, v := range d.Cursors {
			delta.Cursors[k] = v
		}
	}
	if svc.store != nil && !delta.Empty() {
		if err := svc.store.Save(delta); err != nil {
			return nil, fmt.Errorf("persist registry: %w", err)
		}
	}
	svc.apply(delta)

	// unchanged registry keeps its snapshot so per-snapshot caches stay warm
	snap := svc.snapshot.Load()
	if snap == nil || delta.HasRecords() {
		snap = svc.publish()
	}
	metrics.RegistrySyncDuration.Observe(time.Since(start).Seconds())
	return snap, nil
}

// fetch pages one event type from cursor to the head. Events that fail to
// decode are skipped with a warning; they can never become routable.
func (svc *Service) fetch(ctx context.Context, k kindSync, cursor string) (*persistence.Records, error) {
	delta := &persistence.Records{Cursors: make(map[string]string)}
	for {
		page, err := svc.source.QueryEvents(ctx, k.eventType, cursor, svc.pageSize)
		if err != nil {
			return nil, err
		}
		for _, ev := range page.Events {
			if err := k.apply(ev, delta); err != nil {
				svc.logger.Warn().Err(err).Str("kind", k.kind).Str("tx", ev.TxDigest).Msg("[registryService] skipping event")
				continue
			}
			metrics.RegistryEvents.WithLabelValues(k.kind).Inc()
		}
		advanced := page.Cursor != "" && page.Cursor != cursor
		if advanced {
			cursor = page.Cursor
			delta.Cursors[k.kind] = cursor
		}
		if !page.HasMore || !advanced {
			return delta, nil
		}
	}
}

func (svc *Service) loadStore() error {
	if svc.store == nil {
		return nil
	}
	stored, err := svc.store.Load()
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	svc.apply(stored)
	return nil
}

func (svc *Service) apply(r *persistence.Records) {
	for _, p := range r.Pools {
		svc.pools[p.ID] = p
	}
	for _, b := range r.Banks {
		svc.banks[b.CoinType] = b
	}
	for _, o := range r.Oracles {
		svc.oracles[o.Index] = o
	}
	for k, v := range r.Cursors {
		svc.cursors[k] = v
	}
}

func (svc *Service) publish() *domain.Snapshot {
	pools := make([]*domain.Pool, 0, len(svc.pools))
	for _, p := range svc.pools {
		pools = append(pools, p)
	}
	banks := make([]*domain.Bank, 0, len(svc.banks))
	for _, b := range svc.banks {
		banks = append(banks, b)
	}
	oracles := make([]*domain.OracleFeed, 0, len(svc.oracles))
	for _, o := range svc.oracles {
		oracles = append(oracles, o)
	}

	snap, skipped := domain.NewSnapshot(pools, banks, oracles)
	if len(skipped) > 0 {
		svc.logger.Debug().Int("count", len(skipped)).Strs("pools", skipped).Msg("[registryService] pools without banks left out of snapshot")
	}
	metrics.RegistryPools.Set(float64(len(snap.Pools)))
	metrics.RegistryBanks.Set(float64(snap.BankCount()))
	svc.snapshot.Store(snap)
	return snap
}
