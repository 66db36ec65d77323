package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	boltdb "github.com/andrew-solarstorm/bolt-db"
	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/steamm-router/internal/domain"
)

const (
	PoolsBucket   = "pools"
	BanksBucket   = "banks"
	OraclesBucket = "oracles"
	CursorsBucket = "cursors"

	DefaultDBPath = "./data/steamm-router.db"
)

// Coin types are not stored; they are derived from banks when a snapshot is
// built.
type StoredPool struct {
	ID           string `json:"id"`
	Quoter       uint8  `json:"quoter"`
	QuoterType   string `json:"quoterType"`
	BTokenTypeA  string `json:"bTokenTypeA"`
	BTokenTypeB  string `json:"bTokenTypeB"`
	LpTokenType  string `json:"lpTokenType"`
	SwapFeeBps   uint64 `json:"swapFeeBps"`
	OracleIndexA uint64 `json:"oracleIndexA,omitempty"`
	OracleIndexB uint64 `json:"oracleIndexB,omitempty"`
	CreatedAtMs  int64  `json:"createdAtMs"`
}

type StoredBank struct {
	ID                string `json:"id"`
	CoinType          string `json:"coinType"`
	BTokenType        string `json:"bTokenType"`
	LendingMarketID   string `json:"lendingMarketId"`
	LendingMarketType string `json:"lendingMarketType"`
	CreatedAtMs       int64  `json:"createdAtMs"`
}

type StoredOracle struct {
	Index             uint64 `json:"index"`
	FeedID            string `json:"feedId"`
	PriceInfoObjectID string `json:"priceInfoObjectId"`
}

// Records is what the registry persists: entities plus the event cursor each
// entity kind was synced to.
type Records struct {
	Pools   []*domain.Pool
	Banks   []*domain.Bank
	Oracles []*domain.OracleFeed
	Cursors map[string]string
}

func (r *Records) Empty() bool {
	return !r.HasRecords() && len(r.Cursors) == 0
}

// HasRecords reports whether r carries any pool, bank or oracle.
func (r *Records) HasRecords() bool {
	return len(r.Pools) > 0 || len(r.Banks) > 0 || len(r.Oracles) > 0
}

type Storage struct {
	db     *boltdb.BoltDatabase
	dbPath string
}

func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db := boltdb.NewBoltDatabase(dbPath)
	if db == nil {
		return nil, fmt.Errorf("failed to open database at %s", dbPath)
	}

	log.Info().Str("path", dbPath).Msg("[registryStorage] opened database")

	return &Storage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type batchWriter struct {
	add   func(*boltdb.WriteOperation) error
	count int
}

func (w *batchWriter) put(bucket, key string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", bucket, key, err)
	}
	value := data
	op := &boltdb.WriteOperation{
		Bucket: []byte(bucket),
		Key:    []byte(key),
		Value:  &value,
		Op:     boltdb.OpSet,
	}
	if err := w.add(op); err != nil {
		return fmt.Errorf("failed to add %s/%s to batch: %w", bucket, key, err)
	}
	w.count++
	return nil
}

// Save writes entities and cursors in one batch, so a cursor never moves
// past entities that were not stored.
func (s *Storage) Save(r *Records) error {
	if r == nil || r.Empty() {
		return nil
	}
	batch := s.db.NewBatch()
	w := &batchWriter{add: batch.Add}

	for _, p := range r.Pools {
		if err := w.put(PoolsBucket, p.ID, poolToStored(p)); err != nil {
			return err
		}
	}
	for _, b := range r.Banks {
		if err := w.put(BanksBucket, b.ID, bankToStored(b)); err != nil {
			return err
		}
	}
	for _, o := range r.Oracles {
		stored := StoredOracle{Index: o.Index, FeedID: o.FeedID, PriceInfoObjectID: o.PriceInfoObjectID}
		if err := w.put(OraclesBucket, strconv.FormatUint(o.Index, 10), stored); err != nil {
			return err
		}
	}
	for kind, cursor := range r.Cursors {
		if err := w.put(CursorsBucket, kind, cursor); err != nil {
			return err
		}
	}

	if err := batch.Execute(); err != nil {
		log.Error().Err(err).Int("count", w.count).Msg("[registryStorage] FAILED to execute batch")
		return err
	}
	log.Debug().
		Int("pools", len(r.Pools)).
		Int("banks", len(r.Banks)).
		Int("oracles", len(r.Oracles)).
		Msg("[registryStorage] saved registry batch")
	return nil
}

// Load reads everything back. Undecodable records are skipped and logged.
func (s *Storage) Load() (*Records, error) {
	r := &Records{Cursors: make(map[string]string)}

	if err := listInto(s.db, PoolsBucket, func(key string, p *StoredPool) {
		r.Pools = append(r.Pools, storedToPool(p))
	}); err != nil {
		return nil, err
	}
	if err := listInto(s.db, BanksBucket, func(key string, b *StoredBank) {
		r.Banks = append(r.Banks, storedToBank(b))
	}); err != nil {
		return nil, err
	}
	if err := listInto(s.db, OraclesBucket, func(key string, o *StoredOracle) {
		r.Oracles = append(r.Oracles, &domain.OracleFeed{Index: o.Index, FeedID: o.FeedID, PriceInfoObjectID: o.PriceInfoObjectID})
	}); err != nil {
		return nil, err
	}
	if err := listInto(s.db, CursorsBucket, func(key string, c *string) {
		r.Cursors[key] = *c
	}); err != nil {
		return nil, err
	}

	log.Info().
		Int("pools", len(r.Pools)).
		Int("banks", len(r.Banks)).
		Int("oracles", len(r.Oracles)).
		Msg("[registryStorage] registry loaded")
	return r, nil
}

func listInto[T any](db *boltdb.BoltDatabase, bucket string, fn func(key string, v *T)) error {
	data, err := db.List(bucket)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", bucket, err)
	}
	failed := 0
	for key, value := range data {
		var v T
		if err := sonic.Unmarshal(value, &v); err != nil {
			log.Error().Str("bucket", bucket).Str("key", key).Err(err).Msg("[registryStorage] failed to unmarshal record, skipping")
			failed++
			continue
		}
		fn(key, &v)
	}
	if failed > 0 {
		log.Error().Str("bucket", bucket).Int("total_in_db", len(data)).Int("failed", failed).Msg("[registryStorage] loading completed with errors")
	}
	return nil
}

func poolToStored(p *domain.Pool) *StoredPool {
	return &StoredPool{
		ID:           p.ID,
		Quoter:       uint8(p.Quoter),
		QuoterType:   p.QuoterType,
		BTokenTypeA:  p.BTokenTypeA,
		BTokenTypeB:  p.BTokenTypeB,
		LpTokenType:  p.LpTokenType,
		SwapFeeBps:   p.SwapFeeBps,
		OracleIndexA: p.OracleIndexA,
		OracleIndexB: p.OracleIndexB,
		CreatedAtMs:  p.CreatedAtMs,
	}
}

func storedToPool(s *StoredPool) *domain.Pool {
	return &domain.Pool{
		ID:           s.ID,
		Quoter:       domain.QuoterKind(s.Quoter),
		QuoterType:   s.QuoterType,
		BTokenTypeA:  s.BTokenTypeA,
		BTokenTypeB:  s.BTokenTypeB,
		LpTokenType:  s.LpTokenType,
		SwapFeeBps:   s.SwapFeeBps,
		OracleIndexA: s.OracleIndexA,
		OracleIndexB: s.OracleIndexB,
		CreatedAtMs:  s.CreatedAtMs,
	}
}

func bankToStored(b *domain.Bank) *StoredBank {
	return &StoredBank{
		ID:                b.ID,
		CoinType:          b.CoinType,
		BTokenType:        b.BTokenType,
		LendingMarketID:   b.LendingMarketID,
		LendingMarketType: b.LendingMarketType,
		CreatedAtMs:       b.CreatedAtMs,
	}
}

func storedToBank(s *StoredBank) *domain.Bank {
	return &domain.Bank{
		ID:                s.ID,
		CoinType:          s.CoinType,
		BTokenType:        s.BTokenType,
		LendingMarketID:   s.LendingMarketID,
		LendingMarketType: s.LendingMarketType,
		CreatedAtMs:       s.CreatedAtMs,
	}
}
