package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/vault-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through ---

func (s *CachedStore) SavePriceSnapshot(ctx context.Context, snap *model.PriceSnapshot) error {
	if err := s.primary.SavePriceSnapshot(ctx, snap); err != nil {
		return err
	}
	s.cache(ctx, priceKey(snap.Asset, snap.Currency), snap)
	return nil
}

func (s *CachedStore) SaveRateSnapshot(ctx context.Context, snap *model.RateSnapshot) error {
	if err := s.primary.SaveRateSnapshot(ctx, snap); err != nil {
		return err
	}
	s.cache(ctx, rateKey(snap.Base, snap.Target), snap)
	return nil
}

// --- Read-through ---

func (s *CachedStore) LatestPriceSnapshot(ctx context.Context, asset, currency model.Currency) (*model.PriceSnapshot, error) {
	key := priceKey(asset, currency)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var snap model.PriceSnapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	// Cache miss: read from primary.
	snap, err := s.primary.LatestPriceSnapshot(ctx, asset, currency)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, key, snap)
	return snap, nil
}

func (s *CachedStore) LatestRateSnapshot(ctx context.Context, base, target model.Currency) (*model.RateSnapshot, error) {
	key := rateKey(base, target)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var snap model.RateSnapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	snap, err := s.primary.LatestRateSnapshot(ctx, base, target)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, key, snap)
	return snap, nil
}

// --- Cache helpers ---

func (s *CachedStore) cache(ctx context.Context, key string, v interface{}) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func priceKey(asset, currency model.Currency) string {
	return fmt.Sprintf("snapshot:price:%s:%s", asset, currency)
}

func rateKey(base, target model.Currency) string {
	return fmt.Sprintf("snapshot:rate:%s:%s", base, target)
}
