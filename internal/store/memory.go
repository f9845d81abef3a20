package store

import (
	"context"
	"sync"

	"github.com/atmx/vault-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	prices map[string]model.PriceSnapshot
	rates  map[string]model.RateSnapshot
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prices: make(map[string]model.PriceSnapshot),
		rates:  make(map[string]model.RateSnapshot),
	}
}

func (s *MemoryStore) SavePriceSnapshot(_ context.Context, snap *model.PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(snap.Asset, snap.Currency)
	if cur, ok := s.prices[key]; ok && cur.FetchedAt.After(snap.FetchedAt) {
		return nil // keep the newer one
	}
	// Store a copy to avoid external mutation.
	s.prices[key] = *snap
	return nil
}

func (s *MemoryStore) LatestPriceSnapshot(_ context.Context, asset, currency model.Currency) (*model.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.prices[pairKey(asset, currency)]
	if !ok {
		return nil, ErrNotFound
	}
	return &snap, nil
}

func (s *MemoryStore) SaveRateSnapshot(_ context.Context, snap *model.RateSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(snap.Base, snap.Target)
	if cur, ok := s.rates[key]; ok && cur.FetchedAt.After(snap.FetchedAt) {
		return nil
	}
	s.rates[key] = *snap
	return nil
}

func (s *MemoryStore) LatestRateSnapshot(_ context.Context, base, target model.Currency) (*model.RateSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.rates[pairKey(base, target)]
	if !ok {
		return nil, ErrNotFound
	}
	return &snap, nil
}

func pairKey(a, b model.Currency) string { return string(a) + "/" + string(b) }
