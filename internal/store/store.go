// Package store defines snapshot persistence for the vault engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and development).
//
// Only feed snapshots are stored. User inputs and projection results are
// never persisted.
package store

import (
	"context"
	"errors"

	"github.com/atmx/vault-engine/internal/model"
)

// ErrNotFound is returned when no snapshot has been stored yet.
var ErrNotFound = errors.New("store: snapshot not found")

// Store is the snapshot persistence interface. PostgreSQL is the source of
// truth; Redis provides a read-through cache layer.
type Store interface {
	// --- Price snapshots ---

	// SavePriceSnapshot appends a price snapshot.
	SavePriceSnapshot(ctx context.Context, s *model.PriceSnapshot) error

	// LatestPriceSnapshot returns the most recently fetched price for asset.
	LatestPriceSnapshot(ctx context.Context, asset, currency model.Currency) (*model.PriceSnapshot, error)

	// --- Rate snapshots ---

	// SaveRateSnapshot appends a rate snapshot.
	SaveRateSnapshot(ctx context.Context, s *model.RateSnapshot) error

	// LatestRateSnapshot returns the most recently fetched base→target rate.
	LatestRateSnapshot(ctx context.Context, base, target model.Currency) (*model.RateSnapshot, error)
}
