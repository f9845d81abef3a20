package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/model"
)

// schema creates the snapshot tables. Snapshots are append-only; the
// latest row per pair wins.
const schema = `
CREATE TABLE IF NOT EXISTS price_snapshots (
	id         UUID PRIMARY KEY,
	asset      TEXT NOT NULL,
	currency   TEXT NOT NULL,
	price      NUMERIC NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS price_snapshots_pair_idx
	ON price_snapshots (asset, currency, fetched_at DESC);

CREATE TABLE IF NOT EXISTS rate_snapshots (
	id         UUID PRIMARY KEY,
	base       TEXT NOT NULL,
	target     TEXT NOT NULL,
	rate       NUMERIC NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS rate_snapshots_pair_idx
	ON rate_snapshots (base, target, fetched_at DESC);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Prices and rates are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the snapshot tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate snapshot tables: %w", err)
	}
	return nil
}

func (s *PostgresStore) SavePriceSnapshot(ctx context.Context, snap *model.PriceSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_snapshots (id, asset, currency, price, fetched_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)
		 ON CONFLICT (id) DO NOTHING`,
		snap.ID, string(snap.Asset), string(snap.Currency), snap.Price.String(), snap.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("save price snapshot %s: %w", snap.ID, err)
	}
	return nil
}

func (s *PostgresStore) LatestPriceSnapshot(ctx context.Context, asset, currency model.Currency) (*model.PriceSnapshot, error) {
	var snap model.PriceSnapshot
	var assetS, currencyS, priceS string

	err := s.pool.QueryRow(ctx,
		`SELECT id::TEXT, asset, currency, price::TEXT, fetched_at
		 FROM price_snapshots
		 WHERE asset = $1 AND currency = $2
		 ORDER BY fetched_at DESC
		 LIMIT 1`, string(asset), string(currency)).
		Scan(&snap.ID, &assetS, &currencyS, &priceS, &snap.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest price %s/%s: %w", asset, currency, err)
	}

	snap.Asset = model.Currency(assetS)
	snap.Currency = model.Currency(currencyS)
	if snap.Price, err = decimal.NewFromString(priceS); err != nil {
		return nil, fmt.Errorf("latest price %s/%s: bad numeric %q: %w", asset, currency, priceS, err)
	}
	return &snap, nil
}

func (s *PostgresStore) SaveRateSnapshot(ctx context.Context, snap *model.RateSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rate_snapshots (id, base, target, rate, fetched_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)
		 ON CONFLICT (id) DO NOTHING`,
		snap.ID, string(snap.Base), string(snap.Target), snap.Rate.String(), snap.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("save rate snapshot %s: %w", snap.ID, err)
	}
	return nil
}

func (s *PostgresStore) LatestRateSnapshot(ctx context.Context, base, target model.Currency) (*model.RateSnapshot, error) {
	var snap model.RateSnapshot
	var baseS, targetS, rateS string

	err := s.pool.QueryRow(ctx,
		`SELECT id::TEXT, base, target, rate::TEXT, fetched_at
		 FROM rate_snapshots
		 WHERE base = $1 AND target = $2
		 ORDER BY fetched_at DESC
		 LIMIT 1`, string(base), string(target)).
		Scan(&snap.ID, &baseS, &targetS, &rateS, &snap.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest rate %s/%s: %w", base, target, err)
	}

	snap.Base = model.Currency(baseS)
	snap.Target = model.Currency(targetS)
	if snap.Rate, err = decimal.NewFromString(rateS); err != nil {
		return nil, fmt.Errorf("latest rate %s/%s: bad numeric %q: %w", base, target, rateS, err)
	}
	return &snap, nil
}
