package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/vault-engine/internal/model"
)

// unreachableRedis points at a closed port so every command fails fast.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestCachedStore_FallsBackToPrimary(t *testing.T) {
	primary := NewMemoryStore()
	cs := NewCachedStore(primary, unreachableRedis(t), time.Minute)
	ctx := context.Background()

	require.NoError(t, cs.SavePriceSnapshot(ctx, &model.PriceSnapshot{
		ID: "p1", Asset: model.SOL, Currency: model.USD, Price: decimal.NewFromInt(150), FetchedAt: time.Now(),
	}))
	require.NoError(t, cs.SaveRateSnapshot(ctx, &model.RateSnapshot{
		ID: "r1", Base: model.USD, Target: model.GBP, Rate: decimal.RequireFromString("0.79"), FetchedAt: time.Now(),
	}))

	price, err := cs.LatestPriceSnapshot(ctx, model.SOL, model.USD)
	require.NoError(t, err)
	assert.Equal(t, "p1", price.ID)

	rate, err := cs.LatestRateSnapshot(ctx, model.USD, model.GBP)
	require.NoError(t, err)
	assert.True(t, rate.Rate.Equal(decimal.RequireFromString("0.79")))
}

func TestCachedStore_NotFound(t *testing.T) {
	cs := NewCachedStore(NewMemoryStore(), unreachableRedis(t), time.Minute)

	_, err := cs.LatestPriceSnapshot(context.Background(), model.SOL, model.USD)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "snapshot:price:SOL:USD", priceKey(model.SOL, model.USD))
	assert.Equal(t, "snapshot:rate:USD:GBP", rateKey(model.USD, model.GBP))
}

// liveRedis starts an in-process Redis server.
func liveRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestCachedStore_WriteThroughSetsTTL(t *testing.T) {
	mr, rdb := liveRedis(t)
	cs := NewCachedStore(NewMemoryStore(), rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, cs.SavePriceSnapshot(ctx, &model.PriceSnapshot{
		ID: "p1", Asset: model.SOL, Currency: model.USD, Price: decimal.NewFromInt(150), FetchedAt: time.Now(),
	}))
	require.NoError(t, cs.SaveRateSnapshot(ctx, &model.RateSnapshot{
		ID: "r1", Base: model.USD, Target: model.GBP, Rate: decimal.RequireFromString("0.79"), FetchedAt: time.Now(),
	}))

	for _, key := range []string{"snapshot:price:SOL:USD", "snapshot:rate:USD:GBP"} {
		assert.True(t, mr.Exists(key), key)
		assert.Equal(t, time.Minute, mr.TTL(key), key)
	}

	raw, err := mr.Get("snapshot:rate:USD:GBP")
	require.NoError(t, err)
	var cached model.RateSnapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, "r1", cached.ID)
	assert.True(t, cached.Rate.Equal(decimal.RequireFromString("0.79")))

	// Entries expire with the TTL.
	mr.FastForward(time.Minute + time.Second)
	assert.False(t, mr.Exists("snapshot:price:SOL:USD"))
}

func TestCachedStore_HitSkipsPrimary(t *testing.T) {
	mr, rdb := liveRedis(t)
	primary := NewMemoryStore()
	cs := NewCachedStore(primary, rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, primary.SavePriceSnapshot(ctx, &model.PriceSnapshot{
		ID: "primary", Asset: model.SOL, Currency: model.USD, Price: decimal.NewFromInt(150), FetchedAt: time.Now(),
	}))
	data, err := json.Marshal(&model.PriceSnapshot{
		ID: "cached", Asset: model.SOL, Currency: model.USD, Price: decimal.NewFromInt(151), FetchedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mr.Set("snapshot:price:SOL:USD", string(data)))

	snap, err := cs.LatestPriceSnapshot(ctx, model.SOL, model.USD)
	require.NoError(t, err)
	assert.Equal(t, "cached", snap.ID)
	assert.True(t, snap.Price.Equal(decimal.NewFromInt(151)))
}

func TestCachedStore_MissPopulatesCache(t *testing.T) {
	mr, rdb := liveRedis(t)
	primary := NewMemoryStore()
	cs := NewCachedStore(primary, rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, primary.SaveRateSnapshot(ctx, &model.RateSnapshot{
		ID: "r1", Base: model.USD, Target: model.GBP, Rate: decimal.RequireFromString("0.79"), FetchedAt: time.Now(),
	}))
	require.False(t, mr.Exists("snapshot:rate:USD:GBP"))

	snap, err := cs.LatestRateSnapshot(ctx, model.USD, model.GBP)
	require.NoError(t, err)
	assert.Equal(t, "r1", snap.ID)
	assert.True(t, mr.Exists("snapshot:rate:USD:GBP"))
	assert.Equal(t, time.Minute, mr.TTL("snapshot:rate:USD:GBP"))
}

func TestCachedStore_CorruptEntryFallsBack(t *testing.T) {
	mr, rdb := liveRedis(t)
	primary := NewMemoryStore()
	cs := NewCachedStore(primary, rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, primary.SavePriceSnapshot(ctx, &model.PriceSnapshot{
		ID: "p1", Asset: model.SOL, Currency: model.USD, Price: decimal.NewFromInt(150), FetchedAt: time.Now(),
	}))
	require.NoError(t, mr.Set("snapshot:price:SOL:USD", "not json"))

	snap, err := cs.LatestPriceSnapshot(ctx, model.SOL, model.USD)
	require.NoError(t, err)
	assert.Equal(t, "p1", snap.ID)

	// The bad entry is replaced by the primary's snapshot.
	raw, err := mr.Get("snapshot:price:SOL:USD")
	require.NoError(t, err)
	assert.Contains(t, raw, `"p1"`)
}
