package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/vault-engine/internal/model"
)

func jsonServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// --- Clients ---

func TestPriceClient_FetchPrice(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"solana":{"usd":150.25}}`)

	snap, err := NewPriceClient(srv.URL).FetchPrice(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Price.Equal(decimal.RequireFromString("150.25")), "price %s", snap.Price)
	assert.Equal(t, model.SOL, snap.Asset)
	assert.Equal(t, model.USD, snap.Currency)
	assert.NotEmpty(t, snap.ID)
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestPriceClient_BadStatus(t *testing.T) {
	srv := jsonServer(t, http.StatusTooManyRequests, `{"status":"rate limited"}`)

	_, err := NewPriceClient(srv.URL).FetchPrice(context.Background())
	assert.ErrorIs(t, err, ErrBadStatus)
}

func TestPriceClient_InvalidPayload(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"solana":{}}`,
		`{"solana":{"usd":"150.25"}}`,
		`{"solana":{"usd":null}}`,
		`not json`,
	}
	for _, body := range bodies {
		srv := jsonServer(t, http.StatusOK, body)
		_, err := NewPriceClient(srv.URL).FetchPrice(context.Background())
		assert.ErrorIs(t, err, ErrInvalidPayload, "body %s", body)
	}
}

func TestRateClient_FetchRate(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"base":"USD","rates":{"USD":1,"GBP":0.79,"EUR":"bad"}}`)

	snap, err := NewRateClient(srv.URL).FetchRate(context.Background(), model.GBP)
	require.NoError(t, err)
	assert.True(t, snap.Rate.Equal(decimal.RequireFromString("0.79")))
	assert.Equal(t, model.USD, snap.Base)
	assert.Equal(t, model.GBP, snap.Target)
}

func TestRateClient_MissingTarget(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"base":"USD","rates":{"USD":1}}`)

	_, err := NewRateClient(srv.URL).FetchRate(context.Background(), model.GBP)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

// --- Feeds ---

type stubPrices struct {
	mu    sync.Mutex
	calls atomic.Int32
	next  []result
}

type result struct {
	price string
	err   error
}

func (s *stubPrices) FetchPrice(_ context.Context) (*model.PriceSnapshot, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.next[0]
	if len(s.next) > 1 {
		s.next = s.next[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return &model.PriceSnapshot{Price: decimal.RequireFromString(r.price), FetchedAt: time.Now()}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	prices []*model.PriceSnapshot
	rates  []*model.RateSnapshot
}

func (p *recordingPublisher) PublishPrice(s *model.PriceSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices = append(p.prices, s)
}

func (p *recordingPublisher) PublishRate(s *model.RateSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates = append(p.rates, s)
}

func TestPriceFeed_FailureKeepsPreviousSnapshot(t *testing.T) {
	stub := &stubPrices{next: []result{
		{price: "150"},
		{err: errors.New("Failed to fetch SOL price")},
	}}
	f := NewPriceFeed(stub, time.Minute)
	ctx := context.Background()

	assert.True(t, f.Loading())
	assert.Nil(t, f.Snapshot())

	require.NoError(t, f.Refresh(ctx))
	assert.False(t, f.Loading())
	assert.Empty(t, f.Err())

	require.Error(t, f.Refresh(ctx))
	assert.Equal(t, "Failed to fetch SOL price", f.Err())
	require.NotNil(t, f.Snapshot())
	assert.True(t, f.Snapshot().Price.Equal(decimal.NewFromInt(150)))
}

func TestPriceFeed_FirstFailureLeavesNil(t *testing.T) {
	stub := &stubPrices{next: []result{{err: errors.New("boom")}}}
	f := NewPriceFeed(stub, time.Minute)

	require.Error(t, f.Refresh(context.Background()))
	assert.Nil(t, f.Snapshot())
	assert.False(t, f.Loading())
	assert.Equal(t, "boom", f.Err())
}

func TestPriceFeed_StartPollsAndStops(t *testing.T) {
	stub := &stubPrices{next: []result{{price: "150"}}}
	pub := &recordingPublisher{}
	f := NewPriceFeed(stub, 10*time.Millisecond, WithPublisher(pub))

	stop := f.Start(context.Background())
	require.Eventually(t, func() bool { return stub.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	stop()
	stop() // idempotent

	after := stub.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, stub.calls.Load(), "poller kept running after stop")

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.GreaterOrEqual(t, len(pub.prices), 3)
}

func TestPriceFeed_WarmDoesNotOverwrite(t *testing.T) {
	stub := &stubPrices{next: []result{{price: "150"}}}
	f := NewPriceFeed(stub, time.Minute)

	f.Warm(&model.PriceSnapshot{Price: decimal.NewFromInt(140)})
	assert.True(t, f.Snapshot().Price.Equal(decimal.NewFromInt(140)))

	require.NoError(t, f.Refresh(context.Background()))
	f.Warm(&model.PriceSnapshot{Price: decimal.NewFromInt(1)})
	assert.True(t, f.Snapshot().Price.Equal(decimal.NewFromInt(150)))
}

type stubRates struct {
	rate string
	err  error
}

func (s stubRates) FetchRate(_ context.Context, target model.Currency) (*model.RateSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.RateSnapshot{Base: model.USD, Target: target, Rate: decimal.RequireFromString(s.rate)}, nil
}

func TestRateFeed_Load(t *testing.T) {
	pub := &recordingPublisher{}
	f := NewRateFeed(stubRates{rate: "0.79"}, model.GBP, WithPublisher(pub))

	assert.True(t, f.Loading())
	require.NoError(t, f.Load(context.Background()))
	assert.False(t, f.Loading())
	require.NotNil(t, f.Snapshot())
	assert.True(t, f.Snapshot().Rate.Equal(decimal.RequireFromString("0.79")))
	assert.Len(t, pub.rates, 1)
}

func TestRateFeed_LoadFailure(t *testing.T) {
	f := NewRateFeed(stubRates{err: errors.New("Invalid rate format for GBP")}, model.GBP)

	require.Error(t, f.Load(context.Background()))
	assert.Nil(t, f.Snapshot())
	assert.Equal(t, "Invalid rate format for GBP", f.Err())
}

func TestRateFeed_WarmIgnoresOtherTarget(t *testing.T) {
	f := NewRateFeed(stubRates{rate: "0.79"}, model.GBP)
	f.Warm(&model.RateSnapshot{Target: model.USD, Rate: decimal.NewFromInt(1)})
	assert.Nil(t, f.Snapshot())
}

// flakyRates fails the first failures calls and then returns rate.
type flakyRates struct {
	failures int32
	calls    atomic.Int32
	rate     string
}

func (s *flakyRates) FetchRate(_ context.Context, target model.Currency) (*model.RateSnapshot, error) {
	if s.calls.Add(1) <= s.failures {
		return nil, errors.New("upstream unavailable")
	}
	return &model.RateSnapshot{Base: model.USD, Target: target, Rate: decimal.RequireFromString(s.rate)}, nil
}

func TestRateFeed_LoadWithRetryRecovers(t *testing.T) {
	fetcher := &flakyRates{failures: 3, rate: "0.79"}
	pub := &recordingPublisher{}
	f := NewRateFeed(fetcher, model.GBP, WithPublisher(pub))

	require.NoError(t, f.LoadWithRetry(context.Background(), time.Millisecond, 5*time.Millisecond))

	assert.Equal(t, int32(4), fetcher.calls.Load())
	require.NotNil(t, f.Snapshot())
	assert.True(t, f.Snapshot().Rate.Equal(decimal.RequireFromString("0.79")))
	assert.Empty(t, f.Err())
	assert.False(t, f.Loading())
	assert.Len(t, pub.rates, 1)
}

func TestRateFeed_LoadWithRetryFailureIsVisibleWhileRetrying(t *testing.T) {
	fetcher := &flakyRates{failures: 1 << 30, rate: "0.79"}
	f := NewRateFeed(fetcher, model.GBP)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.LoadWithRetry(ctx, time.Millisecond, 2*time.Millisecond) }()

	require.Eventually(t, func() bool { return fetcher.calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	assert.Nil(t, f.Snapshot())
	assert.Equal(t, "upstream unavailable", f.Err())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not stop after cancel")
	}
}

func TestRateFeed_LoadWithRetryCancelledBeforeStart(t *testing.T) {
	fetcher := &flakyRates{failures: 1 << 30, rate: "0.79"}
	f := NewRateFeed(fetcher, model.GBP)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.LoadWithRetry(ctx, time.Millisecond, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, fetcher.calls.Load(), int32(1))
}
