package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/atmx/vault-engine/internal/metrics"
	"github.com/atmx/vault-engine/internal/model"
)

// DefaultRefreshInterval is how often the price feed polls.
const DefaultRefreshInterval = 30 * time.Second

// Rate load retry bounds.
const (
	DefaultRetryInitial = time.Second
	DefaultRetryMax     = time.Minute
)

// PriceFetcher fetches a price snapshot.
type PriceFetcher interface {
	FetchPrice(ctx context.Context) (*model.PriceSnapshot, error)
}

// RateFetcher fetches a USD→target rate snapshot.
type RateFetcher interface {
	FetchRate(ctx context.Context, target model.Currency) (*model.RateSnapshot, error)
}

// Publisher receives every successfully fetched snapshot.
type Publisher interface {
	PublishPrice(s *model.PriceSnapshot)
	PublishRate(s *model.RateSnapshot)
}

// Recorder persists snapshots so they survive restarts.
type Recorder interface {
	SavePriceSnapshot(ctx context.Context, s *model.PriceSnapshot) error
	SaveRateSnapshot(ctx context.Context, s *model.RateSnapshot) error
}

// state is the lock-free holder shared by both feeds. Values are swapped
// as a whole; readers never see a partial update.
type state[T any] struct {
	snapshot atomic.Pointer[T]
	errText  atomic.Pointer[string]
	loading  atomic.Bool
}

func (s *state[T]) fail(err error) {
	msg := err.Error()
	s.errText.Store(&msg)
}

func (s *state[T]) succeed(v *T) {
	s.snapshot.Store(v)
	s.errText.Store(nil)
}

func (s *state[T]) errString() string {
	if p := s.errText.Load(); p != nil {
		return *p
	}
	return ""
}

// PriceFeed polls the SOL price on a fixed interval.
type PriceFeed struct {
	fetcher   PriceFetcher
	interval  time.Duration
	publisher Publisher
	recorder  Recorder
	st        state[model.PriceSnapshot]
}

// Option configures a feed.
type Option func(*options)

type options struct {
	publisher Publisher
	recorder  Recorder
}

// WithPublisher broadcasts each new snapshot.
func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithRecorder persists each new snapshot.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// NewPriceFeed creates a price feed. interval <= 0 selects
// DefaultRefreshInterval.
func NewPriceFeed(fetcher PriceFetcher, interval time.Duration, opts ...Option) *PriceFeed {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	f := &PriceFeed{
		fetcher:   fetcher,
		interval:  interval,
		publisher: o.publisher,
		recorder:  o.recorder,
	}
	f.st.loading.Store(true)
	return f
}

// Warm installs a previously stored snapshot before the first fetch.
// It does nothing once a snapshot is present.
func (f *PriceFeed) Warm(s *model.PriceSnapshot) {
	if s != nil {
		f.st.snapshot.CompareAndSwap(nil, s)
	}
}

// Snapshot returns the latest price, or nil before the first success.
func (f *PriceFeed) Snapshot() *model.PriceSnapshot { return f.st.snapshot.Load() }

// Err returns the text of the last failure, or "" after a success.
func (f *PriceFeed) Err() string { return f.st.errString() }

// Loading reports whether the first fetch attempt is still pending.
func (f *PriceFeed) Loading() bool { return f.st.loading.Load() }

// LastUpdated returns when the current snapshot was fetched.
func (f *PriceFeed) LastUpdated() (time.Time, bool) {
	s := f.Snapshot()
	if s == nil {
		return time.Time{}, false
	}
	return s.FetchedAt, true
}

// Refresh fetches once. On failure the previous snapshot is kept and the
// error text is recorded.
func (f *PriceFeed) Refresh(ctx context.Context) error {
	defer f.st.loading.Store(false)

	start := time.Now()
	snap, err := f.fetcher.FetchPrice(ctx)
	metrics.FeedFetchLatency.WithLabelValues("price").Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; keep the last real error.
			return ctx.Err()
		}
		metrics.FeedFetchesTotal.WithLabelValues("price", "error").Inc()
		f.st.fail(err)
		slog.Error("price fetch failed", "err", err)
		return err
	}

	metrics.FeedFetchesTotal.WithLabelValues("price", "ok").Inc()
	metrics.LatestPrice.Set(snap.Price.InexactFloat64())
	f.st.succeed(snap)
	slog.Debug("price updated", "price", snap.Price.String(), "fetched_at", snap.FetchedAt)

	if f.publisher != nil {
		f.publisher.PublishPrice(snap)
	}
	if f.recorder != nil {
		if err := f.recorder.SavePriceSnapshot(ctx, snap); err != nil {
			slog.Warn("failed to record price snapshot", "err", err)
		}
	}
	return nil
}

// Start fetches immediately and then on every tick until ctx ends or the
// returned stop function is called. stop waits for the polling goroutine
// to exit and is safe to call more than once.
func (f *PriceFeed) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		f.Refresh(ctx)

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.Refresh(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// RateFeed holds a USD→target rate. It is not polled once loaded: rates
// move slowly compared to the SOL price.
type RateFeed struct {
	fetcher   RateFetcher
	target    model.Currency
	publisher Publisher
	recorder  Recorder
	st        state[model.RateSnapshot]
}

// NewRateFeed creates a rate feed for target.
func NewRateFeed(fetcher RateFetcher, target model.Currency, opts ...Option) *RateFeed {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	f := &RateFeed{
		fetcher:   fetcher,
		target:    target,
		publisher: o.publisher,
		recorder:  o.recorder,
	}
	f.st.loading.Store(true)
	return f
}

// Target returns the currency this feed converts USD into.
func (f *RateFeed) Target() model.Currency { return f.target }

// Warm installs a previously stored snapshot for the same target.
func (f *RateFeed) Warm(s *model.RateSnapshot) {
	if s != nil && s.Target == f.target {
		f.st.snapshot.CompareAndSwap(nil, s)
	}
}

// Snapshot returns the rate, or nil before the first success.
func (f *RateFeed) Snapshot() *model.RateSnapshot { return f.st.snapshot.Load() }

// Err returns the text of the last failure, or "".
func (f *RateFeed) Err() string { return f.st.errString() }

// Loading reports whether the fetch is still pending.
func (f *RateFeed) Loading() bool { return f.st.loading.Load() }

// Load fetches the rate once.
func (f *RateFeed) Load(ctx context.Context) error {
	f.st.loading.Store(true)
	defer f.st.loading.Store(false)

	label := "rate_" + string(f.target)
	start := time.Now()
	snap, err := f.fetcher.FetchRate(ctx, f.target)
	metrics.FeedFetchLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.FeedFetchesTotal.WithLabelValues(label, "error").Inc()
		f.st.fail(err)
		slog.Error("rate fetch failed", "target", f.target, "err", err)
		return err
	}

	metrics.FeedFetchesTotal.WithLabelValues(label, "ok").Inc()
	metrics.LatestRate.WithLabelValues(string(f.target)).Set(snap.Rate.InexactFloat64())
	f.st.succeed(snap)
	slog.Info("rate loaded", "target", f.target, "rate", snap.Rate.String())

	if f.publisher != nil {
		f.publisher.PublishRate(snap)
	}
	if f.recorder != nil {
		if err := f.recorder.SaveRateSnapshot(ctx, snap); err != nil {
			slog.Warn("failed to record rate snapshot", "err", err)
		}
	}
	return nil
}

// LoadWithRetry calls Load until it succeeds, backing off exponentially
// between attempts from initial up to maxInterval. It gives up only when
// ctx ends.
func (f *RateFeed) LoadWithRetry(ctx context.Context, initial, maxInterval time.Duration) error {
	if initial <= 0 {
		initial = DefaultRetryInitial
	}
	if maxInterval < initial {
		maxInterval = initial
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	op := func() error {
		err := f.Load(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		slog.Warn("retrying rate load", "target", f.target, "in", next, "err", err)
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}
