// Package feed fetches the SOL/USD price and USD exchange rates from public
// HTTP APIs and keeps the latest snapshot of each.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/model"
)

// Default endpoints and timeouts.
const (
	DefaultPriceURL = "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"
	DefaultRateURL  = "https://api.exchangerate-api.com/v4/latest/USD"
	DefaultTimeout  = 10 * time.Second

	// maxBody caps how much of a response is read.
	maxBody = 1 << 20
)

var (
	// ErrBadStatus is returned for a non-2xx response.
	ErrBadStatus = errors.New("feed: unexpected response status")

	// ErrInvalidPayload is returned when the expected numeric field is
	// missing or not a number.
	ErrInvalidPayload = errors.New("feed: invalid payload")
)

// ClientOption configures a feed client.
type ClientOption func(*getter)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(g *getter) {
		g.client.Timeout = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(g *getter) {
		g.client = client
	}
}

type getter struct {
	url    string
	client *http.Client
}

func newGetter(url string, opts []ClientOption) getter {
	g := getter{
		url:    url,
		client: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

// getJSON performs a GET and decodes the JSON body into dst.
func (g getter) getJSON(ctx context.Context, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", g.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// numberField decodes raw as a JSON number. Strings, null and objects are
// rejected.
func numberField(raw json.RawMessage, name string) (decimal.Decimal, error) {
	if raw == nil {
		return decimal.Zero, fmt.Errorf("%w: %s missing", ErrInvalidPayload, name)
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return decimal.Zero, fmt.Errorf("%w: %s is not a number", ErrInvalidPayload, name)
	}
	return decimal.NewFromFloat(*v), nil
}

// PriceClient fetches the SOL price in USD from a CoinGecko-style
// simple-price endpoint ({"solana":{"usd":123.45}}).
type PriceClient struct {
	getter
	assetID string
	vsField string
}

// NewPriceClient creates a price client for the given endpoint.
func NewPriceClient(url string, opts ...ClientOption) *PriceClient {
	return &PriceClient{
		getter:  newGetter(url, opts),
		assetID: "solana",
		vsField: strings.ToLower(string(model.USD)),
	}
}

// FetchPrice returns a fresh price snapshot.
func (c *PriceClient) FetchPrice(ctx context.Context) (*model.PriceSnapshot, error) {
	var body map[string]map[string]json.RawMessage
	if err := c.getJSON(ctx, &body); err != nil {
		return nil, err
	}

	price, err := numberField(body[c.assetID][c.vsField], c.assetID+"."+c.vsField)
	if err != nil {
		return nil, err
	}

	return &model.PriceSnapshot{
		ID:        uuid.New().String(),
		Asset:     model.SOL,
		Currency:  model.USD,
		Price:     price,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// RateClient fetches USD exchange rates from an endpoint shaped like
// {"base":"USD","rates":{"GBP":0.79,...}}.
type RateClient struct {
	getter
}

// NewRateClient creates a rate client for the given endpoint.
func NewRateClient(url string, opts ...ClientOption) *RateClient {
	return &RateClient{getter: newGetter(url, opts)}
}

// FetchRate returns the USD→target multiplier.
func (c *RateClient) FetchRate(ctx context.Context, target model.Currency) (*model.RateSnapshot, error) {
	var body struct {
		Rates map[string]json.RawMessage `json:"rates"`
	}
	if err := c.getJSON(ctx, &body); err != nil {
		return nil, err
	}

	rate, err := numberField(body.Rates[string(target)], "rates."+string(target))
	if err != nil {
		return nil, err
	}

	return &model.RateSnapshot{
		ID:        uuid.New().String(),
		Base:      model.USD,
		Target:    target,
		Rate:      rate,
		FetchedAt: time.Now().UTC(),
	}, nil
}
