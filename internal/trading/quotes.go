package trading

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultAlphaVantageBaseURL = "https://www.alphavantage.co"

// Quote is a last-trade price.
type Quote struct {
	Symbol     string    `json:"symbol"`
	PriceCents int64     `json:"price_cents"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// QuoteProvider looks up current prices.
type QuoteProvider interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// AlphaVantage fetches GLOBAL_QUOTE prices.
type AlphaVantage struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// AlphaVantageOption configures an AlphaVantage client.
type AlphaVantageOption func(*AlphaVantage)

// WithAlphaVantageBaseURL sets the base URL (for testing).
func WithAlphaVantageBaseURL(u string) AlphaVantageOption {
	return func(a *AlphaVantage) {
		a.baseURL = u
	}
}

func WithAlphaVantageHTTPClient(client *http.Client) AlphaVantageOption {
	return func(a *AlphaVantage) {
		a.client = client
	}
}

func NewAlphaVantage(apiKey string, opts ...AlphaVantageOption) *AlphaVantage {
	a := &AlphaVantage{
		apiKey:  apiKey,
		baseURL: defaultAlphaVantageBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type globalQuoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
	Note        string            `json:"Note"`
	Information string            `json:"Information"`
}

func (a *AlphaVantage) Quote(ctx context.Context, symbol string) (Quote, error) {
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return Quote{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("%w: alpha vantage status %d", ErrQuoteUnavailable, resp.StatusCode)
	}

	var gq globalQuoteResponse
	if err := json.Unmarshal(body, &gq); err != nil {
		return Quote{}, fmt.Errorf("%w: decode: %v", ErrQuoteUnavailable, err)
	}

	// Rate limiting is reported in a 200 body.
	if gq.Note != "" || gq.Information != "" {
		return Quote{}, fmt.Errorf("%w: %s%s", ErrQuoteUnavailable, gq.Note, gq.Information)
	}

	cents, err := parsePriceCents(gq.GlobalQuote["05. price"])
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, symbol, err)
	}

	return Quote{Symbol: symbol, PriceCents: cents, FetchedAt: time.Now().UTC()}, nil
}

func parsePriceCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("no price")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad price %q", s)
	}
	cents := int64(math.Round(f * 100))
	if cents <= 0 {
		return 0, fmt.Errorf("non-positive price %q", s)
	}
	return cents, nil
}

// JSONCache is the subset of the platform cache used for quotes.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// CachedQuotes serves quotes from cache for ttl before asking next.
// Cache errors are logged and fall through to next.
type CachedQuotes struct {
	next  QuoteProvider
	cache JSONCache
	ttl   time.Duration
}

func NewCachedQuotes(next QuoteProvider, cache JSONCache, ttl time.Duration) *CachedQuotes {
	return &CachedQuotes{next: next, cache: cache, ttl: ttl}
}

func (c *CachedQuotes) Quote(ctx context.Context, symbol string) (Quote, error) {
	key := "quote:" + symbol

	var q Quote
	found, err := c.cache.GetJSON(ctx, key, &q)
	if err != nil {
		slog.Warn("quote cache read failed", "symbol", symbol, "error", err)
	}
	if found {
		return q, nil
	}

	q, err = c.next.Quote(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	if err := c.cache.SetJSON(ctx, key, q, c.ttl); err != nil {
		slog.Warn("quote cache write failed", "symbol", symbol, "error", err)
	}
	return q, nil
}

// StaticQuotes is a fixed price table, used in tests and when no market data
// key is configured.
type StaticQuotes map[string]int64

func (s StaticQuotes) Quote(_ context.Context, symbol string) (Quote, error) {
	cents, ok := s[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%w: unknown symbol %s", ErrQuoteUnavailable, symbol)
	}
	return Quote{Symbol: symbol, PriceCents: cents, FetchedAt: time.Now().UTC()}, nil
}
