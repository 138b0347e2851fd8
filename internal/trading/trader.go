// Package trading is a paper-trading simulator: learners buy and sell
// shares at live prices against a virtual cash balance.
package trading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/centsify/centsify/internal/storage"
)

// DefaultStartingCashCents is $10,000.00.
const DefaultStartingCashCents int64 = 1_000_000

// MaxSharesPerOrder bounds a single buy or sell.
const MaxSharesPerOrder = 1_000_000

const portfolioKey = "portfolio"

var (
	ErrInvalidOrder       = errors.New("invalid order")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrQuoteUnavailable   = errors.New("quote unavailable")
)

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// Portfolio is a learner's cash and share holdings.
type Portfolio struct {
	CashCents int64          `json:"cash_cents"`
	Holdings  map[string]int `json:"holdings"`
}

// Holding is one line of a portfolio, sorted by symbol.
type Holding struct {
	Symbol string `json:"symbol"`
	Shares int    `json:"shares"`
}

// Lines returns the holdings sorted by symbol.
func (p Portfolio) Lines() []Holding {
	out := make([]Holding, 0, len(p.Holdings))
	for _, sym := range slices.Sorted(maps.Keys(p.Holdings)) {
		out = append(out, Holding{Symbol: sym, Shares: p.Holdings[sym]})
	}
	return out
}

// Trade is the outcome of a filled order.
type Trade struct {
	Side       string    `json:"side"`
	Symbol     string    `json:"symbol"`
	Shares     int       `json:"shares"`
	PriceCents int64     `json:"price_cents"`
	TotalCents int64     `json:"total_cents"`
	Portfolio  Portfolio `json:"portfolio"`
}

// Trader executes orders against portfolios kept in the store.
type Trader struct {
	kv           storage.KV
	quotes       QuoteProvider
	startingCash int64

	// One lock per learner keeps read-modify-write of a portfolio atomic.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewTrader(kv storage.KV, quotes QuoteProvider, startingCashCents int64) *Trader {
	if startingCashCents <= 0 {
		startingCashCents = DefaultStartingCashCents
	}
	return &Trader{
		kv:           kv,
		quotes:       quotes,
		startingCash: startingCashCents,
		locks:        make(map[string]*sync.Mutex),
	}
}

// Portfolio returns the learner's portfolio, creating a fresh one on first
// access.
func (t *Trader) Portfolio(ctx context.Context, userID string) (Portfolio, error) {
	lock := t.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()
	return t.load(ctx, userID)
}

// Buy purchases shares of symbol at the current price.
func (t *Trader) Buy(ctx context.Context, userID, symbol string, shares int) (Trade, error) {
	symbol, err := validateOrder(symbol, shares)
	if err != nil {
		return Trade{}, err
	}
	quote, err := t.quotes.Quote(ctx, symbol)
	if err != nil {
		return Trade{}, err
	}

	lock := t.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	p, err := t.load(ctx, userID)
	if err != nil {
		return Trade{}, err
	}
	total, err := orderTotal(quote, shares)
	if err != nil {
		return Trade{}, err
	}
	if total > p.CashCents {
		return Trade{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, FormatCents(total), FormatCents(p.CashCents))
	}
	p.CashCents -= total
	p.Holdings[symbol] += shares

	if err := t.save(ctx, userID, p); err != nil {
		return Trade{}, err
	}
	return Trade{Side: "buy", Symbol: symbol, Shares: shares, PriceCents: quote.PriceCents, TotalCents: total, Portfolio: p}, nil
}

// Sell sells shares of symbol at the current price.
func (t *Trader) Sell(ctx context.Context, userID, symbol string, shares int) (Trade, error) {
	symbol, err := validateOrder(symbol, shares)
	if err != nil {
		return Trade{}, err
	}

	lock := t.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	p, err := t.load(ctx, userID)
	if err != nil {
		return Trade{}, err
	}
	if p.Holdings[symbol] < shares {
		return Trade{}, fmt.Errorf("%w: hold %d %s", ErrInsufficientShares, p.Holdings[symbol], symbol)
	}

	quote, err := t.quotes.Quote(ctx, symbol)
	if err != nil {
		return Trade{}, err
	}
	total, err := orderTotal(quote, shares)
	if err != nil {
		return Trade{}, err
	}
	if total > math.MaxInt64-p.CashCents {
		return Trade{}, fmt.Errorf("%w: proceeds overflow the cash balance", ErrInvalidOrder)
	}
	p.CashCents += total
	p.Holdings[symbol] -= shares
	if p.Holdings[symbol] == 0 {
		delete(p.Holdings, symbol)
	}

	if err := t.save(ctx, userID, p); err != nil {
		return Trade{}, err
	}
	return Trade{Side: "sell", Symbol: symbol, Shares: shares, PriceCents: quote.PriceCents, TotalCents: total, Portfolio: p}, nil
}

func (t *Trader) lockFor(userID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[userID] = l
	}
	return l
}

func (t *Trader) load(ctx context.Context, userID string) (Portfolio, error) {
	kv := storage.Prefixed(t.kv, storage.LearnerPrefix(userID))
	raw, found, err := kv.Get(ctx, portfolioKey)
	if err != nil {
		return Portfolio{}, fmt.Errorf("loading portfolio: %w", err)
	}
	if !found {
		return Portfolio{CashCents: t.startingCash, Holdings: map[string]int{}}, nil
	}
	var p Portfolio
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Portfolio{}, fmt.Errorf("decoding portfolio: %w", err)
	}
	if p.Holdings == nil {
		p.Holdings = map[string]int{}
	}
	return p, nil
}

func (t *Trader) save(ctx context.Context, userID string, p Portfolio) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding portfolio: %w", err)
	}
	kv := storage.Prefixed(t.kv, storage.LearnerPrefix(userID))
	if err := kv.Set(ctx, portfolioKey, string(raw)); err != nil {
		return fmt.Errorf("saving portfolio: %w", err)
	}
	return nil
}

func validateOrder(symbol string, shares int) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(symbol) {
		return "", fmt.Errorf("%w: symbol %q", ErrInvalidOrder, symbol)
	}
	if shares <= 0 {
		return "", fmt.Errorf("%w: shares must be positive", ErrInvalidOrder)
	}
	if shares > MaxSharesPerOrder {
		return "", fmt.Errorf("%w: at most %d shares per order", ErrInvalidOrder, MaxSharesPerOrder)
	}
	return symbol, nil
}

// orderTotal is price times shares, rejecting non-positive prices and
// products that do not fit in int64.
func orderTotal(quote Quote, shares int) (int64, error) {
	if quote.PriceCents <= 0 {
		return 0, fmt.Errorf("%w: %s has no positive price", ErrQuoteUnavailable, quote.Symbol)
	}
	if int64(shares) > math.MaxInt64/quote.PriceCents {
		return 0, fmt.Errorf("%w: order value overflows", ErrInvalidOrder)
	}
	return quote.PriceCents * int64(shares), nil
}

var moneyPrinter = message.NewPrinter(language.AmericanEnglish)

// FormatCents renders an amount as US dollars, e.g. "$10,000.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return moneyPrinter.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
