package trading_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/centsify/centsify/internal/storage"
	"github.com/centsify/centsify/internal/trading"
)

func newTestTrader() (*trading.Trader, storage.KV) {
	kv := storage.NewMemoryStore()
	quotes := trading.StaticQuotes{"AAPL": 19_050, "IBM": 18_512}
	return trading.NewTrader(kv, quotes, 0), kv
}

func TestPortfolio_Fresh(t *testing.T) {
	tr, _ := newTestTrader()

	p, err := tr.Portfolio(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Portfolio() error = %v", err)
	}
	if p.CashCents != trading.DefaultStartingCashCents {
		t.Errorf("CashCents = %d, want %d", p.CashCents, trading.DefaultStartingCashCents)
	}
	if len(p.Holdings) != 0 {
		t.Errorf("Holdings = %v, want empty", p.Holdings)
	}
}

func TestBuyThenSell(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTrader()

	trade, err := tr.Buy(ctx, "u1", "aapl", 10)
	if err != nil {
		t.Fatalf("Buy() error = %v", err)
	}
	if trade.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want upper-cased", trade.Symbol)
	}
	if trade.TotalCents != 190_500 {
		t.Errorf("TotalCents = %d, want 190500", trade.TotalCents)
	}
	if trade.Portfolio.CashCents != 1_000_000-190_500 {
		t.Errorf("CashCents = %d after buy", trade.Portfolio.CashCents)
	}

	trade, err = tr.Sell(ctx, "u1", "AAPL", 4)
	if err != nil {
		t.Fatalf("Sell() error = %v", err)
	}
	if got := trade.Portfolio.Holdings["AAPL"]; got != 6 {
		t.Errorf("Holdings[AAPL] = %d, want 6", got)
	}
	if trade.Portfolio.CashCents != 1_000_000-190_500+76_200 {
		t.Errorf("CashCents = %d after sell", trade.Portfolio.CashCents)
	}

	if _, err := tr.Sell(ctx, "u1", "AAPL", 6); err != nil {
		t.Fatal(err)
	}
	p, _ := tr.Portfolio(ctx, "u1")
	if _, held := p.Holdings["AAPL"]; held {
		t.Error("fully sold symbol should be removed from holdings")
	}
	if p.CashCents != 1_000_000 {
		t.Errorf("CashCents = %d, want back to starting cash", p.CashCents)
	}
}

func TestOrderErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		run     func(*trading.Trader) error
		wantErr error
	}{
		{"zero shares", func(tr *trading.Trader) error {
			_, err := tr.Buy(ctx, "u1", "AAPL", 0)
			return err
		}, trading.ErrInvalidOrder},
		{"bad symbol", func(tr *trading.Trader) error {
			_, err := tr.Buy(ctx, "u1", "not a symbol", 1)
			return err
		}, trading.ErrInvalidOrder},
		{"insufficient funds", func(tr *trading.Trader) error {
			_, err := tr.Buy(ctx, "u1", "AAPL", 1000)
			return err
		}, trading.ErrInsufficientFunds},
		{"sell without holding", func(tr *trading.Trader) error {
			_, err := tr.Sell(ctx, "u1", "IBM", 1)
			return err
		}, trading.ErrInsufficientShares},
		{"unknown quote", func(tr *trading.Trader) error {
			_, err := tr.Buy(ctx, "u1", "ZZZZ", 1)
			return err
		}, trading.ErrQuoteUnavailable},
		{"huge buy", func(tr *trading.Trader) error {
			_, err := tr.Buy(ctx, "u1", "AAPL", 1<<62)
			return err
		}, trading.ErrInvalidOrder},
		{"huge sell", func(tr *trading.Trader) error {
			_, err := tr.Sell(ctx, "u1", "AAPL", 1<<56)
			return err
		}, trading.ErrInvalidOrder},
		{"one over the order cap", func(tr *trading.Trader) error {
			_, err := tr.Buy(ctx, "u1", "AAPL", trading.MaxSharesPerOrder+1)
			return err
		}, trading.ErrInvalidOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTrader()
			if err := tt.run(tr); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			p, _ := tr.Portfolio(ctx, "u1")
			if p.CashCents != trading.DefaultStartingCashCents {
				t.Errorf("failed order changed cash to %d", p.CashCents)
			}
		})
	}
}

func TestPortfolio_PersistedPerLearner(t *testing.T) {
	ctx := context.Background()
	tr, kv := newTestTrader()

	if _, err := tr.Buy(ctx, "alice", "IBM", 1); err != nil {
		t.Fatal(err)
	}

	other := trading.NewTrader(kv, trading.StaticQuotes{}, 0)
	p, err := other.Portfolio(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.Holdings["IBM"] != 1 {
		t.Errorf("reloaded Holdings = %v", p.Holdings)
	}

	bob, _ := other.Portfolio(ctx, "bob")
	if len(bob.Holdings) != 0 {
		t.Error("bob should start with an empty portfolio")
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{1_000_000, "$10,000.00"},
		{5, "$0.05"},
		{123_456_789, "$1,234,567.89"},
		{-250, "-$2.50"},
	}
	for _, tt := range tests {
		if got := trading.FormatCents(tt.cents); got != tt.want {
			t.Errorf("FormatCents(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestPortfolio_Lines(t *testing.T) {
	p := trading.Portfolio{Holdings: map[string]int{"MSFT": 2, "AAPL": 1}}
	lines := p.Lines()
	if len(lines) != 2 || lines[0].Symbol != "AAPL" || lines[1].Symbol != "MSFT" {
		t.Errorf("Lines() = %v, want sorted by symbol", lines)
	}
}

func TestBuy_OrderValueOverflow(t *testing.T) {
	ctx := context.Background()
	quotes := trading.StaticQuotes{"BIG": math.MaxInt64 / 2, "FREE": 0}
	tr := trading.NewTrader(storage.NewMemoryStore(), quotes, 0)

	if _, err := tr.Buy(ctx, "u1", "BIG", 3); !errors.Is(err, trading.ErrInvalidOrder) {
		t.Errorf("Buy(BIG, 3) error = %v, want ErrInvalidOrder", err)
	}
	if _, err := tr.Buy(ctx, "u1", "FREE", 10); !errors.Is(err, trading.ErrQuoteUnavailable) {
		t.Errorf("Buy(FREE, 10) error = %v, want ErrQuoteUnavailable", err)
	}

	p, err := tr.Portfolio(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if p.CashCents != trading.DefaultStartingCashCents || len(p.Holdings) != 0 {
		t.Errorf("portfolio changed after rejected orders: %+v", p)
	}
}
