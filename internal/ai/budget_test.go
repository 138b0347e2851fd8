package ai_test

import (
	"testing"

	"github.com/centsify/centsify/internal/ai"
)

func TestBudget(t *testing.T) {
	b := ai.NewBudget(100)

	if !b.Allow("u1") {
		t.Fatal("fresh learner should be allowed")
	}
	if err := b.Record("u1", 60); err != nil {
		t.Fatal(err)
	}
	if !b.Allow("u1") {
		t.Error("learner under the limit should be allowed")
	}
	if err := b.Record("u1", 40); err != nil {
		t.Fatal(err)
	}
	if b.Allow("u1") {
		t.Error("learner at the limit should be refused")
	}
	if !b.Allow("u2") {
		t.Error("budgets are per learner")
	}

	used, limit := b.Usage("u1")
	if used != 100 || limit != 100 {
		t.Errorf("Usage() = %d/%d, want 100/100", used, limit)
	}
}

func TestBudget_Unlimited(t *testing.T) {
	b := ai.NewBudget(0)
	_ = b.Record("u1", 1_000_000)
	if !b.Allow("u1") {
		t.Error("zero limit means unlimited")
	}
}

func TestBudget_NegativeTokens(t *testing.T) {
	if err := ai.NewBudget(10).Record("u1", -1); err == nil {
		t.Error("Record() should reject negative tokens")
	}
}
