package ai

import (
	"fmt"
	"sync"
)

// Budget caps the tokens each learner may spend on the assistant. A zero
// limit means unlimited.
type Budget struct {
	limit int64

	mu    sync.RWMutex
	usage map[string]int64
}

func NewBudget(limit int64) *Budget {
	return &Budget{limit: limit, usage: make(map[string]int64)}
}

// Allow reports whether userID has budget remaining.
func (b *Budget) Allow(userID string) bool {
	if b.limit <= 0 {
		return true
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[userID] < b.limit
}

func (b *Budget) Record(userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[userID] += int64(tokens)
	return nil
}

// Usage returns tokens used by userID and the configured limit.
func (b *Budget) Usage(userID string) (used, limit int64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[userID], b.limit
}
