// Package progress tracks which curriculum topics a learner has completed
// and derives which topics are unlocked.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/centsify/centsify/internal/curriculum"
	"github.com/centsify/centsify/internal/storage"
)

// CompletedKey is the storage key holding the completion set.
const CompletedKey = "completedTopics"

var (
	ErrStorageUnavailable = errors.New("progress storage unavailable")
	ErrStorageCorrupt     = errors.New("progress storage corrupt")
	ErrUnknownTopic       = errors.New("unknown topic")
)

// State is a topic's position on a learner's roadmap.
type State int

const (
	Locked State = iota
	Unlocked
	Completed
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TopicStatus pairs a topic with its state.
type TopicStatus struct {
	curriculum.Topic
	State State `json:"state"`
}

// Tracker holds one learner's completion set. Memory is authoritative;
// every change is flushed to storage before OnQuizCompleted returns.
type Tracker struct {
	catalog *curriculum.Catalog
	kv      storage.KV

	mu        sync.RWMutex
	completed map[int]struct{}
	dirty     bool // the last flush failed
}

// NewTracker creates a tracker with an empty completion set. Call Restore to
// load persisted progress.
func NewTracker(catalog *curriculum.Catalog, kv storage.KV) *Tracker {
	return &Tracker{
		catalog:   catalog,
		kv:        kv,
		completed: make(map[int]struct{}),
	}
}

// Restore replaces the in-memory set with the persisted one. A missing key,
// a failed read or unparsable data leaves the set empty; the failure is
// logged and never returned.
func (t *Tracker) Restore(ctx context.Context) {
	ids, err := t.load(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed = make(map[int]struct{}, len(ids))
	t.dirty = false

	if err != nil {
		slog.Warn("restoring progress, starting empty", "error", err)
		return
	}
	for _, id := range ids {
		// Stale ids from an older catalog are dropped.
		if t.catalog.Has(id) {
			t.completed[id] = struct{}{}
		}
	}
}

func (t *Tracker) load(ctx context.Context) ([]int, error) {
	raw, found, err := t.kv.Get(ctx, CompletedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !found {
		return nil, nil
	}
	var ids []int
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	return ids, nil
}

// IsUnlocked reports whether a quiz for topic id may be started. Topic 1 is
// always unlocked; topic n is unlocked once n-1 is completed.
func (t *Tracker) IsUnlocked(id int) bool {
	if id == 1 {
		return true
	}
	if !t.catalog.Has(id) {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.completed[id-1]
	return ok
}

// OnQuizCompleted marks topic id completed and persists the whole set.
// Completing a topic twice is a no-op unless an earlier write failed, in
// which case the set is written again. If the write fails the topic stays
// completed in memory and the error is returned.
func (t *Tracker) OnQuizCompleted(ctx context.Context, id int) error {
	if !t.catalog.Has(id) {
		return fmt.Errorf("%w: %d", ErrUnknownTopic, id)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, done := t.completed[id]; done && !t.dirty {
		return nil
	}
	t.completed[id] = struct{}{}
	return t.flushLocked(ctx)
}

// flushLocked writes the set after folding in whatever is already stored,
// so two trackers for the same learner never erase each other's
// completions.
func (t *Tracker) flushLocked(ctx context.Context) error {
	stored, err := t.load(ctx)
	if err != nil {
		slog.Warn("reading progress before write", "error", err)
	}
	for _, id := range stored {
		if t.catalog.Has(id) {
			t.completed[id] = struct{}{}
		}
	}

	raw, err := json.Marshal(t.sortedLocked())
	if err != nil {
		t.dirty = true
		return fmt.Errorf("encoding completion set: %w", err)
	}
	if err := t.kv.Set(ctx, CompletedKey, string(raw)); err != nil {
		t.dirty = true
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	t.dirty = false
	return nil
}

// State returns the roadmap state of topic id.
func (t *Tracker) State(id int) State {
	t.mu.RLock()
	_, done := t.completed[id]
	t.mu.RUnlock()
	if done {
		return Completed
	}
	if t.IsUnlocked(id) {
		return Unlocked
	}
	return Locked
}

// Completed returns the completed topic ids in ascending order.
func (t *Tracker) Completed() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sortedLocked()
}

// Roadmap lists every catalog topic with its state, in id order.
func (t *Tracker) Roadmap() []TopicStatus {
	topics := t.catalog.Topics()
	out := make([]TopicStatus, 0, len(topics))
	for _, topic := range topics {
		out = append(out, TopicStatus{Topic: topic, State: t.State(topic.ID)})
	}
	return out
}

func (t *Tracker) sortedLocked() []int {
	ids := make([]int, 0, len(t.completed))
	for id := range t.completed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
