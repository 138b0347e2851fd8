package progress

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/centsify/centsify/internal/curriculum"
	"github.com/centsify/centsify/internal/storage"
)

// DefaultMaxTrackers bounds the trackers a Directory keeps in memory.
const DefaultMaxTrackers = 10_000

// Directory hands out one Tracker per learner. Trackers are created on first
// use and restored from the learner's slice of the shared store. The least
// recently used tracker is dropped once the directory is full; its progress
// is already in storage.
type Directory struct {
	catalog *curriculum.Catalog
	kv      storage.KV
	max     int

	mu       sync.Mutex
	trackers map[string]*list.Element
	lru      *list.List // front is most recent
}

type directoryEntry struct {
	userID  string
	tracker *Tracker
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithMaxTrackers caps the number of cached trackers.
func WithMaxTrackers(n int) DirectoryOption {
	return func(d *Directory) {
		if n > 0 {
			d.max = n
		}
	}
}

func NewDirectory(catalog *curriculum.Catalog, kv storage.KV, opts ...DirectoryOption) *Directory {
	d := &Directory{
		catalog:  catalog,
		kv:       kv,
		max:      DefaultMaxTrackers,
		trackers: make(map[string]*list.Element),
		lru:      list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// For returns the tracker for userID. Storage is read outside the directory
// lock; if two callers race, the first tracker inserted wins.
func (d *Directory) For(ctx context.Context, userID string) (*Tracker, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is empty")
	}

	if t, ok := d.cached(userID); ok {
		return t, nil
	}

	t := NewTracker(d.catalog, storage.Prefixed(d.kv, storage.LearnerPrefix(userID)))
	t.Restore(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.trackers[userID]; ok {
		d.lru.MoveToFront(el)
		return el.Value.(*directoryEntry).tracker, nil
	}
	d.trackers[userID] = d.lru.PushFront(&directoryEntry{userID: userID, tracker: t})
	for d.lru.Len() > d.max {
		oldest := d.lru.Back()
		d.lru.Remove(oldest)
		delete(d.trackers, oldest.Value.(*directoryEntry).userID)
	}
	return t, nil
}

func (d *Directory) cached(userID string) (*Tracker, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.trackers[userID]
	if !ok {
		return nil, false
	}
	d.lru.MoveToFront(el)
	return el.Value.(*directoryEntry).tracker, true
}

// Len returns the number of cached trackers.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lru.Len()
}

// Catalog returns the catalog trackers are built against.
func (d *Directory) Catalog() *curriculum.Catalog {
	return d.catalog
}
