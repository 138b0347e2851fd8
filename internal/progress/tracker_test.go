package progress_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/centsify/centsify/internal/curriculum"
	"github.com/centsify/centsify/internal/progress"
	"github.com/centsify/centsify/internal/storage"
)

func TestIsUnlocked_FreshTracker(t *testing.T) {
	tr := progress.NewTracker(testCatalog(t, 16), storage.NewMemoryStore())

	tests := []struct {
		id   int
		want bool
	}{
		{1, true},
		{2, false},
		{16, false},
		{0, false},
		{-3, false},
		{17, false},
	}
	for _, tt := range tests {
		if got := tr.IsUnlocked(tt.id); got != tt.want {
			t.Errorf("IsUnlocked(%d) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestIsUnlocked_FollowsPredecessor(t *testing.T) {
	ctx := context.Background()
	catalog := testCatalog(t, 16)
	tr := progress.NewTracker(catalog, storage.NewMemoryStore())

	for _, id := range []int{1, 2, 5, 9} {
		if err := tr.OnQuizCompleted(ctx, id); err != nil {
			t.Fatalf("OnQuizCompleted(%d) error = %v", id, err)
		}
	}

	completed := tr.Completed()
	for id := 1; id <= catalog.Len(); id++ {
		want := id == 1 || slices.Contains(completed, id-1)
		if got := tr.IsUnlocked(id); got != want {
			t.Errorf("IsUnlocked(%d) = %v, want %v", id, got, want)
		}
	}
}

func TestOnQuizCompleted_Persists(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	tr := progress.NewTracker(testCatalog(t, 3), kv)

	if err := tr.OnQuizCompleted(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if err := tr.OnQuizCompleted(ctx, 1); err != nil {
		t.Fatal(err)
	}

	raw, found, _ := kv.Get(ctx, progress.CompletedKey)
	if !found {
		t.Fatal("completion set was not written")
	}
	if raw != "[1,2]" {
		t.Errorf("stored value = %q, want [1,2]", raw)
	}
}

func TestOnQuizCompleted_Idempotent(t *testing.T) {
	ctx := context.Background()
	kv := &countingKV{KV: storage.NewMemoryStore()}
	tr := progress.NewTracker(testCatalog(t, 3), kv)

	for range 3 {
		if err := tr.OnQuizCompleted(ctx, 1); err != nil {
			t.Fatal(err)
		}
	}

	if got := tr.Completed(); !slices.Equal(got, []int{1}) {
		t.Errorf("Completed() = %v, want [1]", got)
	}
	if kv.sets != 1 {
		t.Errorf("storage writes = %d, want 1", kv.sets)
	}
}

func TestOnQuizCompleted_UnknownTopic(t *testing.T) {
	tr := progress.NewTracker(testCatalog(t, 3), storage.NewMemoryStore())

	for _, id := range []int{0, 4, -1} {
		err := tr.OnQuizCompleted(context.Background(), id)
		if !errors.Is(err, progress.ErrUnknownTopic) {
			t.Errorf("OnQuizCompleted(%d) error = %v, want ErrUnknownTopic", id, err)
		}
	}
	if len(tr.Completed()) != 0 {
		t.Error("unknown topics must not enter the completion set")
	}
}

func TestOnQuizCompleted_StorageFailure(t *testing.T) {
	tr := progress.NewTracker(testCatalog(t, 3), failingKV{})

	err := tr.OnQuizCompleted(context.Background(), 1)
	if !errors.Is(err, progress.ErrStorageUnavailable) {
		t.Fatalf("OnQuizCompleted() error = %v, want ErrStorageUnavailable", err)
	}
	if !tr.IsUnlocked(2) {
		t.Error("memory should stay authoritative after a failed write")
	}
	if tr.State(1) != progress.Completed {
		t.Errorf("State(1) = %v, want completed", tr.State(1))
	}
}

// flakyKV fails Set while down is true.
type flakyKV struct {
	*storage.MemoryStore
	down bool
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	if f.down {
		return errors.New("down")
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func TestOnQuizCompleted_RetryAfterStorageRecovers(t *testing.T) {
	ctx := context.Background()
	catalog := testCatalog(t, 3)
	kv := &flakyKV{MemoryStore: storage.NewMemoryStore(), down: true}
	tr := progress.NewTracker(catalog, kv)

	if err := tr.OnQuizCompleted(ctx, 1); !errors.Is(err, progress.ErrStorageUnavailable) {
		t.Fatalf("first OnQuizCompleted() error = %v, want ErrStorageUnavailable", err)
	}

	kv.down = false
	if err := tr.OnQuizCompleted(ctx, 1); err != nil {
		t.Fatalf("retry OnQuizCompleted() error = %v", err)
	}
	raw, found, _ := kv.Get(ctx, progress.CompletedKey)
	if !found || raw != "[1]" {
		t.Fatalf("stored = %q, %v; want [1]", raw, found)
	}

	restarted := progress.NewTracker(catalog, kv)
	restarted.Restore(ctx)
	if !restarted.IsUnlocked(2) {
		t.Error("IsUnlocked(2) = false after restart, want true")
	}

	// Once clean, a repeat is a no-op again.
	kv.down = true
	if err := tr.OnQuizCompleted(ctx, 1); err != nil {
		t.Errorf("repeat OnQuizCompleted() error = %v, want nil", err)
	}
}

func TestRestore(t *testing.T) {
	tests := []struct {
		name string
		kv   func() storage.KV
		want []int
	}{
		{
			name: "missing key",
			kv:   func() storage.KV { return storage.NewMemoryStore() },
			want: []int{},
		},
		{
			name: "stored set",
			kv:   func() storage.KV { return seeded("[2,1]") },
			want: []int{1, 2},
		},
		{
			name: "not json",
			kv:   func() storage.KV { return seeded("not json") },
			want: []int{},
		},
		{
			name: "wrong shape",
			kv:   func() storage.KV { return seeded(`{"a":1}`) },
			want: []int{},
		},
		{
			name: "stale ids dropped",
			kv:   func() storage.KV { return seeded("[1,42]") },
			want: []int{1},
		},
		{
			name: "read failure",
			kv:   func() storage.KV { return failingKV{} },
			want: []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := progress.NewTracker(testCatalog(t, 3), tt.kv())
			tr.Restore(context.Background())

			if got := tr.Completed(); !slices.Equal(got, tt.want) {
				t.Errorf("Completed() = %v, want %v", got, tt.want)
			}
			if !tr.IsUnlocked(1) {
				t.Error("topic 1 must be unlocked after any restore")
			}
		})
	}
}

func TestRestore_ReplacesMemory(t *testing.T) {
	ctx := context.Background()
	tr := progress.NewTracker(testCatalog(t, 3), seeded("[1]"))
	tr.Restore(ctx)
	tr.Restore(ctx)

	if got := tr.Completed(); !slices.Equal(got, []int{1}) {
		t.Errorf("Completed() = %v, want [1]", got)
	}
}

func TestTracker_ThreeTopicWalkthrough(t *testing.T) {
	ctx := context.Background()
	catalog := testCatalog(t, 3)
	kv := storage.NewMemoryStore()
	tr := progress.NewTracker(catalog, kv)

	assertStates(t, tr, progress.Unlocked, progress.Locked, progress.Locked)

	if err := tr.OnQuizCompleted(ctx, 1); err != nil {
		t.Fatal(err)
	}
	assertStates(t, tr, progress.Completed, progress.Unlocked, progress.Locked)

	if err := tr.OnQuizCompleted(ctx, 2); err != nil {
		t.Fatal(err)
	}
	assertStates(t, tr, progress.Completed, progress.Completed, progress.Unlocked)

	// A new tracker over the same store sees the same roadmap.
	reloaded := progress.NewTracker(catalog, kv)
	reloaded.Restore(ctx)
	assertStates(t, reloaded, progress.Completed, progress.Completed, progress.Unlocked)
}

func TestRoadmap(t *testing.T) {
	tr := progress.NewTracker(testCatalog(t, 3), storage.NewMemoryStore())
	if err := tr.OnQuizCompleted(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	roadmap := tr.Roadmap()
	if len(roadmap) != 3 {
		t.Fatalf("Roadmap() has %d entries, want 3", len(roadmap))
	}
	for i, ts := range roadmap {
		if ts.ID != i+1 {
			t.Errorf("Roadmap()[%d].ID = %d, want %d", i, ts.ID, i+1)
		}
	}
	if roadmap[0].State != progress.Completed || roadmap[1].State != progress.Unlocked {
		t.Errorf("Roadmap states = %v, %v", roadmap[0].State, roadmap[1].State)
	}
}

func TestState_String(t *testing.T) {
	tests := map[progress.State]string{
		progress.Locked:    "locked",
		progress.Unlocked:  "unlocked",
		progress.Completed: "completed",
		progress.State(9):  "State(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestTracker_ConcurrentCompletions(t *testing.T) {
	ctx := context.Background()
	tr := progress.NewTracker(testCatalog(t, 16), storage.NewMemoryStore())

	var wg sync.WaitGroup
	for id := 1; id <= 16; id++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.OnQuizCompleted(ctx, id)
			_ = tr.IsUnlocked(id)
		}()
	}
	wg.Wait()

	if got := len(tr.Completed()); got != 16 {
		t.Errorf("Completed() has %d ids, want 16", got)
	}
}

func assertStates(t *testing.T, tr *progress.Tracker, want ...progress.State) {
	t.Helper()
	for i, w := range want {
		if got := tr.State(i + 1); got != w {
			t.Errorf("State(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func testCatalog(t *testing.T, n int) *curriculum.Catalog {
	t.Helper()
	topics := make([]curriculum.Topic, 0, n)
	for i := 1; i <= n; i++ {
		topics = append(topics, curriculum.Topic{ID: i, Name: "Topic " + string(rune('A'+i-1))})
	}
	c, err := curriculum.NewCatalog(topics)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	return c
}

func seeded(value string) storage.KV {
	kv := storage.NewMemoryStore()
	_ = kv.Set(context.Background(), progress.CompletedKey, value)
	return kv
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func (failingKV) Set(context.Context, string, string) error {
	return errors.New("disk on fire")
}

func (failingKV) Delete(context.Context, string) error {
	return errors.New("disk on fire")
}

type countingKV struct {
	storage.KV
	sets int
}

func (c *countingKV) Set(ctx context.Context, key, value string) error {
	c.sets++
	return c.KV.Set(ctx, key, value)
}
