package querycache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/creatordisco/discovery/pkg/models"
)

type fakeL2 struct {
	mu      sync.Mutex
	entries map[string]models.CachedQueryExpansion
	gets    int
	puts    int
}

func newFakeL2() *fakeL2 {
	return &fakeL2{entries: make(map[string]models.CachedQueryExpansion)}
}

func (f *fakeL2) GetExpansion(ctx context.Context, digestKey string) (*models.CachedQueryExpansion, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	e, ok := f.entries[digestKey]
	if !ok || time.Now().After(e.ExpiresAt) {
		return nil, false, nil
	}
	return &e, true, nil
}

func (f *fakeL2) PutExpansion(ctx context.Context, entry models.CachedQueryExpansion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.entries[entry.DigestKey] = entry
	return nil
}

func TestCache_MissThenPutThenHit(t *testing.T) {
	ctx := context.Background()
	l2 := newFakeL2()
	c := New(l2)

	_, ok, err := c.Get(ctx, "true crime")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("Get on empty cache = hit, want miss")
	}

	if err := c.Put(ctx, "true crime", []string{"true crime", "true crime official"}, 120); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entry, ok, err := c.Get(ctx, "true crime")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("Get after Put = miss, want hit")
	}
	if len(entry.Queries) != 2 {
		t.Errorf("Queries = %v, want 2 entries", entry.Queries)
	}
}

func TestCache_L1HitAvoidsL2(t *testing.T) {
	ctx := context.Background()
	l2 := newFakeL2()
	c := New(l2)

	_ = c.Put(ctx, "cooking shows", []string{"cooking shows"}, 50)

	gotsBefore := l2.gets
	if _, ok, _ := c.Get(ctx, "cooking shows"); !ok {
		t.Fatalf("expected L1 hit")
	}
	if l2.gets != gotsBefore {
		t.Errorf("L2.GetExpansion called on an L1 hit: gets went from %d to %d", gotsBefore, l2.gets)
	}
}

func TestCache_L2HitInstallsIntoL1(t *testing.T) {
	ctx := context.Background()
	l2 := newFakeL2()
	c := New(l2)

	if err := c.Put(ctx, "sports commentary", []string{"sports commentary"}, 80); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c.l1.Clear() // force the next Get onto the L2 path

	if _, ok, _ := c.Get(ctx, "sports commentary"); !ok {
		t.Fatalf("Get after L1 Clear = miss, want L2-backed hit")
	}

	// The L2 hit should have repopulated L1, so a second Get must not hit L2.
	gotsBefore := l2.gets
	if _, ok, _ := c.Get(ctx, "sports commentary"); !ok {
		t.Fatalf("Get after L2-repopulate = miss, want L1 hit")
	}
	if l2.gets != gotsBefore {
		t.Errorf("L2.GetExpansion called again after repopulate: gets went from %d to %d", gotsBefore, l2.gets)
	}
}

func TestCache_ClearEmptiesL1Only(t *testing.T) {
	ctx := context.Background()
	l2 := newFakeL2()
	c := New(l2)

	_ = c.Put(ctx, "gaming", []string{"gaming"}, 10)
	c.Clear()

	if stats := c.Stats(); stats.Size != 0 {
		t.Errorf("Stats().Size after Clear = %d, want 0", stats.Size)
	}

	// L2 still has it: a Get should repopulate L1 via the L2 path.
	_, ok, err := c.Get(ctx, "gaming")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Errorf("Get after Clear(L1 only) = miss, want L2-backed hit")
	}
}
