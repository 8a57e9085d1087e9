package calls

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreCreateGetUpdate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Record{ID: "c1", Status: StatusQueued}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Record{ID: "c1"}); err == nil {
		t.Fatal("expected duplicate create to fail")
	}
	if err := store.Create(ctx, &Record{}); err == nil {
		t.Fatal("expected missing id to fail")
	}

	got, err := store.Get(ctx, "c1")
	if err != nil || got == nil {
		t.Fatalf("get: %v %+v", err, got)
	}

	if _, err := store.Update(ctx, "missing", func(*Record) error { return nil }); err == nil {
		t.Fatal("expected update of missing record to fail")
	}
}

func TestMemoryStoreConcurrentUpdates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, &Record{ID: "c1", Status: StatusQueued}); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(ctx, "c1", func(r *Record) error {
				r.Metrics.TurnCount++
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := store.Get(ctx, "c1")
	if got.Metrics.TurnCount != 50 {
		t.Fatalf("lost updates: turn count %d", got.Metrics.TurnCount)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Create(ctx, &Record{ID: "c1", Status: StatusQueued, CreatedAt: time.Now()})

	got, _ := store.Get(ctx, "c1")
	got.Status = StatusCompleted

	again, _ := store.Get(ctx, "c1")
	if again.Status != StatusQueued {
		t.Fatalf("store leaked internal state: %s", again.Status)
	}
}
