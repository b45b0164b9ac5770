package metrics

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNewStore(t *testing.T) {
	t.Run("creates store with default config", func(t *testing.T) {
		store := NewStore(DefaultStoreConfig(), time.Now())

		if store == nil {
			t.Fatal("expected non-nil store")
		}
		if store.cap != DefaultHistoryCapacity {
			t.Errorf("expected capacity %d, got %d", DefaultHistoryCapacity, store.cap)
		}
		if store.version != "0.0.0" {
			t.Errorf("expected version 0.0.0, got %s", store.version)
		}
	})

	t.Run("creates store with custom config", func(t *testing.T) {
		store := NewStore(StoreConfig{HistoryCapacity: 5, Version: "1.2.3"}, time.Now())

		if store.cap != 5 {
			t.Errorf("expected capacity 5, got %d", store.cap)
		}
		if store.GetSystemStatus().Version != "1.2.3" {
			t.Errorf("expected version 1.2.3, got %s", store.GetSystemStatus().Version)
		}
	})

	t.Run("zero capacity uses default", func(t *testing.T) {
		store := NewStore(StoreConfig{}, time.Now())

		if store.cap != DefaultHistoryCapacity {
			t.Errorf("expected default capacity, got %d", store.cap)
		}
	})
}

func TestStore_RecordGeneration(t *testing.T) {
	t.Run("aggregates counts and averages", func(t *testing.T) {
		store := NewStore(DefaultStoreConfig(), time.Now())
		end := time.Now()

		store.RecordGeneration(GenerationRecord{ID: "1", Status: StatusSuccess, Wait: time.Second, Duration: 10 * time.Second, EndTime: end.Add(-time.Minute)})
		store.RecordGeneration(GenerationRecord{ID: "2", Status: StatusSuccess, Wait: 3 * time.Second, Duration: 20 * time.Second, EndTime: end})
		store.RecordGeneration(GenerationRecord{ID: "3", Status: StatusError, FailureKind: "input_conditioning", Wait: 2 * time.Second, Duration: 3 * time.Second})
		store.RecordGeneration(GenerationRecord{ID: "4", Status: StatusError, Duration: time.Second})

		m := store.GetGenerationMetrics()
		if m.TotalProcessed != 4 || m.TotalSuccess != 2 || m.TotalErrors != 2 {
			t.Errorf("counts = %d/%d/%d, want 4/2/2", m.TotalProcessed, m.TotalSuccess, m.TotalErrors)
		}
		if m.SuccessRate != 50 {
			t.Errorf("SuccessRate = %.1f, want 50", m.SuccessRate)
		}
		if m.AvgWait != 1500*time.Millisecond {
			t.Errorf("AvgWait = %v, want 1.5s", m.AvgWait)
		}
		if m.AvgDuration != 8500*time.Millisecond {
			t.Errorf("AvgDuration = %v, want 8.5s", m.AvgDuration)
		}
		if !m.LastGeneration.Equal(end) {
			t.Errorf("LastGeneration = %v, want %v", m.LastGeneration, end)
		}
		if m.ByFailure["input_conditioning"] != 1 || len(m.ByFailure) != 1 {
			t.Errorf("ByFailure = %v", m.ByFailure)
		}
	})

	t.Run("tracks per-style statistics", func(t *testing.T) {
		store := NewStore(DefaultStoreConfig(), time.Now())

		store.RecordGeneration(GenerationRecord{Style: "animated", Status: StatusSuccess, Duration: time.Second})
		store.RecordGeneration(GenerationRecord{Style: "animated", Status: StatusError, Duration: 3 * time.Second})
		store.RecordGeneration(GenerationRecord{Status: StatusSuccess, Duration: 4 * time.Second})

		m := store.GetGenerationMetrics()

		animated, ok := m.ByStyle["animated"]
		if !ok {
			t.Fatal("expected animated stats")
		}
		if animated.Count != 2 || animated.SuccessRate != 50 || animated.AvgDuration != 2*time.Second {
			t.Errorf("animated = %+v", animated)
		}

		none, ok := m.ByStyle[StyleNone]
		if !ok || none.Count != 1 || none.SuccessRate != 100 {
			t.Errorf("unstyled = %+v", none)
		}
	})

	t.Run("empty store has zero metrics", func(t *testing.T) {
		m := NewStore(DefaultStoreConfig(), time.Now()).GetGenerationMetrics()

		if m.TotalProcessed != 0 || m.SuccessRate != 0 || m.AvgDuration != 0 {
			t.Errorf("unexpected metrics %+v", m)
		}
		if m.ByStyle == nil {
			t.Error("ByStyle should be an empty map, not nil")
		}
	})
}

func TestStore_GetRecentGenerations(t *testing.T) {
	t.Run("returns empty slice when no records", func(t *testing.T) {
		store := NewStore(DefaultStoreConfig(), time.Now())

		if got := store.GetRecentGenerations(10); len(got) != 0 {
			t.Errorf("expected 0 records, got %d", len(got))
		}
	})

	t.Run("returns newest first", func(t *testing.T) {
		store := NewStore(DefaultStoreConfig(), time.Now())
		for i := 1; i <= 3; i++ {
			store.RecordGeneration(GenerationRecord{ID: fmt.Sprint(i), Status: StatusSuccess})
		}

		got := store.GetRecentGenerations(10)
		if len(got) != 3 {
			t.Fatalf("expected 3 records, got %d", len(got))
		}
		for i, want := range []string{"3", "2", "1"} {
			if got[i].ID != want {
				t.Errorf("record %d = %s, want %s", i, got[i].ID, want)
			}
		}
	})

	t.Run("ring keeps only the newest records", func(t *testing.T) {
		store := NewStore(StoreConfig{HistoryCapacity: 3}, time.Now())
		for i := 1; i <= 7; i++ {
			store.RecordGeneration(GenerationRecord{ID: fmt.Sprint(i), Status: StatusSuccess})
		}

		got := store.GetRecentGenerations(5)
		if len(got) != 3 {
			t.Fatalf("expected 3 records, got %d", len(got))
		}
		for i, want := range []string{"7", "6", "5"} {
			if got[i].ID != want {
				t.Errorf("record %d = %s, want %s", i, got[i].ID, want)
			}
		}

		if total := store.GetGenerationMetrics().TotalProcessed; total != 7 {
			t.Errorf("aggregates should cover evicted records, got %d", total)
		}
	})

	t.Run("limit smaller than size", func(t *testing.T) {
		store := NewStore(DefaultStoreConfig(), time.Now())
		for i := 1; i <= 5; i++ {
			store.RecordGeneration(GenerationRecord{ID: fmt.Sprint(i)})
		}

		got := store.GetRecentGenerations(2)
		if len(got) != 2 || got[0].ID != "5" || got[1].ID != "4" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("non-positive limit", func(t *testing.T) {
		store := NewStore(DefaultStoreConfig(), time.Now())
		store.RecordGeneration(GenerationRecord{ID: "1"})

		if got := store.GetRecentGenerations(0); len(got) != 0 {
			t.Errorf("expected empty, got %d", len(got))
		}
	})
}

func TestStore_GetSystemStatus(t *testing.T) {
	t.Run("uptime from start time", func(t *testing.T) {
		store := NewStore(DefaultStoreConfig(), time.Now().Add(-5*time.Minute))

		status := store.GetSystemStatus()
		if status.Uptime < 4*time.Minute || status.Uptime > 6*time.Minute {
			t.Errorf("expected uptime ~5min, got %v", status.Uptime)
		}
		if status.Health != SystemHealthRunning {
			t.Errorf("Health = %s", status.Health)
		}
	})

	t.Run("degraded after consecutive failures", func(t *testing.T) {
		store := NewStore(DefaultStoreConfig(), time.Now())

		for i := 0; i < DegradedAfterFailures; i++ {
			store.RecordGeneration(GenerationRecord{Status: StatusError})
		}
		if got := store.GetSystemStatus().Health; got != SystemHealthDegraded {
			t.Errorf("Health = %s, want %s", got, SystemHealthDegraded)
		}

		store.RecordGeneration(GenerationRecord{Status: StatusSuccess})
		if got := store.GetSystemStatus().Health; got != SystemHealthRunning {
			t.Errorf("Health after success = %s, want %s", got, SystemHealthRunning)
		}
	})
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore(StoreConfig{HistoryCapacity: 16}, time.Now())

	var wg sync.WaitGroup
	const writers, perWriter = 20, 50

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				store.RecordGeneration(GenerationRecord{ID: fmt.Sprintf("%d-%d", id, j), Status: StatusSuccess})
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.GetRecentGenerations(10)
				_ = store.GetGenerationMetrics()
				_ = store.GetSystemStatus()
			}
		}()
	}

	wg.Wait()

	if got := store.GetGenerationMetrics().TotalProcessed; got != writers*perWriter {
		t.Errorf("TotalProcessed = %d, want %d", got, writers*perWriter)
	}
	if got := len(store.GetRecentGenerations(100)); got != 16 {
		t.Errorf("ring size = %d, want 16", got)
	}
}
