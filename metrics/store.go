package metrics

import (
	"sync"
	"time"
)

// DefaultHistoryCapacity is the number of generations kept when the
// configured capacity is not positive.
const DefaultHistoryCapacity = 100

// DegradedAfterFailures is the number of consecutive failed generations
// after which the service reports itself degraded.
const DegradedAfterFailures = 3

// Store is an in-memory Collector. Recent records live in a fixed-size ring;
// aggregates cover every generation since the store was created.
//
//	store := NewStore(DefaultStoreConfig(), time.Now())
//	store.RecordGeneration(rec)
//	m := store.GetGenerationMetrics()
type Store struct {
	mu sync.RWMutex

	history []GenerationRecord
	cap     int
	head    int
	size    int

	total         int64
	success       int64
	errors        int64
	totalWait     time.Duration
	totalDuration time.Duration
	lastEnd       time.Time
	byStyle       map[string]*styleStats
	byFailure     map[string]int64

	// consecutive failures, reset by any success
	failStreak int

	startTime time.Time
	version   string
}

type styleStats struct {
	count         int64
	successCount  int64
	totalDuration time.Duration
}

// StoreConfig configures the Store.
type StoreConfig struct {
	// HistoryCapacity is the max number of records to retain
	HistoryCapacity int
	// Version is reported by GetSystemStatus
	Version string
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		HistoryCapacity: DefaultHistoryCapacity,
		Version:         "0.0.0",
	}
}

// NewStore creates a Store. The startTime is used to calculate uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	capacity := config.HistoryCapacity
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}

	return &Store{
		history:   make([]GenerationRecord, capacity),
		cap:       capacity,
		byStyle:   make(map[string]*styleStats),
		byFailure: make(map[string]int64),
		startTime: startTime,
		version:   config.Version,
	}
}

// RecordGeneration adds a finished generation to the ring and the aggregates.
func (s *Store) RecordGeneration(rec GenerationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = rec
	s.head = (s.head + 1) % s.cap
	if s.size < s.cap {
		s.size++
	}

	s.total++
	s.totalWait += rec.Wait
	s.totalDuration += rec.Duration
	if rec.EndTime.After(s.lastEnd) {
		s.lastEnd = rec.EndTime
	}

	ok := rec.Status == StatusSuccess
	if ok {
		s.success++
		s.failStreak = 0
	} else {
		s.errors++
		s.failStreak++
		if rec.FailureKind != "" {
			s.byFailure[rec.FailureKind]++
		}
	}

	style := rec.Style
	if style == "" {
		style = StyleNone
	}
	stats, found := s.byStyle[style]
	if !found {
		stats = &styleStats{}
		s.byStyle[style] = stats
	}
	stats.count++
	if ok {
		stats.successCount++
	}
	stats.totalDuration += rec.Duration
}

// GetGenerationMetrics returns aggregated statistics.
func (s *Store) GetGenerationMetrics() GenerationMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := GenerationMetrics{
		TotalProcessed: s.total,
		TotalSuccess:   s.success,
		TotalErrors:    s.errors,
		LastGeneration: s.lastEnd,
		ByStyle:        make(map[string]*StyleMetrics, len(s.byStyle)),
		ByFailure:      make(map[string]int64, len(s.byFailure)),
	}

	if s.total > 0 {
		m.SuccessRate = percent(s.success, s.total)
		m.AvgWait = s.totalWait / time.Duration(s.total)
		m.AvgDuration = s.totalDuration / time.Duration(s.total)
	}

	for style, stats := range s.byStyle {
		m.ByStyle[style] = &StyleMetrics{
			Count:       stats.count,
			SuccessRate: percent(stats.successCount, stats.count),
			AvgDuration: stats.totalDuration / time.Duration(stats.count),
		}
	}
	for kind, n := range s.byFailure {
		m.ByFailure[kind] = n
	}

	return m
}

// GetRecentGenerations returns up to limit records, newest first.
func (s *Store) GetRecentGenerations(limit int) []GenerationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.size == 0 {
		return []GenerationRecord{}
	}
	if limit > s.size {
		limit = s.size
	}

	result := make([]GenerationRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.head - 1 - i + s.cap) % s.cap
		result[i] = s.history[idx]
	}
	return result
}

// GetSystemStatus reports degraded after DegradedAfterFailures consecutive
// failed generations and running otherwise.
func (s *Store) GetSystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := SystemHealthRunning
	if s.failStreak >= DegradedAfterFailures {
		health = SystemHealthDegraded
	}

	return SystemStatus{
		Health:    health,
		Version:   s.version,
		Uptime:    time.Since(s.startTime),
		LastCheck: time.Now(),
	}
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

var _ Collector = (*Store)(nil)
