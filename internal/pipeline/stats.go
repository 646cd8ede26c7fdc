package pipeline

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds driver counters. It is safe to read while the driver runs.
type Stats struct {
	cycles       atomic.Int64
	batches      atomic.Int64
	extracted    atomic.Int64
	transformed  atomic.Int64
	skipped      atomic.Int64
	loaded       atomic.Int64
	loadFailures atomic.Int64
	errors       atomic.Int64

	mu          sync.RWMutex
	watermark   string
	lastError   string
	lastBatchAt time.Time
}

// Cycles returns the number of RunOnce calls.
func (s *Stats) Cycles() int64 { return s.cycles.Load() }

// Batches returns the number of non-empty cycles that committed a watermark.
func (s *Stats) Batches() int64 { return s.batches.Load() }

// Extracted returns the number of change records read from the source.
func (s *Stats) Extracted() int64 { return s.extracted.Load() }

// Transformed returns the number of records that became documents.
func (s *Stats) Transformed() int64 { return s.transformed.Load() }

// Skipped returns the number of records rejected by validation.
func (s *Stats) Skipped() int64 { return s.skipped.Load() }

// Loaded returns the number of documents the index accepted.
func (s *Stats) Loaded() int64 { return s.loaded.Load() }

// LoadFailures returns the number of documents the index rejected.
func (s *Stats) LoadFailures() int64 { return s.loadFailures.Load() }

// Errors returns the number of failed cycles.
func (s *Stats) Errors() int64 { return s.errors.Load() }

// Watermark returns the watermark most recently read or committed.
func (s *Stats) Watermark() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark
}

// LastError returns the message of the most recent failed cycle.
func (s *Stats) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

func (s *Stats) setWatermark(w string) {
	s.mu.Lock()
	s.watermark = w
	s.mu.Unlock()
}

func (s *Stats) recordBatch(watermark string, at time.Time) {
	s.batches.Add(1)
	s.mu.Lock()
	s.watermark = watermark
	s.lastBatchAt = at
	s.mu.Unlock()
}

func (s *Stats) recordError(err error) {
	s.errors.Add(1)
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

// LogValue implements slog.LogValuer for structured logging.
func (s *Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("cycles", s.Cycles()),
		slog.Int64("extracted", s.Extracted()),
		slog.Int64("transformed", s.Transformed()),
		slog.Int64("skipped", s.Skipped()),
		slog.Int64("loaded", s.Loaded()),
		slog.Int64("load_failures", s.LoadFailures()),
		slog.Int64("errors", s.Errors()),
		slog.String("watermark", s.Watermark()),
	)
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Cycles       int64     `json:"cycles"`
	Batches      int64     `json:"batches"`
	Extracted    int64     `json:"extracted"`
	Transformed  int64     `json:"transformed"`
	Skipped      int64     `json:"skipped"`
	Loaded       int64     `json:"loaded"`
	LoadFailures int64     `json:"load_failures"`
	Errors       int64     `json:"errors"`
	Watermark    string    `json:"watermark"`
	LastError    string    `json:"last_error,omitempty"`
	LastBatchAt  time.Time `json:"last_batch_at,omitzero"`
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Cycles:       s.cycles.Load(),
		Batches:      s.batches.Load(),
		Extracted:    s.extracted.Load(),
		Transformed:  s.transformed.Load(),
		Skipped:      s.skipped.Load(),
		Loaded:       s.loaded.Load(),
		LoadFailures: s.loadFailures.Load(),
		Errors:       s.errors.Load(),
		Watermark:    s.watermark,
		LastError:    s.lastError,
		LastBatchAt:  s.lastBatchAt,
	}
}

// MarshalJSON implements json.Marshaler.
func (s *Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}
