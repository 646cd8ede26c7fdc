// Package state keeps the replication watermark across process restarts.
//
// The store assumes a single writer: one moviesync process per state file.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
)

// DefaultWatermark is returned for keys that were never persisted.
const DefaultWatermark = "1970-01-01"

// State reads and writes named values on top of a Storage. Writes merge into
// the persisted mapping so unrelated keys are preserved.
type State struct {
	mu      sync.Mutex
	storage Storage
	logger  *slog.Logger
}

// New wraps storage. If logger is nil, slog.Default is used.
func New(storage Storage, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{storage: storage, logger: logger}
}

// Get returns the value stored under key or DefaultWatermark. Missing,
// corrupt and unreadable storage all degrade to the default.
func (s *State) Get(ctx context.Context, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.storage.Retrieve(ctx)
	if err != nil {
		s.logger.Warn("state unavailable, using default", "key", key, "default", DefaultWatermark, "error", err)
		return DefaultWatermark
	}
	if v, ok := current[key]; ok && v != "" {
		return v
	}
	return DefaultWatermark
}

// Set persists value under key, keeping every other key. A corrupt store is
// replaced; an unreadable one is an error so no keys are silently lost.
func (s *State) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return err
	}
	current[key] = value
	if err := s.storage.Save(ctx, current); err != nil {
		return fmt.Errorf("saving state %s: %w", key, err)
	}
	return nil
}

// Reset removes key so the next Get returns DefaultWatermark.
func (s *State) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := current[key]; !ok {
		return nil
	}
	delete(current, key)
	if err := s.storage.Save(ctx, current); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

// All returns a copy of every persisted key.
func (s *State) All(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.storage.Retrieve(ctx)
	if err != nil {
		return nil, err
	}
	return maps.Clone(current), nil
}

func (s *State) load(ctx context.Context) (map[string]string, error) {
	current, err := s.storage.Retrieve(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrCorrupt):
		s.logger.Warn("overwriting corrupt state", "error", err)
		current = map[string]string{}
	default:
		return nil, fmt.Errorf("reading state before write: %w", err)
	}
	if current == nil {
		current = map[string]string{}
	}
	return current, nil
}
