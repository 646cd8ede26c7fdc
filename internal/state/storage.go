package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrCorrupt is returned by Retrieve when the persisted state cannot be decoded.
var ErrCorrupt = errors.New("state: corrupt storage")

// Storage persists a flat string mapping durably.
type Storage interface {
	// Retrieve returns the persisted mapping. A missing backing record is not
	// an error and yields an empty mapping.
	Retrieve(ctx context.Context) (map[string]string, error)
	// Save replaces the persisted mapping with state.
	Save(ctx context.Context, state map[string]string) error
}

// JSONFileStorage stores state as a flat JSON object in a single file.
type JSONFileStorage struct {
	path   string
	logger *slog.Logger
}

// NewJSONFileStorage returns a storage backed by the file at path. The file
// is created on the first Save.
func NewJSONFileStorage(path string, logger *slog.Logger) *JSONFileStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONFileStorage{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *JSONFileStorage) Path() string { return s.path }

// Retrieve decodes the state file. A missing file yields an empty mapping;
// undecodable content yields ErrCorrupt.
func (s *JSONFileStorage) Retrieve(_ context.Context) (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading state file %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return map[string]string{}, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("state file is not valid JSON", "path", s.path, "error", err)
		return map[string]string{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out, nil
}

// Save writes state to a temporary file next to the target, syncs it and
// renames it over the state file.
func (s *JSONFileStorage) Save(_ context.Context, state map[string]string) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing state file %s: %w", s.path, err)
	}
	return nil
}
