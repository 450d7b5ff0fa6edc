// Package reportstore hands completed diligence reports off to storage and
// returns an opaque key the caller retains. The engine owns no persistent
// state beyond this handoff.
package reportstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fathomlabs/diligence/internal/pipeline"
)

// Document is the persisted form of a completed run.
type Document struct {
	Key       string              `json:"key"`
	SavedAt   time.Time           `json:"savedAt"`
	Report    pipeline.Report     `json:"report"`
	Logs      []pipeline.LogEntry `json:"logs"`
}

// Store persists report documents as JSON files under a directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Save persists a completed report with its log trail and returns the
// opaque storage key.
func (s *Store) Save(report pipeline.Report, logs []pipeline.LogEntry) (string, error) {
	key := uuid.NewString()
	doc := Document{
		Key:     key,
		SavedAt: time.Now(),
		Report:  report,
		Logs:    logs,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	path := filepath.Join(s.dir, key+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return key, nil
}

// Load reads a previously saved report document by key.
func (s *Store) Load(key string) (*Document, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	path := filepath.Join(s.dir, key+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", key, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", key, err)
	}
	return &doc, nil
}

// validateKey rejects keys that could escape the store directory.
func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("invalid report key %q", key)
	}
	return nil
}
