// Package state persists in-flight remediation records across restarts.
//
// The store is a single JSON object keyed "<resource_id>:<resource_type>".
// Every mutation rewrites the whole file atomically (write-temp + rename)
// under one mutex, so each controller transition is durable before it is
// acknowledged.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/catherinevee/policyguard/internal/logger"
)

// Record tracks one (resource, policy) grace period.
type Record struct {
	PolicyID       string    `json:"policy_id"`
	FirstViolation time.Time `json:"first_violation"`
	WarningsSent   []string  `json:"warnings_sent"`
}

// HasWarning reports whether the named warning was already emitted for
// this record.
func (r Record) HasWarning(name string) bool {
	for _, w := range r.WarningsSent {
		if w == name {
			return true
		}
	}
	return false
}

// Store is the durable map of remediation records.
type Store interface {
	Get(key string) (Record, bool)
	Put(key string, rec Record) error
	Delete(key string) error
	// DeleteWhere removes every record matching the predicate and
	// persists once. Returns the number of records removed.
	DeleteWhere(pred func(key string, rec Record) bool) (int, error)
	Len() int
}

// FileStore is the file-backed Store implementation. It is process-local;
// concurrent daemons sharing a file are unsupported.
type FileStore struct {
	path string
	log  logger.Logger

	mu      sync.Mutex
	records map[string]Record
}

// NewFileStore opens the store at path, loading any existing records.
// A missing or corrupt file starts the store empty.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &FileStore{
		path:    path,
		log:     logger.New("state_store"),
		records: make(map[string]Record),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		s.log.Warn("Failed to read state file, starting empty",
			logger.String("path", path), logger.Error(err))
		return s, nil
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		s.log.Warn("Corrupt state file, starting empty",
			logger.String("path", path), logger.Error(err))
		s.records = make(map[string]Record)
	}
	return s, nil
}

// Get returns the record for a key.
func (s *FileStore) Get(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Put stores a record and persists the map.
func (s *FileStore) Put(key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.FirstViolation = rec.FirstViolation.UTC()
	if rec.WarningsSent == nil {
		rec.WarningsSent = []string{}
	}
	s.records[key] = rec
	return s.save()
}

// Delete removes a record and persists the map. Deleting an absent key is
// a no-op.
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; !ok {
		return nil
	}
	delete(s.records, key)
	return s.save()
}

// DeleteWhere removes every record matching the predicate.
func (s *FileStore) DeleteWhere(pred func(key string, rec Record) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if pred(key, rec) {
			delete(s.records, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.save()
}

// Len returns the number of records.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// save rewrites the state file. Callers hold the mutex.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
