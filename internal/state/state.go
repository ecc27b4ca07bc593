// Package state persists the tracker's snapshot and live-session aggregate as JSON files.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rewired-gh/archerstats/internal/models"
)

// PersistenceError is a failed read or write of a state file.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// FileStore keeps the snapshot and the live stats in two files. Writes go to a temporary
// file that is renamed over the target, so a crash never leaves a half-written file.
type FileStore struct {
	snapshotPath string
	livePath     string
}

// NewFileStore returns a store for the given snapshot and live stats files.
func NewFileStore(snapshotPath, livePath string) *FileStore {
	return &FileStore{snapshotPath: snapshotPath, livePath: livePath}
}

// LoadSnapshot returns nil when no snapshot has been written yet.
func (s *FileStore) LoadSnapshot() (*models.CumulativeStats, error) {
	var snap models.CumulativeStats
	ok, err := readJSON(s.snapshotPath, &snap)
	if err != nil || !ok {
		return nil, err
	}
	return &snap, nil
}

// SaveSnapshot atomically replaces the snapshot file.
func (s *FileStore) SaveSnapshot(snap models.CumulativeStats) error {
	return writeJSON(s.snapshotPath, snap)
}

// LoadLiveStats returns nil when no session has been persisted.
func (s *FileStore) LoadLiveStats() (*models.LiveStats, error) {
	var live models.LiveStats
	ok, err := readJSON(s.livePath, &live)
	if err != nil || !ok {
		return nil, err
	}
	if live.MatchDetails == nil {
		live.MatchDetails = []models.MatchRecord{}
	}
	return &live, nil
}

// SaveLiveStats atomically replaces the live stats file.
func (s *FileStore) SaveLiveStats(live models.LiveStats) error {
	return writeJSON(s.livePath, live)
}

// ResetLiveStats removes the persisted session.
func (s *FileStore) ResetLiveStats() error {
	if err := os.Remove(s.livePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &PersistenceError{Op: "remove", Path: s.livePath, Err: err}
	}
	return nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &PersistenceError{Op: "read", Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, &PersistenceError{Op: "decode", Path: path, Err: err}
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &PersistenceError{Op: "encode", Path: path, Err: err}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Op: "create directory for", Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return &PersistenceError{Op: "sync", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &PersistenceError{Op: "replace", Path: path, Err: err}
	}
	return nil
}
