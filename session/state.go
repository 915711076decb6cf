package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ccc1994/Chaos/types"
)

// Status 会话生命周期状态。
type Status string

const (
	StatusActive       Status = "active"
	StatusAwaitingUser Status = "awaiting_user"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// StateFileName is the checkpoint file inside the state directory.
const StateFileName = "state.json"

// State is the persisted checkpoint. Field names are part of the
// on-disk format and stay stable across releases.
type State struct {
	CurrentTask  string `json:"current_task"`
	Status       Status `json:"status"`
	HistoryCount int    `json:"history_count"`
}

// Store reads and writes the checkpoint under a fixed state directory.
// Saves are atomic (temp file + rename); concurrent saves resolve to
// last-write-wins with no torn file ever visible.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates a store rooted at dir (e.g. ".ca").
func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dir:    dir,
		logger: logger.With(zap.String("component", "session")),
	}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, StateFileName)
}

// Save writes the checkpoint atomically.
func (s *Store) Save(state *State) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return types.NewError(types.ErrPersistenceFailed, "create state directory").WithCause(err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return types.NewError(types.ErrPersistenceFailed, "encode session state").WithCause(err)
	}

	tmp, err := os.CreateTemp(s.dir, StateFileName+".tmp-*")
	if err != nil {
		return types.NewError(types.ErrPersistenceFailed, "create temp state file").WithCause(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return types.NewError(types.ErrPersistenceFailed, "write session state").WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return types.NewError(types.ErrPersistenceFailed, "close temp state file").WithCause(err)
	}
	if err := os.Rename(tmpName, s.Path()); err != nil {
		os.Remove(tmpName)
		return types.NewError(types.ErrPersistenceFailed, "replace session state").WithCause(err)
	}

	s.logger.Debug("session state saved",
		zap.String("status", string(state.Status)),
		zap.Int("history_count", state.HistoryCount))
	return nil
}

// Load returns the checkpoint, or nil when it is absent or unreadable.
// A corrupt checkpoint is logged and discarded; a fresh session starts
// in its place.
func (s *Store) Load() *State {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("session state unreadable, starting fresh", zap.Error(err))
		}
		return nil
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("session state corrupt, starting fresh", zap.Error(err))
		return nil
	}
	return &state
}

// Clear removes the checkpoint file if present.
func (s *Store) Clear() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return types.NewError(types.ErrPersistenceFailed,
			fmt.Sprintf("remove %s", s.Path())).WithCause(err)
	}
	return nil
}
