// Package store persists per-device scheduler snapshots as JSON files so
// state survives restarts. Saves are atomic (tmp file + rename).
package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/thatsimonsguy/climate-scheduler/internal/model"
)

type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(deviceID string) string {
	return filepath.Join(s.dir, deviceID+".json")
}

func (s *Store) Load(deviceID string) (*model.SchedulerState, error) {
	file, err := os.Open(s.path(deviceID))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var state model.SchedulerState
	if err := json.NewDecoder(file).Decode(&state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) Save(deviceID string, state model.SchedulerState) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}

	tmpPath := s.path(deviceID) + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(state); err != nil {
		file.Close()
		return err
	}
	file.Sync()
	file.Close()

	return os.Rename(tmpPath, s.path(deviceID))
}
