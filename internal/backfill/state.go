package backfill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State remembers which calendar UIDs were already imported so a feed can
// be re-imported without duplicating events.
type State struct {
	StartedAt      time.Time         `json:"started_at"`
	LastImportedAt time.Time         `json:"last_imported_at"`
	Imported       map[string]string `json:"imported"` // UID -> event id
	Errors         []string          `json:"errors,omitempty"`

	path string
}

// LoadState reads the state file at path. A missing file yields an empty
// state; an empty path yields one that is never saved.
func LoadState(path string) (*State, error) {
	s := &State{StartedAt: time.Now().UTC(), Imported: map[string]string{}, path: expandHome(path)}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if s.Imported == nil {
		s.Imported = map[string]string{}
	}
	return s, nil
}

func (s *State) Save() error {
	if s.path == "" {
		return nil
	}
	s.LastImportedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *State) IsImported(uid string) bool {
	_, ok := s.Imported[uid]
	return ok
}

func (s *State) MarkImported(uid, eventID string) {
	s.Imported[uid] = eventID
}

func (s *State) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
