package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Settings are the runtime-tunable values read at generation and ingestion
// time. The generation backend is fixed at startup and reported read-only.
type Settings struct {
	Backend      string  `json:"backend"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	LookbackDays int     `json:"lookback_days"`
}

// Patch carries a partial settings update. Nil fields are left unchanged.
type Patch struct {
	Model        *string  `json:"model"`
	Temperature  *float64 `json:"temperature"`
	LookbackDays *int     `json:"lookback_days"`
}

// Store holds the current settings and persists them as JSON next to the
// index. It is passed explicitly into every handler that needs it; there is
// no package-level state.
type Store struct {
	mu   sync.RWMutex
	path string
	cur  Settings
}

// NewStore loads persisted settings from dir, falling back to defaults when
// no file exists yet.
func NewStore(dir string, defaults Settings) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}

	s := &Store{
		path: filepath.Join(dir, "settings.json"),
		cur:  defaults,
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var saved Settings
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	// Backend follows process config, not the saved file.
	saved.Backend = defaults.Backend
	if saved.Model == "" {
		saved.Model = defaults.Model
	}
	if saved.LookbackDays <= 0 {
		saved.LookbackDays = defaults.LookbackDays
	}
	saved.Temperature = clampTemperature(saved.Temperature)
	s.cur = saved
	return s, nil
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies a patch, persists the result and returns the new settings
// plus the names of the fields that changed.
func (s *Store) Update(p Patch) (Settings, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := []string{}
	next := s.cur

	if p.Model != nil && *p.Model != "" {
		next.Model = *p.Model
		updated = append(updated, "model")
	}
	if p.Temperature != nil {
		next.Temperature = clampTemperature(*p.Temperature)
		updated = append(updated, "temperature")
	}
	if p.LookbackDays != nil && *p.LookbackDays > 0 {
		next.LookbackDays = *p.LookbackDays
		updated = append(updated, "lookback_days")
	}

	if len(updated) == 0 {
		return s.cur, updated, nil
	}

	if err := s.save(next); err != nil {
		return s.cur, nil, err
	}
	s.cur = next
	return next, updated, nil
}

func (s *Store) save(settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func clampTemperature(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
