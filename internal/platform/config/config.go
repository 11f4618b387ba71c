// Package config loads and hot-reloads orchestrator tunables from a YAML
// file, following the nebula package's fsnotify watch pattern.
package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Tunables holds the orchestrator parameters read from the YAML file. Zero
// values are never valid; Defaults() / normalize() fill in anything the YAML
// file omits. ReadinessThreshold and CycleProbeDepth are parsed but not read
// elsewhere: readiness uses model.ReadinessThreshold and the cycle probe uses
// graph.MaxProbeDepth. ConflictConfidence is read once at startup, so a
// reload does not change it.
type Tunables struct {
	HeartbeatTimeout    time.Duration `yaml:"heartbeat_timeout"`
	RetryMaxAttempts    int           `yaml:"retry_max_attempts"`
	RetryBaseDelay      time.Duration `yaml:"retry_base_delay"`
	ReadinessThreshold  float64       `yaml:"readiness_threshold"`
	ConcurrencyCap      int           `yaml:"concurrency_cap"`
	ConflictConfidence  float64       `yaml:"conflict_confidence_threshold"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
	CycleProbeDepth     int           `yaml:"cycle_probe_depth"`
}

// Defaults returns the tunables the orchestrator ships with absent a config
// file, matching the values named in the scheduling and readiness rules.
func Defaults() Tunables {
	return Tunables{
		HeartbeatTimeout:    5 * time.Minute,
		RetryMaxAttempts:    2,
		RetryBaseDelay:      2 * time.Second,
		ReadinessThreshold:  70.0,
		ConcurrencyCap:      8,
		ConflictConfidence:  0.6,
		MaintenanceInterval: time.Minute,
		CycleProbeDepth:     20,
	}
}

func (t *Tunables) normalize() {
	d := Defaults()
	if t.HeartbeatTimeout <= 0 {
		t.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if t.RetryMaxAttempts <= 0 {
		t.RetryMaxAttempts = d.RetryMaxAttempts
	}
	if t.RetryBaseDelay <= 0 {
		t.RetryBaseDelay = d.RetryBaseDelay
	}
	if t.ReadinessThreshold <= 0 {
		t.ReadinessThreshold = d.ReadinessThreshold
	}
	if t.ConcurrencyCap <= 0 {
		t.ConcurrencyCap = d.ConcurrencyCap
	}
	if t.ConflictConfidence <= 0 {
		t.ConflictConfidence = d.ConflictConfidence
	}
	if t.MaintenanceInterval <= 0 {
		t.MaintenanceInterval = d.MaintenanceInterval
	}
	if t.CycleProbeDepth <= 0 {
		t.CycleProbeDepth = d.CycleProbeDepth
	}
}

// Store holds the live tunables and lets readers snapshot them cheaply while
// Watch swaps in a freshly parsed copy on file change.
type Store struct {
	mu   sync.RWMutex
	cur  Tunables
	path string
}

// NewStore loads path once and returns a Store seeded with its contents (or
// defaults if path is empty / missing).
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, cur: Defaults()}
	if path == "" {
		return s, nil
	}
	t, err := load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	s.cur = t
	return s, nil
}

func load(path string) (Tunables, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tunables{}, err
	}
	t := Defaults()
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tunables{}, err
	}
	t.normalize()
	return t, nil
}

// Get returns a copy of the current tunables.
func (s *Store) Get() Tunables {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Store) set(t Tunables) {
	s.mu.Lock()
	s.cur = t
	s.mu.Unlock()
}
