package config

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prepdeck/label-engine/internal/fault"
)

// Store holds printer configurations, persisted as JSON on disk. Save is the
// only mutation path; readers always receive copies, never live records.
type Store struct {
	filePath string
	data     map[string]*PrinterConfig
	mu       sync.RWMutex
}

// NewStore creates a Store and loads any persisted configuration
func NewStore(filePath string) (*Store, error) {
	s := &Store{
		filePath: filePath,
		data:     make(map[string]*PrinterConfig),
	}

	if err := s.load(); err != nil {
		// A missing file is fine - it is created on first save
		if !os.IsNotExist(err) {
			return nil, fault.Persistencef(err, "failed to load printer config")
		}
	}

	return s, nil
}

// Save validates and stores a printer configuration, replacing any existing
// record with the same id atomically. Setting isDefault clears the flag on
// every other printer of the same station.
func (s *Store) Save(cfg PrinterConfig) (*PrinterConfig, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
		cfg.CreatedAt = time.Now()
	}
	cfg.UpdatedAt = time.Now()
	if cfg.Status == "" {
		cfg.Status = StatusReady
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = cfg.UpdatedAt
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.IsDefault {
		for _, other := range s.data {
			if other.ID != cfg.ID && other.StationID == cfg.StationID {
				other.IsDefault = false
			}
		}
	}

	stored := cfg
	s.data[cfg.ID] = &stored

	if err := s.persist(); err != nil {
		return nil, err
	}

	result := stored
	return &result, nil
}

// Get returns a copy of the configuration with the given id
func (s *Store) Get(id string) *PrinterConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, exists := s.data[id]
	if !exists {
		return nil
	}
	cfgCopy := *cfg
	return &cfgCopy
}

// List returns copies of all configurations for a station; an empty station
// id returns every printer
func (s *Store) List(stationID string) []*PrinterConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*PrinterConfig, 0, len(s.data))
	for _, cfg := range s.data {
		if stationID != "" && cfg.StationID != stationID {
			continue
		}
		cfgCopy := *cfg
		result = append(result, &cfgCopy)
	}
	return result
}

// Default returns the default printer for a station, or nil if none is set
func (s *Store) Default(stationID string) *PrinterConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cfg := range s.data {
		if cfg.StationID == stationID && cfg.IsDefault {
			cfgCopy := *cfg
			return &cfgCopy
		}
	}
	return nil
}

// SetDefault marks one printer as the station default and clears all others
func (s *Store) SetDefault(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, exists := s.data[id]
	if !exists {
		return fault.Configurationf("printer not found: %s", id)
	}

	for _, cfg := range s.data {
		if cfg.StationID == target.StationID {
			cfg.IsDefault = cfg.ID == id
		}
	}
	target.UpdatedAt = time.Now()

	return s.persist()
}

// SetStatus updates the operational status of a printer
func (s *Store) SetStatus(id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, exists := s.data[id]
	if !exists {
		return fault.Configurationf("printer not found: %s", id)
	}

	cfg.Status = status
	cfg.UpdatedAt = time.Now()

	return s.persist()
}

// Remove deletes a printer configuration
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[id]; !exists {
		return fault.Configurationf("printer not found: %s", id)
	}

	delete(s.data, id)
	return s.persist()
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &s.data)
}

func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fault.Persistencef(err, "failed to encode printer config")
	}

	if err := os.WriteFile(s.filePath, data, 0644); err != nil {
		return fault.Persistencef(err, "failed to write printer config")
	}
	return nil
}
