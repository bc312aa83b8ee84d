package relay

import (
	"fmt"
	"sync"
)

// memoryStore is an in-memory RelayStore used across the package tests.
type memoryStore struct {
	mu sync.Mutex

	laps     map[string][]*LapData
	metrics  map[string]*SessionMetrics
	profiles map[string]*DriverProfile

	failProfileLookup map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		laps:              make(map[string][]*LapData),
		metrics:           make(map[string]*SessionMetrics),
		profiles:          make(map[string]*DriverProfile),
		failProfileLookup: make(map[string]bool),
	}
}

func (m *memoryStore) RecordLap(sessionID string, lap *LapData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.laps[sessionID] = append(m.laps[sessionID], lap)

	return nil
}

func (m *memoryStore) ListSessionLaps(sessionID string) ([]*LapData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*LapData(nil), m.laps[sessionID]...), nil
}

func (m *memoryStore) UpsertSessionMetrics(metrics *SessionMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics[metrics.SessionID+"/"+metrics.ProfileID] = metrics

	return nil
}

func (m *memoryStore) FindSessionMetrics(sessionID, profileID string) (*SessionMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics, ok := m.metrics[sessionID+"/"+profileID]

	if !ok {
		return nil, ErrValueNotSet
	}

	return metrics, nil
}

func (m *memoryStore) UpsertDriverProfile(profile *DriverProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.profiles[profile.PlatformID] = profile

	return nil
}

func (m *memoryStore) FindDriverProfileByPlatformID(platformID string) (*DriverProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failProfileLookup[platformID] {
		return nil, fmt.Errorf("profile store unavailable")
	}

	profile, ok := m.profiles[platformID]

	if !ok {
		return nil, ErrProfileNotFound
	}

	return profile, nil
}

func (m *memoryStore) IncrementProfileStats(profileID string, sessions, laps, incidents int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, profile := range m.profiles {
		if profile.ID == profileID {
			profile.TotalSessions += sessions
			profile.TotalLaps += laps
			profile.TotalIncidents += incidents

			return nil
		}
	}

	return ErrProfileNotFound
}

func (m *memoryStore) metricsCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.metrics)
}
