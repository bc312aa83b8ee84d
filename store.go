package relay

import (
	"errors"
	"time"
)

var (
	ErrProfileNotFound = errors.New("relay: driver profile not found")
	ErrValueNotSet     = errors.New("relay: value not set")
)

// LapData is one completed lap's timing and validity data for one driver.
// Immutable once recorded.
type LapData struct {
	DriverID      string  `json:"driverId"`
	LapNumber     int     `json:"lapNumber"`
	LapTimeMs     int64   `json:"lapTimeMs"`
	IsValid       bool    `json:"isValid"`
	SectorTimesMs []int64 `json:"sectorTimesMs,omitempty"`
	Incidents     int     `json:"incidents"`
}

// SessionResult is the optional end-of-session classification for one
// driver.
type SessionResult struct {
	FinishPosition  int     `json:"finishPosition"`
	StartPosition   int     `json:"startPosition"`
	StrengthOfField int     `json:"strengthOfField"`
	RatingDelta     float64 `json:"ratingDelta"`
}

// SessionMetrics is the derived analytics record produced exactly once per
// (session, driver) pair. Recomputation replaces it wholesale; nothing in
// the relay mutates it after creation. Nil pointer fields persist as JSON
// nulls where the inputs required to derive them were unavailable.
type SessionMetrics struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	ProfileID string `json:"profileId"`
	DriverID  string `json:"driverId"`

	TotalLaps int `json:"totalLaps"`
	ValidLaps int `json:"validLaps"`

	BestLapMs   int64   `json:"bestLapMs"`
	MedianLapMs float64 `json:"medianLapMs"`
	MeanLapMs   float64 `json:"meanLapMs"`
	StdDevMs    float64 `json:"stdDevMs"`

	PacePercentile  *float64 `json:"pacePercentile"`
	GapToLeaderPct  *float64 `json:"gapToLeaderPct"`
	IncidentCount   int      `json:"incidentCount"`
	IncidentsPer100 *float64 `json:"incidentsPer100"`

	FinishPosition  *int `json:"finishPosition"`
	StartPosition   *int `json:"startPosition"`
	PositionsGained *int `json:"positionsGained"`

	PaceDropoffScore  *float64 `json:"paceDropoffScore"`
	TrafficTimeLossMs *int64   `json:"trafficTimeLossMs"`

	CreatedAt time.Time `json:"createdAt"`
}

// DriverProfile links a platform driver identifier to a persistent profile
// with rollup counters. UserID is set when the profile is claimed by a
// platform account.
type DriverProfile struct {
	ID         string `json:"id"`
	PlatformID string `json:"platformId"`
	UserID     string `json:"userId,omitempty"`

	DisplayName string `json:"displayName,omitempty"`

	TotalSessions  int `json:"totalSessions"`
	TotalLaps      int `json:"totalLaps"`
	TotalIncidents int `json:"totalIncidents"`
}

type LapStore interface {
	RecordLap(sessionID string, lap *LapData) error
	ListSessionLaps(sessionID string) ([]*LapData, error)
}

type MetricsStore interface {
	UpsertSessionMetrics(metrics *SessionMetrics) error
	FindSessionMetrics(sessionID, profileID string) (*SessionMetrics, error)
}

type ProfileStore interface {
	UpsertDriverProfile(profile *DriverProfile) error
	FindDriverProfileByPlatformID(platformID string) (*DriverProfile, error)
	IncrementProfileStats(profileID string, sessions, laps, incidents int) error
}

// RelayStore aggregates the external persistence collaborators used by the
// relay subsystem. Retry semantics belong to the implementations, not here.
type RelayStore interface {
	LapStore
	MetricsStore
	ProfileStore
}
