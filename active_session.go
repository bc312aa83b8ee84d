package relay

import (
	"time"

	"github.com/SingSongScreamAlong/Ok-Box-Box-sub003/pkg/protocol"
)

// ActiveSession is the authoritative in-memory record for one live
// practice, qualifying or race session. It exists in the registry from the
// moment valid session metadata arrives until an explicit end event or a
// reaper eviction removes it. All mutation happens under the registry lock.
type ActiveSession struct {
	SessionID        string               `json:"SessionID"`
	TrackName        string               `json:"TrackName"`
	TrackConfig      string               `json:"TrackConfig"`
	SessionType      protocol.SessionType `json:"SessionType"`
	Category         string               `json:"Category"`
	MultiClass       bool                 `json:"MultiClass"`
	CautionsEnabled  bool                 `json:"CautionsEnabled"`
	DriverSwap       bool                 `json:"DriverSwap"`
	MaxDrivers       int                  `json:"MaxDrivers"`
	BroadcastDelayMs int                  `json:"BroadcastDelayMs"`
	LeagueID         string               `json:"LeagueID"`
	Weather          *protocol.Weather    `json:"Weather,omitempty"`

	// Drivers maps driver identifier to live per-driver state. Driver
	// state is owned exclusively by its parent session.
	Drivers map[string]*DriverSessionState `json:"Drivers"`

	CreatedAt  time.Time `json:"CreatedAt"`
	LastUpdate time.Time `json:"LastUpdate"`
}

func NewActiveSession(meta *protocol.SessionMetadata) *ActiveSession {
	now := time.Now()

	return &ActiveSession{
		SessionID:        meta.SessionID,
		TrackName:        meta.TrackName,
		TrackConfig:      meta.TrackConfig,
		SessionType:      meta.SessionType,
		Category:         meta.Category,
		MultiClass:       meta.MultiClass,
		CautionsEnabled:  meta.CautionsEnabled,
		DriverSwap:       meta.DriverSwap,
		MaxDrivers:       meta.MaxDrivers,
		BroadcastDelayMs: meta.BroadcastDelayMs,
		LeagueID:         meta.LeagueID,
		Weather:          meta.Weather,
		Drivers:          make(map[string]*DriverSessionState),
		CreatedAt:        now,
		LastUpdate:       now,
	}
}

// DriverSessionState is the live state of one driver within a session.
type DriverSessionState struct {
	DriverID      string  `json:"DriverID"`
	DriverName    string  `json:"DriverName"`
	CarNumber     string  `json:"CarNumber"`
	Position      int     `json:"Position"`
	LapNumber     int     `json:"LapNumber"`
	LapDistPct    float64 `json:"LapDistPct"`
	Speed         float64 `json:"Speed"`
	LastLapTimeMs int64   `json:"LastLapTimeMs"`
	BestLapTimeMs int64   `json:"BestLapTimeMs"`
	IncidentCount int     `json:"IncidentCount"`

	Strategy *StrategySnapshot `json:"Strategy,omitempty"`

	LastSeen time.Time `json:"LastSeen"`
}

// StrategySnapshot is the low-frequency strategy state reported for a car:
// fuel, four-corner tire wear, damage and pit lane occupancy.
type StrategySnapshot struct {
	Fuel   protocol.FuelState   `json:"Fuel"`
	Tires  protocol.TireWear    `json:"Tires"`
	Damage protocol.DamageState `json:"Damage"`
	Pit    protocol.PitState    `json:"Pit"`
}

func (s *ActiveSession) applyDriverEntry(entry protocol.DriverEntry) {
	driver, ok := s.Drivers[entry.DriverID]

	if !ok {
		driver = &DriverSessionState{DriverID: entry.DriverID}
		s.Drivers[entry.DriverID] = driver
	}

	if entry.DriverName != "" {
		driver.DriverName = entry.DriverName
	}

	if entry.CarNumber != "" {
		driver.CarNumber = entry.CarNumber
	}

	driver.Position = entry.Position
	driver.LapNumber = entry.LapNumber
	driver.LapDistPct = entry.LapDistPct
	driver.Speed = entry.Speed

	if entry.LastLapTimeMs > 0 {
		driver.LastLapTimeMs = entry.LastLapTimeMs
	}

	if entry.BestLapTimeMs > 0 && (driver.BestLapTimeMs == 0 || entry.BestLapTimeMs < driver.BestLapTimeMs) {
		driver.BestLapTimeMs = entry.BestLapTimeMs
	}

	driver.IncidentCount = entry.IncidentCount
	driver.LastSeen = time.Now()
}

func (s *ActiveSession) applyCarStrategy(car protocol.CarStrategy) {
	driver, ok := s.Drivers[car.DriverID]

	if !ok {
		driver = &DriverSessionState{DriverID: car.DriverID}
		s.Drivers[car.DriverID] = driver
	}

	driver.Strategy = &StrategySnapshot{
		Fuel:   car.Fuel,
		Tires:  car.Tires,
		Damage: car.Damage,
		Pit:    car.Pit,
	}

	driver.LastSeen = time.Now()
}
