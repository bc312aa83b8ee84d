package protocol

// Type identifies a relay message on the wire.
type Type string

const (
	// Receive
	TypeSessionMetadata Type = "session_metadata"
	TypeTelemetry       Type = "telemetry"
	TypeStrategyUpdate  Type = "strategy_update"
	TypeLapCompleted    Type = "lap_completed"
	TypeRaceEvent       Type = "race_event"
	TypeIncident        Type = "incident"
	TypeSessionEnd      Type = "session_end"
	TypeRelayRegister   Type = "relay:register"

	// Send
	TypeAck           Type = "ack"
	TypeSessionActive Type = "session:active"
	TypeSessionEnded  Type = "session:ended"
	TypeRelayViewers  Type = "relay:viewers"
)

const SchemaVersion = "v1"

type Message interface {
	MessageType() Type
	Session() string
}

// Envelope carries the fields common to every inbound relay message.
type Envelope struct {
	Type          string `json:"type"`
	SessionID     string `json:"sessionId"`
	Timestamp     int64  `json:"timestamp"`
	SchemaVersion string `json:"schemaVersion"`
}

func (e Envelope) Session() string {
	return e.SessionID
}

type SessionType string

const (
	SessionTypePractice   SessionType = "practice"
	SessionTypeQualifying SessionType = "qualifying"
	SessionTypeRace       SessionType = "race"
)

func (s SessionType) Valid() bool {
	switch s {
	case SessionTypePractice, SessionTypeQualifying, SessionTypeRace:
		return true
	default:
		return false
	}
}

type Weather struct {
	AmbientTemp   float64 `json:"ambientTemp"`
	TrackTemp     float64 `json:"trackTemp"`
	Precipitation float64 `json:"precipitation"`
	TrackState    string  `json:"trackState"`
}

type SessionMetadata struct {
	Envelope

	TrackName        string      `json:"trackName"`
	TrackConfig      string      `json:"trackConfig,omitempty"`
	SessionType      SessionType `json:"sessionType"`
	Category         string      `json:"category,omitempty"`
	MultiClass       bool        `json:"multiClass"`
	CautionsEnabled  bool        `json:"cautionsEnabled"`
	DriverSwap       bool        `json:"driverSwap"`
	MaxDrivers       int         `json:"maxDrivers"`
	BroadcastDelayMs int         `json:"broadcastDelayMs"`
	Weather          *Weather    `json:"weather,omitempty"`
	LeagueID         string      `json:"leagueId,omitempty"`
}

func (SessionMetadata) MessageType() Type {
	return TypeSessionMetadata
}

// DriverEntry is the per-driver timing payload carried alongside car
// telemetry. LapDistPct is a normalised track position fraction (0-1).
type DriverEntry struct {
	DriverID      string  `json:"driverId"`
	DriverName    string  `json:"driverName"`
	CarNumber     string  `json:"carNumber"`
	Position      int     `json:"position"`
	LapNumber     int     `json:"lapNumber"`
	LapDistPct    float64 `json:"lapDistPct"`
	Speed         float64 `json:"speed"`
	LastLapTimeMs int64   `json:"lastLapTime"`
	BestLapTimeMs int64   `json:"bestLapTime"`
	GapToLeaderMs int64   `json:"gapToLeader"`
	IncidentCount int     `json:"incidentCount"`
}

type CarSnapshot struct {
	CarID         int     `json:"carId"`
	DriverID      string  `json:"driverId"`
	Speed         float64 `json:"speed"`
	Gear          int     `json:"gear"`
	Throttle      float64 `json:"throttle"`
	Brake         float64 `json:"brake"`
	Steering      float64 `json:"steering"`
	RPM           float64 `json:"rpm"`
	InPit         bool    `json:"inPit"`
	Lap           int     `json:"lap"`
	Position      int     `json:"position"`
	ClassPosition int     `json:"classPosition"`

	Pos struct {
		S float64 `json:"s"`
	} `json:"pos"`
}

type Telemetry struct {
	Envelope

	Drivers       []DriverEntry `json:"drivers"`
	Cars          []CarSnapshot `json:"cars,omitempty"`
	SessionTimeMs float64       `json:"sessionTimeMs,omitempty"`
}

func (Telemetry) MessageType() Type {
	return TypeTelemetry
}

type FuelState struct {
	Level    float64 `json:"level"`
	Pct      float64 `json:"pct"`
	PerLapKg float64 `json:"perLapKg"`
}

type TireWear struct {
	FL float64 `json:"fl"`
	FR float64 `json:"fr"`
	RL float64 `json:"rl"`
	RR float64 `json:"rr"`
}

type DamageState struct {
	Aero   float64 `json:"aero"`
	Engine float64 `json:"engine"`
}

type PitState struct {
	InPit bool `json:"inPit"`
	Stops int  `json:"stops"`
}

type CarStrategy struct {
	DriverID string      `json:"driverId"`
	Fuel     FuelState   `json:"fuel"`
	Tires    TireWear    `json:"tires"`
	Damage   DamageState `json:"damage"`
	Pit      PitState    `json:"pit"`
}

type StrategyUpdate struct {
	Envelope

	Cars []CarStrategy `json:"cars"`
}

func (StrategyUpdate) MessageType() Type {
	return TypeStrategyUpdate
}

type LapCompleted struct {
	Envelope

	DriverID      string  `json:"driverId"`
	LapNumber     int     `json:"lapNumber"`
	LapTimeMs     int64   `json:"lapTimeMs"`
	IsValid       bool    `json:"isValid"`
	SectorTimesMs []int64 `json:"sectorTimesMs,omitempty"`
	Incidents     int     `json:"incidents"`
}

func (LapCompleted) MessageType() Type {
	return TypeLapCompleted
}

type FlagState string

const (
	FlagGreen       FlagState = "green"
	FlagYellow      FlagState = "yellow"
	FlagLocalYellow FlagState = "localYellow"
	FlagCaution     FlagState = "caution"
	FlagRed         FlagState = "red"
	FlagRestart     FlagState = "restart"
	FlagCheckered   FlagState = "checkered"
	FlagWhite       FlagState = "white"
)

func (f FlagState) Valid() bool {
	switch f {
	case FlagGreen, FlagYellow, FlagLocalYellow, FlagCaution, FlagRed, FlagRestart, FlagCheckered, FlagWhite:
		return true
	default:
		return false
	}
}

type RaceEvent struct {
	Envelope

	FlagState     FlagState `json:"flagState"`
	Lap           int       `json:"lap"`
	TimeRemaining float64   `json:"timeRemaining"`
	SessionPhase  string    `json:"sessionPhase"`
}

func (RaceEvent) MessageType() Type {
	return TypeRaceEvent
}

type Incident struct {
	Envelope

	Cars              []int   `json:"cars"`
	LapNumber         int     `json:"lapNumber"`
	Corner            int     `json:"corner"`
	CornerName        string  `json:"cornerName,omitempty"`
	TrackPosition     float64 `json:"trackPosition"`
	Severity          string  `json:"severity"`
	DisciplineContext string  `json:"disciplineContext,omitempty"`
}

func (Incident) MessageType() Type {
	return TypeIncident
}

// DriverResult is the optional per-driver classification supplied with a
// session end.
type DriverResult struct {
	FinishPosition  int     `json:"finishPosition"`
	StartPosition   int     `json:"startPosition"`
	StrengthOfField int     `json:"strengthOfField"`
	RatingDelta     float64 `json:"ratingDelta"`
}

type SessionEnd struct {
	Envelope

	UserID  string                  `json:"userId,omitempty"`
	Results map[string]DriverResult `json:"results,omitempty"`
}

func (SessionEnd) MessageType() Type {
	return TypeSessionEnd
}

// RelayRegister re-attaches a connection to an existing session's broadcast
// group, used by dashboards and reconnecting relays.
type RelayRegister struct {
	Envelope
}

func (RelayRegister) MessageType() Type {
	return TypeRelayRegister
}

type Ack struct {
	Type         Type   `json:"type"`
	OriginalType Type   `json:"originalType"`
	SessionID    string `json:"sessionId,omitempty"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

func (Ack) MessageType() Type {
	return TypeAck
}

func (a Ack) Session() string {
	return a.SessionID
}

func NewAck(original Type, sessionID string) Ack {
	return Ack{Type: TypeAck, OriginalType: original, SessionID: sessionID, Success: true}
}

func NewErrorAck(original Type, sessionID string, err error) Ack {
	return Ack{Type: TypeAck, OriginalType: original, SessionID: sessionID, Success: false, Error: err.Error()}
}

type SessionActive struct {
	Type        Type        `json:"type"`
	SessionID   string      `json:"sessionId"`
	TrackName   string      `json:"trackName"`
	SessionType SessionType `json:"sessionType"`
}

func (SessionActive) MessageType() Type {
	return TypeSessionActive
}

func (s SessionActive) Session() string {
	return s.SessionID
}

func NewSessionActive(sessionID, trackName string, sessionType SessionType) SessionActive {
	return SessionActive{Type: TypeSessionActive, SessionID: sessionID, TrackName: trackName, SessionType: sessionType}
}

type SessionEnded struct {
	Type        Type        `json:"type"`
	SessionID   string      `json:"sessionId"`
	TrackName   string      `json:"trackName"`
	SessionType SessionType `json:"sessionType"`
	DriverCount int         `json:"driverCount"`
}

func (SessionEnded) MessageType() Type {
	return TypeSessionEnded
}

func (s SessionEnded) Session() string {
	return s.SessionID
}

// RelayViewers tells a session's subscribers how many connections are
// watching the session. Pushed whenever the broadcast group changes size.
type RelayViewers struct {
	Type        Type   `json:"type"`
	SessionID   string `json:"sessionId"`
	ViewerCount int    `json:"viewerCount"`
}

func (RelayViewers) MessageType() Type {
	return TypeRelayViewers
}

func (v RelayViewers) Session() string {
	return v.SessionID
}

func NewRelayViewers(sessionID string, viewerCount int) RelayViewers {
	return RelayViewers{Type: TypeRelayViewers, SessionID: sessionID, ViewerCount: viewerCount}
}
