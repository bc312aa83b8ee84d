package protocol

import (
	"encoding/json"
	"fmt"
)

// ErrUnknownMessageType is returned by Parse for message types the relay
// does not handle. The connection replies with a negative ack and carries on.
type ErrUnknownMessageType struct {
	Type string
}

func (e ErrUnknownMessageType) Error() string {
	return fmt.Sprintf("protocol: unknown message type: %q", e.Type)
}

// PeekType reads only the type discriminator from a raw message so a
// negative ack can name the original type even when full parsing fails.
func PeekType(data []byte) Type {
	var envelope Envelope

	if err := json.Unmarshal(data, &envelope); err != nil {
		return ""
	}

	return Type(envelope.Type)
}

// Parse decodes and validates a raw inbound message. It is pure: no registry
// access, no side effects. A non-nil error means the message must be dropped
// and negatively acknowledged.
func Parse(data []byte) (Message, error) {
	var envelope Envelope

	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("protocol: malformed message: %v", err)
	}

	var (
		message   Message
		unmarshal interface{}
	)

	switch Type(envelope.Type) {
	case TypeSessionMetadata:
		m := &SessionMetadata{}
		message, unmarshal = m, m
	case TypeTelemetry:
		m := &Telemetry{}
		message, unmarshal = m, m
	case TypeStrategyUpdate:
		m := &StrategyUpdate{}
		message, unmarshal = m, m
	case TypeLapCompleted:
		m := &LapCompleted{}
		message, unmarshal = m, m
	case TypeRaceEvent:
		m := &RaceEvent{}
		message, unmarshal = m, m
	case TypeIncident:
		m := &Incident{}
		message, unmarshal = m, m
	case TypeSessionEnd:
		m := &SessionEnd{}
		message, unmarshal = m, m
	case TypeRelayRegister:
		m := &RelayRegister{}
		message, unmarshal = m, m
	default:
		return nil, ErrUnknownMessageType{Type: envelope.Type}
	}

	if err := json.Unmarshal(data, unmarshal); err != nil {
		return nil, fmt.Errorf("protocol: malformed %s message: %v", envelope.Type, err)
	}

	if err := validate(message); err != nil {
		return nil, err
	}

	return message, nil
}

func validate(message Message) error {
	if message.Session() == "" {
		return fmt.Errorf("protocol: %s message is missing sessionId", message.MessageType())
	}

	switch m := message.(type) {
	case *SessionMetadata:
		return m.validate()
	case *Telemetry:
		return m.validate()
	case *StrategyUpdate:
		return m.validate()
	case *LapCompleted:
		return m.validate()
	case *RaceEvent:
		return m.validate()
	case *Incident:
		return m.validate()
	}

	return nil
}

func (m *SessionMetadata) validate() error {
	if m.TrackName == "" {
		return fmt.Errorf("protocol: session_metadata is missing trackName")
	}

	if !m.SessionType.Valid() {
		return fmt.Errorf("protocol: session_metadata has invalid sessionType: %q", m.SessionType)
	}

	if m.BroadcastDelayMs < 0 {
		return fmt.Errorf("protocol: session_metadata broadcastDelayMs must not be negative")
	}

	return nil
}

func (m *Telemetry) validate() error {
	for i := range m.Drivers {
		driver := &m.Drivers[i]

		if driver.DriverID == "" {
			return fmt.Errorf("protocol: telemetry driver entry %d is missing driverId", i)
		}

		if driver.LapDistPct < 0 {
			driver.LapDistPct = 0
		} else if driver.LapDistPct > 1 {
			driver.LapDistPct = 1
		}
	}

	return nil
}

func (m *StrategyUpdate) validate() error {
	for i, car := range m.Cars {
		if car.DriverID == "" {
			return fmt.Errorf("protocol: strategy_update car entry %d is missing driverId", i)
		}
	}

	return nil
}

func (m *LapCompleted) validate() error {
	if m.DriverID == "" {
		return fmt.Errorf("protocol: lap_completed is missing driverId")
	}

	if m.LapTimeMs <= 0 {
		return fmt.Errorf("protocol: lap_completed lapTimeMs must be positive, got %d", m.LapTimeMs)
	}

	return nil
}

func (m *RaceEvent) validate() error {
	if !m.FlagState.Valid() {
		return fmt.Errorf("protocol: race_event has invalid flagState: %q", m.FlagState)
	}

	return nil
}

func (m *Incident) validate() error {
	switch m.Severity {
	case "low", "med", "high":
		return nil
	default:
		return fmt.Errorf("protocol: incident has invalid severity: %q", m.Severity)
	}
}
