package relay

import (
	"errors"
	"fmt"

	"github.com/SingSongScreamAlong/Ok-Box-Box-sub003/pkg/protocol"

	"github.com/sirupsen/logrus"
)

// ErrSessionNotFound's text is part of the wire contract: it is returned
// verbatim in negative acknowledgments for operations on unknown sessions.
var ErrSessionNotFound = errors.New("Session not found")

// SessionSubscriber attaches the originating connection to a session's
// broadcast group. Implemented by the websocket client.
type SessionSubscriber interface {
	Subscribe(sessionID string)
}

// SessionCoordinator owns the per-session lifecycle state machine. Every
// inbound message passes through HandleMessage, which mutates the registry,
// rebroadcasts to subscribers and, on session end, hands the terminated
// session to the pipeline dispatcher without waiting for analytics.
type SessionCoordinator struct {
	registry    *SessionRegistry
	laps        LapStore
	broadcaster Broadcaster
	dispatcher  *PipelineDispatcher
}

func NewSessionCoordinator(registry *SessionRegistry, laps LapStore, broadcaster Broadcaster, dispatcher *PipelineDispatcher) *SessionCoordinator {
	return &SessionCoordinator{
		registry:    registry,
		laps:        laps,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
	}
}

// HandleMessage processes one validated inbound message and returns the
// acknowledgment to send back on the originating connection. Handler errors
// never propagate past the ack; the connection stays up.
func (sc *SessionCoordinator) HandleMessage(subscriber SessionSubscriber, message protocol.Message) protocol.Ack {
	var err error

	switch m := message.(type) {
	case *protocol.SessionMetadata:
		err = sc.OnSessionMetadata(subscriber, m)
	case *protocol.Telemetry:
		err = sc.OnTelemetry(m)
	case *protocol.StrategyUpdate:
		err = sc.OnStrategyUpdate(m)
	case *protocol.LapCompleted:
		err = sc.OnLapCompleted(m)
	case *protocol.RaceEvent:
		err = sc.OnRaceEvent(m)
	case *protocol.Incident:
		err = sc.OnIncident(m)
	case *protocol.SessionEnd:
		err = sc.OnSessionEnd(m)
	case *protocol.RelayRegister:
		err = sc.OnRelayRegister(subscriber, m)
	default:
		err = fmt.Errorf("relay: unhandled message type: %s", message.MessageType())
	}

	activeSessions.Set(float64(sc.registry.Len()))

	if err != nil {
		if err != ErrSessionNotFound {
			logrus.WithError(err).Errorf("Unable to handle %s message for session: %s", message.MessageType(), message.Session())
		}

		observeMessage(string(message.MessageType()), false)

		return protocol.NewErrorAck(message.MessageType(), message.Session(), err)
	}

	observeMessage(string(message.MessageType()), true)

	return protocol.NewAck(message.MessageType(), message.Session())
}

// OnSessionMetadata creates or replaces the session's registry entry,
// subscribes the connection to the session's broadcast group and announces
// the session to all connections.
func (sc *SessionCoordinator) OnSessionMetadata(subscriber SessionSubscriber, meta *protocol.SessionMetadata) error {
	session := NewActiveSession(meta)

	sc.registry.CreateOrReplace(session)

	if subscriber != nil {
		subscriber.Subscribe(session.SessionID)
	}

	logrus.Infof("New session detected: %s at %s (%s)", session.SessionType, session.TrackName, session.SessionID)

	return sc.broadcaster.Send(protocol.NewSessionActive(session.SessionID, session.TrackName, session.SessionType))
}

// OnTelemetry applies per-driver timing state and extends the session's
// reaper grace period, then rebroadcasts to the session's subscribers.
func (sc *SessionCoordinator) OnTelemetry(telemetry *protocol.Telemetry) error {
	ok := sc.registry.Update(telemetry.SessionID, func(session *ActiveSession) {
		for _, entry := range telemetry.Drivers {
			session.applyDriverEntry(entry)
		}
	})

	if !ok {
		return ErrSessionNotFound
	}

	return sc.broadcaster.SendToSession(telemetry.SessionID, telemetry)
}

func (sc *SessionCoordinator) OnStrategyUpdate(update *protocol.StrategyUpdate) error {
	ok := sc.registry.Update(update.SessionID, func(session *ActiveSession) {
		for _, car := range update.Cars {
			session.applyCarStrategy(car)
		}
	})

	if !ok {
		return ErrSessionNotFound
	}

	return sc.broadcaster.SendToSession(update.SessionID, update)
}

// OnLapCompleted records the lap through the lap store and mirrors the lap
// on the driver's live state.
func (sc *SessionCoordinator) OnLapCompleted(lap *protocol.LapCompleted) error {
	ok := sc.registry.Update(lap.SessionID, func(session *ActiveSession) {
		driver, ok := session.Drivers[lap.DriverID]

		if !ok {
			driver = &DriverSessionState{DriverID: lap.DriverID}
			session.Drivers[lap.DriverID] = driver
		}

		driver.LapNumber = lap.LapNumber
		driver.LastLapTimeMs = lap.LapTimeMs
		driver.IncidentCount += lap.Incidents

		if lap.IsValid && (driver.BestLapTimeMs == 0 || lap.LapTimeMs < driver.BestLapTimeMs) {
			driver.BestLapTimeMs = lap.LapTimeMs
		}
	})

	if !ok {
		return ErrSessionNotFound
	}

	return sc.laps.RecordLap(lap.SessionID, &LapData{
		DriverID:      lap.DriverID,
		LapNumber:     lap.LapNumber,
		LapTimeMs:     lap.LapTimeMs,
		IsValid:       lap.IsValid,
		SectorTimesMs: lap.SectorTimesMs,
		Incidents:     lap.Incidents,
	})
}

func (sc *SessionCoordinator) OnRaceEvent(event *protocol.RaceEvent) error {
	if !sc.registry.Touch(event.SessionID) {
		return ErrSessionNotFound
	}

	return sc.broadcaster.SendToSession(event.SessionID, event)
}

func (sc *SessionCoordinator) OnIncident(incident *protocol.Incident) error {
	if !sc.registry.Touch(incident.SessionID) {
		return ErrSessionNotFound
	}

	return sc.broadcaster.SendToSession(incident.SessionID, incident)
}

// OnRelayRegister attaches a reconnecting relay or dashboard connection to
// an existing session's broadcast group.
func (sc *SessionCoordinator) OnRelayRegister(subscriber SessionSubscriber, register *protocol.RelayRegister) error {
	if _, ok := sc.registry.Get(register.SessionID); !ok {
		return ErrSessionNotFound
	}

	if subscriber != nil {
		subscriber.Subscribe(register.SessionID)
	}

	return nil
}

// OnSessionEnd drives the ACTIVE -> ENDING -> ABSENT transition: take the
// session out of the registry, broadcast the closure notification, then
// hand off to the pipeline dispatcher without blocking. Taking the entry
// removes it from the registry's mutation path, so its driver set can be
// read freely even when another connection is still sending for the same
// session id. The ack is sent before any pipeline completes.
func (sc *SessionCoordinator) OnSessionEnd(end *protocol.SessionEnd) error {
	session, ok := sc.registry.Take(end.SessionID)

	if !ok {
		return ErrSessionNotFound
	}

	ended := protocol.SessionEnded{
		Type:        protocol.TypeSessionEnded,
		SessionID:   session.SessionID,
		TrackName:   session.TrackName,
		SessionType: session.SessionType,
		DriverCount: len(session.Drivers),
	}

	if err := sc.broadcaster.SendToSession(session.SessionID, ended); err != nil {
		logrus.WithError(err).Errorf("Could not broadcast session end for session: %s", session.SessionID)
	}

	sc.dispatcher.Dispatch(session, end.UserID, sessionResults(end.Results))

	sc.broadcaster.ReleaseSession(session.SessionID)

	logrus.Infof("Session ended: %s at %s (%s), %d drivers", session.SessionType, session.TrackName, session.SessionID, len(session.Drivers))

	return nil
}

func sessionResults(results map[string]protocol.DriverResult) map[string]*SessionResult {
	if len(results) == 0 {
		return nil
	}

	out := make(map[string]*SessionResult, len(results))

	for driverID, result := range results {
		out[driverID] = &SessionResult{
			FinishPosition:  result.FinishPosition,
			StartPosition:   result.StartPosition,
			StrengthOfField: result.StrengthOfField,
			RatingDelta:     result.RatingDelta,
		}
	}

	return out
}
