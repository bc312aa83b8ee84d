package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/SingSongScreamAlong/Ok-Box-Box-sub003/pkg/protocol"
)

type recordingBroadcaster struct {
	mu sync.Mutex

	sent          []protocol.Message
	sentToSession map[string][]protocol.Message
	released      []string
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{
		sentToSession: make(map[string][]protocol.Message),
	}
}

func (b *recordingBroadcaster) Send(message protocol.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sent = append(b.sent, message)

	return nil
}

func (b *recordingBroadcaster) SendToSession(sessionID string, message protocol.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sentToSession[sessionID] = append(b.sentToSession[sessionID], message)

	return nil
}

func (b *recordingBroadcaster) ReleaseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.released = append(b.released, sessionID)
}

func (b *recordingBroadcaster) sessionMessages(sessionID string) []protocol.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]protocol.Message(nil), b.sentToSession[sessionID]...)
}

type fakeSubscriber struct {
	mu            sync.Mutex
	subscriptions []string
}

func (s *fakeSubscriber) Subscribe(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriptions = append(s.subscriptions, sessionID)
}

func newTestCoordinator(store *memoryStore, broadcaster Broadcaster) (*SessionCoordinator, *SessionRegistry) {
	registry := NewSessionRegistry()
	engine := NewMetricsEngine(store, store, store)
	dispatcher := NewPipelineDispatcher(store, store, engine, NilProfileSyncer{})

	return NewSessionCoordinator(registry, store, broadcaster, dispatcher), registry
}

func telemetryMessage(sessionID string, drivers ...protocol.DriverEntry) *protocol.Telemetry {
	return &protocol.Telemetry{
		Envelope: protocol.Envelope{Type: string(protocol.TypeTelemetry), SessionID: sessionID},
		Drivers:  drivers,
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newMemoryStore()
	broadcaster := newRecordingBroadcaster()
	coordinator, registry := newTestCoordinator(store, broadcaster)

	subscriber := &fakeSubscriber{}
	baseline := registry.Len()

	ack := coordinator.HandleMessage(subscriber, testSessionMetadata("s1"))

	if !ack.Success {
		t.Fatalf("expected session_metadata to be acknowledged, err: %s", ack.Error)
	}

	if registry.Len() != baseline+1 {
		t.Fatalf("expected one active session, got %d", registry.Len())
	}

	if len(subscriber.subscriptions) != 1 || subscriber.subscriptions[0] != "s1" {
		t.Errorf("expected connection to be subscribed to s1, got %v", subscriber.subscriptions)
	}

	if len(broadcaster.sent) != 1 {
		t.Fatalf("expected one session:active broadcast, got %d", len(broadcaster.sent))
	}

	if _, ok := broadcaster.sent[0].(protocol.SessionActive); !ok {
		t.Errorf("expected session:active, got %T", broadcaster.sent[0])
	}

	// telemetry updates are applied in arrival order and extend the grace period
	for i := 0; i < 5; i++ {
		ack = coordinator.HandleMessage(subscriber, telemetryMessage("s1",
			protocol.DriverEntry{DriverID: "d1", DriverName: "Alice", CarNumber: "7", LapNumber: i, LapDistPct: 0.5},
			protocol.DriverEntry{DriverID: "d2", DriverName: "Bob", CarNumber: "22", LapNumber: i, LapDistPct: 0.1},
		))

		if !ack.Success {
			t.Fatalf("expected telemetry to be acknowledged, err: %s", ack.Error)
		}
	}

	session, _ := registry.Get("s1")

	if len(session.Drivers) != 2 {
		t.Fatalf("expected 2 drivers, got %d", len(session.Drivers))
	}

	if session.Drivers["d1"].DriverName != "Alice" || session.Drivers["d1"].LapNumber != 4 {
		t.Errorf("unexpected driver state: %+v", session.Drivers["d1"])
	}

	ack = coordinator.HandleMessage(subscriber, &protocol.SessionEnd{
		Envelope: protocol.Envelope{Type: string(protocol.TypeSessionEnd), SessionID: "s1"},
	})

	if !ack.Success {
		t.Fatalf("expected session_end to be acknowledged, err: %s", ack.Error)
	}

	if registry.Len() != baseline {
		t.Errorf("expected registry to return to baseline size after session_end, got %d", registry.Len())
	}

	messages := broadcaster.sessionMessages("s1")

	var foundEnded bool

	for _, message := range messages {
		if ended, ok := message.(protocol.SessionEnded); ok {
			foundEnded = true

			if ended.DriverCount != 2 {
				t.Errorf("expected driver count 2 in session:ended, got %d", ended.DriverCount)
			}
		}
	}

	if !foundEnded {
		t.Error("expected session:ended broadcast to the session group")
	}

	if len(broadcaster.released) != 1 || broadcaster.released[0] != "s1" {
		t.Errorf("expected session topic to be released, got %v", broadcaster.released)
	}
}

func TestSessionEndUnknownSession(t *testing.T) {
	store := newMemoryStore()
	coordinator, registry := newTestCoordinator(store, NilBroadcaster{})

	coordinator.HandleMessage(nil, testSessionMetadata("s1"))

	sizeBefore := registry.Len()

	ack := coordinator.HandleMessage(nil, &protocol.SessionEnd{
		Envelope: protocol.Envelope{Type: string(protocol.TypeSessionEnd), SessionID: "ghost"},
	})

	if ack.Success {
		t.Error("expected session_end for an unknown session to fail")
	}

	if ack.Error != "Session not found" {
		t.Errorf("expected 'Session not found', got %q", ack.Error)
	}

	if registry.Len() != sizeBefore {
		t.Errorf("expected registry size unchanged, got %d", registry.Len())
	}
}

func TestSessionEndDetachesLiveState(t *testing.T) {
	store := newMemoryStore()
	coordinator, registry := newTestCoordinator(store, NilBroadcaster{})

	coordinator.HandleMessage(nil, testSessionMetadata("s1"))
	coordinator.HandleMessage(nil, telemetryMessage("s1", protocol.DriverEntry{DriverID: "d1"}))

	session, _ := registry.Get("s1")

	ack := coordinator.HandleMessage(nil, &protocol.SessionEnd{
		Envelope: protocol.Envelope{Type: string(protocol.TypeSessionEnd), SessionID: "s1"},
	})

	if !ack.Success {
		t.Fatalf("expected session_end to be acknowledged, err: %s", ack.Error)
	}

	// a second connection's telemetry for the same id can no longer reach
	// the ended session's driver set
	ack = coordinator.HandleMessage(nil, telemetryMessage("s1", protocol.DriverEntry{DriverID: "d2"}))

	if ack.Success {
		t.Error("expected telemetry after session end to fail")
	}

	if len(session.Drivers) != 1 {
		t.Errorf("expected the ended session's driver set to be untouched, got %d drivers", len(session.Drivers))
	}
}

func TestTelemetryUnknownSession(t *testing.T) {
	store := newMemoryStore()
	coordinator, _ := newTestCoordinator(store, NilBroadcaster{})

	ack := coordinator.HandleMessage(nil, telemetryMessage("ghost", protocol.DriverEntry{DriverID: "d1"}))

	if ack.Success {
		t.Error("expected telemetry for an unknown session to fail")
	}
}

func TestLapCompletedRecordsLap(t *testing.T) {
	store := newMemoryStore()
	coordinator, registry := newTestCoordinator(store, NilBroadcaster{})

	coordinator.HandleMessage(nil, testSessionMetadata("s1"))

	ack := coordinator.HandleMessage(nil, &protocol.LapCompleted{
		Envelope:  protocol.Envelope{Type: string(protocol.TypeLapCompleted), SessionID: "s1"},
		DriverID:  "d1",
		LapNumber: 1,
		LapTimeMs: 90000,
		IsValid:   true,
	})

	if !ack.Success {
		t.Fatalf("expected lap_completed to be acknowledged, err: %s", ack.Error)
	}

	laps, err := store.ListSessionLaps("s1")

	if err != nil {
		t.Fatal(err)
	}

	if len(laps) != 1 || laps[0].LapTimeMs != 90000 {
		t.Errorf("expected lap to be recorded, got %+v", laps)
	}

	session, _ := registry.Get("s1")

	if session.Drivers["d1"].BestLapTimeMs != 90000 {
		t.Errorf("expected driver best lap mirrored on live state, got %d", session.Drivers["d1"].BestLapTimeMs)
	}
}

func TestStrategyUpdateAttachesSnapshot(t *testing.T) {
	store := newMemoryStore()
	coordinator, registry := newTestCoordinator(store, NilBroadcaster{})

	coordinator.HandleMessage(nil, testSessionMetadata("s1"))

	ack := coordinator.HandleMessage(nil, &protocol.StrategyUpdate{
		Envelope: protocol.Envelope{Type: string(protocol.TypeStrategyUpdate), SessionID: "s1"},
		Cars: []protocol.CarStrategy{
			{
				DriverID: "d1",
				Fuel:     protocol.FuelState{Level: 40.2, Pct: 0.55, PerLapKg: 2.3},
				Tires:    protocol.TireWear{FL: 0.93, FR: 0.91, RL: 0.95, RR: 0.94},
				Pit:      protocol.PitState{InPit: false, Stops: 1},
			},
		},
	})

	if !ack.Success {
		t.Fatalf("expected strategy_update to be acknowledged, err: %s", ack.Error)
	}

	session, _ := registry.Get("s1")
	strategy := session.Drivers["d1"].Strategy

	if strategy == nil {
		t.Fatal("expected strategy snapshot on driver state")
	}

	if strategy.Fuel.Level != 40.2 || strategy.Pit.Stops != 1 {
		t.Errorf("unexpected strategy snapshot: %+v", strategy)
	}
}

func TestRelayRegister(t *testing.T) {
	store := newMemoryStore()
	coordinator, _ := newTestCoordinator(store, NilBroadcaster{})

	coordinator.HandleMessage(nil, testSessionMetadata("s1"))

	subscriber := &fakeSubscriber{}

	ack := coordinator.HandleMessage(subscriber, &protocol.RelayRegister{
		Envelope: protocol.Envelope{Type: string(protocol.TypeRelayRegister), SessionID: "s1"},
	})

	if !ack.Success {
		t.Fatalf("expected relay:register to be acknowledged, err: %s", ack.Error)
	}

	if len(subscriber.subscriptions) != 1 {
		t.Errorf("expected subscription, got %v", subscriber.subscriptions)
	}

	ack = coordinator.HandleMessage(subscriber, &protocol.RelayRegister{
		Envelope: protocol.Envelope{Type: string(protocol.TypeRelayRegister), SessionID: "ghost"},
	})

	if ack.Success {
		t.Error("expected relay:register for an unknown session to fail")
	}
}

func TestSessionEndTriggersMetricsPipeline(t *testing.T) {
	store := newMemoryStore()
	coordinator, _ := newTestCoordinator(store, NilBroadcaster{})

	if err := store.UpsertDriverProfile(&DriverProfile{ID: "p1", PlatformID: "d1"}); err != nil {
		t.Fatal(err)
	}

	coordinator.HandleMessage(nil, testSessionMetadata("s1"))
	coordinator.HandleMessage(nil, telemetryMessage("s1", protocol.DriverEntry{DriverID: "d1"}))

	for i := 1; i <= 3; i++ {
		coordinator.HandleMessage(nil, &protocol.LapCompleted{
			Envelope:  protocol.Envelope{Type: string(protocol.TypeLapCompleted), SessionID: "s1"},
			DriverID:  "d1",
			LapNumber: i,
			LapTimeMs: 90000 + int64(i)*100,
			IsValid:   true,
		})
	}

	coordinator.HandleMessage(nil, &protocol.SessionEnd{
		Envelope: protocol.Envelope{Type: string(protocol.TypeSessionEnd), SessionID: "s1"},
	})

	waitForMetrics(t, store, 1)

	metrics, err := store.FindSessionMetrics("s1", "p1")

	if err != nil {
		t.Fatal(err)
	}

	if metrics.TotalLaps != 3 || metrics.BestLapMs != 90100 {
		t.Errorf("unexpected metrics: %+v", metrics)
	}
}

// waitForMetrics polls the store until the expected number of metrics
// records exist. The pipelines are fire-and-forget, so tests can only
// observe their output.
func waitForMetrics(t *testing.T, store *memoryStore, want int) {
	t.Helper()

	deadline := time.Now().Add(time.Second * 2)

	for time.Now().Before(deadline) {
		if store.metricsCount() >= want {
			return
		}

		time.Sleep(time.Millisecond * 10)
	}

	t.Fatalf("expected %d metrics records, got %d", want, store.metricsCount())
}
