package relay

import (
	"path/filepath"
	"testing"

	"github.com/etcd-io/bbolt"
	"github.com/pkg/errors"
)

func testBoltStore(t *testing.T) RelayStore {
	t.Helper()

	db, err := bbolt.Open(filepath.Join(t.TempDir(), "relay.db"), 0644, nil)

	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return NewBoltRelayStore(db)
}

func TestBoltLapStore(t *testing.T) {
	store := testBoltStore(t)

	laps := []*LapData{
		{DriverID: "d1", LapNumber: 1, LapTimeMs: 90000, IsValid: true, SectorTimesMs: []int64{30000, 30000, 30000}},
		{DriverID: "d2", LapNumber: 1, LapTimeMs: 91000, IsValid: true},
		{DriverID: "d1", LapNumber: 2, LapTimeMs: 89500, IsValid: false, Incidents: 1},
	}

	for _, lap := range laps {
		if err := store.RecordLap("s1", lap); err != nil {
			t.Fatal(err)
		}
	}

	loaded, err := store.ListSessionLaps("s1")

	if err != nil {
		t.Fatal(err)
	}

	if len(loaded) != 3 {
		t.Fatalf("expected 3 laps, got %d", len(loaded))
	}

	// laps come back in recording order
	if loaded[0].DriverID != "d1" || loaded[1].DriverID != "d2" || loaded[2].LapNumber != 2 {
		t.Errorf("unexpected lap order: %+v", loaded)
	}

	if len(loaded[0].SectorTimesMs) != 3 {
		t.Errorf("expected sector times to round trip, got %v", loaded[0].SectorTimesMs)
	}

	// other sessions are untouched
	other, err := store.ListSessionLaps("s2")

	if err != nil {
		t.Fatal(err)
	}

	if len(other) != 0 {
		t.Errorf("expected no laps for an unknown session, got %d", len(other))
	}
}

func TestBoltMetricsStore(t *testing.T) {
	store := testBoltStore(t)

	if _, err := store.FindSessionMetrics("s1", "p1"); err != ErrValueNotSet {
		t.Errorf("expected ErrValueNotSet for missing metrics, got %v", err)
	}

	percentile := 94.4

	err := store.UpsertSessionMetrics(&SessionMetrics{
		ID:             "m1",
		SessionID:      "s1",
		ProfileID:      "p1",
		DriverID:       "d1",
		TotalLaps:      10,
		BestLapMs:      89500,
		PacePercentile: &percentile,
	})

	if err != nil {
		t.Fatal(err)
	}

	metrics, err := store.FindSessionMetrics("s1", "p1")

	if err != nil {
		t.Fatal(err)
	}

	if metrics.BestLapMs != 89500 || metrics.TotalLaps != 10 {
		t.Errorf("unexpected metrics: %+v", metrics)
	}

	if metrics.PacePercentile == nil || *metrics.PacePercentile != 94.4 {
		t.Errorf("expected pace percentile to round trip, got %v", metrics.PacePercentile)
	}

	// upserting again replaces the record
	err = store.UpsertSessionMetrics(&SessionMetrics{
		ID:        "m2",
		SessionID: "s1",
		ProfileID: "p1",
		DriverID:  "d1",
		TotalLaps: 12,
	})

	if err != nil {
		t.Fatal(err)
	}

	metrics, err = store.FindSessionMetrics("s1", "p1")

	if err != nil {
		t.Fatal(err)
	}

	if metrics.TotalLaps != 12 {
		t.Errorf("expected upsert to replace the record, got %d laps", metrics.TotalLaps)
	}
}

func TestBoltProfileStore(t *testing.T) {
	store := testBoltStore(t)

	if _, err := store.FindDriverProfileByPlatformID("d1"); err != ErrProfileNotFound {
		t.Errorf("expected ErrProfileNotFound, got %v", err)
	}

	err := store.UpsertDriverProfile(&DriverProfile{
		ID:          "p1",
		PlatformID:  "d1",
		UserID:      "user-1",
		DisplayName: "Alice",
	})

	if err != nil {
		t.Fatal(err)
	}

	profile, err := store.FindDriverProfileByPlatformID("d1")

	if err != nil {
		t.Fatal(err)
	}

	if profile.ID != "p1" || profile.UserID != "user-1" {
		t.Errorf("unexpected profile: %+v", profile)
	}

	if err := store.IncrementProfileStats("p1", 1, 24, 3); err != nil {
		t.Fatal(err)
	}

	if err := store.IncrementProfileStats("p1", 1, 18, 0); err != nil {
		t.Fatal(err)
	}

	profile, err = store.FindDriverProfileByPlatformID("d1")

	if err != nil {
		t.Fatal(err)
	}

	if profile.TotalSessions != 2 || profile.TotalLaps != 42 || profile.TotalIncidents != 3 {
		t.Errorf("unexpected rollups: %+v", profile)
	}
}

func TestBoltIncrementUnknownProfile(t *testing.T) {
	store := testBoltStore(t)

	if err := store.IncrementProfileStats("ghost", 1, 1, 0); errors.Cause(err) != ErrProfileNotFound {
		t.Errorf("expected ErrProfileNotFound, got %v", err)
	}
}
