package relay

import (
	"context"

	"github.com/sirupsen/logrus"
)

// ProfileSyncer refreshes an external user profile after a session. Its
// retry semantics are its own; the dispatcher only logs failures.
type ProfileSyncer interface {
	SyncProfile(ctx context.Context, userID string) error
}

// PipelineDispatcher launches the post-session analytics pipelines for a
// terminated session. Dispatch returns as soon as the work is scheduled;
// each driver's pipeline runs in its own goroutine behind panicCapture, so
// one driver's failure never touches another's, and nothing propagates back
// to the connection that sent the end event.
type PipelineDispatcher struct {
	laps     LapStore
	profiles ProfileStore
	engine   *MetricsEngine
	syncer   ProfileSyncer
}

func NewPipelineDispatcher(laps LapStore, profiles ProfileStore, engine *MetricsEngine, syncer ProfileSyncer) *PipelineDispatcher {
	return &PipelineDispatcher{
		laps:     laps,
		profiles: profiles,
		engine:   engine,
		syncer:   syncer,
	}
}

// Dispatch schedules metrics computation for every driver in the session's
// final driver set, plus profile syncs for linked drivers and, when given,
// the user who submitted the end event. The session has already left the
// registry's mutation path, so reading its driver set here is safe.
func (d *PipelineDispatcher) Dispatch(session *ActiveSession, userID string, results map[string]*SessionResult) {
	driverIDs := make([]string, 0, len(session.Drivers))

	for driverID := range session.Drivers {
		driverIDs = append(driverIDs, driverID)
	}

	sessionID := session.SessionID

	go panicCapture(func() {
		d.run(sessionID, driverIDs, userID, results)
	})
}

func (d *PipelineDispatcher) run(sessionID string, driverIDs []string, userID string, results map[string]*SessionResult) {
	laps, err := d.laps.ListSessionLaps(sessionID)

	if err != nil {
		pipelineFailuresTotal.Inc()
		logrus.WithError(err).Errorf("Could not load laps for ended session: %s, no metrics will be computed", sessionID)
		return
	}

	lapsByDriver := groupLapsByDriver(laps)
	fieldBest := fieldBestValidLap(laps)

	for _, driverID := range driverIDs {
		driverID := driverID
		driverLaps := lapsByDriver[driverID]

		pipelinesDispatchedTotal.Inc()

		go panicCapture(func() {
			err := d.engine.ComputeSessionMetrics(context.Background(), sessionID, driverID, driverLaps, results[driverID], fieldBest)

			if err != nil {
				pipelineFailuresTotal.Inc()
				logrus.WithError(err).Errorf("Session metrics pipeline failed for driver: %s (session: %s)", driverID, sessionID)
			}
		})

		go panicCapture(func() {
			d.syncDriverProfile(driverID)
		})
	}

	if userID != "" {
		go panicCapture(func() {
			if err := d.syncer.SyncProfile(context.Background(), userID); err != nil {
				pipelineFailuresTotal.Inc()
				logrus.WithError(err).Errorf("Profile sync failed for user: %s", userID)
			}
		})
	}
}

// syncDriverProfile triggers a profile sync for a driver whose profile is
// claimed by a platform account. Unlinked drivers are skipped silently.
func (d *PipelineDispatcher) syncDriverProfile(driverID string) {
	profile, err := d.profiles.FindDriverProfileByPlatformID(driverID)

	if err == ErrProfileNotFound {
		return
	} else if err != nil {
		pipelineFailuresTotal.Inc()
		logrus.WithError(err).Errorf("Could not resolve profile for driver: %s", driverID)
		return
	}

	if profile.UserID == "" {
		return
	}

	if err := d.syncer.SyncProfile(context.Background(), profile.UserID); err != nil {
		pipelineFailuresTotal.Inc()
		logrus.WithError(err).Errorf("Profile sync failed for driver: %s (user: %s)", driverID, profile.UserID)
	}
}
