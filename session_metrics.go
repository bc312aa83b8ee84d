package relay

import (
	"context"
	"time"

	"github.com/SingSongScreamAlong/Ok-Box-Box-sub003/pkg/lapstats"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MetricsEngine derives post-session performance metrics from raw lap data
// and persists them through the external store collaborators. It performs
// exactly one metrics write and one profile rollup increment per
// invocation; persistence failures are returned, never retried.
type MetricsEngine struct {
	laps     LapStore
	metrics  MetricsStore
	profiles ProfileStore
}

func NewMetricsEngine(laps LapStore, metrics MetricsStore, profiles ProfileStore) *MetricsEngine {
	return &MetricsEngine{
		laps:     laps,
		metrics:  metrics,
		profiles: profiles,
	}
}

// ComputeSessionMetrics computes and persists the metrics record for one
// driver in one session. Drivers with no linked profile are skipped
// silently. All statistics except the incident rate use valid laps only.
// fieldBestMs and result are optional; pass 0 and nil when unavailable.
func (e *MetricsEngine) ComputeSessionMetrics(ctx context.Context, sessionID, driverID string, laps []*LapData, result *SessionResult, fieldBestMs int64) error {
	profile, err := e.profiles.FindDriverProfileByPlatformID(driverID)

	if err == ErrProfileNotFound {
		logrus.Debugf("No linked profile for driver: %s, skipping session metrics", driverID)
		return nil
	} else if err != nil {
		return errors.Wrapf(err, "could not resolve profile for driver: %s", driverID)
	}

	var (
		validTimes    []int64
		incidentCount int
	)

	for _, lap := range laps {
		incidentCount += lap.Incidents

		if lap.IsValid {
			validTimes = append(validTimes, lap.LapTimeMs)
		}
	}

	metrics := &SessionMetrics{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		ProfileID: profile.ID,
		DriverID:  driverID,

		TotalLaps: len(laps),
		ValidLaps: len(validTimes),

		BestLapMs:   lapstats.Best(validTimes),
		MedianLapMs: lapstats.Round2(lapstats.Median(validTimes)),
		MeanLapMs:   lapstats.Round2(lapstats.Mean(validTimes)),
		StdDevMs:    lapstats.Round2(lapstats.SampleStdDev(validTimes)),

		IncidentCount: incidentCount,

		CreatedAt: time.Now(),
	}

	// incident rate counts every lap, valid or not
	if metrics.TotalLaps > 0 {
		per100 := lapstats.Round2(float64(incidentCount) / float64(metrics.TotalLaps) * 100)
		metrics.IncidentsPer100 = &per100
	}

	if metrics.BestLapMs > 0 && fieldBestMs > 0 {
		gap := lapstats.Round2(float64(metrics.BestLapMs-fieldBestMs) / float64(fieldBestMs) * 100)
		percentile := lapstats.Round2(lapstats.Clamp(100-gap*10, 0, 100))

		metrics.GapToLeaderPct = &gap
		metrics.PacePercentile = &percentile
	}

	if result != nil {
		if result.FinishPosition > 0 {
			finish := result.FinishPosition
			metrics.FinishPosition = &finish
		}

		if result.StartPosition > 0 {
			start := result.StartPosition
			metrics.StartPosition = &start
		}

		if metrics.StartPosition != nil && metrics.FinishPosition != nil {
			gained := *metrics.StartPosition - *metrics.FinishPosition
			metrics.PositionsGained = &gained
		}
	}

	if score, ok := lapstats.PaceDropoffScore(validTimes); ok {
		metrics.PaceDropoffScore = &score
	}

	if loss, ok := lapstats.TrafficTimeLoss(validTimes); ok {
		metrics.TrafficTimeLossMs = &loss
	}

	if err := e.metrics.UpsertSessionMetrics(metrics); err != nil {
		return errors.Wrapf(err, "could not persist session metrics for driver: %s (session: %s)", driverID, sessionID)
	}

	if err := e.profiles.IncrementProfileStats(profile.ID, 1, metrics.TotalLaps, incidentCount); err != nil {
		return errors.Wrapf(err, "could not update rollup stats for profile: %s", profile.ID)
	}

	logrus.Infof("Session metrics computed for driver: %s (session: %s, %d laps, best: %dms)", driverID, sessionID, metrics.TotalLaps, metrics.BestLapMs)

	return nil
}

// RecomputeSession rebuilds metrics for every driver with recorded laps in
// a session. Used for offline recomputation; the field-best lap is derived
// from all valid laps across all drivers.
func (e *MetricsEngine) RecomputeSession(ctx context.Context, sessionID string) error {
	laps, err := e.laps.ListSessionLaps(sessionID)

	if err != nil {
		return errors.Wrapf(err, "could not load laps for session: %s", sessionID)
	}

	lapsByDriver := groupLapsByDriver(laps)
	fieldBest := fieldBestValidLap(laps)

	g, ctx := errgroup.WithContext(ctx)

	for driverID, driverLaps := range lapsByDriver {
		driverID := driverID
		driverLaps := driverLaps

		g.Go(func() error {
			return e.ComputeSessionMetrics(ctx, sessionID, driverID, driverLaps, nil, fieldBest)
		})
	}

	return g.Wait()
}

func groupLapsByDriver(laps []*LapData) map[string][]*LapData {
	byDriver := make(map[string][]*LapData)

	for _, lap := range laps {
		byDriver[lap.DriverID] = append(byDriver[lap.DriverID], lap)
	}

	return byDriver
}

func fieldBestValidLap(laps []*LapData) int64 {
	var best int64

	for _, lap := range laps {
		if !lap.IsValid {
			continue
		}

		if best == 0 || lap.LapTimeMs < best {
			best = lap.LapTimeMs
		}
	}

	return best
}
