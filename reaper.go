package relay

import (
	"context"
	"time"

	"github.com/hako/durafmt"
	"github.com/sirupsen/logrus"
)

var (
	// DefaultSessionTimeout is how long a session may go without an update
	// before the reaper evicts it.
	DefaultSessionTimeout = time.Second * 60
	// DefaultReaperInterval is how often the reaper sweeps the registry.
	DefaultReaperInterval = time.Second * 30
)

// StaleSessionReaper periodically evicts sessions that have received no
// update within the timeout. Evicted sessions bypass the end-of-session
// pipeline: abandoned sessions get no analytics. The reaper runs regardless
// of open connections and stops when its context is cancelled.
type StaleSessionReaper struct {
	registry *SessionRegistry

	interval time.Duration
	timeout  time.Duration
}

func NewStaleSessionReaper(registry *SessionRegistry, interval, timeout time.Duration) *StaleSessionReaper {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}

	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}

	return &StaleSessionReaper{
		registry: registry,
		interval: interval,
		timeout:  timeout,
	}
}

// Run sweeps the registry on a fixed interval until ctx is cancelled. The
// ticker is stopped on return; no evictions happen after cancellation.
func (r *StaleSessionReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logrus.Infof("Stale session reaper started (interval: %s, timeout: %s)", r.interval, r.timeout)

	for {
		select {
		case <-ticker.C:
			r.Sweep(time.Now())
		case <-ctx.Done():
			logrus.Debugf("Stale session reaper stopped")
			return
		}
	}
}

// Sweep evicts every session whose last update is older than the timeout,
// measured against now. The check is timestamp based, so a session updated
// within the threshold survives regardless of message volume. Staleness is
// re-checked under the registry lock at eviction time: an update landing
// after the snapshot keeps its session alive. Returns the number of
// evicted sessions.
func (r *StaleSessionReaper) Sweep(now time.Time) int {
	cutoff := now.Add(-r.timeout)

	var evicted int

	for _, summary := range r.registry.ListSummaries() {
		if !summary.LastUpdate.Before(cutoff) {
			continue
		}

		if !r.registry.RemoveIfUpdatedBefore(summary.SessionID, cutoff) {
			continue
		}

		evicted++
		sessionsReapedTotal.Inc()

		age := durafmt.Parse(now.Sub(summary.LastUpdate).Round(time.Second)).String()
		logrus.Infof("Evicted stale session: %s at %s, no update for %s", summary.SessionID, summary.TrackName, age)
	}

	if evicted > 0 {
		activeSessions.Set(float64(r.registry.Len()))
	}

	return evicted
}
