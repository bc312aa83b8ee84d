package relay

import (
	"sync"
	"time"

	"github.com/SingSongScreamAlong/Ok-Box-Box-sub003/pkg/protocol"
)

// SessionRegistry is the single source of truth for every concurrently
// active session, keyed by session identifier. It is shared between the
// connection handlers and the background reaper, so every operation takes
// the registry lock; mutation of a given session must go through Update so
// the per-session exclusivity guarantee holds on a multi-threaded runtime.
type SessionRegistry struct {
	sessions map[string]*ActiveSession

	rwMutex sync.RWMutex
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*ActiveSession),
	}
}

// CreateOrReplace installs a session record, replacing any existing record
// for the same id. The new record is visible to Get immediately.
func (r *SessionRegistry) CreateOrReplace(session *ActiveSession) {
	r.rwMutex.Lock()
	defer r.rwMutex.Unlock()

	r.sessions[session.SessionID] = session
}

func (r *SessionRegistry) Get(sessionID string) (*ActiveSession, bool) {
	r.rwMutex.RLock()
	defer r.rwMutex.RUnlock()

	session, ok := r.sessions[sessionID]

	return session, ok
}

// Update runs fn against the session under the registry write lock and
// touches its last update timestamp. It returns false if the session is
// unknown.
func (r *SessionRegistry) Update(sessionID string, fn func(session *ActiveSession)) bool {
	r.rwMutex.Lock()
	defer r.rwMutex.Unlock()

	session, ok := r.sessions[sessionID]

	if !ok {
		return false
	}

	fn(session)
	session.LastUpdate = time.Now()

	return true
}

// Touch extends a session's reaper grace period without other mutation.
func (r *SessionRegistry) Touch(sessionID string) bool {
	return r.Update(sessionID, func(*ActiveSession) {})
}

// Remove is idempotent: removing an absent session id is a no-op.
func (r *SessionRegistry) Remove(sessionID string) {
	r.rwMutex.Lock()
	defer r.rwMutex.Unlock()

	delete(r.sessions, sessionID)
}

// Take removes the session and returns it in one step. Once taken, no
// other caller can reach the record through the registry, so the caller
// may read its driver set without further locking.
func (r *SessionRegistry) Take(sessionID string) (*ActiveSession, bool) {
	r.rwMutex.Lock()
	defer r.rwMutex.Unlock()

	session, ok := r.sessions[sessionID]

	if !ok {
		return nil, false
	}

	delete(r.sessions, sessionID)

	return session, true
}

// RemoveIfUpdatedBefore removes the session only if its last update is
// still older than cutoff, re-checked under the write lock. An update
// landing after a caller's staleness snapshot keeps the session alive.
func (r *SessionRegistry) RemoveIfUpdatedBefore(sessionID string, cutoff time.Time) bool {
	r.rwMutex.Lock()
	defer r.rwMutex.Unlock()

	session, ok := r.sessions[sessionID]

	if !ok || !session.LastUpdate.Before(cutoff) {
		return false
	}

	delete(r.sessions, sessionID)

	return true
}

func (r *SessionRegistry) Len() int {
	r.rwMutex.RLock()
	defer r.rwMutex.RUnlock()

	return len(r.sessions)
}

// Each calls fn for every registered session under the read lock. fn must
// not mutate session state or call back into the registry.
func (r *SessionRegistry) Each(fn func(session *ActiveSession) error) error {
	r.rwMutex.RLock()
	defer r.rwMutex.RUnlock()

	for _, session := range r.sessions {
		if err := fn(session); err != nil {
			return err
		}
	}

	return nil
}

// SessionSummary is the read-only view of an active session exposed to
// dashboards and administrative consumers.
type SessionSummary struct {
	SessionID   string               `json:"sessionId"`
	TrackName   string               `json:"trackName"`
	SessionType protocol.SessionType `json:"sessionType"`
	DriverCount int                  `json:"driverCount"`
	LastUpdate  time.Time            `json:"lastUpdate"`
}

// ListSummaries returns a snapshot of all active sessions without exposing
// mutable internals.
func (r *SessionRegistry) ListSummaries() []SessionSummary {
	r.rwMutex.RLock()
	defer r.rwMutex.RUnlock()

	summaries := make([]SessionSummary, 0, len(r.sessions))

	for _, session := range r.sessions {
		summaries = append(summaries, SessionSummary{
			SessionID:   session.SessionID,
			TrackName:   session.TrackName,
			SessionType: session.SessionType,
			DriverCount: len(session.Drivers),
			LastUpdate:  session.LastUpdate,
		})
	}

	return summaries
}
