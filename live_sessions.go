package relay

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/sirupsen/logrus"
)

// LiveSessionsHandler exposes the read-only summary listing of active
// sessions for dashboard and administrative consumers.
type LiveSessionsHandler struct {
	registry *SessionRegistry
}

func NewLiveSessionsHandler(registry *SessionRegistry) *LiveSessionsHandler {
	return &LiveSessionsHandler{registry: registry}
}

func (h *LiveSessionsHandler) list(w http.ResponseWriter, r *http.Request) {
	summaries := h.registry.ListSummaries()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastUpdate.After(summaries[j].LastUpdate)
	})

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		logrus.WithError(err).Errorf("Could not encode session summaries")
	}
}
