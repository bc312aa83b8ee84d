package relay

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"
)

var LaunchTime = time.Now()

type HealthCheck struct {
	registry *SessionRegistry
}

func NewHealthCheck(registry *SessionRegistry) *HealthCheck {
	return &HealthCheck{registry: registry}
}

type HealthCheckResponse struct {
	OK      bool
	Version string

	OS            string
	NumCPU        int
	NumGoroutines int
	Uptime        string
	GoVersion     string

	ActiveSessions int
}

func (h *HealthCheck) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	_ = json.NewEncoder(w).Encode(HealthCheckResponse{
		OK:      true,
		Version: BuildVersion,

		OS:            runtime.GOOS,
		NumCPU:        runtime.NumCPU(),
		NumGoroutines: runtime.NumGoroutine(),
		Uptime:        time.Since(LaunchTime).String(),
		GoVersion:     runtime.Version(),

		ActiveSessions: h.registry.Len(),
	})
}
