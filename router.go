package relay

import (
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/sirupsen/logrus"
)

var Debug = os.Getenv("DEBUG") == "true"

func InitLogging() {
	if !Debug {
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetLevel(logrus.DebugLevel)
	}

	logFile, err := os.OpenFile("relay-server.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)

	if err == nil {
		logrus.SetOutput(io.MultiWriter(os.Stdout, logFile))
	} else {
		logrus.WithError(err).Errorf("Could not create relay server log file")
		logrus.SetOutput(os.Stdout)
	}
}

func Router(
	relayWebsocketHandler *RelayWebsocketHandler,
	liveSessionsHandler *LiveSessionsHandler,
	healthCheck *HealthCheck,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(panicHandler)

	r.Handle("/relay/ws", relayWebsocketHandler)
	r.Get("/api/live/sessions", liveSessionsHandler.list)
	r.Get("/healthcheck", healthCheck.ServeHTTP)
	r.Handle("/metrics", prometheusMonitoringHandler())

	if Debug {
		r.Mount("/debug/", middleware.Profiler())
	}

	return r
}
