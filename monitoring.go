package relay

import (
	"net/http"
	"runtime/debug"

	"github.com/getsentry/raven-go"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	panicHandler = middleware.Recoverer

	defaultPanicCapture = func(fn func()) {
		defer func() {
			if r := recover(); r != nil {
				logrus.Errorf("recovered from panic: %v\n\n%s", r, debug.Stack())
			}
		}()

		fn()
	}

	// panicCapture guards every fire-and-forget pipeline task. A crashed
	// pipeline logs and disappears; it never reaches the connection path.
	panicCapture = defaultPanicCapture

	prometheusMonitoringHandler = http.NotFoundHandler
)

var (
	messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_total",
		Help: "Inbound relay messages handled, by message type and ack outcome.",
	}, []string{"type", "outcome"})

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_sessions",
		Help: "Number of sessions currently held in the registry.",
	})

	sessionsReapedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_sessions_reaped_total",
		Help: "Sessions evicted by the stale session reaper.",
	})

	pipelinesDispatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_pipelines_dispatched_total",
		Help: "Post-session driver pipelines launched.",
	})

	pipelineFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_pipeline_failures_total",
		Help: "Post-session driver pipelines that failed.",
	})
)

func init() {
	prometheus.MustRegister(
		messagesTotal,
		activeSessions,
		sessionsReapedTotal,
		pipelinesDispatchedTotal,
		pipelineFailuresTotal,
	)
}

func InitMonitoring(dsn string) {
	if dsn != "" {
		logrus.Infof("initialising raven monitoring")

		if err := raven.SetDSN(dsn); err != nil {
			logrus.WithError(err).Error("could not initialise raven monitoring")
		} else {
			raven.SetRelease(BuildVersion)

			panicHandler = raven.Recoverer
			panicCapture = func(fn func()) {
				raven.CapturePanic(fn, nil)
			}
		}
	}

	prometheusMonitoringHandler = func() http.Handler {
		return promhttp.Handler()
	}
}

func observeMessage(messageType string, success bool) {
	outcome := "ok"

	if !success {
		outcome = "rejected"
	}

	messagesTotal.WithLabelValues(messageType, outcome).Inc()
}

// BuildVersion is overridden at link time.
var BuildVersion = "relay-server-dev"
