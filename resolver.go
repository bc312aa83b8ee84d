package relay

import (
	"net/http"
)

// Resolver wires the relay subsystem together. Components are created
// lazily and shared, mirroring how the rest of the platform builds its
// services.
type Resolver struct {
	config *Configuration
	store  RelayStore

	registry    *SessionRegistry
	hub         *RelayHub
	engine      *MetricsEngine
	syncer      ProfileSyncer
	dispatcher  *PipelineDispatcher
	coordinator *SessionCoordinator
	reaper      *StaleSessionReaper

	relayWebsocketHandler *RelayWebsocketHandler
	liveSessionsHandler   *LiveSessionsHandler
	healthCheck           *HealthCheck
}

func NewResolver(config *Configuration, store RelayStore) *Resolver {
	return &Resolver{
		config: config,
		store:  store,
	}
}

func (r *Resolver) ResolveStore() RelayStore {
	return r.store
}

func (r *Resolver) ResolveSessionRegistry() *SessionRegistry {
	if r.registry == nil {
		r.registry = NewSessionRegistry()
	}

	return r.registry
}

func (r *Resolver) ResolveRelayHub() *RelayHub {
	if r.hub == nil {
		r.hub = NewRelayHub()
	}

	return r.hub
}

func (r *Resolver) ResolveMetricsEngine() *MetricsEngine {
	if r.engine == nil {
		r.engine = NewMetricsEngine(r.store, r.store, r.store)
	}

	return r.engine
}

func (r *Resolver) ResolveProfileSyncer() ProfileSyncer {
	if r.syncer == nil {
		if r.config.ProfileSync.URL != "" {
			r.syncer = NewHTTPProfileSyncer(r.config.ProfileSync.URL)
		} else {
			r.syncer = NilProfileSyncer{}
		}
	}

	return r.syncer
}

func (r *Resolver) ResolvePipelineDispatcher() *PipelineDispatcher {
	if r.dispatcher == nil {
		r.dispatcher = NewPipelineDispatcher(r.store, r.store, r.ResolveMetricsEngine(), r.ResolveProfileSyncer())
	}

	return r.dispatcher
}

func (r *Resolver) ResolveSessionCoordinator() *SessionCoordinator {
	if r.coordinator == nil {
		r.coordinator = NewSessionCoordinator(
			r.ResolveSessionRegistry(),
			r.store,
			r.ResolveRelayHub(),
			r.ResolvePipelineDispatcher(),
		)
	}

	return r.coordinator
}

func (r *Resolver) ResolveStaleSessionReaper() *StaleSessionReaper {
	if r.reaper == nil {
		r.reaper = NewStaleSessionReaper(
			r.ResolveSessionRegistry(),
			r.config.Relay.ReaperInterval(),
			r.config.Relay.SessionTimeout(),
		)
	}

	return r.reaper
}

func (r *Resolver) resolveRelayWebsocketHandler() *RelayWebsocketHandler {
	if r.relayWebsocketHandler == nil {
		r.relayWebsocketHandler = NewRelayWebsocketHandler(r.ResolveRelayHub(), r.ResolveSessionCoordinator())
	}

	return r.relayWebsocketHandler
}

func (r *Resolver) resolveLiveSessionsHandler() *LiveSessionsHandler {
	if r.liveSessionsHandler == nil {
		r.liveSessionsHandler = NewLiveSessionsHandler(r.ResolveSessionRegistry())
	}

	return r.liveSessionsHandler
}

func (r *Resolver) resolveHealthCheck() *HealthCheck {
	if r.healthCheck == nil {
		r.healthCheck = NewHealthCheck(r.ResolveSessionRegistry())
	}

	return r.healthCheck
}

func (r *Resolver) ResolveRouter() http.Handler {
	return Router(
		r.resolveRelayWebsocketHandler(),
		r.resolveLiveSessionsHandler(),
		r.resolveHealthCheck(),
	)
}
