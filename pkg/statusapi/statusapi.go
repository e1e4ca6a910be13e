// Package statusapi serves a small read-only HTTP surface over a running
// manager: liveness, per-source states, and health probe results. It exposes
// nothing that mutates the session set.
package statusapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/datastack-labs/mcp-datacenter/pkg/datacenter"
	"github.com/datastack-labs/mcp-datacenter/pkg/logging"
)

// API exposes manager status over HTTP.
type API struct {
	mgr *datacenter.Manager
	log *logging.Logger
}

// New builds the status API around mgr.
func New(mgr *datacenter.Manager, log *logging.Logger) *API {
	if log == nil {
		log = logging.New("statusapi")
	}
	return &API{mgr: mgr, log: log}
}

// Handler returns the routed, CORS-wrapped handler.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/v1/sources", a.handleSources).Methods(http.MethodGet)
	r.HandleFunc("/v1/health", a.handleHealth).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

func (a *API) handleLiveness(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, map[string]string{"status": "ok"})
}

type sourceStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

func (a *API) handleSources(w http.ResponseWriter, r *http.Request) {
	states := a.mgr.SourceStates()
	out := make([]sourceStatus, 0, len(states))
	for _, name := range a.mgr.Sources() {
		out = append(out, sourceStatus{Name: name, State: string(states[name])})
	}
	a.writeJSON(w, map[string]any{"sources": out})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, map[string]any{"health": a.mgr.HealthCheck(r.Context())})
}

func (a *API) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Warn("writing response", logging.Fields{"error": err.Error()})
	}
}
