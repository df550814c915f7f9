package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/patrickspencer/taskhist/internal/config"
	"github.com/patrickspencer/taskhist/internal/eventlog"
	"github.com/patrickspencer/taskhist/internal/history"
	"github.com/patrickspencer/taskhist/internal/realtime"
	"github.com/patrickspencer/taskhist/internal/store"
	"github.com/patrickspencer/taskhist/internal/tasks"
)

// API holds dependencies for all API handlers. Archive, Events, the collect
// functions and GetConfig are optional; endpoints that need a missing one
// answer 503.
type API struct {
	Extract          func(ctx context.Context, policy history.Policy) (*history.Result, error)
	Policy           history.Policy
	Tasks            tasks.Store
	Archive          store.Archive
	Events           *realtime.Broker
	GetConfig        func() *config.Config
	CollectHistory   func(ctx context.Context) (*store.Collection, error)
	CollectSnapshots func(ctx context.Context) (*store.Collection, error)
}

// RegisterRoutes registers all API routes on the given ServeMux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/history/tasks", a.handleHistoryByTask)
	mux.HandleFunc("/api/v1/history", a.handleHistory)
	mux.HandleFunc("/api/v1/tasks/", a.routeTasks)
	mux.HandleFunc("/api/v1/tasks", a.handleListTasks)
	mux.HandleFunc("/api/v1/codes/", a.routeCodes)
	mux.HandleFunc("/api/v1/codes", a.handleCodes)
	mux.HandleFunc("/api/v1/collections/", a.routeCollections)
	mux.HandleFunc("/api/v1/collections", a.handleListCollections)
	mux.HandleFunc("/api/v1/events", a.handleEvents)
	mux.HandleFunc("/api/v1/config", a.handleConfig)
	mux.HandleFunc("/api/v1/health", a.handleHealth)
}

// routeTasks dispatches /api/v1/tasks/{stats|export|path} requests.
func (a *API) routeTasks(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	switch rest {
	case "":
		a.handleListTasks(w, r)
	case "stats":
		a.handleTaskStats(w, r)
	case "export":
		a.handleExportTasks(w, r)
	default:
		a.handleGetTask(w, r, taskPathFromURL(rest))
	}
}

// routeCodes dispatches /api/v1/codes/events[/{id}] requests.
func (a *API) routeCodes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/codes/")
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	switch {
	case rest == "":
		a.handleCodes(w, r)
	case parts[0] == "events" && (len(parts) == 1 || parts[1] == ""):
		a.handleListEventCodes(w, r)
	case parts[0] == "events":
		a.handleGetEventCode(w, r, parts[1])
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

// routeCollections dispatches /api/v1/collections/{kind} triggers.
func (a *API) routeCollections(w http.ResponseWriter, r *http.Request) {
	kind := strings.TrimPrefix(r.URL.Path, "/api/v1/collections/")
	if kind == "" {
		a.handleListCollections(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	switch kind {
	case store.KindHistory:
		a.handleCollectHistory(w, r)
	case store.KindSnapshots:
		a.handleCollectSnapshots(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown collection kind"})
	}
}

// taskPathFromURL accepts both "Backups/Daily" and an escaped "\Backups\Daily".
func taskPathFromURL(rest string) string {
	p := strings.ReplaceAll(rest, "/", `\`)
	if !strings.HasPrefix(p, `\`) {
		p = `\` + p
	}
	return p
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

type errorResponse struct {
	Error    string `json:"error"`
	Position *int   `json:"position,omitempty"`
	Field    string `json:"field,omitempty"`
}

// writeError maps extraction and lookup failures to status codes.
func writeError(w http.ResponseWriter, err error) {
	var accessErr *eventlog.LogAccessError
	var malformedErr *eventlog.MalformedRecordError
	var unknownErr *tasks.UnknownTaskError

	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &accessErr):
		status = http.StatusServiceUnavailable
	case errors.As(err, &malformedErr):
		pos := malformedErr.Position
		resp.Position = &pos
		resp.Field = malformedErr.Field
	case errors.As(err, &unknownErr):
		status = http.StatusNotFound
	default:
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, resp)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return false
	}
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	return true
}

func unavailable(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": what + " unavailable"})
}
