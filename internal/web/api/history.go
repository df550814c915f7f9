package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/araddon/dateparse"

	"github.com/patrickspencer/taskhist/internal/eventlog"
	"github.com/patrickspencer/taskhist/internal/history"
	"github.com/patrickspencer/taskhist/internal/store"
)

const (
	sourceLive    = "live"
	sourceArchive = "archive"
)

type historyQuery struct {
	history.Query
	Source string
	Limit  int
	Policy history.Policy
}

func parseHistoryQuery(r *http.Request, policy history.Policy) (historyQuery, error) {
	q := r.URL.Query()
	hq := historyQuery{
		Query: history.Query{
			Task:   q.Get("task"),
			Folder: q.Get("folder"),
			Sort:   q.Get("sort"),
		},
		Source: q.Get("source"),
		Policy: policy,
	}

	switch hq.Sort {
	case "", "asc", "desc":
	default:
		return hq, fmt.Errorf("sort must be asc or desc, got %q", hq.Sort)
	}
	switch hq.Source {
	case "":
		hq.Source = sourceLive
	case sourceLive, sourceArchive:
	default:
		return hq, fmt.Errorf("source must be live or archive, got %q", hq.Source)
	}

	var err error
	if hq.Level, err = optionalInt(q.Get("level"), "level"); err != nil {
		return hq, err
	}
	if hq.EventID, err = optionalInt(q.Get("event_id"), "event_id"); err != nil {
		return hq, err
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return hq, fmt.Errorf("limit must be a non-negative integer, got %q", v)
		}
		hq.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := dateparse.ParseIn(v, time.UTC)
		if err != nil {
			return hq, fmt.Errorf("since: %w", err)
		}
		hq.Since = &t
	}
	if v := q.Get("malformed"); v != "" {
		if hq.Policy, err = history.ParsePolicy(v); err != nil {
			return hq, err
		}
	}
	return hq, nil
}

func optionalInt(v, name string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer, got %q", name, v)
	}
	return &n, nil
}

type skippedRecord struct {
	Position int    `json:"position"`
	Field    string `json:"field,omitempty"`
	Reason   string `json:"reason"`
}

type historyResponse struct {
	Source  string          `json:"source"`
	Total   int             `json:"total"`
	Count   int             `json:"count"`
	Skipped []skippedRecord `json:"skipped,omitempty"`
	Entries []history.Entry `json:"entries"`
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r) {
		return
	}
	q, err := parseHistoryQuery(r, a.Policy)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	table, skipped, err := a.loadHistory(r.Context(), q)
	if err != nil {
		if errors.Is(err, errNoArchive) {
			unavailable(w, "archive")
			return
		}
		writeError(w, err)
		return
	}

	table, err = q.Apply(table)
	if err != nil {
		writeError(w, err)
		return
	}

	entries := table.Entries()
	total := len(entries)
	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}

	resp := historyResponse{
		Source:  q.Source,
		Total:   total,
		Count:   len(entries),
		Entries: entries,
	}
	for _, s := range skipped {
		resp.Skipped = append(resp.Skipped, skippedRecord{Position: s.Position, Field: s.Field, Reason: s.Reason})
	}
	writeJSON(w, http.StatusOK, resp)
}

var errNoArchive = errors.New("archive unavailable")

// loadHistory returns the unfiltered table for q.Source. The archive is
// queried with the task filter pushed into SQL.
func (a *API) loadHistory(ctx context.Context, q historyQuery) (*history.Table, []*eventlog.MalformedRecordError, error) {
	if q.Source == sourceArchive {
		if a.Archive == nil {
			return nil, nil, errNoArchive
		}
		records, err := a.Archive.ListHistory(ctx, store.ListOpts{TaskContains: q.Task})
		if err != nil {
			return nil, nil, err
		}
		return history.NewTable(records), nil, nil
	}

	if a.Extract == nil {
		return nil, nil, fmt.Errorf("no history source configured")
	}
	res, err := a.Extract(ctx, q.Policy)
	if err != nil {
		return nil, nil, err
	}
	return res.Table, res.Skipped, nil
}

func (a *API) handleHistoryByTask(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r) {
		return
	}
	q, err := parseHistoryQuery(r, a.Policy)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if q.Source == sourceArchive && q.Unfiltered() {
		if a.Archive == nil {
			unavailable(w, "archive")
			return
		}
		summary, err := a.Archive.HistoryByTask(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(summary))
		return
	}

	table, _, err := a.loadHistory(r.Context(), q)
	if err != nil {
		if errors.Is(err, errNoArchive) {
			unavailable(w, "archive")
			return
		}
		writeError(w, err)
		return
	}
	q.Sort = ""
	table, err = q.Apply(table)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(table.ByTask()))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
