package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/patrickspencer/taskhist/internal/tasks"
)

type taskView struct {
	tasks.TaskSnapshot
	Folder            string  `json:"folder"`
	StateName         string  `json:"state_name"`
	ResultDescription *string `json:"result_description"`
}

func newTaskView(s tasks.TaskSnapshot) taskView {
	v := taskView{TaskSnapshot: s, Folder: s.Folder(), StateName: s.State.String()}
	if text := s.ResultDescription(); text != "" {
		v.ResultDescription = &text
	}
	return v
}

func (a *API) listSnapshots(w http.ResponseWriter, r *http.Request) ([]tasks.TaskSnapshot, bool) {
	if a.Tasks == nil {
		unavailable(w, "task store")
		return nil, false
	}
	snaps, err := a.Tasks.ListTaskSnapshots(r.Context())
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return snaps, true
}

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r) {
		return
	}
	snaps, ok := a.listSnapshots(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filtered := tasks.Filter(snaps, q.Get("author"), q.Get("folder"))
	views := make([]taskView, len(filtered))
	for i, s := range filtered {
		views[i] = newTaskView(s)
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) handleGetTask(w http.ResponseWriter, r *http.Request, path string) {
	snaps, ok := a.listSnapshots(w, r)
	if !ok {
		return
	}
	snap, err := tasks.Find(snaps, path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskView(snap))
}

type statsResponse struct {
	TaskTotal       int            `json:"task_total"`
	MissedRunsTotal int            `json:"missed_runs_total"`
	CountByState    map[string]int `json:"count_by_state"`
	Unrecognized    int            `json:"unrecognized"`
}

func (a *API) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	snaps, ok := a.listSnapshots(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	stats := tasks.Aggregate(tasks.Filter(snaps, q.Get("author"), q.Get("folder")))
	resp := statsResponse{
		TaskTotal:       stats.TaskTotal,
		MissedRunsTotal: stats.MissedRunsTotal,
		CountByState:    make(map[string]int, len(stats.CountByState)),
		Unrecognized:    stats.Unrecognized,
	}
	for state, n := range stats.CountByState {
		resp.CountByState[state.String()] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExportTasks writes the task list as multi-document YAML in the
// inventory file format.
func (a *API) handleExportTasks(w http.ResponseWriter, r *http.Request) {
	snaps, ok := a.listSnapshots(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	snaps = tasks.Filter(snaps, q.Get("author"), q.Get("folder"))

	var buf bytes.Buffer
	if err := tasks.WriteExport(&buf, snaps, time.Now()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("taskhist-tasks-%s.yaml", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/x-yaml; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
