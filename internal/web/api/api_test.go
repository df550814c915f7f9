package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickspencer/taskhist/internal/config"
	"github.com/patrickspencer/taskhist/internal/eventlog"
	"github.com/patrickspencer/taskhist/internal/history"
	"github.com/patrickspencer/taskhist/internal/realtime"
	"github.com/patrickspencer/taskhist/internal/store"
	"github.com/patrickspencer/taskhist/internal/tasks"
)

var testRecords = []eventlog.EventRecord{
	{Timestamp: "2024-01-01T00:00:00Z", LevelCode: 4, EventID: 100, TaskName: `\Backups\Daily`},
	{Timestamp: "2024-01-01T00:00:05Z", LevelCode: 2, EventID: 101, TaskName: `\Backups\Daily`},
	{Timestamp: "2024-01-01T00:00:03Z", LevelCode: 3, EventID: 999, TaskName: `\Cleanup`},
	{Timestamp: "2024-01-01T00:00:09Z", LevelCode: 4, EventID: 102, TaskName: `\Backups\Weekly`},
}

func staticExtract(records []eventlog.EventRecord) func(context.Context, history.Policy) (*history.Result, error) {
	return func(context.Context, history.Policy) (*history.Result, error) {
		return &history.Result{Table: history.NewTable(records)}, nil
	}
}

func failingExtract(err error) func(context.Context, history.Policy) (*history.Result, error) {
	return func(context.Context, history.Policy) (*history.Result, error) {
		return nil, err
	}
}

func newInventory(t *testing.T) *tasks.InventoryStore {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Backups"), 0755))
	files := map[string]string{
		"Cleanup.yaml":       "author: CORP\\bob\nstate: ready\nlast_task_result: 267011\n",
		"Backups/Daily.yaml": "author: CORP\\alice\nstate: running\nnumber_of_missed_runs: 2\nlast_task_result: 42\n",
		"Backups/Old.yaml":   "author: CORP\\alice\nstate: 9\nnumber_of_missed_runs: 1\n",
	}
	for rel, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, filepath.FromSlash(rel)), []byte(body), 0644))
	}
	return &tasks.InventoryStore{Dir: root}
}

func newTestMux(t *testing.T, a *API) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return mux
}

func get(t *testing.T, mux http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHistoryLive(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, &API{Extract: staticExtract(testRecords)})

	rec := get(t, mux, "/api/v1/history")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[historyResponse](t, rec)
	assert.Equal(t, "live", resp.Source)
	assert.Equal(t, 4, resp.Total)
	require.Len(t, resp.Entries, 4)
	assert.Equal(t, `\Backups\Daily`, resp.Entries[0].TaskName)
	assert.Equal(t, `\Backups`, resp.Entries[0].Folder)
	require.NotNil(t, resp.Entries[1].LevelDescription)
	assert.Equal(t, "ERROR", *resp.Entries[1].LevelDescription)
	assert.Nil(t, resp.Entries[2].EventIDDescription)

	rec = get(t, mux, "/api/v1/history?task=Backups&sort=desc&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[historyResponse](t, rec)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "2024-01-01T00:00:09Z", resp.Entries[0].Timestamp)
	assert.Equal(t, "2024-01-01T00:00:05Z", resp.Entries[1].Timestamp)

	rec = get(t, mux, "/api/v1/history?level=2")
	resp = decode[historyResponse](t, rec)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, 101, resp.Entries[0].EventID)

	rec = get(t, mux, "/api/v1/history?event_id=102&folder=%5CBackups")
	resp = decode[historyResponse](t, rec)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, `\Backups\Weekly`, resp.Entries[0].TaskName)

	rec = get(t, mux, "/api/v1/history?since=2024-01-01T00:00:04Z&sort=asc")
	resp = decode[historyResponse](t, rec)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, 101, resp.Entries[0].EventID)
}

func TestHistoryPassesPolicy(t *testing.T) {
	t.Parallel()

	var got history.Policy
	a := &API{
		Policy: history.FailFast,
		Extract: func(_ context.Context, p history.Policy) (*history.Result, error) {
			got = p
			return &history.Result{
				Table:   history.NewTable(nil),
				Skipped: []*eventlog.MalformedRecordError{{Position: 3, Field: "System[1]", Reason: "missing element"}},
			}, nil
		},
	}
	mux := newTestMux(t, a)

	rec := get(t, mux, "/api/v1/history?malformed=skip")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, history.SkipMalformed, got)
	resp := decode[historyResponse](t, rec)
	assert.Empty(t, resp.Entries)
	assert.NotNil(t, resp.Entries)
	require.Len(t, resp.Skipped, 1)
	assert.Equal(t, 3, resp.Skipped[0].Position)

	rec = get(t, mux, "/api/v1/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, history.FailFast, got)
}

func TestHistoryErrors(t *testing.T) {
	t.Parallel()

	accessErr := &eventlog.LogAccessError{Path: "operational.evtx", Err: os.ErrPermission}
	rec := get(t, newTestMux(t, &API{Extract: failingExtract(accessErr)}), "/api/v1/history")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "operational.evtx")

	malformedErr := &eventlog.MalformedRecordError{Position: 7, Field: "System[7]", Reason: "missing element"}
	rec = get(t, newTestMux(t, &API{Extract: failingExtract(malformedErr)}), "/api/v1/history")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[errorResponse](t, rec)
	require.NotNil(t, body.Position)
	assert.Equal(t, 7, *body.Position)
	assert.Equal(t, "System[7]", body.Field)

	mux := newTestMux(t, &API{Extract: staticExtract(testRecords)})
	for _, q := range []string{"sort=up", "level=high", "limit=-1", "source=cloud", "since=yesterday-ish", "malformed=ignore"} {
		rec := get(t, mux, "/api/v1/history?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec = get(t, mux, "/api/v1/history?source=archive")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/history", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHistoryArchive(t *testing.T) {
	t.Parallel()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "taskhist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	_, err = st.SaveHistory(context.Background(), "c1", testRecords)
	require.NoError(t, err)

	mux := newTestMux(t, &API{Archive: st})

	rec := get(t, mux, "/api/v1/history?source=archive&task=Backups")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[historyResponse](t, rec)
	assert.Equal(t, "archive", resp.Source)
	require.Len(t, resp.Entries, 3)
	assert.Equal(t, "2024-01-01T00:00:09Z", resp.Entries[0].Timestamp)

	rec = get(t, mux, "/api/v1/history/tasks?source=archive")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[[]history.TaskSummary](t, rec)
	require.Len(t, summary, 3)
	assert.Equal(t, `\Backups\Daily`, summary[0].TaskName)
	assert.Equal(t, 1, summary[0].Errors)
}

func TestHistoryByTaskLive(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, &API{Extract: staticExtract(testRecords)})
	rec := get(t, mux, "/api/v1/history/tasks?folder=%5CBackups")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[[]history.TaskSummary](t, rec)
	require.Len(t, summary, 2)
	assert.Equal(t, history.TaskSummary{TaskName: `\Backups\Daily`, Total: 2, Errors: 1, LastSeen: "2024-01-01T00:00:05Z"}, summary[0])
}

func TestTasks(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, &API{Tasks: newInventory(t)})

	rec := get(t, mux, "/api/v1/tasks")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]taskView](t, rec)
	require.Len(t, all, 3)
	assert.Equal(t, `\Cleanup`, all[0].Path)
	assert.Equal(t, "READY", all[0].StateName)
	require.NotNil(t, all[0].ResultDescription)

	rec = get(t, mux, "/api/v1/tasks?author=alice&folder=%5CBackups")
	filtered := decode[[]taskView](t, rec)
	require.Len(t, filtered, 2)
	assert.Equal(t, `\Backups`, filtered[0].Folder)
	assert.Nil(t, filtered[0].ResultDescription)

	for _, target := range []string{"/api/v1/tasks/Backups/Daily", "/api/v1/tasks/%5CBackups%5CDaily"} {
		rec = get(t, mux, target)
		require.Equal(t, http.StatusOK, rec.Code, target)
		one := decode[taskView](t, rec)
		assert.Equal(t, `\Backups\Daily`, one.Path)
		assert.Equal(t, tasks.StateRunning, one.State)
	}

	rec = get(t, mux, "/api/v1/tasks/Backups/Missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `not found`)
}

func TestTaskStats(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, &API{Tasks: newInventory(t)})
	rec := get(t, mux, "/api/v1/tasks/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decode[statsResponse](t, rec)
	assert.Equal(t, 3, stats.TaskTotal)
	assert.Equal(t, 3, stats.MissedRunsTotal)
	assert.Equal(t, 1, stats.Unrecognized)
	assert.Equal(t, 1, stats.CountByState["READY"])
	assert.Equal(t, 1, stats.CountByState["RUNNING"])
	assert.Equal(t, 0, stats.CountByState["DISABLED"])
	assert.Len(t, stats.CountByState, 5)
}

func TestExportTasks(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, &API{Tasks: newInventory(t)})
	rec := get(t, mux, "/api/v1/tasks/export?folder=%5CBackups")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "# taskhist task export\n"))
	assert.Equal(t, 2, strings.Count(body, "\n---\n"))
	assert.Contains(t, body, `# path: \Backups\Daily`)
	assert.Contains(t, body, "state: running")
	assert.NotContains(t, body, "Cleanup")
}

func TestTasksUnavailable(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, &API{})
	for _, target := range []string{"/api/v1/tasks", "/api/v1/tasks/stats", "/api/v1/collections", "/api/v1/config", "/api/v1/events"} {
		assert.Equal(t, http.StatusServiceUnavailable, get(t, mux, target).Code, target)
	}
}

func TestCodes(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, &API{})

	rec := get(t, mux, "/api/v1/codes")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[codesResponse](t, rec)
	assert.Len(t, all.Levels, 3)
	assert.Len(t, all.States, 5)
	assert.NotEmpty(t, all.Events)

	rec = get(t, mux, "/api/v1/codes/events/101")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Task Scheduler failed to start the task.", decode[codeDescription](t, rec).Description)

	events := decode[[]codeDescription](t, get(t, mux, "/api/v1/codes/events"))
	assert.Equal(t, all.Events, events)

	assert.Equal(t, http.StatusNotFound, get(t, mux, "/api/v1/codes/events/999").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/api/v1/codes/events/abc").Code)
	assert.Equal(t, http.StatusNotFound, get(t, mux, "/api/v1/codes/levels/2").Code)
}

func TestCollections(t *testing.T) {
	t.Parallel()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "taskhist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	a := &API{
		Archive: st,
		CollectHistory: func(ctx context.Context) (*store.Collection, error) {
			c := &store.Collection{Kind: store.KindHistory, Source: "test", StartedAt: time.Now(), Records: 4}
			return c, st.RecordCollection(ctx, c)
		},
		CollectSnapshots: func(context.Context) (*store.Collection, error) {
			return nil, &eventlog.LogAccessError{Path: "powershell", Err: os.ErrPermission}
		},
	}
	mux := newTestMux(t, a)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/collections/history", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[store.Collection](t, rec)
	assert.Equal(t, 4, created.Records)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/collections/snapshots", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/collections/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, mux, "/api/v1/collections?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	colls := decode[[]store.Collection](t, rec)
	require.Len(t, colls, 1)
	assert.Equal(t, created.ID, colls[0].ID)

	assert.Equal(t, http.StatusMethodNotAllowed, get(t, mux, "/api/v1/collections/history").Code)
}

func TestHealthAndConfig(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, &API{Events: realtime.NewBroker(), GetConfig: config.Default})

	rec := get(t, mux, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[healthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.Archive)

	rec = get(t, mux, "/api/v1/config")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Listen":":8080"`)
}

func TestEventsStream(t *testing.T) {
	t.Parallel()

	broker := realtime.NewBroker()
	srv := httptest.NewServer(newTestMux(t, &API{Events: broker}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	broker.Publish(realtime.Event{Type: realtime.CollectionFinished, Kind: store.KindHistory, CollectionID: "c1", Records: 4})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "data: ") {
			lines = append(lines, line)
			break
		}
		lines = append(lines, line)
	}
	assert.Contains(t, lines, "event: collection.finished")

	var evt realtime.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[len(lines)-1], "data: ")), &evt))
	assert.Equal(t, "c1", evt.CollectionID)
	assert.Equal(t, 4, evt.Records)
}
