package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/venuegrid/internal/engine/ingest"
	"github.com/rendis/venuegrid/internal/engine/storage"
	"github.com/rendis/venuegrid/internal/model"
)

// fakeTrigger records the prepared config without running anything.
type fakeTrigger struct {
	prepared *model.RunConfig
	launched bool
	err      error
}

func (f *fakeTrigger) Prepare(ctx context.Context, cfg model.RunConfig) (*ingest.PreparedRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.prepared = &cfg
	return &ingest.PreparedRun{ID: 42, Tiles: make([]model.Tile, 9), Cfg: cfg}, nil
}

func (f *fakeTrigger) Launch(pr *ingest.PreparedRun) { f.launched = true }

func newTestServer(t *testing.T, token string) (*Server, *storage.Store, *fakeTrigger) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	trigger := &fakeTrigger{}
	srv := New(store, trigger, Options{
		AuthToken:       token,
		DefaultStepKm:   10,
		DefaultRadiusKm: 12,
		DefaultKeywords: []string{"restaurant"},
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return srv, store, trigger
}

func doJSON(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestTrigger_LaunchesAndReturnsRunID(t *testing.T) {
	srv, _, trigger := newTestServer(t, "secret")

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/runs", "secret",
		`{"provider":"places","region":{"city":"manchester"},"step_km":5,"radius_km":6,"keywords":["bar"],"enrich":true}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(42), resp["run_id"])
	assert.Equal(t, float64(9), resp["total_tiles"])

	assert.True(t, trigger.launched)
	require.NotNil(t, trigger.prepared)
	assert.Equal(t, "places", trigger.prepared.Provider)
	assert.Equal(t, "manchester", trigger.prepared.Region.City)
	assert.Equal(t, 5.0, trigger.prepared.StepKm)
	assert.Equal(t, []string{"bar"}, trigger.prepared.Keywords)
	assert.True(t, trigger.prepared.Enrich)
}

func TestTrigger_FillsDefaults(t *testing.T) {
	srv, _, trigger := newTestServer(t, "")

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/runs", "", `{"region":{"city":"leeds"}}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, trigger.prepared)
	assert.Equal(t, 10.0, trigger.prepared.StepKm)
	assert.Equal(t, 12.0, trigger.prepared.RadiusKm)
	assert.Equal(t, []string{"restaurant"}, trigger.prepared.Keywords)
}

func TestTrigger_RequiresBearerToken(t *testing.T) {
	srv, _, trigger := newTestServer(t, "secret")

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/runs", "", `{"region":{"city":"leeds"}}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, srv.Router(), http.MethodPost, "/api/runs", "wrong", `{"region":{"city":"leeds"}}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, trigger.launched)
}

func TestTrigger_BadJSONRejected(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/runs", "", `{not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrigger_SetupErrorIsSynchronous(t *testing.T) {
	srv, _, trigger := newTestServer(t, "")
	trigger.err = assert.AnError

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/runs", "", `{"region":{"city":"atlantis"}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, trigger.launched)
}

func TestGetRun_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	w := doJSON(t, srv.Router(), http.MethodGet, "/api/runs/999", "", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRun_ReturnsRecord(t *testing.T) {
	srv, store, _ := newTestServer(t, "")
	id, err := store.CreateRun(context.Background(), model.RunConfig{Provider: "places"}, "city:leeds", 7)
	require.NoError(t, err)

	w := doJSON(t, srv.Router(), http.MethodGet, "/api/runs/1", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, id, run.ID)
	assert.Equal(t, "city:leeds", run.RegionLabel)
	assert.Equal(t, 7, run.TotalTiles)
	assert.Equal(t, model.RunPending, run.Status)
}

func TestListRuns_EmptyIsArray(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	w := doJSON(t, srv.Router(), http.MethodGet, "/api/runs", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestAuditTrail_EmptyIsArray(t *testing.T) {
	srv, store, _ := newTestServer(t, "")
	_, err := store.CreateRun(context.Background(), model.RunConfig{}, "test", 1)
	require.NoError(t, err)

	w := doJSON(t, srv.Router(), http.MethodGet, "/api/runs/1/venues", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestPause_RunningRunPauses(t *testing.T) {
	srv, store, _ := newTestServer(t, "secret")
	ctx := context.Background()
	id, err := store.CreateRun(ctx, model.RunConfig{}, "test", 4)
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, id))

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/runs/1/pause", "secret", "")

	require.Equal(t, http.StatusOK, w.Code)
	status, err := store.RunStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RunPaused, status)
}

func TestPause_TerminalRunConflicts(t *testing.T) {
	srv, store, _ := newTestServer(t, "")
	ctx := context.Background()
	id, err := store.CreateRun(ctx, model.RunConfig{}, "test", 4)
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, id))
	require.NoError(t, store.MarkTerminal(ctx, id, model.RunCompleted))

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/runs/1/pause", "", "")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret") // health is never authenticated

	w := doJSON(t, srv.Router(), http.MethodGet, "/healthz", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestMetricsEndpointExposed(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	w := doJSON(t, srv.Router(), http.MethodGet, "/metrics", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
