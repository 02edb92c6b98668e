package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/venuegrid/internal/engine/provider"
	"github.com/rendis/venuegrid/internal/engine/storage"
	"github.com/rendis/venuegrid/internal/model"
)

// smallBox resolves to a 2x2 tile grid with a 20km step.
var smallBox = model.RegionDescriptor{MinLat: 0, MinLng: 0, MaxLat: 0.3, MaxLng: 0.3}

func testRunner(t *testing.T, prov *fakeProvider) (*Runner, *storage.Store) {
	t.Helper()
	store := testStore(t)
	factory := func(cfg model.RunConfig) (provider.Provider, error) { return prov, nil }
	return NewRunner(store, factory, testLogger()), store
}

func cand(id string) model.Candidate {
	return model.Candidate{ExternalID: id, Name: "Venue " + id, City: "Testville"}
}

func TestPrepare_CreatesPendingRun(t *testing.T) {
	runner, store := testRunner(t, &fakeProvider{})
	ctx := context.Background()

	pr, err := runner.Prepare(ctx, model.RunConfig{Region: smallBox, StepKm: 20, RadiusKm: 20})

	require.NoError(t, err)
	assert.Len(t, pr.Tiles, 4)

	run, err := store.RunByID(ctx, pr.ID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunPending, run.Status)
	assert.Equal(t, 4, run.TotalTiles)
	assert.Equal(t, "fake", run.Provider)
	assert.Equal(t, 20.0, run.Config.StepKm)
	assert.Nil(t, run.StartedAt)
}

func TestPrepare_ProviderSetupErrorIsSynchronous(t *testing.T) {
	store := testStore(t)
	factory := func(cfg model.RunConfig) (provider.Provider, error) {
		return nil, errors.New("api key missing")
	}
	runner := NewRunner(store, factory, testLogger())

	_, err := runner.Prepare(context.Background(), model.RunConfig{Region: smallBox, StepKm: 20, RadiusKm: 20})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider setup")

	// No run row was created for the failed trigger.
	runs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestPrepare_BadRegionRejected(t *testing.T) {
	runner, _ := testRunner(t, &fakeProvider{})

	_, err := runner.Prepare(context.Background(), model.RunConfig{
		Region: model.RegionDescriptor{City: "atlantis"}, StepKm: 20, RadiusKm: 20,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown city")
}

func TestExecute_CompletesAndCounts(t *testing.T) {
	// Four tiles; one external id appears in two tiles, so the engine sees
	// four discoveries but reconciles them into three venues.
	prov := &fakeProvider{results: [][]model.Candidate{
		{cand("a")},
		{cand("a"), cand("b")},
		{cand("c")},
	}}
	runner, store := testRunner(t, prov)
	ctx := context.Background()

	pr, err := runner.Prepare(ctx, model.RunConfig{Region: smallBox, StepKm: 20, RadiusKm: 20})
	require.NoError(t, err)
	require.NoError(t, runner.Execute(ctx, pr))

	run, err := store.RunByID(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, 4, run.CompletedTiles)
	assert.Equal(t, 4, run.Discovered)
	assert.Equal(t, 3, run.Inserted)
	assert.Equal(t, 1, run.Updated)
	assert.Equal(t, 0, run.Skipped)
	assert.Empty(t, run.Errors)
	require.NotNil(t, run.StartedAt)
	require.NotNil(t, run.CompletedAt)

	n, err := store.CountVenues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	trail, err := store.AuditTrail(ctx, pr.ID, 0)
	require.NoError(t, err)
	assert.Len(t, trail, 4)
}

func TestExecute_TileFailureDoesNotAbortRun(t *testing.T) {
	prov := &fakeProvider{
		results: [][]model.Candidate{{cand("a")}, nil, {cand("b")}},
		errAt:   map[int]error{1: errors.New("provider exploded")},
	}
	runner, store := testRunner(t, prov)
	ctx := context.Background()

	pr, err := runner.Prepare(ctx, model.RunConfig{Region: smallBox, StepKm: 20, RadiusKm: 20})
	require.NoError(t, err)
	require.NoError(t, runner.Execute(ctx, pr))

	run, err := store.RunByID(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, 4, run.CompletedTiles)
	assert.Equal(t, 2, run.Inserted)
	require.Len(t, run.Errors, 1)
	assert.Equal(t, 2, run.Errors[0].Tile)
	assert.Contains(t, run.Errors[0].Message, "provider exploded")
}

func TestExecute_BadCandidateCountedSkipped(t *testing.T) {
	prov := &fakeProvider{results: [][]model.Candidate{
		{cand("a"), {Name: "no external id"}},
	}}
	runner, store := testRunner(t, prov)
	ctx := context.Background()

	pr, err := runner.Prepare(ctx, model.RunConfig{Region: smallBox, StepKm: 20, RadiusKm: 20})
	require.NoError(t, err)
	require.NoError(t, runner.Execute(ctx, pr))

	run, err := store.RunByID(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, 2, run.Discovered)
	assert.Equal(t, 1, run.Inserted)
	assert.Equal(t, 1, run.Skipped)
	require.Len(t, run.Errors, 1)
	assert.Contains(t, run.Errors[0].Message, "upsert")
}

func TestExecute_PauseStopsBetweenTiles(t *testing.T) {
	var runner *Runner
	var store *storage.Store
	var runID int64

	prov := &fakeProvider{results: [][]model.Candidate{{cand("a")}, {cand("b")}}}
	prov.onSearch = func(call int) {
		if call == 0 {
			require.NoError(t, store.PauseRun(context.Background(), runID))
		}
	}
	runner, store = testRunner(t, prov)
	ctx := context.Background()

	pr, err := runner.Prepare(ctx, model.RunConfig{Region: smallBox, StepKm: 20, RadiusKm: 20})
	require.NoError(t, err)
	runID = pr.ID
	require.NoError(t, runner.Execute(ctx, pr))

	run, err := store.RunByID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunPaused, run.Status)
	assert.Equal(t, 1, run.CompletedTiles)
	assert.Equal(t, 1, run.Inserted)
	assert.Equal(t, 1, prov.calls)
	assert.Nil(t, run.CompletedAt)
}

func TestExecute_CancelledContextLeavesRunRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	prov := &fakeProvider{}
	prov.onSearch = func(call int) {
		if call == 0 {
			cancel()
		}
	}
	runner, store := testRunner(t, prov)

	pr, err := runner.Prepare(context.Background(), model.RunConfig{Region: smallBox, StepKm: 20, RadiusKm: 20})
	require.NoError(t, err)

	err = runner.Execute(ctx, pr)
	require.ErrorIs(t, err, context.Canceled)

	// The row stays running for an operator to inspect; no terminal state is
	// written on process termination.
	run, err := store.RunByID(context.Background(), pr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunRunning, run.Status)
	assert.Less(t, prov.calls, 4)
	assert.Nil(t, run.CompletedAt)
}

func TestMarkFailed_OnlyTouchesRunningRuns(t *testing.T) {
	runner, store := testRunner(t, &fakeProvider{})
	ctx := context.Background()

	id, err := store.CreateRun(ctx, model.RunConfig{}, "test", 1)
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, id))

	runner.markFailed(id)
	status, err := store.RunStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, status)

	// A paused run keeps its status.
	id2, err := store.CreateRun(ctx, model.RunConfig{}, "test", 1)
	require.NoError(t, err)
	require.NoError(t, store.PauseRun(ctx, id2))

	runner.markFailed(id2)
	status, err = store.RunStatus(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, model.RunPaused, status)
}

func TestExecute_RequiresPendingRun(t *testing.T) {
	runner, _ := testRunner(t, &fakeProvider{})
	ctx := context.Background()

	pr, err := runner.Prepare(ctx, model.RunConfig{Region: smallBox, StepKm: 20, RadiusKm: 20})
	require.NoError(t, err)
	require.NoError(t, runner.Execute(ctx, pr))

	// A completed run cannot be executed again.
	err = runner.Execute(ctx, pr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not pending")
}
