//go:build integration

package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func obsAt(objectID int, lat, lon float64) domain.RawObservation {
	return domain.RawObservation{ObjectID: objectID, Lat: ptr(lat), Lon: ptr(lon), Alt: ptr(12), ParseOK: true}
}

func TestStoreRunLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startPostgres(ctx, t)

	started := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	runID, err := store.CreateRun(ctx, started, true)
	require.NoError(t, err)

	require.NoError(t, store.AddSnapshot(ctx, runID, 1, started.Add(time.Minute), []domain.RawObservation{
		obsAt(0, 10, 10), {ObjectID: 1, ParseOK: false},
	}))
	require.NoError(t, store.AddSnapshot(ctx, runID, 0, started.Add(5*time.Minute), []domain.RawObservation{
		obsAt(0, 10.5, 10.5), obsAt(1, -20, 170),
	}))

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.True(t, run.IngestOK)
	assert.Equal(t, domain.RunIngested, run.State())
	assert.True(t, started.Add(5*time.Minute).Equal(run.BaseTime), "base time is the latest snapshot")

	obs, err := store.Observations(ctx, runID)
	require.NoError(t, err)
	require.Len(t, obs, 4)
	assert.Equal(t, 1, obs[0].HourOffset)
	assert.False(t, obs[1].ParseOK)
	assert.Nil(t, obs[1].Lat)

	pending, err := store.PendingRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, runID, pending[0].ID)

	records := []domain.ReliabilityRecord{
		{ObjectID: 0, Score: 96, Evidence: domain.Evidence{TeleportEvents: []domain.TeleportEvent{}, MissingEdges: []domain.MissingEdge{}}},
		{ObjectID: 1, Score: 40, MissingCount: 1, MaxGap: 1, Evidence: domain.Evidence{
			TeleportEvents: []domain.TeleportEvent{},
			MissingEdges:   []domain.MissingEdge{{HourOffset: 0, Kind: domain.GapEnd, Lat: -20, Lon: 170}},
		}},
	}
	scoredAt := started.Add(10 * time.Minute)
	require.NoError(t, store.ReplaceRecords(ctx, runID, records, scoredAt))

	// Rescoring replaces rather than appends.
	require.NoError(t, store.ReplaceRecords(ctx, runID, records, scoredAt))

	worst, err := store.WorstRecords(ctx, runID, 70, 50)
	require.NoError(t, err)
	require.Len(t, worst, 1)
	assert.Equal(t, 1, worst[0].ObjectID)
	assert.Equal(t, records[1].Evidence.MissingEdges, worst[0].Evidence.MissingEdges)

	all, err := store.WorstRecords(ctx, runID, 100, 50)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	run, err = store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunScored, run.State())

	require.NoError(t, store.MarkEnriched(ctx, runID, scoredAt.Add(time.Minute)))
	require.NoError(t, store.MarkEnriched(ctx, runID, scoredAt.Add(time.Hour)))

	run, err = store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunEnriched, run.State())
	require.NotNil(t, run.EnrichedAt)
	assert.True(t, scoredAt.Add(time.Minute).Equal(*run.EnrichedAt), "first mark wins")

	pending, err = store.PendingRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStoreMissingRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startPostgres(ctx, t)

	_, err := store.GetRun(ctx, 999)
	require.ErrorIs(t, err, domain.ErrRunNotFound)

	err = store.ReplaceRecords(ctx, 999, nil, time.Now())
	require.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestStoreFailedRunNotPending(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startPostgres(ctx, t)

	_, err := store.CreateRun(ctx, time.Now(), false)
	require.NoError(t, err)

	pending, err := store.PendingRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStoreWeatherCache(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startPostgres(ctx, t)

	hour := time.Date(2026, time.March, 1, 6, 0, 0, 0, time.UTC)
	key := func(h int, lat float64) domain.CellKey {
		return domain.CellKey{Time: hour.Add(time.Duration(h) * time.Hour), LatBucket: lat, LonBucket: -75, Model: "best_match", VarsVersion: "v1"}
	}

	first := []domain.WeatherCell{
		{CellKey: key(0, 40), Temp2m: ptr(3.5), PressureMSL: ptr(1012)},
		{CellKey: key(1, 40), Temp2m: ptr(4)},
	}
	n, err := store.InsertCells(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Overlapping insert skips the existing key and keeps the first value.
	n, err = store.InsertCells(ctx, []domain.WeatherCell{
		{CellKey: key(1, 40), Temp2m: ptr(99)},
		{CellKey: key(1, 41)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cell, err := store.Cell(ctx, key(1, 40))
	require.NoError(t, err)
	require.NotNil(t, cell.Temp2m)
	assert.InDelta(t, 4.0, *cell.Temp2m, 1e-9)
	assert.Nil(t, cell.Precipitation)

	keys, err := store.ExistingCells(ctx, "best_match", "v1", hour, hour.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, keys, 3, "range is inclusive at both ends")

	keys, err = store.ExistingCells(ctx, "best_match", "v2", hour, hour.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = store.ExistingCells(ctx, "best_match", "v1", hour.Add(time.Hour), hour.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
