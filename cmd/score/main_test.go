package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
)

const snapshots = `[
  [[10, 10, 5], [0, 0, 5], [0, 0, 5]],
  [[10, 10, 5], [0, 0, 5], [60, 60, 5]],
  [[10, 10, 5], "corrupt", [0, 0, 5]]
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runScore(t *testing.T, args ...string) (int, []domain.ReliabilityRecord, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	var records []domain.ReliabilityRecord
	if code == 0 {
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &records))
	}
	return code, records, stderr.String()
}

func TestRun_ScoresEveryObject(t *testing.T) {
	path := writeFile(t, "snap.json", snapshots)

	code, records, _ := runScore(t, "-in", path, "-hours", "3")

	require.Equal(t, 0, code)
	require.Len(t, records, 3)

	assert.Equal(t, 0, records[0].ObjectID)
	assert.InDelta(t, 100, records[0].Score, 1e-9)

	assert.Equal(t, 1, records[1].ObjectID)
	assert.Equal(t, 1, records[1].MissingCount)
	assert.Equal(t, 1, records[1].MaxGap)
	assert.InDelta(t, 93, records[1].Score, 1e-9)

	assert.Equal(t, 2, records[2].ObjectID)
	assert.Equal(t, 2, records[2].TeleportCount)
	assert.Less(t, records[2].Score, records[1].Score)
}

func TestRun_WorstOnly(t *testing.T) {
	path := writeFile(t, "snap.json", snapshots)

	code, records, _ := runScore(t, "-in", path, "-hours", "3", "-worst", "1")

	require.Equal(t, 0, code)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].ObjectID)
}

func TestRun_ThresholdConfig(t *testing.T) {
	path := writeFile(t, "snap.json", snapshots)
	cfg := writeFile(t, "scoring.yaml", "missing_weight: 0\nmax_gap_weight: 0\n")

	code, records, _ := runScore(t, "-in", path, "-hours", "3", "-config", cfg)

	require.Equal(t, 0, code)
	require.Len(t, records, 3)
	assert.InDelta(t, 100, records[1].Score, 1e-9)
}

func TestRun_MissingInput(t *testing.T) {
	code, _, _ := runScore(t)
	assert.Equal(t, 2, code)
}

func TestRun_UnreadableInput(t *testing.T) {
	code, _, stderr := runScore(t, "-in", filepath.Join(t.TempDir(), "absent.json"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "load snapshots")

	path := writeFile(t, "bad.json", `{"not": "an array"}`)
	code, _, stderr = runScore(t, "-in", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "load snapshots")
}

func TestLoadSnapshots_MarksUnparsedRows(t *testing.T) {
	path := writeFile(t, "snap.json", `[[[91, 0, 1], [1, 2], [1, 2, 3]]]`)

	obs, err := loadSnapshots(path)

	require.NoError(t, err)
	require.Len(t, obs, 3)
	assert.False(t, obs[0].ParseOK)
	assert.False(t, obs[1].ParseOK)
	assert.True(t, obs[2].ParseOK)
	assert.Equal(t, 2, obs[2].ObjectID)
	assert.InDelta(t, 1.0, *obs[2].Lat, 1e-9)
	assert.InDelta(t, 3.0, *obs[2].Alt, 1e-9)
}

func TestLoadSnapshots_FirstSnapshotIsCurrentHour(t *testing.T) {
	path := writeFile(t, "snap.json", `[[[1, 1, 1]], [[2, 2, 2]], [[3, 3, 3]]]`)

	obs, err := loadSnapshots(path)

	require.NoError(t, err)
	require.Len(t, obs, 3)
	for i, o := range obs {
		assert.Equal(t, i, o.HourOffset)
		assert.InDelta(t, float64(i+1), *o.Lat, 1e-9, "hour %d", i)
	}

	series := domain.BuildSeries(obs, domain.DefaultSeriesHours)
	require.NotNil(t, series[0][0])
	assert.InDelta(t, 1.0, series[0][0].Lat, 1e-9, "slot 0 holds the newest snapshot")
}
