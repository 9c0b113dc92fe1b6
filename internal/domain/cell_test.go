package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/balloon-reliability-service/internal/geo"
)

var testBase = time.Date(2026, time.January, 12, 10, 42, 17, 0, time.UTC)

func testCellParams() CellParams {
	return CellParams{BaseTime: testBase, StepDeg: 1, Model: "best_match", VarsVersion: "v1"}
}

func TestNewCellKey(t *testing.T) {
	k := NewCellKey(testCellParams(), 3, 31.4, -98.6)

	assert.Equal(t, time.Date(2026, time.January, 12, 7, 0, 0, 0, time.UTC), k.Time)
	assert.Equal(t, 31.0, k.LatBucket)
	assert.Equal(t, -99.0, k.LonBucket)
	assert.Equal(t, "best_match", k.Model)
	assert.Equal(t, "v1", k.VarsVersion)
	assert.Equal(t, "2026-01-12", k.Day())
	assert.Equal(t, "2026-01-12T07:00:00Z|31|-99|best_match|v1", k.String())
}

func TestNewCellKey_CrossesMidnight(t *testing.T) {
	k := NewCellKey(testCellParams(), 12, 0, 0)
	assert.Equal(t, "2026-01-11", k.Day())
	assert.Equal(t, 22, k.Time.Hour())
}

func TestNewCellKey_ClampsAndWraps(t *testing.T) {
	k := NewCellKey(testCellParams(), 0, 95, 190.2)
	assert.Equal(t, 90.0, k.LatBucket)
	assert.Equal(t, -170.0, k.LonBucket)
}

func anomalousRecord() ReliabilityRecord {
	return ReliabilityRecord{
		ObjectID: 1,
		Evidence: Evidence{
			TeleportEvents: []TeleportEvent{
				{HourOffset: 4, From: geo.Point{Lat: 0.1, Lon: 0.2}, To: geo.Point{Lat: 60.3, Lon: 59.8}},
			},
			MissingEdges: []MissingEdge{
				{HourOffset: 0, Kind: GapStart, Lat: 0.4, Lon: -0.3},
				{HourOffset: 3, Kind: GapEnd, Lat: 0.2, Lon: 0.1},
				{HourOffset: 3, Kind: GapEnd, Lat: -0.2, Lon: 0.4}, // same cell as above
			},
		},
	}
}

func TestCoalesceCells(t *testing.T) {
	cells := CoalesceCells([]ReliabilityRecord{anomalousRecord()}, testCellParams())

	want := []CellKey{
		{Time: testBase.Truncate(time.Hour).Add(-4 * time.Hour), LatBucket: 0, LonBucket: 0, Model: "best_match", VarsVersion: "v1"},
		{Time: testBase.Truncate(time.Hour).Add(-4 * time.Hour), LatBucket: 60, LonBucket: 60, Model: "best_match", VarsVersion: "v1"},
		{Time: testBase.Truncate(time.Hour).Add(-3 * time.Hour), LatBucket: 0, LonBucket: 0, Model: "best_match", VarsVersion: "v1"},
		{Time: testBase.Truncate(time.Hour), LatBucket: 0, LonBucket: 0, Model: "best_match", VarsVersion: "v1"},
	}
	if diff := cmp.Diff(want, cells); diff != "" {
		t.Fatalf("cells mismatch (-want +got):\n%s", diff)
	}
}

func TestCoalesceCells_Idempotent(t *testing.T) {
	rec := anomalousRecord()
	once := CoalesceCells([]ReliabilityRecord{rec}, testCellParams())
	twice := CoalesceCells([]ReliabilityRecord{rec, rec}, testCellParams())

	assert.Equal(t, once, twice)

	seen := make(map[string]bool)
	for _, c := range twice {
		require.False(t, seen[c.String()], "duplicate key %s", c)
		seen[c.String()] = true
	}
}

func TestCoalesceCells_ModelAndVersionAreKeyed(t *testing.T) {
	rec := anomalousRecord()
	p := testCellParams()
	a := CoalesceCells([]ReliabilityRecord{rec}, p)
	p.VarsVersion = "v2"
	b := CoalesceCells([]ReliabilityRecord{rec}, p)

	require.Len(t, b, len(a))
	assert.NotEqual(t, a[0].String(), b[0].String())
}

func TestCoalesceCells_NoEvidence(t *testing.T) {
	cells := CoalesceCells([]ReliabilityRecord{{ObjectID: 1}}, testCellParams())
	assert.Empty(t, cells)
}
