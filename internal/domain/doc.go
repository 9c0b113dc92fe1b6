// Package domain models tracked-object trajectories, their reliability scores,
// and the weather cache cells used to enrich anomalous trajectories.
//
// # Data Source
//
// Each ingestion run captures 24 hourly snapshots of a balloon constellation.
// Snapshot i holds one row per object, indexed by position in the array, so
// the object id is the row index and the hour-offset is the snapshot index.
// Hour-offset 0 is the most recent snapshot; offset h is h hours earlier.
//
// Row format:
//
//	[lat, lon, alt]  →  e.g. [31.02, -98.44, 17.3]
//	lat in [-90, 90], lon in [-180, 180], altitude in km.
//	Rows that are not three finite numbers, or are out of range, are recorded
//	as parse failures and become gaps. See [ParsePoint].
//
// # Reliability Scoring
//
// [ScoreWith] walks one object's [Series] once. Consecutive valid samples are
// compared by haversine speed over the true elapsed hours (gaps widen the
// divisor), by altitude delta, and by the turn between successive legs.
//
//	Speed:    >200 km/h tallied | >350 teleport event | >600 top tier
//	Altitude: >5 km tallied | >10 km top tier
//	Turn:     >90° tallied | >135° top tier
//
// Penalties:
//
//	missing  = 2·missingCount + 5·maxGap
//	teleport = min(45, 6·√n200 + 10·√n350 + 14·√n600)
//	turn     = 5·n135 + 2·n90
//	altitude = 3·n10 + 1·n5
//	score    = max(0, 100 − missing − teleport − turn − altitude)
//
// The constants live in [Thresholds] and can be tuned per deployment.
//
// # Weather Cells
//
// Anomaly points (teleport endpoints and gap edges) are coarsened into
// [CellKey]s: time floored to the UTC hour, coordinates rounded to a degree
// step. Cells are immutable once cached; enrichment only inserts missing ones,
// so overlapping runs reuse each other's lookups.
package domain
