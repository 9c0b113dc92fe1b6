package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
)

// IngestRun is one ingestion cycle.
type IngestRun struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	StartedAt     time.Time `gorm:"not null;index"`
	IngestOK      bool      `gorm:"column:ingest_ok;not null"`
	ReliabilityAt *time.Time
	EnrichedAt    *time.Time
	CreatedAt     time.Time
}

// Snapshot is one hourly position fetch within a run.
type Snapshot struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	RunID      int64     `gorm:"not null;uniqueIndex:idx_snapshot_run_hour"`
	HourOffset int       `gorm:"not null;uniqueIndex:idx_snapshot_run_hour"`
	CreatedAt  time.Time `gorm:"not null"`
}

// Observation is one object's raw position within a snapshot.
type Observation struct {
	ID         int64    `gorm:"primaryKey;autoIncrement"`
	RunID      int64    `gorm:"not null;index:idx_observation_run"`
	ObjectID   int      `gorm:"not null"`
	HourOffset int      `gorm:"not null"`
	Lat        *float64 `gorm:"column:lat"`
	Lon        *float64 `gorm:"column:lon"`
	Alt        *float64 `gorm:"column:alt"`
	ParseOK    bool     `gorm:"column:parse_ok;not null"`
}

// Reliability is one scored object of a run.
type Reliability struct {
	ID            int64          `gorm:"primaryKey;autoIncrement"`
	RunID         int64          `gorm:"not null;uniqueIndex:idx_reliability_run_object;index:idx_reliability_run_score,priority:1"`
	ObjectID      int            `gorm:"not null;uniqueIndex:idx_reliability_run_object"`
	Score         float64        `gorm:"not null;index:idx_reliability_run_score,priority:2"`
	MissingCount  int            `gorm:"not null"`
	TeleportCount int            `gorm:"not null"`
	MaxGap        int            `gorm:"not null"`
	Evidence      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time
}

// TableName keeps the singular table name used by the ingestion collaborator.
func (Reliability) TableName() string { return "reliability" }

// WeatherCacheCell is one cached provider reading, unique on its full key.
type WeatherCacheCell struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	Time          time.Time `gorm:"not null;uniqueIndex:idx_weather_cell_key,priority:1"`
	LatBucket     float64   `gorm:"not null;uniqueIndex:idx_weather_cell_key,priority:2"`
	LonBucket     float64   `gorm:"not null;uniqueIndex:idx_weather_cell_key,priority:3"`
	Model         string    `gorm:"not null;uniqueIndex:idx_weather_cell_key,priority:4"`
	VarsVersion   string    `gorm:"not null;uniqueIndex:idx_weather_cell_key,priority:5"`
	Temp2m        *float64  `gorm:"column:temp_2m"`
	WindSpeed10m  *float64  `gorm:"column:windspeed_10m"`
	WindDir10m    *float64  `gorm:"column:winddir_10m"`
	PressureMSL   *float64  `gorm:"column:pressure_msl"`
	Precipitation *float64  `gorm:"column:precipitation"`
	WindGusts10m  *float64  `gorm:"column:windgusts_10m"`
	CreatedAt     time.Time
}

func toReliabilityRow(runID int64, r domain.ReliabilityRecord) (Reliability, error) {
	evidence, err := json.Marshal(r.Evidence)
	if err != nil {
		return Reliability{}, fmt.Errorf("marshal evidence for object %d: %w", r.ObjectID, err)
	}
	return Reliability{
		RunID:         runID,
		ObjectID:      r.ObjectID,
		Score:         r.Score,
		MissingCount:  r.MissingCount,
		TeleportCount: r.TeleportCount,
		MaxGap:        r.MaxGap,
		Evidence:      datatypes.JSON(evidence),
	}, nil
}

func (r Reliability) toDomain() (domain.ReliabilityRecord, error) {
	rec := domain.ReliabilityRecord{
		ObjectID:      r.ObjectID,
		Score:         r.Score,
		MissingCount:  r.MissingCount,
		TeleportCount: r.TeleportCount,
		MaxGap:        r.MaxGap,
	}
	if len(r.Evidence) > 0 {
		if err := json.Unmarshal(r.Evidence, &rec.Evidence); err != nil {
			return domain.ReliabilityRecord{}, fmt.Errorf("unmarshal evidence for object %d: %w", r.ObjectID, err)
		}
	}
	return rec, nil
}

func toCellRow(c domain.WeatherCell) WeatherCacheCell {
	return WeatherCacheCell{
		Time:          c.Time.UTC(),
		LatBucket:     c.LatBucket,
		LonBucket:     c.LonBucket,
		Model:         c.Model,
		VarsVersion:   c.VarsVersion,
		Temp2m:        c.Temp2m,
		WindSpeed10m:  c.WindSpeed10m,
		WindDir10m:    c.WindDir10m,
		PressureMSL:   c.PressureMSL,
		Precipitation: c.Precipitation,
		WindGusts10m:  c.WindGusts10m,
	}
}

func (c WeatherCacheCell) key() domain.CellKey {
	return domain.CellKey{
		Time:        c.Time.UTC(),
		LatBucket:   c.LatBucket,
		LonBucket:   c.LonBucket,
		Model:       c.Model,
		VarsVersion: c.VarsVersion,
	}
}

func (o Observation) toDomain() domain.RawObservation {
	return domain.RawObservation{
		ObjectID:   o.ObjectID,
		HourOffset: o.HourOffset,
		Lat:        o.Lat,
		Lon:        o.Lon,
		Alt:        o.Alt,
		ParseOK:    o.ParseOK,
	}
}

func (r IngestRun) toDomain() domain.Run {
	return domain.Run{
		ID:            r.ID,
		StartedAt:     r.StartedAt.UTC(),
		IngestOK:      r.IngestOK,
		ReliabilityAt: r.ReliabilityAt,
		EnrichedAt:    r.EnrichedAt,
		BaseTime:      r.StartedAt.UTC(),
	}
}
