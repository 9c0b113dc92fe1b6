package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
)

const insertBatchSize = 500

// Store persists runs, observations, reliability records, and the weather
// cell cache. It implements enrich.RunStore, enrich.CacheStore, and
// pipeline.RunStore.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := New(db, logger)
	if err := s.Ping(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Migrate creates or updates every table the service uses.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&IngestRun{},
		&Snapshot{},
		&Observation{},
		&Reliability{},
		&WeatherCacheCell{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("postgres handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateRun records the start of an ingestion cycle.
func (s *Store) CreateRun(ctx context.Context, startedAt time.Time, ingestOK bool) (int64, error) {
	run := IngestRun{StartedAt: startedAt.UTC(), IngestOK: ingestOK}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}
	return run.ID, nil
}

// AddSnapshot stores one hourly snapshot and its observations atomically.
func (s *Store) AddSnapshot(ctx context.Context, runID int64, hourOffset int, createdAt time.Time, obs []domain.RawObservation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		snap := Snapshot{RunID: runID, HourOffset: hourOffset, CreatedAt: createdAt.UTC()}
		if err := tx.Create(&snap).Error; err != nil {
			return fmt.Errorf("create snapshot: %w", err)
		}
		if len(obs) == 0 {
			return nil
		}
		rows := make([]Observation, len(obs))
		for i, o := range obs {
			rows[i] = Observation{
				RunID:      runID,
				ObjectID:   o.ObjectID,
				HourOffset: hourOffset,
				Lat:        o.Lat,
				Lon:        o.Lon,
				Alt:        o.Alt,
				ParseOK:    o.ParseOK,
			}
		}
		if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("create observations: %w", err)
		}
		return nil
	})
}

// GetRun loads a run and resolves its base time from the latest snapshot.
func (s *Store) GetRun(ctx context.Context, runID int64) (domain.Run, error) {
	var row IngestRun
	err := s.db.WithContext(ctx).First(&row, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Run{}, fmt.Errorf("run %d: %w", runID, domain.ErrRunNotFound)
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("get run %d: %w", runID, err)
	}

	run := row.toDomain()

	var latest []Snapshot
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at DESC").
		Limit(1).
		Find(&latest).Error; err != nil {
		return domain.Run{}, fmt.Errorf("latest snapshot for run %d: %w", runID, err)
	}
	if len(latest) == 1 {
		run.BaseTime = latest[0].CreatedAt.UTC()
	}
	return run, nil
}

// PendingRuns returns successfully ingested runs not yet enriched, newest
// first. BaseTime is left as StartedAt; callers needing the resolved base
// time use GetRun.
func (s *Store) PendingRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	var rows []IngestRun
	if err := s.db.WithContext(ctx).
		Where("ingest_ok = ? AND enriched_at IS NULL", true).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("pending runs: %w", err)
	}
	runs := make([]domain.Run, len(rows))
	for i, r := range rows {
		runs[i] = r.toDomain()
	}
	return runs, nil
}

// Observations returns every raw observation of a run.
func (s *Store) Observations(ctx context.Context, runID int64) ([]domain.RawObservation, error) {
	var rows []Observation
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("observations for run %d: %w", runID, err)
	}
	out := make([]domain.RawObservation, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// ReplaceRecords deletes a run's previous records, inserts the new ones, and
// stamps reliability_at, all in one transaction.
func (s *Store) ReplaceRecords(ctx context.Context, runID int64, records []domain.ReliabilityRecord, at time.Time) error {
	rows := make([]Reliability, len(records))
	for i, r := range records {
		row, err := toReliabilityRow(runID, r)
		if err != nil {
			return err
		}
		rows[i] = row
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&Reliability{}).Error; err != nil {
			return fmt.Errorf("delete records for run %d: %w", runID, err)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert records for run %d: %w", runID, err)
			}
		}
		res := tx.Model(&IngestRun{}).Where("id = ?", runID).Update("reliability_at", at.UTC())
		if res.Error != nil {
			return fmt.Errorf("stamp run %d: %w", runID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("run %d: %w", runID, domain.ErrRunNotFound)
		}
		return nil
	})
}

// WorstRecords returns up to limit records scoring at or below maxScore,
// lowest first.
func (s *Store) WorstRecords(ctx context.Context, runID int64, maxScore float64, limit int) ([]domain.ReliabilityRecord, error) {
	var rows []Reliability
	if err := s.db.WithContext(ctx).
		Where("run_id = ? AND score <= ?", runID, maxScore).
		Order("score ASC").
		Order("object_id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("worst records for run %d: %w", runID, err)
	}
	out := make([]domain.ReliabilityRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// MarkEnriched stamps enriched_at unless another invocation already did.
func (s *Store) MarkEnriched(ctx context.Context, runID int64, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&IngestRun{}).
		Where("id = ? AND enriched_at IS NULL", runID).
		Update("enriched_at", at.UTC())
	if res.Error != nil {
		return fmt.Errorf("mark run %d enriched: %w", runID, res.Error)
	}
	if res.RowsAffected == 0 {
		s.logger.Warn("run already marked enriched", "run_id", runID)
	}
	return nil
}

// ExistingCells returns cached keys for model/varsVersion with time in [from, to].
func (s *Store) ExistingCells(ctx context.Context, model, varsVersion string, from, to time.Time) ([]domain.CellKey, error) {
	var rows []WeatherCacheCell
	if err := s.db.WithContext(ctx).
		Select("time", "lat_bucket", "lon_bucket", "model", "vars_version").
		Where("model = ? AND vars_version = ? AND time BETWEEN ? AND ?", model, varsVersion, from.UTC(), to.UTC()).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("existing cells: %w", err)
	}
	keys := make([]domain.CellKey, len(rows))
	for i, r := range rows {
		keys[i] = r.key()
	}
	return keys, nil
}

// InsertCells bulk-inserts cells, skipping keys already present.
func (s *Store) InsertCells(ctx context.Context, cells []domain.WeatherCell) (int, error) {
	if len(cells) == 0 {
		return 0, nil
	}
	rows := make([]WeatherCacheCell, len(cells))
	for i, c := range cells {
		rows[i] = toCellRow(c)
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, insertBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("insert cells: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// Cell loads one cached cell by exact key.
func (s *Store) Cell(ctx context.Context, k domain.CellKey) (domain.WeatherCell, error) {
	var row WeatherCacheCell
	err := s.db.WithContext(ctx).
		Where("time = ? AND lat_bucket = ? AND lon_bucket = ? AND model = ? AND vars_version = ?",
			k.Time.UTC(), k.LatBucket, k.LonBucket, k.Model, k.VarsVersion).
		First(&row).Error
	if err != nil {
		return domain.WeatherCell{}, fmt.Errorf("cell %s: %w", k, err)
	}
	return domain.WeatherCell{
		CellKey:       row.key(),
		Temp2m:        row.Temp2m,
		WindSpeed10m:  row.WindSpeed10m,
		WindDir10m:    row.WindDir10m,
		PressureMSL:   row.PressureMSL,
		Precipitation: row.Precipitation,
		WindGusts10m:  row.WindGusts10m,
	}, nil
}
