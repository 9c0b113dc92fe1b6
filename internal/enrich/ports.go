package enrich

import (
	"context"
	"time"

	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
)

// HourlyVars are the hourly variables requested from the provider, in request order.
var HourlyVars = []string{
	"temperature_2m",
	"windspeed_10m",
	"winddirection_10m",
	"pressure_msl",
	"precipitation",
	"windgusts_10m",
}

// BatchRequest asks the provider for hourly readings at several locations
// over a UTC date range. Lats and Lons are parallel.
type BatchRequest struct {
	Lats      []float64
	Lons      []float64
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
}

// HourlySeries holds the provider's hourly arrays for one location. Value
// slices are parallel to Time; any of them may be shorter or absent, and any
// entry may be nil.
type HourlySeries struct {
	Time          []string
	Temp2m        []*float64
	WindSpeed10m  []*float64
	WindDir10m    []*float64
	PressureMSL   []*float64
	Precipitation []*float64
	WindGusts10m  []*float64
}

// LocationHourly is the provider response for one requested location, in request order.
type LocationHourly struct {
	Latitude  float64
	Longitude float64
	Hourly    HourlySeries
}

// Provider fetches hourly weather for a batch of locations.
// Implementations return *RetryableError for rate limiting and transient
// failures and *PermanentError for requests that will never succeed.
type Provider interface {
	FetchHourly(ctx context.Context, req BatchRequest) ([]LocationHourly, error)
}

// CacheStore is the shared weather cell cache.
type CacheStore interface {
	// ExistingCells returns the keys of cached cells for model/varsVersion
	// whose time falls in [from, to].
	ExistingCells(ctx context.Context, model, varsVersion string, from, to time.Time) ([]domain.CellKey, error)

	// InsertCells bulk-inserts cells, silently skipping keys that already
	// exist. It returns the number of rows actually inserted.
	InsertCells(ctx context.Context, cells []domain.WeatherCell) (int, error)
}

// RunStore exposes run metadata and scored records to the orchestrator.
type RunStore interface {
	GetRun(ctx context.Context, runID int64) (domain.Run, error)

	// WorstRecords returns up to limit records with score <= maxScore,
	// lowest score first, ties broken by object id.
	WorstRecords(ctx context.Context, runID int64, maxScore float64, limit int) ([]domain.ReliabilityRecord, error)

	MarkEnriched(ctx context.Context, runID int64, at time.Time) error
}

// Locker serializes enrichment of the same run across processes.
type Locker interface {
	// Lock acquires key or returns ErrRunBusy. The returned func releases it.
	Lock(ctx context.Context, key string) (func(context.Context) error, error)
}
