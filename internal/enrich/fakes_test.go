package enrich

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fptr(v float64) *float64 { return &v }

// fakeProvider answers every request with one hourly series per location
// covering all 24 hours of the requested day, unless respond is set.
type fakeProvider struct {
	mu       sync.Mutex
	requests []BatchRequest
	respond  func(call int, req BatchRequest) ([]LocationHourly, error)
}

func (p *fakeProvider) FetchHourly(ctx context.Context, req BatchRequest) ([]LocationHourly, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	call := len(p.requests)
	p.mu.Unlock()

	resp := fullDay(req)
	var err error
	if p.respond != nil {
		resp, err = p.respond(call, req)
	}
	// A cancelled request never delivers its response.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return resp, err
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func fullDay(req BatchRequest) []LocationHourly {
	day, _ := time.Parse(time.DateOnly, req.StartDate)
	out := make([]LocationHourly, len(req.Lats))
	for i := range req.Lats {
		var h HourlySeries
		for hr := range 24 {
			h.Time = append(h.Time, day.Add(time.Duration(hr)*time.Hour).Format(providerTimeLayout))
			h.Temp2m = append(h.Temp2m, fptr(float64(hr)))
			h.WindSpeed10m = append(h.WindSpeed10m, fptr(5))
			h.WindDir10m = append(h.WindDir10m, fptr(180))
			h.PressureMSL = append(h.PressureMSL, fptr(1013))
			h.Precipitation = append(h.Precipitation, nil)
			h.WindGusts10m = append(h.WindGusts10m, fptr(9))
		}
		out[i] = LocationHourly{Latitude: req.Lats[i], Longitude: req.Lons[i], Hourly: h}
	}
	return out
}

// fakeCache is an in-memory CacheStore keyed by CellKey.String.
type fakeCache struct {
	mu    sync.Mutex
	cells map[string]domain.WeatherCell
}

func newFakeCache(keys ...domain.CellKey) *fakeCache {
	c := &fakeCache{cells: make(map[string]domain.WeatherCell)}
	for _, k := range keys {
		c.cells[k.String()] = domain.WeatherCell{CellKey: k}
	}
	return c
}

func (c *fakeCache) ExistingCells(_ context.Context, model, vars string, from, to time.Time) ([]domain.CellKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.CellKey
	for _, cell := range c.cells {
		k := cell.CellKey
		if k.Model == model && k.VarsVersion == vars && !k.Time.Before(from) && !k.Time.After(to) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (c *fakeCache) InsertCells(_ context.Context, cells []domain.WeatherCell) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cell := range cells {
		key := cell.String()
		if _, ok := c.cells[key]; ok {
			continue
		}
		c.cells[key] = cell
		n++
	}
	return n, nil
}

func (c *fakeCache) get(k domain.CellKey) (domain.WeatherCell, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cell, ok := c.cells[k.String()]
	return cell, ok
}

func (c *fakeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cells)
}

// fakeRuns is an in-memory RunStore holding one run.
type fakeRuns struct {
	mu       sync.Mutex
	run      domain.Run
	records  []domain.ReliabilityRecord
	enriched int
}

func (r *fakeRuns) GetRun(_ context.Context, runID int64) (domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if runID != r.run.ID {
		return domain.Run{}, domain.ErrRunNotFound
	}
	return r.run, nil
}

func (r *fakeRuns) WorstRecords(_ context.Context, _ int64, maxScore float64, limit int) ([]domain.ReliabilityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ReliabilityRecord
	for _, rec := range r.records {
		if rec.Score <= maxScore {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].ObjectID < out[j].ObjectID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRuns) MarkEnriched(_ context.Context, _ int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run.EnrichedAt = &at
	r.enriched++
	return nil
}

func (r *fakeRuns) enrichedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enriched
}
