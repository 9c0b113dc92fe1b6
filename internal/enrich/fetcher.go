package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/balloon-reliability-service/internal/observability"
)

// Fetcher issues one retried provider request per batch and writes the
// resulting rows to the cache.
type Fetcher struct {
	provider Provider
	cache    CacheStore
	clock    clockwork.Clock
	policy   RetryPolicy
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewFetcher creates a batch fetcher.
func NewFetcher(provider Provider, cache CacheStore, clock clockwork.Clock, policy RetryPolicy, metrics *observability.Metrics, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		provider: provider,
		cache:    cache,
		clock:    clock,
		policy:   policy,
		metrics:  metrics,
		logger:   logger,
	}
}

// FetchBatch requests one day's batch of locations and inserts every
// requested cell the provider answered. Nothing is written unless the
// provider call succeeds.
// It returns the number of rows written; rows another run cached first
// are counted too, since the cell is enriched either way.
func (f *Fetcher) FetchBatch(ctx context.Context, day string, batch []LocationGroup) (int, error) {
	req := NewBatchRequest(day, batch)

	resp, err := Retry(ctx, f.clock, f.policy, f.logger, func(ctx context.Context) ([]LocationHourly, error) {
		return f.fetchOnce(ctx, req)
	})
	if err != nil {
		return 0, fmt.Errorf("fetch %s (%d locations): %w", day, len(batch), err)
	}

	rows := RowsFromResponse(batch, resp, f.logger)
	if len(rows) == 0 {
		f.logger.Warn("provider returned no requested hours", "day", day, "locations", len(batch))
		return 0, nil
	}

	n, err := f.cache.InsertCells(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("insert cells for %s: %w", day, err)
	}
	f.metrics.RowsEnriched.Add(float64(n))
	if n < len(rows) {
		f.logger.Debug("some cells were already cached", "day", day, "skipped", len(rows)-n)
	}
	return len(rows), nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, req BatchRequest) ([]LocationHourly, error) {
	start := f.clock.Now()
	resp, err := f.provider.FetchHourly(ctx, req)
	f.metrics.ProviderDuration.Observe(f.clock.Since(start).Seconds())

	var re *RetryableError
	switch {
	case err == nil:
		f.metrics.ProviderRequests.WithLabelValues("success").Inc()
	case errors.As(err, &re) && re.RetryAfter != nil:
		f.metrics.ProviderRequests.WithLabelValues("rate_limited").Inc()
	default:
		f.metrics.ProviderRequests.WithLabelValues("error").Inc()
	}
	return resp, err
}

