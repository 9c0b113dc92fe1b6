package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
	"github.com/couchcryptid/balloon-reliability-service/internal/observability"
)

// Options tunes candidate selection, batching, and pacing.
type Options struct {
	ScoreThreshold float64
	SampleSize     int
	MaxRequests    int
	MaxLocations   int
	MinDelay       time.Duration
	StepDeg        float64
	Model          string
	VarsVersion    string
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		ScoreThreshold: 70,
		SampleSize:     50,
		MaxRequests:    25,
		MaxLocations:   50,
		MinDelay:       time.Second,
		StepDeg:        1,
		Model:          "best_match",
		VarsVersion:    "v1",
	}
}

// Budget is the per-invocation provider request ceiling. It is passed into
// and returned from EnrichWithBudget rather than kept in the service, so
// callers can thread it through several runs or resume it.
type Budget struct {
	MaxRequests  int
	RequestsMade int
	StartedAt    time.Time
}

// NewBudget returns an unused budget of maxRequests started at now.
func NewBudget(maxRequests int, now time.Time) Budget {
	return Budget{MaxRequests: maxRequests, StartedAt: now}
}

// Exhausted reports whether no further provider request may be issued.
func (b Budget) Exhausted() bool {
	return b.RequestsMade >= b.MaxRequests
}

// Service enriches the worst-scoring objects of a run with cached weather cells.
type Service struct {
	runs    RunStore
	cache   CacheStore
	fetcher *Fetcher
	locker  Locker
	clock   clockwork.Clock
	opts    Options
	metrics *observability.Metrics
	logger  *slog.Logger

	group singleflight.Group
}

// NewService creates an enrichment service. A nil locker falls back to
// in-process locking.
func NewService(runs RunStore, cache CacheStore, fetcher *Fetcher, locker Locker, clock clockwork.Clock, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Service{
		runs:    runs,
		cache:   cache,
		fetcher: fetcher,
		locker:  locker,
		clock:   clock,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
	}
}

// flightTimeout bounds a shared enrichment execution once it is detached from
// the caller that started it.
const flightTimeout = 10 * time.Minute

// Enrich runs one invocation for runID with a fresh request budget.
// Concurrent calls for the same run in this process share a single execution.
// The execution does not inherit the starting caller's cancellation, so a
// caller that gives up returns ctx.Err() while the others still get a result.
func (s *Service) Enrich(ctx context.Context, runID int64) (domain.EnrichmentOutcome, error) {
	ch := s.group.DoChan(strconv.FormatInt(runID, 10), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()
		out, _, err := s.EnrichWithBudget(fctx, runID, NewBudget(s.opts.MaxRequests, s.clock.Now()))
		return out, err
	})

	select {
	case <-ctx.Done():
		return domain.EnrichmentOutcome{RunID: runID}, ctx.Err()
	case res := <-ch:
		out, _ := res.Val.(domain.EnrichmentOutcome)
		return out, res.Err
	}
}

// EnrichWithBudget enriches runID while the budget allows. The run must be in
// the scored state; otherwise it fails before any side effect. When the
// budget runs out the outcome reports Done=false and the run stays scored, so
// a later call resumes from whatever the cache now holds. On a batch failure
// the partial outcome is returned alongside the error.
func (s *Service) EnrichWithBudget(ctx context.Context, runID int64, b Budget) (domain.EnrichmentOutcome, Budget, error) {
	out := domain.EnrichmentOutcome{RunID: runID, RequestsMade: b.RequestsMade}

	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return out, b, err
	}
	if err := run.CheckEnrichable(); err != nil {
		return out, b, err
	}

	unlock, err := s.locker.Lock(ctx, lockKey(runID))
	if err != nil {
		return out, b, fmt.Errorf("run %d: %w", runID, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release run lock", "run_id", runID, "error", err)
		}
	}()

	// Another process may have finished while we waited for the lock.
	run, err = s.runs.GetRun(ctx, runID)
	if err != nil {
		return out, b, err
	}
	if err := run.CheckEnrichable(); err != nil {
		return out, b, err
	}

	records, err := s.runs.WorstRecords(ctx, runID, s.opts.ScoreThreshold, s.opts.SampleSize)
	if err != nil {
		return out, b, fmt.Errorf("select worst records: %w", err)
	}

	cells := domain.CoalesceCells(records, domain.CellParams{
		BaseTime:    run.BaseTime,
		StepDeg:     s.opts.StepDeg,
		Model:       s.opts.Model,
		VarsVersion: s.opts.VarsVersion,
	})
	out.Candidates = len(cells)

	cached, missing, err := PartitionCached(ctx, s.cache, cells)
	if err != nil {
		return out, b, err
	}
	out.Missing = len(missing)
	s.metrics.EnrichCells.WithLabelValues("hit").Add(float64(len(cached)))
	s.metrics.EnrichCells.WithLabelValues("miss").Add(float64(len(missing)))

	log := s.logger.With("run_id", runID)
	log.Info("enrichment candidates",
		"records", len(records),
		"cells", len(cells),
		"cached", len(cached),
		"missing", len(missing),
	)

	issued := 0
	for _, day := range GroupMissing(missing) {
		for _, batch := range Chunk(day.Locations, s.opts.MaxLocations) {
			if b.Exhausted() {
				out = partial(out, b)
				s.metrics.EnrichIncomplete.Inc()
				log.Info("request budget exhausted",
					"requests_made", b.RequestsMade,
					"remaining", out.Remaining,
				)
				return out, b, nil
			}

			if issued > 0 {
				if err := sleepWithContext(ctx, s.clock, s.opts.MinDelay); err != nil {
					return partial(out, b), b, err
				}
			}
			issued++

			rows, err := s.fetcher.FetchBatch(ctx, day.Day, batch)
			if err != nil {
				return partial(out, b), b, err
			}
			b.RequestsMade++
			out.RowsEnriched += rows
			log.Debug("batch enriched", "day", day.Day, "locations", len(batch), "rows", rows)
		}
	}

	if err := s.runs.MarkEnriched(ctx, runID, domain.Now()); err != nil {
		return partial(out, b), b, fmt.Errorf("mark run %d enriched: %w", runID, err)
	}

	// Cells the provider did not answer stay uncached and are still counted
	// as remaining, though the run itself is finished.
	out = partial(out, b)
	out.Done = true
	log.Info("run enriched",
		"rows", out.RowsEnriched,
		"requests_made", b.RequestsMade,
		"elapsed", s.clock.Since(b.StartedAt),
	)
	return out, b, nil
}

func partial(out domain.EnrichmentOutcome, b Budget) domain.EnrichmentOutcome {
	out.Remaining = max(0, out.Missing-out.RowsEnriched)
	out.RequestsMade = b.RequestsMade
	return out
}

func lockKey(runID int64) string {
	return "enrich:run:" + strconv.FormatInt(runID, 10)
}
