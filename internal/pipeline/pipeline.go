package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
	"github.com/couchcryptid/balloon-reliability-service/internal/enrich"
	"github.com/couchcryptid/balloon-reliability-service/internal/observability"
)

// RunStore is the persistence the scorer and processor need.
type RunStore interface {
	GetRun(ctx context.Context, runID int64) (domain.Run, error)
	Observations(ctx context.Context, runID int64) ([]domain.RawObservation, error)
	ReplaceRecords(ctx context.Context, runID int64, records []domain.ReliabilityRecord, at time.Time) error
	PendingRuns(ctx context.Context, limit int) ([]domain.Run, error)
}

// Enricher runs one enrichment invocation for a scored run.
type Enricher interface {
	Enrich(ctx context.Context, runID int64) (domain.EnrichmentOutcome, error)
}

// Publisher emits scored records and enrichment outcomes downstream.
type Publisher interface {
	PublishRecords(ctx context.Context, runID int64, records []domain.ReliabilityRecord, scoredAt time.Time) error
	PublishOutcome(ctx context.Context, out domain.EnrichmentOutcome, at time.Time) error
}

const (
	pendingLimit   = 10
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Processor polls for runs that still need scoring or enrichment and drives
// each one through both stages.
type Processor struct {
	store     RunStore
	scorer    *Scorer
	enricher  Enricher
	publisher Publisher
	clock     clockwork.Clock
	interval  time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// NewProcessor creates a Processor. A nil enricher disables enrichment; a
// nil publisher disables outcome publishing.
func NewProcessor(store RunStore, scorer *Scorer, enricher Enricher, publisher Publisher, clock clockwork.Clock, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		store:     store,
		scorer:    scorer,
		enricher:  enricher,
		publisher: publisher,
		clock:     clock,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once the processor has completed a polling
// cycle, or an error describing why the service is not yet ready.
func (p *Processor) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("processor has not completed a polling cycle yet")
	}
	return nil
}

// Run polls until the context is cancelled. A failed pending-runs query is
// retried with exponential backoff capped at the poll interval; otherwise
// the loop waits the poll interval, including after per-run failures.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("processor started", "interval", p.interval, "enrich", p.enricher != nil)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("processor stopping", "reason", ctx.Err())
			return nil
		default:
		}

		wait := p.interval
		if err := p.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("processing cycle failed", "error", err, "backoff", backoff)
			wait = backoff
			backoff = nextBackoff(backoff, min(maxBackoff, p.interval))
		} else {
			backoff = initialBackoff
		}

		if !sleepWithContext(ctx, p.clock, wait) {
			p.logger.Info("processor stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// RunCycle processes every pending run once. It fails only when the pending
// runs cannot be listed. A run that fails is logged and left pending for the
// next cycle, so one bad run never speeds up the poll.
func (p *Processor) RunCycle(ctx context.Context) error {
	runs, err := p.store.PendingRuns(ctx, pendingLimit)
	if err != nil {
		return err
	}

	for _, run := range runs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := p.ProcessRun(ctx, run.ID); err != nil {
			if skippable(err) {
				p.logger.Info("run skipped", "run_id", run.ID, "reason", err)
				continue
			}
			p.metrics.RunFailures.Inc()
			p.logger.Error("process run failed", "run_id", run.ID, "error", err)
		}
	}

	p.ready.Store(true)
	return nil
}

// ProcessRun scores the run if it has not been scored, then enriches it.
// An incomplete enrichment (Done=false) is not an error; the next call
// resumes it. A run that is already enriched fails with
// domain.ErrRunAlreadyEnriched, alongside any scoring done by this call.
func (p *Processor) ProcessRun(ctx context.Context, runID int64) (domain.RunReport, error) {
	start := p.clock.Now()
	report := domain.RunReport{RunID: runID}

	run, err := p.store.GetRun(ctx, runID)
	if err != nil {
		return report, err
	}

	if run.ReliabilityAt == nil {
		summary, err := p.scorer.ScoreRun(ctx, runID)
		if err != nil {
			return report, err
		}
		report.Scoring = &summary
	}

	if p.enricher != nil {
		out, err := p.enricher.Enrich(ctx, runID)
		if err != nil {
			return report, err
		}
		report.Enrichment = &out
		p.publishOutcome(ctx, out)
		if !out.Done {
			p.logger.Info("enrichment incomplete, will resume",
				"run_id", runID,
				"remaining", out.Remaining,
				"requests_made", out.RequestsMade,
			)
		}
	}

	p.metrics.RunProcessingDuration.Observe(p.clock.Since(start).Seconds())
	return report, nil
}

func (p *Processor) publishOutcome(ctx context.Context, out domain.EnrichmentOutcome) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishOutcome(ctx, out, domain.Now()); err != nil {
		p.metrics.PublishErrors.Inc()
		p.logger.Error("publish outcome failed", "run_id", out.RunID, "error", err)
	}
}

// skippable reports errors that mean another actor owns or finished the run.
func skippable(err error) bool {
	return errors.Is(err, enrich.ErrRunBusy) || errors.Is(err, domain.ErrRunAlreadyEnriched)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
