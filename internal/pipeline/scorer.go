package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
	"github.com/couchcryptid/balloon-reliability-service/internal/observability"
)

// Scorer computes and stores reliability records for whole runs.
type Scorer struct {
	store       RunStore
	publisher   Publisher
	thresholds  domain.Thresholds
	seriesHours int
	concurrency int
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewScorer creates a Scorer. Pass a nil publisher to disable publishing.
func NewScorer(store RunStore, publisher Publisher, thresholds domain.Thresholds, seriesHours, concurrency int, metrics *observability.Metrics, logger *slog.Logger) *Scorer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scorer{
		store:       store,
		publisher:   publisher,
		thresholds:  thresholds,
		seriesHours: seriesHours,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      logger,
	}
}

// ScoreRun scores every object observed in a run and replaces the run's
// records. Rescoring a run is allowed and overwrites the previous result.
func (s *Scorer) ScoreRun(ctx context.Context, runID int64) (domain.ScoreSummary, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return domain.ScoreSummary{}, err
	}
	if err := run.CheckScorable(); err != nil {
		return domain.ScoreSummary{}, err
	}

	obs, err := s.store.Observations(ctx, runID)
	if err != nil {
		return domain.ScoreSummary{}, err
	}

	series := domain.BuildSeries(obs, s.seriesHours)
	ids := domain.ObjectIDs(series)
	records := make([]domain.ReliabilityRecord, len(ids))

	// Each series is private to its own call, so objects score independently.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i] = domain.ScoreWith(id, series[id], s.thresholds)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.ScoreSummary{}, fmt.Errorf("score run %d: %w", runID, err)
	}

	scoredAt := domain.Now()
	if err := s.store.ReplaceRecords(ctx, runID, records, scoredAt); err != nil {
		return domain.ScoreSummary{}, err
	}

	s.observe(records)
	s.logger.Info("run scored",
		"run_id", runID,
		"observations", len(obs),
		"objects", len(records),
	)

	if s.publisher != nil {
		if err := s.publisher.PublishRecords(ctx, runID, records, scoredAt); err != nil {
			s.metrics.PublishErrors.Inc()
			s.logger.Error("publish records failed", "run_id", runID, "error", err)
		}
	}

	return domain.ScoreSummary{RunID: runID, Objects: len(records), ScoredAt: scoredAt}, nil
}

func (s *Scorer) observe(records []domain.ReliabilityRecord) {
	s.metrics.RunsScored.Inc()
	s.metrics.ObjectsScored.Add(float64(len(records)))
	for _, r := range records {
		s.metrics.Scores.Observe(r.Score)
		s.metrics.Anomalies.WithLabelValues("teleport").Add(float64(len(r.Evidence.TeleportEvents)))
		for _, e := range r.Evidence.MissingEdges {
			s.metrics.Anomalies.WithLabelValues(string(e.Kind)).Inc()
		}
	}
}
