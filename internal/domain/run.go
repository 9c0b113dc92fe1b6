package domain

import (
	"errors"
	"fmt"
	"time"
)

// Precondition failures. Callers match these with errors.Is.
var (
	ErrRunNotFound        = errors.New("run not found")
	ErrRunNotIngested     = errors.New("run ingestion did not succeed")
	ErrRunNotScored       = errors.New("run has not been scored")
	ErrRunAlreadyEnriched = errors.New("run already enriched")
)

// RunState is a run's position in the ingested -> scored -> enriching -> enriched lifecycle.
type RunState string

const (
	RunFailed    RunState = "failed"
	RunIngested  RunState = "ingested"
	RunScored    RunState = "scored"
	RunEnriching RunState = "enriching"
	RunEnriched  RunState = "enriched"
)

// Run is the metadata of one ingestion cycle.
type Run struct {
	ID            int64
	StartedAt     time.Time
	IngestOK      bool
	ReliabilityAt *time.Time
	EnrichedAt    *time.Time

	// BaseTime is the wall-clock time hour-offset 0 refers to: the latest
	// snapshot's creation time, or StartedAt when there are none.
	BaseTime time.Time
}

// State derives the lifecycle state from the stored timestamps. The enriching
// state is transient and held only by an in-flight orchestrator invocation.
func (r Run) State() RunState {
	switch {
	case !r.IngestOK:
		return RunFailed
	case r.EnrichedAt != nil:
		return RunEnriched
	case r.ReliabilityAt != nil:
		return RunScored
	default:
		return RunIngested
	}
}

// CheckScorable returns an error unless the run was ingested successfully.
func (r Run) CheckScorable() error {
	if !r.IngestOK {
		return fmt.Errorf("run %d: %w", r.ID, ErrRunNotIngested)
	}
	return nil
}

// CheckEnrichable returns an error unless the run is in the scored state.
func (r Run) CheckEnrichable() error {
	switch r.State() {
	case RunScored:
		return nil
	case RunFailed:
		return fmt.Errorf("run %d: %w", r.ID, ErrRunNotIngested)
	case RunIngested:
		return fmt.Errorf("run %d: %w", r.ID, ErrRunNotScored)
	default:
		return fmt.Errorf("run %d: %w", r.ID, ErrRunAlreadyEnriched)
	}
}

// EnrichmentOutcome summarizes one orchestrator invocation.
type EnrichmentOutcome struct {
	RunID        int64 `json:"run_id"`
	Candidates   int   `json:"candidates"`
	Missing      int   `json:"missing"`
	RowsEnriched int   `json:"rows_enriched"`
	Done         bool  `json:"done"`
	Remaining    int   `json:"remaining"`
	RequestsMade int   `json:"requests_made"`
}

// ScoreSummary reports one scoring pass over a run.
type ScoreSummary struct {
	RunID    int64     `json:"run_id"`
	Objects  int       `json:"objects"`
	ScoredAt time.Time `json:"scored_at"`
}

// RunReport is the result of processing one run end to end. A nil part was skipped.
type RunReport struct {
	RunID      int64              `json:"run_id"`
	Scoring    *ScoreSummary      `json:"reliability,omitempty"`
	Enrichment *EnrichmentOutcome `json:"enrich,omitempty"`
}
