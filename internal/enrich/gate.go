package enrich

import (
	"context"
	"fmt"

	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
)

// PartitionCached splits candidate cells into those already cached and those
// missing. One inclusive time-range query replaces a lookup per candidate;
// the exact five-field key decides membership. All candidates must share one
// model and vars version. Input order is preserved in both outputs.
func PartitionCached(ctx context.Context, store CacheStore, candidates []domain.CellKey) (cached, missing []domain.CellKey, err error) {
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	minT, maxT := candidates[0].Time, candidates[0].Time
	for _, c := range candidates[1:] {
		if c.Time.Before(minT) {
			minT = c.Time
		}
		if c.Time.After(maxT) {
			maxT = c.Time
		}
	}

	model, vars := candidates[0].Model, candidates[0].VarsVersion
	existing, err := store.ExistingCells(ctx, model, vars, minT, maxT)
	if err != nil {
		return nil, nil, fmt.Errorf("query cached cells: %w", err)
	}

	have := make(map[string]struct{}, len(existing))
	for _, k := range existing {
		have[k.String()] = struct{}{}
	}

	for _, c := range candidates {
		if _, ok := have[c.String()]; ok {
			cached = append(cached, c)
			continue
		}
		missing = append(missing, c)
	}
	return cached, missing, nil
}
