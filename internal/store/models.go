// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"

	"github.com/ManuGH/streamvault/internal/media"
)

// SyncModels makes the model table match models and returns the ids removed.
func SyncModels(ctx context.Context, repo ModelRepository, models []media.OnnxModel) ([]string, error) {
	keep := make(map[string]bool, len(models))
	for _, m := range models {
		if err := repo.Upsert(ctx, m); err != nil {
			return nil, fmt.Errorf("model %s: %w", m.ID, err)
		}
		keep[m.ID] = true
	}

	existing, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, m := range existing {
		if keep[m.ID] {
			continue
		}
		if err := repo.Delete(ctx, m.ID); err != nil {
			return removed, fmt.Errorf("model %s: %w", m.ID, err)
		}
		removed = append(removed, m.ID)
	}
	return removed, nil
}
