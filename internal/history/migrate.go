package history

import (
	"context"
	"fmt"
	"log/slog"
)

// Migrate copies every record the source store lists into the destination
// store. It runs when the selector's active backend changes.
//
// The copy is idempotent: SaveRecord upserts by ID, so re-running after a
// partial failure converges instead of duplicating. Source data is left in
// place, so the old backend stays a valid fallback.
//
// Returns the number of records copied.
func Migrate(ctx context.Context, src, dst *Store) (int, error) {
	recs, err := src.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate: list source: %w", err)
	}

	copied := 0
	for _, rec := range recs {
		if err := dst.SaveRecord(ctx, rec); err != nil {
			return copied, fmt.Errorf("migrate: save %s: %w", rec.ID, err)
		}
		copied++
	}
	slog.Debug("history migration complete",
		"from", src.Backend().Method(), "to", dst.Backend().Method(), "records", copied)
	return copied, nil
}
