package history

import (
	"context"
	"fmt"
	"sort"

	"github.com/vistamin/starrand/internal/backend"
	"github.com/vistamin/starrand/internal/record"
)

// RebuildIndex reconstructs the index from every readable partition body
// and persists it, newest first. It serves disaster recovery after index
// loss or corruption and doubles as an explicit maintenance action:
// notably, the only way evicted records become listable again.
//
// Cost is O(partitions x files): every partition in the tree is read in
// full. Nothing triggers this implicitly; callers invoke it deliberately.
//
// Returns the number of reconstructed entries.
func (s *Store) RebuildIndex(ctx context.Context) (int, error) {
	years, err := s.lay.years(ctx)
	if err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}

	var entries []record.IndexEntry
	for _, year := range years {
		months, err := s.lay.months(ctx, year)
		if err != nil {
			return 0, fmt.Errorf("rebuild index: %w", err)
		}
		for _, month := range months {
			recs, err := s.lay.scan(ctx, year, month)
			if err != nil {
				s.log.Warn("rebuild skips unscannable partition",
					"year", year, "month", month, "error", err)
				continue
			}
			for _, rec := range recs {
				fileName := record.FileName(rec.Name, rec.ID)
				relativePath := fmt.Sprintf("%d/%02d/%s", year, month, fileName)
				if s.ad.Method() != backend.MethodDirectory {
					relativePath = partitionKey(year, month)
				}
				entries = append(entries, entryFor(rec, fileName, relativePath))
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveIndexLocked(ctx, entries); err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}
	return len(entries), nil
}

// Stats summarizes the indexed history.
type Stats struct {
	// TotalTasks is the number of indexed records.
	TotalTasks int `json:"total_tasks"`

	// TotalResults sums the winner counts across indexed records.
	TotalResults int `json:"total_results"`

	// Years lists the distinct partition years, ascending.
	Years []int `json:"years"`

	// Months counts records per "{year}-{month:02d}" period.
	Months map[string]int `json:"months"`
}

// Stats computes listing statistics from the index alone; no bodies are
// loaded. Evicted records are invisible here, like everywhere else that
// goes through the index.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	entries, err := s.loadIndexLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Months: map[string]int{}}
	years := map[int]struct{}{}
	for _, e := range entries {
		stats.TotalTasks++
		stats.TotalResults += e.TotalCount
		years[e.Year] = struct{}{}
		stats.Months[fmt.Sprintf("%d-%02d", e.Year, e.Month)]++
	}
	for y := range years {
		stats.Years = append(stats.Years, y)
	}
	sort.Ints(stats.Years)
	return stats, nil
}
