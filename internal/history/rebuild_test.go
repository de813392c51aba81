package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vistamin/starrand/internal/backend"
)

func TestRebuildIndex_AfterIndexLoss(t *testing.T) {
	eachStore(t, func(t *testing.T, s *Store, ad backend.Adapter) {
		ctx := context.Background()
		stamps := []time.Time{
			time.Date(2023, time.December, 30, 0, 0, 0, 0, time.UTC),
			time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
			time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
		}
		for i, ts := range stamps {
			require.NoError(t, s.SaveRecord(ctx, testRecord(fmt.Sprintf("r%d", i), "d", ts, "W")))
		}

		// Lose the index out-of-band.
		require.NoError(t, ad.DeleteKey(ctx, indexKey))

		n, err := s.RebuildIndex(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)

		// Reconstructed ordering is timestamp-descending.
		assert.Equal(t, "r2", all[0].ID)
		assert.Equal(t, "r1", all[1].ID)
		assert.Equal(t, "r0", all[2].ID)
	})
}

func TestRebuildIndex_ResurfacesEvictedRecords(t *testing.T) {
	eachStore(t, func(t *testing.T, _ *Store, ad backend.Adapter) {
		ctx := context.Background()
		s := New(ad, Options{Now: fixedNow, IndexCap: 1})

		ts := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.SaveRecord(ctx, testRecord("old", "d", ts, "W")))
		require.NoError(t, s.SaveRecord(ctx, testRecord("new", "d", ts.Add(time.Hour), "W")))

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)

		// Rebuild lists everything the partitions still hold, cap or not.
		n, err := s.RebuildIndex(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestRebuildIndex_RecoversCorruptIndex(t *testing.T) {
	eachStore(t, func(t *testing.T, s *Store, ad backend.Adapter) {
		ctx := context.Background()
		ts := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.SaveRecord(ctx, testRecord("r1", "d", ts, "W")))

		require.NoError(t, ad.WriteKey(ctx, indexKey, []byte("{corrupt")))
		_, err := s.ListAll(ctx)
		require.ErrorIs(t, err, ErrIndexCorrupt)

		n, err := s.RebuildIndex(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestStats(t *testing.T) {
	eachStore(t, func(t *testing.T, s *Store, _ backend.Adapter) {
		ctx := context.Background()
		saves := []struct {
			id string
			ts time.Time
			n  int
		}{
			{"a", time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC), 2},
			{"b", time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC), 3},
			{"c", time.Date(2024, time.January, 9, 0, 0, 0, 0, time.UTC), 1},
		}
		for _, sv := range saves {
			rec := testRecord(sv.id, "d", sv.ts)
			rec.Results = make([]string, sv.n)
			for i := range rec.Results {
				rec.Results[i] = "W"
			}
			rec.TotalCount = sv.n
			require.NoError(t, s.SaveRecord(ctx, rec))
		}

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalTasks)
		assert.Equal(t, 6, stats.TotalResults)
		assert.Equal(t, []int{2023, 2024}, stats.Years)
		assert.Equal(t, map[string]int{"2023-12": 1, "2024-01": 2}, stats.Months)
	})
}

func TestStats_Empty(t *testing.T) {
	eachStore(t, func(t *testing.T, s *Store, _ backend.Adapter) {
		stats, err := s.Stats(context.Background())
		require.NoError(t, err)
		assert.Zero(t, stats.TotalTasks)
		assert.Empty(t, stats.Years)
	})
}
