package draw

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewWithSource(rand.NewSource(1))
}

func TestLoadData_Empty(t *testing.T) {
	e := newTestEngine(t)
	assert.ErrorIs(t, e.LoadData(nil, nil), ErrEmptyCandidateSet)
	assert.ErrorIs(t, e.LoadData([]string{}, nil), ErrEmptyCandidateSet)
}

func TestLoadData_Counts(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"A", "B", "C"}, []float64{1, 2, 3}))
	assert.Equal(t, 3, e.TotalCount())
	assert.Equal(t, 3, e.RemainingCount())
}

func TestLoadData_DefaultWeights(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"A", "B"}, nil))
	for _, c := range e.Candidates() {
		assert.Equal(t, 1.0, c.Weight)
	}
}

func TestLoadData_MismatchedWeightsFallBackToDefault(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"A", "B", "C"}, []float64{5}))
	for _, c := range e.Candidates() {
		assert.Equal(t, 1.0, c.Weight)
	}
}

func TestLoadData_ClampsNegativeWeights(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"A", "B"}, []float64{-2, 4}))
	cs := e.Candidates()
	assert.Equal(t, 0.0, cs[0].Weight)
	assert.Equal(t, 4.0, cs[1].Weight)
}

func TestLoadData_ResetsExclusions(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"A", "B"}, nil))
	_, err := e.DrawOne(false, false)
	require.NoError(t, err)
	require.NoError(t, e.LoadData([]string{"X", "Y", "Z"}, nil))
	assert.Equal(t, 3, e.RemainingCount())
}

func TestDrawOne_BeforeLoad(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.DrawOne(true, false)
	assert.ErrorIs(t, err, ErrEmptyCandidateSet)
}

func TestDrawOne_NoRepeat_IsPermutation(t *testing.T) {
	names := []string{"A", "B", "C", "D", "E"}
	e := newTestEngine(t)
	require.NoError(t, e.LoadData(names, nil))

	var drawn []string
	for i := 0; i < len(names); i++ {
		name, err := e.DrawOne(false, false)
		require.NoError(t, err)
		drawn = append(drawn, name)
	}
	assert.Equal(t, 0, e.RemainingCount())

	sorted := append([]string(nil), drawn...)
	sort.Strings(sorted)
	assert.Equal(t, names, sorted)

	_, err := e.DrawOne(false, false)
	assert.ErrorIs(t, err, ErrNoCandidatesRemaining)
}

func TestDrawOne_AllowRepeat_KeepsRemaining(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"A", "B", "C"}, nil))
	for i := 0; i < 20; i++ {
		_, err := e.DrawOne(true, true)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, e.RemainingCount())
}

func TestDrawOne_AllZeroWeights(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"A", "B", "C"}, []float64{0, 0, 0}))

	seen := map[string]int{}
	for i := 0; i < 300; i++ {
		name, err := e.DrawOne(true, true)
		require.NoError(t, err)
		seen[name]++
	}
	// Every candidate should be reachable despite the zero total.
	assert.Len(t, seen, 3)
}

func TestDrawOne_WeightZeroExcludedWhenOthersWeighted(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"never", "always"}, []float64{0, 5}))
	for i := 0; i < 100; i++ {
		name, err := e.DrawOne(true, true)
		require.NoError(t, err)
		assert.Equal(t, "always", name)
	}
}

func TestDrawOne_WeightBias(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"light", "heavy"}, []float64{1, 9}))

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		name, err := e.DrawOne(true, true)
		require.NoError(t, err)
		counts[name]++
	}
	// heavy carries 90% of the weight; allow a generous margin.
	assert.Greater(t, counts["heavy"], counts["light"]*4)
}

func TestDrawMultiple_Exhaustion(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"A", "B", "C"}, []float64{1, 1, 1}))

	got, err := e.DrawMultiple(5, true, false)
	require.NoError(t, err)
	require.Len(t, got, 3)
	sort.Strings(got)
	assert.Equal(t, []string{"A", "B", "C"}, got)

	_, err = e.DrawOne(true, false)
	assert.ErrorIs(t, err, ErrNoCandidatesRemaining)
}

func TestDrawMultiple_ZeroOrNegativeCount(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"A"}, nil))

	got, err := e.DrawMultiple(0, false, false)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = e.DrawMultiple(-3, false, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDrawMultiple_BeforeLoadFails(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.DrawMultiple(2, false, false)
	assert.ErrorIs(t, err, ErrEmptyCandidateSet)
}

func TestResetExclusions(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"A", "B"}, nil))
	_, err := e.DrawMultiple(2, false, false)
	require.NoError(t, err)
	require.Equal(t, 0, e.RemainingCount())

	e.ResetExclusions()
	assert.Equal(t, 2, e.RemainingCount())
}

func TestAddRemoveCandidate(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"A", "B", "C"}, nil))

	e.AddCandidate("D", -1)
	assert.Equal(t, 4, e.TotalCount())
	assert.Equal(t, 0.0, e.Candidates()[3].Weight)

	assert.True(t, e.RemoveCandidate("B"))
	assert.False(t, e.RemoveCandidate("missing"))
	assert.Equal(t, []string{"A", "C", "D"}, e.Names())
}

func TestRemoveCandidate_ShiftsExclusions(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"A", "B", "C", "D"}, nil))

	// Exhaust until only D remains, then remove A. The exclusion set must
	// shift so D is still the one available candidate.
	for e.RemainingCount() > 1 {
		_, err := e.DrawOne(false, false)
		require.NoError(t, err)
	}
	remaining := e.Available()
	require.Len(t, remaining, 1)

	var removed string
	for _, n := range e.Names() {
		if n != remaining[0] {
			removed = n
			break
		}
	}
	require.True(t, e.RemoveCandidate(removed))
	assert.Equal(t, remaining, e.Available())
	assert.Equal(t, 1, e.RemainingCount())
}

func TestClear(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadData([]string{"A"}, nil))
	e.Clear()
	assert.Equal(t, 0, e.TotalCount())
	_, err := e.DrawOne(false, false)
	assert.ErrorIs(t, err, ErrEmptyCandidateSet)
}
