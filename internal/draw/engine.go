// Package draw implements the weighted/uniform candidate sampler.
//
// The engine owns the candidate pool (parallel name/weight slices) and an
// exclusion set of already-drawn indices used when repeats are disallowed.
// It is synchronous and CPU-only; persistence of outcomes is the history
// store's concern.
//
// The engine is driven from a single UI/CLI context and is not safe for
// concurrent use.
package draw

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
)

// ErrEmptyCandidateSet indicates LoadData was given no names, or a draw was
// attempted before any data was loaded.
var ErrEmptyCandidateSet = errors.New("candidate set is empty")

// ErrNoCandidatesRemaining indicates every candidate has already been drawn
// and repeats are disallowed.
var ErrNoCandidatesRemaining = errors.New("no candidates remaining")

// Candidate pairs a pool name with its weight.
type Candidate struct {
	Name   string
	Weight float64
}

// Engine performs weighted or uniform draws over a candidate pool.
//
// Weights are non-negative; a weight of zero makes a candidate ineligible
// for weighted draws unless every available weight is zero, in which case
// the draw degrades to uniform selection instead of dividing by zero.
type Engine struct {
	rng      *rand.Rand
	names    []string
	weights  []float64
	excluded map[int]struct{}
}

// New creates an engine seeded from crypto/rand.
func New() *Engine {
	return NewWithSource(rand.NewSource(newSeed()))
}

// NewWithSource creates an engine using the given randomness source.
// Tests pass a fixed seed for reproducible draws.
func NewWithSource(src rand.Source) *Engine {
	return &Engine{
		rng:      rand.New(src),
		excluded: make(map[int]struct{}),
	}
}

// newSeed derives a seed from crypto/rand. There is no fallback: a
// failing system randomness source is unrecoverable anyway.
func newSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("draw: read random seed: %v", err))
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// LoadData replaces the candidate pool wholesale and clears the exclusion
// set. Missing weights default to 1 per entry; a weights slice whose length
// disagrees with names is ignored in favor of the defaults. Negative
// weights are clamped to zero.
func (e *Engine) LoadData(names []string, weights []float64) error {
	if len(names) == 0 {
		return ErrEmptyCandidateSet
	}

	e.names = append([]string(nil), names...)

	if weights == nil || len(weights) != len(names) {
		if weights != nil {
			slog.Warn("weight list length mismatch, using default weight 1",
				"weights", len(weights), "names", len(names))
		}
		e.weights = make([]float64, len(names))
		for i := range e.weights {
			e.weights[i] = 1
		}
	} else {
		e.weights = make([]float64, len(weights))
		for i, w := range weights {
			e.weights[i] = max(0, w)
		}
	}

	e.excluded = make(map[int]struct{})
	return nil
}

// AddCandidate appends a single candidate to the pool. The weight is
// clamped to zero if negative.
func (e *Engine) AddCandidate(name string, weight float64) {
	e.names = append(e.names, name)
	e.weights = append(e.weights, max(0, weight))
}

// RemoveCandidate removes the first candidate with the given name and
// reports whether one was found. Exclusion indices past the removed slot
// shift down so they keep tracking the same candidates.
func (e *Engine) RemoveCandidate(name string) bool {
	idx := -1
	for i, n := range e.names {
		if n == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	e.names = append(e.names[:idx], e.names[idx+1:]...)
	e.weights = append(e.weights[:idx], e.weights[idx+1:]...)

	shifted := make(map[int]struct{}, len(e.excluded))
	for i := range e.excluded {
		switch {
		case i < idx:
			shifted[i] = struct{}{}
		case i > idx:
			shifted[i-1] = struct{}{}
		}
	}
	e.excluded = shifted
	return true
}

// DrawOne draws a single candidate.
//
// With useWeight, selection walks the available indices in pool order
// accumulating weight and picks the first index whose running sum strictly
// exceeds a uniform draw in [0, total); if every available weight is zero
// the pick is uniform instead. Without useWeight the pick is uniform.
//
// Unless allowRepeat, the selected index joins the exclusion set.
// Returns ErrNoCandidatesRemaining when nothing is available, and
// ErrEmptyCandidateSet before any LoadData.
func (e *Engine) DrawOne(useWeight, allowRepeat bool) (string, error) {
	if len(e.names) == 0 {
		return "", ErrEmptyCandidateSet
	}

	available := e.availableIndices(allowRepeat)
	if len(available) == 0 {
		return "", ErrNoCandidatesRemaining
	}

	var idx int
	if useWeight {
		idx = e.weightedPick(available)
	} else {
		idx = available[e.rng.Intn(len(available))]
	}

	if !allowRepeat {
		e.excluded[idx] = struct{}{}
	}
	return e.names[idx], nil
}

// weightedPick selects among available indices by cumulative weight.
func (e *Engine) weightedPick(available []int) int {
	var total float64
	for _, i := range available {
		total += e.weights[i]
	}
	if total == 0 {
		// All-zero weights degrade to a uniform pick.
		return available[e.rng.Intn(len(available))]
	}

	r := e.rng.Float64() * total
	var sum float64
	for _, i := range available {
		sum += e.weights[i]
		if sum > r {
			return i
		}
	}
	// Floating-point accumulation can leave r unreached; select the last.
	return available[len(available)-1]
}

// DrawMultiple draws up to count candidates by repeated DrawOne calls,
// stopping early with a shorter result the first time the pool runs dry.
// Partial results are never an error; only calling before any LoadData
// fails, with ErrEmptyCandidateSet.
func (e *Engine) DrawMultiple(count int, useWeight, allowRepeat bool) ([]string, error) {
	if len(e.names) == 0 {
		return nil, ErrEmptyCandidateSet
	}
	if count <= 0 {
		return nil, nil
	}
	results := make([]string, 0, count)
	for i := 0; i < count; i++ {
		name, err := e.DrawOne(useWeight, allowRepeat)
		if err != nil {
			break
		}
		results = append(results, name)
	}
	return results, nil
}

// ResetExclusions makes every candidate drawable again.
func (e *Engine) ResetExclusions() {
	e.excluded = make(map[int]struct{})
}

// RemainingCount returns how many candidates have not been drawn yet.
func (e *Engine) RemainingCount() int {
	return len(e.names) - len(e.excluded)
}

// TotalCount returns the pool size.
func (e *Engine) TotalCount() int {
	return len(e.names)
}

// Names returns a copy of every candidate name, drawn or not.
func (e *Engine) Names() []string {
	return append([]string(nil), e.names...)
}

// Candidates returns every candidate with its weight, in pool order.
func (e *Engine) Candidates() []Candidate {
	out := make([]Candidate, len(e.names))
	for i, n := range e.names {
		out[i] = Candidate{Name: n, Weight: e.weights[i]}
	}
	return out
}

// Available returns the names not yet drawn, in pool order.
func (e *Engine) Available() []string {
	var out []string
	for _, i := range e.availableIndices(false) {
		out = append(out, e.names[i])
	}
	return out
}

// Clear empties the pool and the exclusion set.
func (e *Engine) Clear() {
	e.names = nil
	e.weights = nil
	e.excluded = make(map[int]struct{})
}

func (e *Engine) availableIndices(allowRepeat bool) []int {
	out := make([]int, 0, len(e.names))
	for i := range e.names {
		if !allowRepeat {
			if _, drawn := e.excluded[i]; drawn {
				continue
			}
		}
		out = append(out, i)
	}
	return out
}
