// Copyright © 2026 The HYMET Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package selector implements the candidate reference selection policy that
// turns raw sketch/screen rows into the ordered set of references to align
// against, plus the content-addressing fingerprint that keys the reference
// cache.
package selector

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/twotwotwo/sorts"

	"github.com/hymet-project/hymet/internal/screen"
	"github.com/hymet-project/hymet/internal/taxonomy"
)

// ErrEmptyCandidateSet is returned when even the floored threshold selects
// zero rows.
var ErrEmptyCandidateSet = errors.New("selector: no candidate references survive thresholding")

// Config holds the selector's tunable, configuration-driven policy. Every
// field corresponds to a named constant in spec.md section 4.3; none are
// hard-coded in the algorithm.
type Config struct {
	InitialThreshold float64 // default 0.90
	ThresholdStep    float64 // default 0.02
	ThresholdFloor   float64 // default 0.70

	// MinCandidateFactor is the source-derived "3.25" constant scaling the
	// number of queries into a minimum candidate count target.
	MinCandidateFactor float64 // default 3.25
	MinCandidateFloor  int     // default 5

	SpeciesDedup bool
	CandMax      int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		InitialThreshold:   0.90,
		ThresholdStep:      0.02,
		ThresholdFloor:     0.70,
		MinCandidateFactor: 3.25,
		MinCandidateFloor:  5,
		SpeciesDedup:       false,
		CandMax:            500,
	}
}

// Lookup is the subset of registry.Lookup the selector needs for species
// deduplication.
type Lookup interface {
	Lookup(referenceID string) taxonomy.TaxID
}

type byScore []screen.Row

func (b byScore) Len() int      { return len(b) }
func (b byScore) Swap(i, j int) { b[i], b[j] = b[j], b[i] }
func (b byScore) Less(i, j int) bool {
	if b[i].Similarity != b[j].Similarity {
		return b[i].Similarity > b[j].Similarity // descending
	}
	return b[i].ReferenceID < b[j].ReferenceID // ascending, deterministic tiebreak
}

// Result is the outcome of Select: the ordered candidate rows and the
// fingerprint of their reference ID set.
type Result struct {
	Selected    []screen.Row
	Fingerprint string
	Threshold   float64 // the threshold ultimately chosen
}

// Select runs the five-step candidate selection algorithm from spec.md
// section 4.3: sort, adaptively threshold against a query-count-scaled
// minimum, optionally deduplicate by species, then cap.
func Select(rows []screen.Row, numQueries int, cfg Config, reg Lookup, tax *taxonomy.Taxonomy) (Result, error) {
	sorted := make([]screen.Row, len(rows))
	copy(sorted, rows)
	sorts.Quicksort(byScore(sorted))

	minCandidates := int(math.Ceil(cfg.MinCandidateFactor * float64(numQueries)))
	if minCandidates < cfg.MinCandidateFloor {
		minCandidates = cfg.MinCandidateFloor
	}

	threshold := cfg.InitialThreshold
	count := countAbove(sorted, threshold)
	for count < minCandidates && threshold > cfg.ThresholdFloor {
		threshold -= cfg.ThresholdStep
		if threshold < cfg.ThresholdFloor {
			threshold = cfg.ThresholdFloor
		}
		count = countAbove(sorted, threshold)
	}

	retained := make([]screen.Row, 0, count)
	for _, r := range sorted {
		if r.Similarity > threshold {
			retained = append(retained, r)
		}
	}

	if cfg.SpeciesDedup && reg != nil && tax != nil {
		retained = dedupBySpecies(retained, reg, tax)
	}

	if len(retained) > cfg.CandMax && cfg.CandMax > 0 {
		retained = retained[:cfg.CandMax]
	}

	if len(retained) == 0 {
		return Result{}, ErrEmptyCandidateSet
	}

	ids := make([]string, len(retained))
	for i, r := range retained {
		ids[i] = r.ReferenceID
	}

	return Result{
		Selected:    retained,
		Fingerprint: Fingerprint(ids),
		Threshold:   threshold,
	}, nil
}

func countAbove(sorted []screen.Row, threshold float64) int {
	// sorted is similarity-descending, so this is the length of the prefix
	// with similarity > threshold.
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i].Similarity <= threshold })
	return i
}

// dedupBySpecies keeps only the highest-similarity row per species-level
// taxid; rows whose reference resolves to no species-level ancestor are
// kept as-is (never deduplicated away).
func dedupBySpecies(rows []screen.Row, reg Lookup, tax *taxonomy.Taxonomy) []screen.Row {
	bestForSpecies := make(map[taxonomy.TaxID]int, len(rows)) // species taxid -> index into kept
	kept := make([]screen.Row, 0, len(rows))

	for _, r := range rows {
		taxid := reg.Lookup(r.ReferenceID)
		species := tax.AncestorAtRank(taxid, taxonomy.Species)
		if species == 0 {
			kept = append(kept, r)
			continue
		}
		if idx, ok := bestForSpecies[species]; ok {
			if r.Similarity > kept[idx].Similarity {
				kept[idx] = r
			}
			continue
		}
		bestForSpecies[species] = len(kept)
		kept = append(kept, r)
	}
	return kept
}
