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

// Package interval maintains a disjoint, sorted union of half-open integer
// intervals, the coverage-accounting structure the alignment aggregator
// keeps per (query, reference) pair instead of a per-position bitset
// (see the "Coverage accounting by per-position bitsets" redesign note).
package interval

import "sort"

// Interval is a half-open range [Start, End).
type Interval struct {
	Start, End int
}

func (iv Interval) length() int { return iv.End - iv.Start }

// Set is a disjoint, sorted union of Intervals, merged on insert.
type Set struct {
	spans []Interval
}

// NewSet returns an empty interval set.
func NewSet() *Set {
	return &Set{}
}

// Insert adds [start, end) to the set, merging with any overlapping or
// abutting spans so the invariant (disjoint, sorted, non-adjacent) holds
// after every call.
func (s *Set) Insert(start, end int) {
	if end <= start {
		return
	}

	// Binary search for the first span whose End is >= start; everything
	// before it is strictly to the left and unaffected.
	i := sort.Search(len(s.spans), func(i int) bool { return s.spans[i].End >= start })

	j := i
	for j < len(s.spans) && s.spans[j].Start <= end {
		if s.spans[j].Start < start {
			start = s.spans[j].Start
		}
		if s.spans[j].End > end {
			end = s.spans[j].End
		}
		j++
	}

	merged := make([]Interval, 0, len(s.spans)-(j-i)+1)
	merged = append(merged, s.spans[:i]...)
	merged = append(merged, Interval{Start: start, End: end})
	merged = append(merged, s.spans[j:]...)
	s.spans = merged
}

// CoveredBases returns the sum of span lengths, i.e. the total number of
// distinct positions covered.
func (s *Set) CoveredBases() int {
	total := 0
	for _, iv := range s.spans {
		total += iv.length()
	}
	return total
}

// Spans returns the current disjoint, sorted spans. The returned slice must
// not be mutated by the caller.
func (s *Set) Spans() []Interval {
	return s.spans
}

// Len reports the number of disjoint spans currently held.
func (s *Set) Len() int { return len(s.spans) }
