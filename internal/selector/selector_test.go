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

package selector

import (
	"math/rand"
	"testing"

	"github.com/hymet-project/hymet/internal/screen"
)

func rows() []screen.Row {
	return []screen.Row{
		{Similarity: 0.95, ReferenceID: "r1"},
		{Similarity: 0.94, ReferenceID: "r2"},
		{Similarity: 0.80, ReferenceID: "r3"},
		{Similarity: 0.72, ReferenceID: "r4"},
		{Similarity: 0.71, ReferenceID: "r5"},
		{Similarity: 0.50, ReferenceID: "r6"},
	}
}

func TestSelectAdaptiveThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinCandidateFloor = 4
	// numQueries=1 -> minCandidates = max(4, ceil(3.25*1)) = 4
	res, err := Select(rows(), 1, cfg, nil, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Selected) < 4 {
		t.Fatalf("expected at least 4 candidates, got %d (threshold %v)", len(res.Selected), res.Threshold)
	}
	for _, r := range res.Selected {
		if r.Similarity <= res.Threshold {
			t.Fatalf("row %v below chosen threshold %v", r, res.Threshold)
		}
	}
}

func TestSelectFingerprintPermutationInvariant(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinCandidateFloor = 2
	cfg.CandMax = 100

	base := rows()
	res1, err := Select(base, 1, cfg, nil, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	shuffled := append([]screen.Row(nil), base...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	res2, err := Select(shuffled, 1, cfg, nil, nil)
	if err != nil {
		t.Fatalf("Select (shuffled): %v", err)
	}

	if res1.Fingerprint != res2.Fingerprint {
		t.Fatalf("fingerprint changed under input permutation: %s vs %s", res1.Fingerprint, res2.Fingerprint)
	}
}

func TestSelectEmptyCandidateSet(t *testing.T) {
	cfg := DefaultConfig()
	lowSim := []screen.Row{{Similarity: 0.1, ReferenceID: "r1"}}
	if _, err := Select(lowSim, 1, cfg, nil, nil); err != ErrEmptyCandidateSet {
		t.Fatalf("expected ErrEmptyCandidateSet, got %v", err)
	}
}

func TestSelectCandMaxTruncates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinCandidateFloor = 1
	cfg.CandMax = 2
	res, err := Select(rows(), 1, cfg, nil, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Selected) != 2 {
		t.Fatalf("expected CandMax=2 to truncate, got %d", len(res.Selected))
	}
}
