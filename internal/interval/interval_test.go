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

package interval

import (
	"math/rand"
	"testing"
)

func TestInsertMergeOverlapping(t *testing.T) {
	s := NewSet()
	s.Insert(0, 100)
	s.Insert(200, 1500)
	s.Insert(90, 210) // bridges the two spans
	if s.Len() != 1 {
		t.Fatalf("expected 1 merged span, got %d: %v", s.Len(), s.Spans())
	}
	if got := s.CoveredBases(); got != 1500 {
		t.Fatalf("covered bases = %d, want 1500", got)
	}
}

func TestInsertDisjoint(t *testing.T) {
	s := NewSet()
	s.Insert(0, 10)
	s.Insert(20, 30)
	if s.Len() != 2 {
		t.Fatalf("expected 2 disjoint spans, got %d", s.Len())
	}
	if got := s.CoveredBases(); got != 20 {
		t.Fatalf("covered bases = %d, want 20", got)
	}
}

func TestInsertOrderIndependence(t *testing.T) {
	inserts := [][2]int{{0, 100}, {50, 150}, {300, 400}, {140, 310}, {395, 500}}

	base := NewSet()
	for _, iv := range inserts {
		base.Insert(iv[0], iv[1])
	}
	want := base.CoveredBases()

	for trial := 0; trial < 20; trial++ {
		perm := append([][2]int(nil), inserts...)
		rand.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		s := NewSet()
		for _, iv := range perm {
			s.Insert(iv[0], iv[1])
		}
		if got := s.CoveredBases(); got != want {
			t.Fatalf("permutation %v gave covered bases %d, want %d", perm, got, want)
		}
	}
}

func TestEmptyOrInvertedIntervalIgnored(t *testing.T) {
	s := NewSet()
	s.Insert(10, 10)
	s.Insert(20, 5)
	if s.Len() != 0 {
		t.Fatalf("expected no spans from empty/inverted inserts, got %v", s.Spans())
	}
}
