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

package paf

import "testing"

func TestParseLineValid(t *testing.T) {
	line := "q1\t1000\t0\t100\t+\tr1\t5000\t10\t110\t95\t100\t60\ttp:A:P"
	r, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if r.QueryID != "q1" || r.TargetID != "r1" {
		t.Fatalf("unexpected ids: %+v", r)
	}
	if r.QueryStart != 0 || r.QueryEnd != 100 || r.QueryLen != 1000 {
		t.Fatalf("unexpected query span: %+v", r)
	}
	if r.Matches != 95 || r.AlnLen != 100 || r.MapQ != 60 {
		t.Fatalf("unexpected alignment stats: %+v", r)
	}
}

func TestParseLineRejectsBadSpan(t *testing.T) {
	line := "q1\t1000\t100\t50\t+\tr1\t5000\t10\t110\t95\t100\t60"
	if _, err := ParseLine(line); err == nil {
		t.Fatal("expected error for query_start >= query_end")
	}
}

func TestParseLineRejectsMatchesExceedingAlnLen(t *testing.T) {
	line := "q1\t1000\t0\t100\t+\tr1\t5000\t10\t110\t200\t100\t60"
	if _, err := ParseLine(line); err == nil {
		t.Fatal("expected error for matches > aln_len")
	}
}

func TestParseLineTooFewColumns(t *testing.T) {
	if _, err := ParseLine("q1\t1000\t0\t100"); err == nil {
		t.Fatal("expected error for too few columns")
	}
}
