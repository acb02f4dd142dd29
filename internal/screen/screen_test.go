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

package screen

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseLineValid(t *testing.T) {
	row, err := ParseLine("0.9532\t128\t4\t0.0\tGCF_000005845.2")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if row.Similarity != 0.9532 || row.ReferenceID != "GCF_000005845.2" {
		t.Fatalf("unexpected row: %+v", row)
	}
}

func TestParseLineIgnoresTrailingColumns(t *testing.T) {
	row, err := ParseLine("0.8\t1\t1\t0.01\tref1\textra\tcolumns")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if row.ReferenceID != "ref1" {
		t.Fatalf("expected ref1, got %s", row.ReferenceID)
	}
}

func TestParseLineRejectsTooFewColumns(t *testing.T) {
	if _, err := ParseLine("0.8\t1\t1"); err == nil {
		t.Fatal("expected error for too few columns")
	}
}

func TestParseLineRejectsOutOfRangeSimilarity(t *testing.T) {
	if _, err := ParseLine("1.5\t1\t1\t0.0\tref1"); err == nil {
		t.Fatal("expected error for similarity > 1")
	}
	if _, err := ParseLine("-0.1\t1\t1\t0.0\tref1"); err == nil {
		t.Fatal("expected error for negative similarity")
	}
}

func TestReadAllSkipsHeaderAndBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "screen.tsv")
	content := "similarity\tshared_hashes\tmedian_multiplicity\tp_value\treference_id\n" +
		"0.95\t100\t3\t0.0\trefA\n" +
		"\n" +
		"0.80\t80\t2\t0.01\trefB\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	rows, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 data rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].ReferenceID != "refA" || rows[1].ReferenceID != "refB" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
