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

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hymet-project/hymet/internal/taxonomy"
)

func writeTSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestBuildFromAndLookup(t *testing.T) {
	dir := t.TempDir()
	path := writeTSV(t, dir, "ref.tsv", "r1\t511145\nr2\t562\n")

	reg, err := BuildFrom(path, nil)
	if err != nil {
		t.Fatalf("BuildFrom: %v", err)
	}
	if got := reg.Lookup("r1"); got != 511145 {
		t.Fatalf("Lookup(r1) = %d, want 511145", got)
	}
	if got := reg.Lookup("unknown"); got != 0 {
		t.Fatalf("Lookup(unknown) = %d, want 0", got)
	}
}

func TestBuildFromConflictDetection(t *testing.T) {
	dir := t.TempDir()
	path := writeTSV(t, dir, "ref.tsv", "r1\t511145\nr1\t562\n")

	if _, err := BuildFrom(path, nil); err == nil {
		t.Fatal("expected conflict error for divergent taxids on same reference")
	}
}

func TestBuildFromConflictResolvedByCanonicalization(t *testing.T) {
	dir := t.TempDir()
	nodesDir := t.TempDir()
	os.WriteFile(filepath.Join(nodesDir, "nodes.dmp"), []byte("1 | 1 | superkingdom |\n100 | 1 | species |\n"), 0o644)
	os.WriteFile(filepath.Join(nodesDir, "names.dmp"), []byte("1 | Root | | scientific name |\n100 | Foo | | scientific name |\n"), 0o644)
	os.WriteFile(filepath.Join(nodesDir, "merged.dmp"), []byte("200 | 100 |\n"), 0o644)
	tax, err := taxonomy.Load(nodesDir)
	if err != nil {
		t.Fatalf("taxonomy.Load: %v", err)
	}

	path := writeTSV(t, dir, "ref.tsv", "r1\t100\nr1\t200\n")
	reg, err := BuildFrom(path, tax)
	if err != nil {
		t.Fatalf("BuildFrom should tolerate same-canonical taxids: %v", err)
	}
	if got := reg.Lookup("r1"); got != 100 {
		t.Fatalf("Lookup(r1) = %d, want first-wins 100", got)
	}
}
