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

package cache

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestResolveBuildsOnce(t *testing.T) {
	root := t.TempDir()
	c, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var builds int32
	build := func(scratch string) (Meta, error) {
		atomic.AddInt32(&builds, 1)
		if err := os.WriteFile(filepath.Join(scratch, "references.fasta"), []byte(">r1\nACGT\n"), 0o644); err != nil {
			return Meta{}, err
		}
		return Meta{Selection: []string{"r1"}}, nil
	}

	var wg sync.WaitGroup
	dirs := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dir, err := c.Resolve("fp1", build)
			if err != nil {
				t.Errorf("Resolve: %v", err)
				return
			}
			dirs[i] = dir
		}(i)
	}
	wg.Wait()

	if builds != 1 {
		t.Fatalf("expected exactly 1 build, got %d", builds)
	}
	for _, d := range dirs {
		if d != filepath.Join(root, "fp1") {
			t.Fatalf("unexpected resolved dir: %s", d)
		}
	}
	if !isReady(filepath.Join(root, "fp1")) {
		t.Fatal("expected ready marker after resolve")
	}
}

func TestResolveSecondCallReusesEntry(t *testing.T) {
	root := t.TempDir()
	c, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var builds int32
	build := func(scratch string) (Meta, error) {
		atomic.AddInt32(&builds, 1)
		return Meta{}, nil
	}
	if _, err := c.Resolve("fp1", build); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	c2, _ := Open(root) // simulate a second process/instance
	if _, err := c2.Resolve("fp1", build); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if builds != 1 {
		t.Fatalf("expected reuse across Cache instances, got %d builds", builds)
	}
}

func TestResolveBuildFailureCleansScratch(t *testing.T) {
	root := t.TempDir()
	c, _ := Open(root)
	build := func(scratch string) (Meta, error) {
		return Meta{}, os.ErrInvalid
	}
	if _, err := c.Resolve("fp1", build); err == nil {
		t.Fatal("expected build error")
	}
	if _, err := os.Stat(c.scratchPath("fp1")); !os.IsNotExist(err) {
		t.Fatal("expected scratch directory to be removed after failed build")
	}
	if isReady(c.dir("fp1")) {
		t.Fatal("must not leave a ready marker after a failed build")
	}
}

func TestPruneByAge(t *testing.T) {
	root := t.TempDir()
	c, _ := Open(root)
	if _, err := c.Resolve("old", func(scratch string) (Meta, error) { return Meta{}, nil }); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	oldTime := time.Now().Add(-48 * time.Hour)
	os.Chtimes(c.dir("old"), oldTime, oldTime)

	if _, err := c.Resolve("fresh", func(scratch string) (Meta, error) { return Meta{}, nil }); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	evicted, err := Prune(root, PruneOptions{MaxAge: 24 * time.Hour})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if isReady(c.dir("old")) {
		t.Fatal("old entry should have been evicted")
	}
	if !isReady(c.dir("fresh")) {
		t.Fatal("fresh entry should survive")
	}
}
