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
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// PruneOptions bounds what the pruner is allowed to evict.
type PruneOptions struct {
	MaxAge      time.Duration // 0 disables the age bound
	MaxTotalSize int64        // bytes; 0 disables the size bound
	Log         func(format string, args ...interface{})
}

type entry struct {
	dir      string
	modTime  time.Time
	size     int64
}

// Prune evicts Ready cache entries by age and/or cumulative size, never
// touching an entry currently mid-Build (no ready marker) or held under a
// reader's shared lock. It returns the number of entries evicted.
func Prune(root string, opts PruneOptions) (int, error) {
	logf := opts.Log
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return 0, errors.Wrapf(err, "reading cache root %s", root)
	}

	entries := make([]entry, 0, len(dirEntries))
	var total int64
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		dir := filepath.Join(root, de.Name())
		if !isReady(dir) {
			continue // Building or otherwise incomplete; never evict
		}
		size, modTime, err := dirStat(dir)
		if err != nil {
			continue
		}
		entries = append(entries, entry{dir: dir, modTime: modTime, size: size})
		total += size
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].modTime.Before(entries[j].modTime) })

	evicted := 0
	now := time.Now()
	for _, e := range entries {
		overAge := opts.MaxAge > 0 && now.Sub(e.modTime) > opts.MaxAge
		overSize := opts.MaxTotalSize > 0 && total > opts.MaxTotalSize
		if !overAge && !overSize {
			continue
		}

		fp := filepath.Base(e.dir)
		lockPath := filepath.Join(root, fp+".lock")
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			logf("skipping %s: cannot open lock: %v", fp, err)
			continue
		}
		if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			logf("skipping %s: currently in use", fp)
			lockFile.Close()
			continue
		}

		if err := os.RemoveAll(e.dir); err != nil {
			logf("failed to evict %s: %v", fp, err)
		} else {
			logf("evicted cache entry %s (%s, age %s)", fp, humanize.Bytes(uint64(e.size)), now.Sub(e.modTime).Round(time.Second))
			total -= e.size
			evicted++
		}

		unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
		lockFile.Close()
		os.Remove(lockPath)
	}
	return evicted, nil
}

func dirStat(dir string) (size int64, modTime time.Time, err error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, time.Time{}, err
	}
	modTime = info.ModTime()
	err = filepath.Walk(dir, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !fi.IsDir() {
			size += fi.Size()
		}
		return nil
	})
	return size, modTime, err
}
