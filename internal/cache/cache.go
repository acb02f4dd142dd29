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

// Package cache implements the content-addressed reference cache: a
// directory per selection fingerprint, built at most once across
// concurrent in-process callers (golang.org/x/sync/singleflight) and across
// concurrent processes (an advisory flock on a sibling lock file), following
// the state machine in spec.md section 4.4.
package cache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v2"
)

const readyMarker = "ready"

// ErrBuild wraps a builder failure; the scratch directory has already been
// removed by the time this is returned.
type ErrBuild struct {
	Fingerprint string
	Err         error
}

func (e *ErrBuild) Error() string {
	return "cache: build failed for " + e.Fingerprint + ": " + e.Err.Error()
}

func (e *ErrBuild) Unwrap() error { return e.Err }

// Meta is the cache.meta sidecar: the selection that produced this entry,
// checksums of its artifacts, and provenance for metadata.json.
type Meta struct {
	Selection    []string          `yaml:"selection"`
	Checksums    map[string]string `yaml:"checksums"`
	CreatedAt    time.Time         `yaml:"created_at"`
	ToolVersions map[string]string `yaml:"tool_versions"`
}

func writeMeta(dir string, m Meta) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshalling cache.meta")
	}
	return os.WriteFile(filepath.Join(dir, "cache.meta"), data, 0o644)
}

// ReadMeta reads the cache.meta sidecar for an already-resolved entry.
func ReadMeta(cacheDir string) (Meta, error) {
	data, err := os.ReadFile(filepath.Join(cacheDir, "cache.meta"))
	if err != nil {
		return Meta{}, errors.Wrap(err, "reading cache.meta")
	}
	var m Meta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Meta{}, errors.Wrap(err, "unmarshalling cache.meta")
	}
	return m, nil
}

// Builder materialises references.fasta, reference_taxonomy.tsv, and
// alignment.index into scratchDir. It must not touch anything outside
// scratchDir (the "shared mutable temporary directories" redesign note).
type Builder func(scratchDir string) (Meta, error)

// Cache is a content-addressed reference cache rooted at a directory.
type Cache struct {
	root string
	sf   singleflight.Group
}

// Open ensures root exists and returns a Cache rooted there.
func Open(root string) (*Cache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating cache root %s", root)
	}
	return &Cache{root: root}, nil
}

func (c *Cache) dir(fingerprint string) string   { return filepath.Join(c.root, fingerprint) }
func (c *Cache) lockPath(fingerprint string) string {
	return filepath.Join(c.root, fingerprint+".lock")
}
func (c *Cache) scratchPath(fingerprint string) string {
	return filepath.Join(c.root, fingerprint+".scratch")
}

func isReady(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, readyMarker))
	return err == nil
}

// Resolve returns the ready cache directory for fingerprint, building it
// with build if absent. Concurrent in-process callers for the same
// fingerprint collapse onto a single build via singleflight; concurrent
// out-of-process callers coordinate through an exclusive flock on
// "<fingerprint>.lock".
func (c *Cache) Resolve(fingerprint string, build Builder) (string, error) {
	dir := c.dir(fingerprint)
	if isReady(dir) {
		return dir, nil
	}

	v, err, _ := c.sf.Do(fingerprint, func() (interface{}, error) {
		return c.resolveLocked(fingerprint, build)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Cache) resolveLocked(fingerprint string, build Builder) (string, error) {
	dir := c.dir(fingerprint)

	lockFile, err := os.OpenFile(c.lockPath(fingerprint), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "opening cache lock file")
	}
	defer lockFile.Close()

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return "", errors.Wrap(err, "acquiring exclusive cache lock")
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	// Re-check now that we hold the lock: another process may have built
	// this entry while we waited.
	if isReady(dir) {
		return dir, nil
	}

	scratch := c.scratchPath(fingerprint)
	if err := os.RemoveAll(scratch); err != nil { // clear stale scratch from a crashed prior build
		return "", errors.Wrap(err, "clearing stale scratch directory")
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return "", errors.Wrap(err, "creating scratch directory")
	}

	meta, err := build(scratch)
	if err != nil {
		os.RemoveAll(scratch)
		return "", &ErrBuild{Fingerprint: fingerprint, Err: err}
	}
	meta.CreatedAt = time.Now()

	if err := writeMeta(scratch, meta); err != nil {
		os.RemoveAll(scratch)
		return "", &ErrBuild{Fingerprint: fingerprint, Err: err}
	}

	if err := os.RemoveAll(dir); err != nil { // in case a half-built Absent dir lingers
		os.RemoveAll(scratch)
		return "", errors.Wrap(err, "clearing target cache directory")
	}
	if err := os.Rename(scratch, dir); err != nil {
		os.RemoveAll(scratch)
		return "", &ErrBuild{Fingerprint: fingerprint, Err: errors.Wrap(err, "promoting scratch directory")}
	}
	if err := os.WriteFile(filepath.Join(dir, readyMarker), []byte{}, 0o644); err != nil {
		return "", &ErrBuild{Fingerprint: fingerprint, Err: errors.Wrap(err, "writing ready marker")}
	}
	return dir, nil
}

// Invalidate removes a cache entry outright so the next Resolve call rebuilds
// it, for callers that need to force a fresh materialisation regardless of
// cache age (the --force-download run flag).
func (c *Cache) Invalidate(fingerprint string) error {
	dir := c.dir(fingerprint)
	lockFile, err := os.OpenFile(c.lockPath(fingerprint), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening cache lock file")
	}
	defer lockFile.Close()
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return errors.Wrap(err, "acquiring exclusive cache lock")
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
	return os.RemoveAll(dir)
}

// AcquireRead takes a shared lock on the cache entry for fingerprint for the
// duration of a run, so a concurrent Prune cannot evict it out from under a
// reader. Call the returned release function when done.
func (c *Cache) AcquireRead(fingerprint string) (release func() error, err error) {
	lockFile, err := os.OpenFile(c.lockPath(fingerprint), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "opening cache lock file")
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_SH); err != nil {
		lockFile.Close()
		return nil, errors.Wrap(err, "acquiring shared cache lock")
	}
	return func() error {
		unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
		return lockFile.Close()
	}, nil
}
