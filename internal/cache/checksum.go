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
	"encoding/hex"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
)

// ChecksumFile returns the hex-encoded xxh3 128-bit digest of the file at
// path. Builders call this once per materialised artifact to populate
// Meta.Checksums; xxh3 is chosen over the standard library's crypto
// checksums because these are integrity spot-checks against accidental
// truncation or a stale cache, not a security boundary.
func ChecksumFile(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s for checksum", path)
	}
	defer fh.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", errors.Wrapf(err, "hashing %s", path)
	}
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:]), nil
}

// ChecksumArtifacts computes ChecksumFile for each named file in dir,
// keyed by the file's base name, skipping any that do not exist (a builder
// may materialise fewer than the full artifact set for a degenerate
// selection).
func ChecksumArtifacts(dir string, names ...string) (map[string]string, error) {
	sums := make(map[string]string, len(names))
	for _, name := range names {
		path := dir + string(os.PathSeparator) + name
		if _, err := os.Stat(path); err != nil {
			continue
		}
		sum, err := ChecksumFile(path)
		if err != nil {
			return nil, err
		}
		sums[name] = sum
	}
	return sums, nil
}
