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
	"crypto/sha1"
	"encoding/hex"
	"sort"
)

// Fingerprint computes the stable, order-independent digest of a set of
// reference IDs: sort, dedup, join with newlines, SHA-1. SHA-1 is used
// because the spec mandates a 160-bit digest (the cache directory name is
// its hex form) and the only other hash function in the dependency stack
// (xxh3) does not produce a 160-bit output; no ecosystem
// 160-bit digest library appears in the retrieval pack, so this is the one
// place HYMET reaches for the standard library's crypto/sha1 instead of a
// third-party hash.
func Fingerprint(referenceIDs []string) string {
	dedup := make(map[string]struct{}, len(referenceIDs))
	for _, id := range referenceIDs {
		dedup[id] = struct{}{}
	}
	sorted := make([]string, 0, len(dedup))
	for id := range dedup {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	h := sha1.New()
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
