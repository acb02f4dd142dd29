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

// Package registry resolves aligner-facing reference identifiers to TaxIDs,
// built from the accession->taxid table materialised alongside a reference
// cache entry.
package registry

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hymet-project/hymet/internal/taxonomy"
)

// ErrConflict is returned by BuildFrom when two rows map the same reference
// ID to TaxIDs that do not resolve to the same canonical taxon.
type ErrConflict struct {
	ReferenceID    string
	FirstTaxID     taxonomy.TaxID
	ConflictTaxID  taxonomy.TaxID
}

func (e *ErrConflict) Error() string {
	return "registry: conflicting taxid for reference " + e.ReferenceID + ": " +
		strconv.FormatUint(uint64(e.FirstTaxID), 10) + " vs " + strconv.FormatUint(uint64(e.ConflictTaxID), 10)
}

// Registry resolves ReferenceID -> TaxID.
type Registry struct {
	table map[string]taxonomy.TaxID
	log   func(format string, args ...interface{})
}

// New returns an empty Registry. Prefer BuildFrom for the normal load path.
func New() *Registry {
	return &Registry{table: make(map[string]taxonomy.TaxID)}
}

// SetLogger installs a warning sink for unknown lookups; if nil, warnings
// are dropped.
func (r *Registry) SetLogger(fn func(format string, args ...interface{})) {
	r.log = fn
}

// BuildFrom constructs a Registry from a two-column
// "reference_id\ttaxid" TSV table. Duplicate keys are allowed only when both
// rows resolve, via tax, to the same canonical TaxID; the first row's raw
// TaxID is kept in that case. Any other duplicate is a conflict.
func BuildFrom(path string, tax *taxonomy.Taxonomy) (*Registry, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening reference taxonomy table %s", path)
	}
	defer fh.Close()

	reg := New()
	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			return nil, errors.Errorf("malformed reference taxonomy row at line %d: %q", lineNo, line)
		}
		refID := fields[0]
		taxidVal, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: invalid taxid", lineNo)
		}
		taxid := taxonomy.TaxID(taxidVal)

		if existing, ok := reg.table[refID]; ok {
			if existing == taxid {
				continue
			}
			if tax != nil && tax.Canonical(existing) == tax.Canonical(taxid) {
				continue // first wins
			}
			return nil, &ErrConflict{ReferenceID: refID, FirstTaxID: existing, ConflictTaxID: taxid}
		}
		reg.table[refID] = taxid
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading reference taxonomy table")
	}
	return reg, nil
}

// Lookup resolves a reference ID to its TaxID, or 0 with a logged warning
// when the reference is unknown.
func (r *Registry) Lookup(referenceID string) taxonomy.TaxID {
	if taxid, ok := r.table[referenceID]; ok {
		return taxid
	}
	if r.log != nil {
		r.log("unknown reference id %q, treating as unassigned taxid", referenceID)
	}
	return 0
}

// Len reports the number of distinct reference IDs known to the registry.
func (r *Registry) Len() int { return len(r.table) }

// Set inserts or overwrites a mapping; used by tests and by callers building
// a registry incrementally rather than from a TSV file.
func (r *Registry) Set(referenceID string, taxid taxonomy.TaxID) {
	r.table[referenceID] = taxid
}
