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
	"bufio"
	"encoding/binary"
	"os"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"

	"github.com/hymet-project/hymet/internal/taxonomy"
)

// Lookup is the interface both the in-memory Registry and BadgerRegistry
// satisfy, so the aggregator and resolver depend on the resolution
// behaviour and not the storage backend.
type Lookup interface {
	Lookup(referenceID string) taxonomy.TaxID
}

// BadgerRegistryRowThreshold is the row count above which a disk-backed
// badger.DB is preferred over an in-memory map. It equals the default of
// config.Config.BadgerRegistryAbove, which is the value the orchestrator
// compares against; nothing in this package reads the constant.
const BadgerRegistryRowThreshold = 2_000_000

// BadgerRegistry is a Lookup backed by an on-disk key-value store, so
// lookups are served from disk instead of from a large in-memory map.
// BuildBadgerFrom reads the whole reference_taxonomy.tsv into the store on
// every call, including when the store already exists from an earlier run.
type BadgerRegistry struct {
	db  *badger.DB
	log func(format string, args ...interface{})
}

// OpenBadgerRegistry opens (or creates) a badger-backed registry rooted at
// dir. Call Close when done.
func OpenBadgerRegistry(dir string) (*BadgerRegistry, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger registry at %s", dir)
	}
	return &BadgerRegistry{db: db}, nil
}

// SetLogger installs a warning sink for unknown lookups.
func (b *BadgerRegistry) SetLogger(fn func(format string, args ...interface{})) {
	b.log = fn
}

// Close releases the underlying badger.DB.
func (b *BadgerRegistry) Close() error {
	return b.db.Close()
}

// BuildBadgerFrom populates a BadgerRegistry rooted at dbDir from a
// two-column "reference_id\ttaxid" TSV, applying the same first-wins
// canonical-conflict rule as BuildFrom.
func BuildBadgerFrom(tsvPath, dbDir string, tax *taxonomy.Taxonomy) (*BadgerRegistry, error) {
	reg, err := OpenBadgerRegistry(dbDir)
	if err != nil {
		return nil, err
	}

	fh, err := os.Open(tsvPath)
	if err != nil {
		reg.Close()
		return nil, errors.Wrapf(err, "opening reference taxonomy table %s", tsvPath)
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	const batchSize = 10000
	batch := reg.db.NewWriteBatch()
	defer batch.Cancel()

	// pending holds the rows of the current, unflushed batch, which rawGet
	// cannot see yet.
	pending := make(map[string]taxonomy.TaxID)

	lineNo := 0
	count := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			reg.Close()
			return nil, errors.Errorf("malformed reference taxonomy row at line %d: %q", lineNo, line)
		}
		refID := fields[0]
		taxidVal, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 32)
		if err != nil {
			reg.Close()
			return nil, errors.Wrapf(err, "line %d: invalid taxid", lineNo)
		}

		existing, found := pending[refID]
		if !found {
			if v, ok, gerr := reg.rawGet(refID); gerr == nil && ok {
				existing, found = v, true
			}
		}
		if found {
			if existing == taxonomy.TaxID(taxidVal) {
				continue
			}
			if tax != nil && tax.Canonical(existing) == tax.Canonical(taxonomy.TaxID(taxidVal)) {
				continue
			}
			reg.Close()
			return nil, &ErrConflict{ReferenceID: refID, FirstTaxID: existing, ConflictTaxID: taxonomy.TaxID(taxidVal)}
		}

		if err := batch.Set([]byte(refID), encodeTaxID(taxonomy.TaxID(taxidVal))); err != nil {
			reg.Close()
			return nil, errors.Wrap(err, "writing badger registry batch")
		}
		pending[refID] = taxonomy.TaxID(taxidVal)
		count++
		if count%batchSize == 0 {
			if err := batch.Flush(); err != nil {
				reg.Close()
				return nil, errors.Wrap(err, "flushing badger registry batch")
			}
			batch = reg.db.NewWriteBatch()
			pending = make(map[string]taxonomy.TaxID)
		}
	}
	if err := scanner.Err(); err != nil {
		reg.Close()
		return nil, errors.Wrap(err, "reading reference taxonomy table")
	}
	if err := batch.Flush(); err != nil {
		reg.Close()
		return nil, errors.Wrap(err, "flushing badger registry batch")
	}
	return reg, nil
}

func encodeTaxID(id taxonomy.TaxID) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(id))
	return buf
}

func decodeTaxID(buf []byte) taxonomy.TaxID {
	if len(buf) != 4 {
		return 0
	}
	return taxonomy.TaxID(binary.BigEndian.Uint32(buf))
}

func (b *BadgerRegistry) rawGet(referenceID string) (taxonomy.TaxID, bool, error) {
	var id taxonomy.TaxID
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(referenceID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		id = decodeTaxID(val)
		found = true
		return nil
	})
	return id, found, err
}

// Lookup resolves a reference ID to its TaxID, or 0 with a logged warning
// when the reference is unknown or the store errors.
func (b *BadgerRegistry) Lookup(referenceID string) taxonomy.TaxID {
	id, found, err := b.rawGet(referenceID)
	if err != nil || !found {
		if b.log != nil {
			b.log("unknown reference id %q, treating as unassigned taxid", referenceID)
		}
		return 0
	}
	return id
}
