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

// Package taxonomy loads an NCBI-style taxonomy dump into an immutable,
// queryable in-memory arena, generalizing the concurrent dump-loading shape
// of kmcp's taxonomy loader (kmcp/cmd/taxonomy.go) and the LCA/rank-walk
// vocabulary of github.com/shenwei356/bio/taxdump to the exact contract
// HYMET's resolver and profile builder need: bounded-hop merge
// canonicalisation, load-time cycle detection, and ancestor-at-rank lookup.
package taxonomy

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/shenwei356/util/pathutil"
)

// TaxID identifies a taxonomy node. Zero means "unassigned".
type TaxID uint32

// maxMergeHops bounds the merged-ID canonicalisation walk. Well-formed NCBI
// dumps resolve in a single hop; anything longer indicates a cycle in the
// merged.dmp relation.
const maxMergeHops = 64

// LoadError reports a fatal failure while building a Taxonomy from a dump.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("taxonomy: failed to load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ErrMergeCycle is returned when a merged-ID chain does not resolve within
// maxMergeHops.
var ErrMergeCycle = errors.New("taxonomy: merged-ID chain exceeds hop limit, likely a cycle")

// ErrNodeCycle is returned at load time when a parent-pointer walk from some
// node does not reach the root within the number of loaded nodes.
var ErrNodeCycle = errors.New("taxonomy: cycle detected in parent relation")

type node struct {
	taxid  TaxID
	parent TaxID
	rank   Rank
	name   string
}

// Taxonomy is an immutable, queryable NCBI-style taxonomy. Zero value is not
// usable; construct with Load.
type Taxonomy struct {
	nodes  []node
	index  map[TaxID]int32
	merged map[TaxID]TaxID
	del    map[TaxID]struct{}
	root   TaxID

	unknownLookups uint64 // atomic
}

// UnknownLookups returns the number of query-time lookups for TaxIDs that
// were not found in the loaded taxonomy, the observability counter the spec
// requires instead of throwing on unknown IDs.
func (t *Taxonomy) UnknownLookups() uint64 {
	return atomic.LoadUint64(&t.unknownLookups)
}

func (t *Taxonomy) missed() {
	atomic.AddUint64(&t.unknownLookups, 1)
}

// Load builds a Taxonomy from a directory containing NCBI-style dump files:
// nodes.dmp (required), names.dmp (required, filtered to scientific names),
// merged.dmp (optional), and delnodes.dmp (optional). Fields are pipe
// ('|')-delimited, matching the plain-text format described in the HYMET
// external interfaces.
func Load(dir string) (*Taxonomy, error) {
	nodesPath := filepath.Join(dir, "nodes.dmp")
	namesPath := filepath.Join(dir, "names.dmp")
	mergedPath := filepath.Join(dir, "merged.dmp")
	delPath := filepath.Join(dir, "delnodes.dmp")

	t := &Taxonomy{
		index:  make(map[TaxID]int32, 1<<16),
		merged: make(map[TaxID]TaxID),
		del:    make(map[TaxID]struct{}),
	}

	if err := t.loadNodes(nodesPath); err != nil {
		return nil, &LoadError{Path: nodesPath, Err: err}
	}

	existed, err := pathutil.Exists(namesPath)
	if err != nil {
		return nil, &LoadError{Path: namesPath, Err: err}
	}
	if !existed {
		return nil, &LoadError{Path: namesPath, Err: errors.New("names.dmp not found")}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	wg.Add(3)

	go func() {
		defer wg.Done()
		if err := t.loadNames(namesPath); err != nil {
			errs <- &LoadError{Path: namesPath, Err: err}
		}
	}()
	go func() {
		defer wg.Done()
		ok, err := pathutil.Exists(mergedPath)
		if err != nil {
			errs <- &LoadError{Path: mergedPath, Err: err}
			return
		}
		if ok {
			if err := t.loadMerged(mergedPath); err != nil {
				errs <- &LoadError{Path: mergedPath, Err: err}
			}
		}
	}()
	go func() {
		defer wg.Done()
		ok, err := pathutil.Exists(delPath)
		if err != nil {
			errs <- &LoadError{Path: delPath, Err: err}
			return
		}
		if ok {
			if err := t.loadDeleted(delPath); err != nil {
				errs <- &LoadError{Path: delPath, Err: err}
			}
		}
	}()

	wg.Wait()
	close(errs)
	for e := range errs {
		if e != nil {
			return nil, e
		}
	}

	if err := t.detectCycles(); err != nil {
		return nil, &LoadError{Path: nodesPath, Err: err}
	}
	if err := t.detectMergeCycles(); err != nil {
		return nil, &LoadError{Path: mergedPath, Err: err}
	}

	return t, nil
}

func (t *Taxonomy) loadNodes(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	t.nodes = make([]node, 0, 1<<16)

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := splitDumpLine(line)
		if len(fields) < 3 {
			return errors.Errorf("malformed nodes row at line %d: %q", lineNo, line)
		}
		taxid, err := parseTaxID(fields[0])
		if err != nil {
			return errors.Wrapf(err, "line %d", lineNo)
		}
		parent, err := parseTaxID(fields[1])
		if err != nil {
			return errors.Wrapf(err, "line %d", lineNo)
		}
		rank := ParseRank(fields[2])

		idx := int32(len(t.nodes))
		t.nodes = append(t.nodes, node{taxid: taxid, parent: parent, rank: rank})
		t.index[taxid] = idx

		if parent == taxid {
			t.root = taxid
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(t.nodes) == 0 {
		return errors.New("no nodes loaded")
	}
	if t.root == 0 {
		// no explicit self-parent row; fall back to the node with the
		// smallest TaxID, the conventional NCBI root (taxid 1).
		best := t.nodes[0].taxid
		for _, n := range t.nodes[1:] {
			if n.taxid < best {
				best = n.taxid
			}
		}
		t.root = best
	}
	return nil
}

func (t *Taxonomy) loadNames(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := splitDumpLine(line)
		if len(fields) < 4 {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(fields[3]), "scientific name") {
			continue
		}
		taxid, err := parseTaxID(fields[0])
		if err != nil {
			return errors.Wrapf(err, "line %d", lineNo)
		}
		idx, ok := t.index[taxid]
		if !ok {
			continue
		}
		t.nodes[idx].name = fields[1]
	}
	return scanner.Err()
}

func (t *Taxonomy) loadMerged(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := splitDumpLine(line)
		if len(fields) < 2 {
			continue
		}
		oldID, err := parseTaxID(fields[0])
		if err != nil {
			return err
		}
		newID, err := parseTaxID(fields[1])
		if err != nil {
			return err
		}
		t.merged[oldID] = newID
	}
	return scanner.Err()
}

func (t *Taxonomy) loadDeleted(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := splitDumpLine(line)
		taxid, err := parseTaxID(fields[0])
		if err != nil {
			continue
		}
		t.del[taxid] = struct{}{}
	}
	return scanner.Err()
}

// detectCycles walks the parent relation from every node with a depth cap of
// len(nodes)+1; a walk that never reaches the root within that many steps
// proves a cycle exists.
func (t *Taxonomy) detectCycles() error {
	limit := len(t.nodes) + 1
	for _, n := range t.nodes {
		cur := n.taxid
		steps := 0
		for cur != t.root {
			idx, ok := t.index[cur]
			if !ok {
				break // dangling parent reference; not a cycle, just missing
			}
			cur = t.nodes[idx].parent
			steps++
			if steps > limit {
				return ErrNodeCycle
			}
		}
	}
	return nil
}

// detectMergeCycles validates every merged.dmp entry against the hop cap so
// a cyclic merge relation fails Load loudly instead of each query-time
// Canonical call silently degrading the cycle to "unassigned". Well-formed
// NCBI dumps resolve every chain in a single hop; this pass costs one
// bounded walk per merged.dmp row.
func (t *Taxonomy) detectMergeCycles() error {
	for oldID := range t.merged {
		if _, err := t.canonicalOrErr(oldID); err != nil {
			return err
		}
	}
	return nil
}

// canonicalOrErr is Canonical's checked variant: it reports ErrMergeCycle
// instead of capping silently. Load's detectMergeCycles is the only caller;
// by the time a Taxonomy is returned from Load, every merge chain has
// already been proven acyclic, so Canonical itself can stay error-free for
// every other caller.
func (t *Taxonomy) canonicalOrErr(id TaxID) (TaxID, error) {
	if id == 0 {
		return 0, nil
	}
	if _, deleted := t.del[id]; deleted {
		return 0, nil
	}
	cur := id
	for hops := 0; hops < maxMergeHops; hops++ {
		next, ok := t.merged[cur]
		if !ok {
			return cur, nil
		}
		cur = next
	}
	return 0, ErrMergeCycle
}

// Canonical follows the merged-ID chain to its resolved target. Load has
// already rejected any Taxonomy whose merged.dmp contains a cycle (see
// detectMergeCycles), so the hop cap here is unreachable in practice; it
// remains as a defensive bound rather than a behavior any caller can trigger.
func (t *Taxonomy) Canonical(id TaxID) TaxID {
	cid, err := t.canonicalOrErr(id)
	if err != nil {
		return 0
	}
	return cid
}

func (t *Taxonomy) lookup(id TaxID) (node, bool) {
	idx, ok := t.index[id]
	if !ok {
		t.missed()
		return node{}, false
	}
	return t.nodes[idx], true
}

// Parent returns the canonical parent TaxID of t, or 0 if unknown.
func (t *Taxonomy) Parent(id TaxID) TaxID {
	n, ok := t.lookup(t.Canonical(id))
	if !ok {
		return 0
	}
	return n.parent
}

// Rank returns the canonical rank of id, or NoRank if unknown.
func (t *Taxonomy) Rank(id TaxID) Rank {
	n, ok := t.lookup(t.Canonical(id))
	if !ok {
		return NoRank
	}
	return n.rank
}

// Name returns the scientific name of id, or "" if unknown.
func (t *Taxonomy) Name(id TaxID) string {
	n, ok := t.lookup(t.Canonical(id))
	if !ok {
		return ""
	}
	return n.name
}

// Root returns the taxonomy's root sentinel TaxID.
func (t *Taxonomy) Root() TaxID { return t.root }

// Lineage returns the root-ward chain starting at t's canonical ID and
// ending at the root, inclusive of both ends. It is finite and deterministic
// because Load rejects taxonomies containing a parent-relation cycle.
func (t *Taxonomy) Lineage(id TaxID) []TaxID {
	cid := t.Canonical(id)
	if cid == 0 {
		return nil
	}
	lineage := make([]TaxID, 0, 16)
	cur := cid
	for {
		lineage = append(lineage, cur)
		if cur == t.root {
			break
		}
		n, ok := t.lookup(cur)
		if !ok {
			break
		}
		cur = n.parent
	}
	return lineage
}

// LineageRootFirst is Lineage reversed, root first and t last, the order
// used for lineage strings and CAMI taxonomic paths.
func (t *Taxonomy) LineageRootFirst(id TaxID) []TaxID {
	lin := t.Lineage(id)
	for i, j := 0, len(lin)-1; i < j; i, j = i+1, j-1 {
		lin[i], lin[j] = lin[j], lin[i]
	}
	return lin
}

// LCA returns the lowest common ancestor of t1 and t2. If either is 0, the
// result is the root, matching the spec's "undefined -> root" contract.
func (t *Taxonomy) LCA(t1, t2 TaxID) TaxID {
	c1, c2 := t.Canonical(t1), t.Canonical(t2)
	if c1 == 0 || c2 == 0 {
		return t.root
	}
	if c1 == c2 {
		return c1
	}
	set := make(map[TaxID]struct{}, 16)
	for _, id := range t.Lineage(c1) {
		set[id] = struct{}{}
	}
	for _, id := range t.Lineage(c2) {
		if _, ok := set[id]; ok {
			return id
		}
	}
	return t.root
}

// AncestorAtRank returns the first ancestor of t (inclusive) whose rank is
// r, or 0 if none exists.
func (t *Taxonomy) AncestorAtRank(id TaxID, r Rank) TaxID {
	for _, a := range t.Lineage(id) {
		if t.Rank(a) == r {
			return a
		}
	}
	return 0
}

// LineageString renders the "rank:name;rank:name;..." format used by
// classified_sequences.tsv, following the token layout of the original
// hymet2cami.py conversion tool's parse_lineage function.
func (t *Taxonomy) LineageString(id TaxID) string {
	var b strings.Builder
	first := true
	for _, a := range t.LineageRootFirst(id) {
		r := t.Rank(a)
		if r == NoRank {
			continue
		}
		if !first {
			b.WriteByte(';')
		}
		first = false
		b.WriteString(r.String())
		b.WriteByte(':')
		b.WriteString(t.Name(a))
	}
	return b.String()
}

func splitDumpLine(line string) []string {
	parts := strings.Split(line, "|")
	fields := make([]string, len(parts))
	for i, p := range parts {
		fields[i] = strings.TrimSpace(strings.Trim(p, "\t"))
	}
	return fields
}

func parseTaxID(s string) (TaxID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid taxid %q", s)
	}
	return TaxID(v), nil
}
