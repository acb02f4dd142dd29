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

// Package aggregator streams PAF alignment records and reduces them into
// one HitSummary per (query, reference) pair, merging overlapping aligned
// intervals to compute query coverage and applying the configured coverage
// and identity filters.
package aggregator

import (
	"github.com/pkg/errors"

	"github.com/hymet-project/hymet/internal/interval"
	"github.com/hymet-project/hymet/internal/paf"
	"github.com/hymet-project/hymet/internal/registry"
	"github.com/hymet-project/hymet/internal/taxonomy"
)

// ErrAlignmentStream is returned once the number of malformed PAF lines
// exceeds Config.MaxParseErrors.
var ErrAlignmentStream = errors.New("aggregator: too many malformed PAF records")

// Config holds the aggregator's configuration-driven filters.
type Config struct {
	RelCovThreshold   float64 // covered_bases / query_len must be >= this
	AbsCovThreshold   float64 // covered_bases must be >= this * query_len
	DropUnknownTaxids bool
	MaxParseErrors    int
	// GroupBufferSize bounds how many queries the aggregator keeps open at
	// once when the input stream is not perfectly grouped by query_id; the
	// oldest open query is flushed once this many distinct queries are
	// simultaneously in flight. Set to 1 to require strictly grouped input.
	GroupBufferSize int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		RelCovThreshold:   0.1,
		AbsCovThreshold:   0.0,
		DropUnknownTaxids: false,
		MaxParseErrors:    1000,
		GroupBufferSize:   64,
	}
}

// HitSummary is the aggregator's output: one row per (query, reference)
// pair that survived the coverage and identity filters.
type HitSummary struct {
	QueryID          string
	ReferenceID      string
	QueryLen         int
	CoveredBases     int
	WeightedIdentity float64
	BestMapQ         int
	AlignmentCount   int
	TaxID            taxonomy.TaxID
}

type refState struct {
	intervals      *interval.Set
	matchSum       int
	alnLenSum      int
	bestMapQ       int
	alignmentCount int
}

type queryState struct {
	queryID  string
	queryLen int
	refs     map[string]*refState
	refOrder []string // insertion order, for deterministic emission
}

func newQueryState(queryID string, queryLen int) *queryState {
	return &queryState{queryID: queryID, queryLen: queryLen, refs: make(map[string]*refState, 4)}
}

func (qs *queryState) add(rec paf.Record) {
	if rec.QueryLen > qs.queryLen {
		qs.queryLen = rec.QueryLen
	}
	rs, ok := qs.refs[rec.TargetID]
	if !ok {
		rs = &refState{intervals: interval.NewSet()}
		qs.refs[rec.TargetID] = rs
		qs.refOrder = append(qs.refOrder, rec.TargetID)
	}
	rs.intervals.Insert(rec.QueryStart, rec.QueryEnd)
	rs.matchSum += rec.Matches
	rs.alnLenSum += rec.AlnLen
	rs.alignmentCount++
	if rec.MapQ > rs.bestMapQ {
		rs.bestMapQ = rec.MapQ
	}
}

// Aggregator accumulates PAF records grouped (or near-grouped) by query and
// emits HitSummary rows through a caller-supplied sink.
type Aggregator struct {
	cfg    Config
	reg    registry.Lookup
	emit   func(HitSummary) error
	parseErrors int

	open      map[string]*queryState
	openOrder []string
}

// New constructs an Aggregator. reg resolves reference IDs to TaxIDs; emit
// is called once per surviving HitSummary, in the order queries are
// flushed.
func New(cfg Config, reg registry.Lookup, emit func(HitSummary) error) *Aggregator {
	if cfg.GroupBufferSize <= 0 {
		cfg.GroupBufferSize = 1
	}
	return &Aggregator{
		cfg:  cfg,
		reg:  reg,
		emit: emit,
		open: make(map[string]*queryState),
	}
}

// Add feeds one PAF record into the aggregator, opening a new query state,
// evicting (flushing) the oldest open query if the buffer is full.
func (a *Aggregator) Add(rec paf.Record) error {
	qs, ok := a.open[rec.QueryID]
	if !ok {
		if len(a.openOrder) >= a.cfg.GroupBufferSize {
			if err := a.flushOldest(); err != nil {
				return err
			}
		}
		qs = newQueryState(rec.QueryID, rec.QueryLen)
		a.open[rec.QueryID] = qs
		a.openOrder = append(a.openOrder, rec.QueryID)
	}
	qs.add(rec)
	return nil
}

func (a *Aggregator) flushOldest() error {
	if len(a.openOrder) == 0 {
		return nil
	}
	id := a.openOrder[0]
	a.openOrder = a.openOrder[1:]
	qs := a.open[id]
	delete(a.open, id)
	return a.flush(qs)
}

// Flush emits any remaining open queries, in the order they were opened.
// Call once the input stream is exhausted.
func (a *Aggregator) Flush() error {
	for len(a.openOrder) > 0 {
		if err := a.flushOldest(); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) flush(qs *queryState) error {
	for _, refID := range qs.refOrder {
		rs := qs.refs[refID]
		covered := rs.intervals.CoveredBases()
		if qs.queryLen <= 0 {
			continue
		}
		if float64(covered)/float64(qs.queryLen) < a.cfg.RelCovThreshold {
			continue
		}
		if float64(covered) < a.cfg.AbsCovThreshold*float64(qs.queryLen) {
			continue
		}

		var identity float64
		if rs.alnLenSum > 0 {
			identity = float64(rs.matchSum) / float64(rs.alnLenSum)
		}

		var taxid taxonomy.TaxID
		if a.reg != nil {
			taxid = a.reg.Lookup(refID)
		}
		if taxid == 0 && a.cfg.DropUnknownTaxids {
			continue
		}

		hs := HitSummary{
			QueryID:          qs.queryID,
			ReferenceID:      refID,
			QueryLen:         qs.queryLen,
			CoveredBases:     covered,
			WeightedIdentity: identity,
			BestMapQ:         rs.bestMapQ,
			AlignmentCount:   rs.alignmentCount,
			TaxID:            taxid,
		}
		if err := a.emit(hs); err != nil {
			return err
		}
	}
	return nil
}

// StreamFile reads a PAF file and drives an Aggregator over it end to end,
// applying cfg.MaxParseErrors as the abort threshold for malformed lines.
func StreamFile(path string, cfg Config, reg registry.Lookup, emit func(HitSummary) error) error {
	agg := New(cfg, reg, emit)

	err := paf.Stream(path,
		func(rec paf.Record) error {
			return agg.Add(rec)
		},
		func(line string, parseErr error) bool {
			agg.parseErrors++
			return agg.parseErrors > cfg.MaxParseErrors
		},
	)
	if err != nil {
		return err
	}
	if agg.parseErrors > cfg.MaxParseErrors {
		return errors.Wrapf(ErrAlignmentStream, "%d malformed records exceeded limit %d", agg.parseErrors, cfg.MaxParseErrors)
	}
	return agg.Flush()
}
