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

// Package resolver implements the weighted lowest-common-ancestor resolver:
// it turns the HitSummarys the aggregator emits for one query into exactly
// one QueryAssignment, walking the taxonomy from the root toward the leaves
// along the max-weight child at each step and backing off to an ancestor
// whenever the configured support, confidence, or tie-break gates fail.
package resolver

import (
	"sort"

	"github.com/hymet-project/hymet/internal/aggregator"
	"github.com/hymet-project/hymet/internal/taxonomy"
)

// Mode selects how a HitSummary's weight is computed, since short-read and
// contig alignments carry different reliability signals for the same
// covered_bases/weighted_identity pair.
type Mode int

const (
	// ModeContigs weights by covered_bases * weighted_identity: identity is
	// a meaningful discriminator over long contig alignments.
	ModeContigs Mode = iota
	// ModeReads weights by covered_bases alone: per-base identity on short
	// reads is noisy enough that coverage is the more stable signal.
	ModeReads
)

func (m Mode) String() string {
	if m == ModeReads {
		return "reads"
	}
	return "contigs"
}

// Config holds the resolver's threshold parameters, all first-class
// configuration per the "do not hard-code" requirement on adjustable
// thresholds.
type Config struct {
	MinSupportWeight float64
	MinTaxidSupport  int
	ConfidenceFloor  float64
	TieEpsilon       float64
	Mode             Mode
}

// DefaultConfig returns conservative defaults for whole-genome contig
// classification.
func DefaultConfig() Config {
	return Config{
		MinSupportWeight: 50,
		MinTaxidSupport:  1,
		ConfidenceFloor:  0.6,
		TieEpsilon:       0.05,
		Mode:             ModeContigs,
	}
}

// TaxidVote is a single (taxid, weight) contribution before ancestor
// expansion.
type TaxidVote struct {
	TaxID   taxonomy.TaxID
	Weight  float64
	Support int
}

// QueryAssignment is the resolver's terminal Resolved state for one query.
type QueryAssignment struct {
	QueryID       string
	TaxID         taxonomy.TaxID // 0 means unclassified
	Rank          taxonomy.Rank
	Confidence    float64
	Support       int
	AmbiguityFlag bool
	LineageString string
	// Weight is the cumulative support weight at the assigned node
	// (confidence * TotalWeight); the Profile Builder's support_weight.
	Weight      float64
	TotalWeight float64
}

type nodeAgg struct {
	weight  float64
	support int
}

// Resolve converts hits for a single query into a QueryAssignment. It never
// errors on data: an empty or entirely-unrecognised hit set resolves to the
// unclassified sentinel (TaxID 0).
func Resolve(queryID string, hits []aggregator.HitSummary, cfg Config, tax *taxonomy.Taxonomy) QueryAssignment {
	votes, total := mergeVotes(hits, cfg.Mode, tax)

	if total < cfg.MinSupportWeight {
		return QueryAssignment{QueryID: queryID, Rank: taxonomy.NoRank, TotalWeight: total}
	}

	cumulative, children := expand(votes, tax)

	root := tax.Root()
	current := root
	ambiguity := false

	for {
		childSet := children[current]
		if len(childSet) == 0 {
			break
		}
		cands := make([]taxonomy.TaxID, 0, len(childSet))
		for c := range childSet {
			cands = append(cands, c)
		}
		sort.Slice(cands, func(i, j int) bool {
			return lessCandidate(cands[i], cands[j], cumulative, tax)
		})

		best := cands[0]
		bestAgg := cumulative[best]

		tieOK := true
		if len(cands) > 1 {
			secondWeight := cumulative[cands[1]].weight
			tieOK = bestAgg.weight > secondWeight*(1+cfg.TieEpsilon)
		}

		confBest := 0.0
		if total > 0 {
			confBest = bestAgg.weight / total
		}

		if bestAgg.support >= cfg.MinTaxidSupport && confBest >= cfg.ConfidenceFloor && tieOK {
			current = best
			continue
		}
		ambiguity = true
		break
	}

	finalAgg := cumulative[current]
	confidence := 0.0
	if total > 0 {
		confidence = finalAgg.weight / total
	}

	return QueryAssignment{
		QueryID:       queryID,
		TaxID:         current,
		Rank:          tax.Rank(current),
		Confidence:    confidence,
		Support:       finalAgg.support,
		AmbiguityFlag: ambiguity,
		LineageString: tax.LineageString(current),
		Weight:        finalAgg.weight,
		TotalWeight:   total,
	}
}

// lessCandidate orders sibling taxids for the deterministic max-weight-child
// walk: highest weight first, then lower canonical taxid, then name.
func lessCandidate(a, b taxonomy.TaxID, cumulative map[taxonomy.TaxID]nodeAgg, tax *taxonomy.Taxonomy) bool {
	wa, wb := cumulative[a].weight, cumulative[b].weight
	if wa != wb {
		return wa > wb
	}
	if a != b {
		return a < b
	}
	return tax.Name(a) < tax.Name(b)
}

func weight(hit aggregator.HitSummary, mode Mode) float64 {
	if mode == ModeReads {
		return float64(hit.CoveredBases)
	}
	return float64(hit.CoveredBases) * hit.WeightedIdentity
}

// mergeVotes canonicalises each hit's taxid and sums weight and support per
// distinct canonical taxid (steps 1-2 of the algorithm).
func mergeVotes(hits []aggregator.HitSummary, mode Mode, tax *taxonomy.Taxonomy) (map[taxonomy.TaxID]nodeAgg, float64) {
	votes := make(map[taxonomy.TaxID]nodeAgg, len(hits))
	var total float64
	for _, h := range hits {
		ct := tax.Canonical(h.TaxID)
		if ct == 0 {
			continue
		}
		w := weight(h, mode)
		agg := votes[ct]
		agg.weight += w
		agg.support++
		votes[ct] = agg
		total += w
	}
	return votes, total
}

// expand rolls each voted taxid's weight and support up its lineage (step
// 4), returning the per-node cumulative totals and the child edges the walk
// descends along. cumulative is a plain value map: reading an absent node
// yields a harmless zero-value nodeAgg rather than panicking.
func expand(votes map[taxonomy.TaxID]nodeAgg, tax *taxonomy.Taxonomy) (map[taxonomy.TaxID]nodeAgg, map[taxonomy.TaxID]map[taxonomy.TaxID]struct{}) {
	cumulative := make(map[taxonomy.TaxID]nodeAgg, len(votes)*4)
	children := make(map[taxonomy.TaxID]map[taxonomy.TaxID]struct{}, len(votes)*4)

	for taxid, agg := range votes {
		lineage := tax.LineageRootFirst(taxid)
		for _, a := range lineage {
			ca := cumulative[a]
			ca.weight += agg.weight
			ca.support += agg.support
			cumulative[a] = ca
		}
		for i := 0; i+1 < len(lineage); i++ {
			parent, child := lineage[i], lineage[i+1]
			set, ok := children[parent]
			if !ok {
				set = make(map[taxonomy.TaxID]struct{})
				children[parent] = set
			}
			set[child] = struct{}{}
		}
	}

	delete(cumulative, 0) // defensive: taxid 0 never a valid lineage member
	return cumulative, children
}
