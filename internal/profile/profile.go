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

// Package profile builds the sample-level CAMI abundance profile from the
// resolver's per-query assignments: one normalised percentage table per
// taxonomic rank, written in the CAMI profiling format.
package profile

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/xopen"

	"github.com/hymet-project/hymet/internal/resolver"
	"github.com/hymet-project/hymet/internal/taxonomy"
)

// microScale is the fixed-precision unit: six decimal places, expressed as
// whole "micro-percent" integers so that every rank's rows sum to exactly
// 100_000000 with no floating-point drift.
const microScale = 1_000_000
const microTarget = 100 * microScale

// Row is one emitted CAMI profile line.
type Row struct {
	TaxID        taxonomy.TaxID
	Rank         taxonomy.Rank
	TaxPathIDs   string
	TaxPathNames string
	Percentage   float64
}

// Profile is the full sample-level abundance table: one flat Row slice,
// grouped by rank, covering every rank that has at least one classified
// query.
type Profile struct {
	Rows []Row
}

// Build computes a Profile from the resolver's per-query assignments.
// Unclassified assignments (TaxID == 0) contribute nothing. If no
// assignment is classified, Build returns an empty Profile — the "profile
// file contains only headers" boundary case.
func Build(assignments []resolver.QueryAssignment, tax *taxonomy.Taxonomy) Profile {
	classified := make([]resolver.QueryAssignment, 0, len(assignments))
	for _, a := range assignments {
		if a.TaxID == 0 || a.Weight <= 0 {
			continue
		}
		classified = append(classified, a)
	}
	if len(classified) == 0 {
		return Profile{}
	}

	var rows []Row
	for _, rank := range taxonomy.Ranks {
		// AncestorAtRank only walks a lineage upward: a query resolved at
		// Genus has no Species ancestor and must be excluded from the
		// Species table entirely, not zero-filled. Normalising each rank
		// independently, over only the queries that actually reach it,
		// is what makes that rank's percentages sum to 100 on their own
		// rather than inheriting a residual left by queries resolved at a
		// different rank.
		members := make([]rankMember, 0, len(classified))
		var totalWeight float64
		for _, a := range classified {
			ancestor := tax.AncestorAtRank(a.TaxID, rank)
			if ancestor == 0 {
				continue
			}
			members = append(members, rankMember{queryID: a.QueryID, ancestor: ancestor, weight: a.Weight})
			totalWeight += a.Weight
		}
		if len(members) == 0 {
			continue
		}

		micro := allocateRankMicro(members, totalWeight)
		grouped := make(map[taxonomy.TaxID]int64, len(members))
		for i, m := range members {
			grouped[m.ancestor] += micro[i]
		}

		rankRows := make([]Row, 0, len(grouped))
		for taxid, m := range grouped {
			rankRows = append(rankRows, Row{
				TaxID:        taxid,
				Rank:         rank,
				TaxPathIDs:   taxPath(tax, taxid, false),
				TaxPathNames: taxPath(tax, taxid, true),
				Percentage:   float64(m) / microScale,
			})
		}
		sort.Slice(rankRows, func(i, j int) bool {
			if rankRows[i].Percentage != rankRows[j].Percentage {
				return rankRows[i].Percentage > rankRows[j].Percentage
			}
			return rankRows[i].TaxID < rankRows[j].TaxID
		})
		rows = append(rows, rankRows...)
	}

	return Profile{Rows: rows}
}

// rankMember is one classified query's contribution at a single rank: its
// ancestor taxon at that rank and the weight it carries into the rank's own,
// independent normalisation.
type rankMember struct {
	queryID  string
	ancestor taxonomy.TaxID
	weight   float64
}

// allocateRankMicro rounds every member's percentage share of totalWeight to
// six decimal places with round-half-to-even, then corrects the residual by
// the largest-remainder method so the shares sum to exactly 100_000000 micro
// units within this one rank's member set.
func allocateRankMicro(members []rankMember, totalWeight float64) []int64 {
	micro := make([]int64, len(members))
	remainders := make([]float64, len(members))

	var sum int64
	for i, m := range members {
		raw := m.weight / totalWeight * float64(microTarget)
		rounded := int64(math.RoundToEven(raw))
		micro[i] = rounded
		remainders[i] = raw - float64(rounded)
		sum += rounded
	}

	diff := int64(microTarget) - sum
	if diff == 0 {
		return micro
	}

	order := make([]int, len(members))
	for i := range order {
		order[i] = i
	}
	if diff > 0 {
		// Most under-rounded (largest positive remainder) first; ties
		// broken by the lexicographically greatest query ID so a tied
		// group's residual lands on a fixed, deterministic member.
		sort.Slice(order, func(i, j int) bool {
			oi, oj := order[i], order[j]
			if remainders[oi] != remainders[oj] {
				return remainders[oi] > remainders[oj]
			}
			return members[oi].queryID > members[oj].queryID
		})
		for k := int64(0); k < diff; k++ {
			micro[order[k]]++
		}
	} else {
		// Most over-rounded (most negative remainder) first.
		sort.Slice(order, func(i, j int) bool {
			oi, oj := order[i], order[j]
			if remainders[oi] != remainders[oj] {
				return remainders[oi] < remainders[oj]
			}
			return members[oi].queryID > members[oj].queryID
		})
		for k := int64(0); k < -diff; k++ {
			micro[order[k]]--
		}
	}
	return micro
}

func taxPath(tax *taxonomy.Taxonomy, id taxonomy.TaxID, names bool) string {
	lineage := tax.LineageRootFirst(id)
	parts := make([]string, len(lineage))
	for i, a := range lineage {
		if names {
			parts[i] = tax.Name(a)
		} else {
			parts[i] = strconv.FormatUint(uint64(a), 10)
		}
	}
	return strings.Join(parts, "|")
}

// WriteCAMI writes profile to path in the CAMI profiling format: a header
// stanza followed by one row per (rank, taxon) grouping, sorted by rank in
// root-to-leaf order and then by the per-rank (percentage desc, taxid asc)
// rule Build already applied.
func WriteCAMI(path string, profile Profile, sampleID, version string) error {
	w, err := xopen.Wopen(path)
	if err != nil {
		return errors.Wrapf(err, "opening CAMI profile output %s", path)
	}
	defer w.Close()

	rankNames := make([]string, len(taxonomy.Ranks))
	for i, r := range taxonomy.Ranks {
		rankNames[i] = r.String()
	}

	fmt.Fprintln(w, "#CAMI Submission for Taxonomic Profiling")
	fmt.Fprintf(w, "@SampleID:%s\n", sampleID)
	fmt.Fprintf(w, "@Version:%s\n", version)
	fmt.Fprintf(w, "@Ranks:%s\n", strings.Join(rankNames, "|"))
	fmt.Fprintln(w, "@@TAXID\tRANK\tTAXPATH\tTAXPATHSN\tPERCENTAGE")

	for _, row := range profile.Rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.6f\n",
			row.TaxID, row.Rank, row.TaxPathIDs, row.TaxPathNames, row.Percentage)
	}
	return nil
}
