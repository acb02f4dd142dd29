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

package resolver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hymet-project/hymet/internal/aggregator"
	"github.com/hymet-project/hymet/internal/taxonomy"
)

func writeDump(t *testing.T, dir, name string, lines []string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

// sampleTaxonomy builds:
//
//	1 (root, no rank)
//	  2  superkingdom Bacteria
//	    561   genus   Escherichia
//	      511145 species Escherichia coli          (single-lineage, scenario 2 & 4)
//	      562    species Escherichia coli O157:H7  (sibling for the tie scenario)
//	      622    species Shigella dysenteriae       (sibling for the tie scenario)
//
// merged: 9999 -> 511145; deleted: 8888.
func sampleTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	dir := t.TempDir()
	writeDump(t, dir, "nodes.dmp", []string{
		"1|1|no rank|",
		"2|1|superkingdom|",
		"561|2|genus|",
		"511145|561|species|",
		"562|561|species|",
		"622|561|species|",
	})
	writeDump(t, dir, "names.dmp", []string{
		"1|root|1|scientific name|",
		"2|Bacteria|2|scientific name|",
		"561|Escherichia|561|scientific name|",
		"511145|Escherichia coli|511145|scientific name|",
		"562|Escherichia coli O157:H7|562|scientific name|",
		"622|Shigella dysenteriae|622|scientific name|",
	})
	writeDump(t, dir, "merged.dmp", []string{"9999|511145|"})
	writeDump(t, dir, "delnodes.dmp", []string{"8888|"})

	tax, err := taxonomy.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return tax
}

func hit(ref string, taxid taxonomy.TaxID, queryLen, covered int, identity float64) aggregator.HitSummary {
	return aggregator.HitSummary{
		QueryID:          "q",
		ReferenceID:      ref,
		QueryLen:         queryLen,
		CoveredBases:     covered,
		WeightedIdentity: identity,
		BestMapQ:         60,
		AlignmentCount:   1,
		TaxID:            taxid,
	}
}

func TestUnclassifiedBelowMinSupportWeight(t *testing.T) {
	tax := sampleTaxonomy(t)
	cfg := DefaultConfig()
	cfg.MinSupportWeight = 500

	hits := []aggregator.HitSummary{hit("r1", 511145, 1000, 100, 1.0)}
	got := Resolve("q1", hits, cfg, tax)
	if got.TaxID != 0 {
		t.Fatalf("expected unclassified, got taxid %d", got.TaxID)
	}
	if got.Rank != taxonomy.NoRank {
		t.Fatalf("expected no_rank, got %s", got.Rank)
	}
	if got.Confidence != 0 {
		t.Fatalf("expected confidence 0, got %v", got.Confidence)
	}
}

func TestSingleConfidentSpeciesCall(t *testing.T) {
	tax := sampleTaxonomy(t)
	cfg := DefaultConfig()
	cfg.MinSupportWeight = 10
	cfg.MinTaxidSupport = 1
	cfg.ConfidenceFloor = 0.5

	hits := []aggregator.HitSummary{
		hit("r1", 511145, 2000, 1800, 0.99),
		hit("r2", 511145, 2000, 1300, 0.98),
	}
	got := Resolve("q2", hits, cfg, tax)
	if got.TaxID != 511145 {
		t.Fatalf("expected taxid 511145, got %d", got.TaxID)
	}
	if got.Rank != taxonomy.Species {
		t.Fatalf("expected species rank, got %s", got.Rank)
	}
	if got.Confidence != 1.0 {
		t.Fatalf("expected confidence 1.0, got %v", got.Confidence)
	}
	if got.AmbiguityFlag {
		t.Fatal("did not expect ambiguity flag")
	}
	if !strings.HasSuffix(got.LineageString, "species:Escherichia coli") {
		t.Fatalf("unexpected lineage string: %s", got.LineageString)
	}
}

func TestLCABackoffOnTiedSiblings(t *testing.T) {
	tax := sampleTaxonomy(t)
	cfg := DefaultConfig()
	cfg.MinSupportWeight = 10
	cfg.MinTaxidSupport = 1
	cfg.ConfidenceFloor = 0.1
	cfg.TieEpsilon = 0.05

	hits := []aggregator.HitSummary{
		hit("r1", 562, 3000, 1500, 0.95),
		hit("r2", 622, 3000, 1500, 0.95),
	}
	got := Resolve("q3", hits, cfg, tax)
	if got.TaxID != 561 {
		t.Fatalf("expected backoff to genus 561, got %d", got.TaxID)
	}
	if got.Rank != taxonomy.Genus {
		t.Fatalf("expected genus rank, got %s", got.Rank)
	}
	if !got.AmbiguityFlag {
		t.Fatal("expected ambiguity flag on a tied sibling split")
	}
}

func TestMergedTaxidCanonicalisation(t *testing.T) {
	tax := sampleTaxonomy(t)
	cfg := DefaultConfig()
	cfg.MinSupportWeight = 10
	cfg.MinTaxidSupport = 1
	cfg.ConfidenceFloor = 0.5

	viaMerged := Resolve("q4", []aggregator.HitSummary{hit("r1", 9999, 2000, 1800, 0.99)}, cfg, tax)
	viaCanonical := Resolve("q4", []aggregator.HitSummary{hit("r1", 511145, 2000, 1800, 0.99)}, cfg, tax)

	if viaMerged.TaxID != 511145 {
		t.Fatalf("expected merged taxid to resolve to canonical 511145, got %d", viaMerged.TaxID)
	}
	if viaMerged != viaCanonical {
		t.Fatalf("merged-ID run and canonical-ID run diverged: %+v vs %+v", viaMerged, viaCanonical)
	}
}

func TestLowCoverageHitNeverReachesResolver(t *testing.T) {
	// The aggregator drops a hit failing rel_cov_threshold before the
	// resolver ever sees it; an empty hit slice must resolve unclassified.
	tax := sampleTaxonomy(t)
	got := Resolve("q1", nil, DefaultConfig(), tax)
	if got.TaxID != 0 || got.AmbiguityFlag {
		t.Fatalf("expected a clean unclassified result for no hits, got %+v", got)
	}
}

func TestResolveIsPureOverIdenticalInputs(t *testing.T) {
	tax := sampleTaxonomy(t)
	cfg := DefaultConfig()
	hits := []aggregator.HitSummary{
		hit("r1", 511145, 2000, 1800, 0.99),
		hit("r2", 511145, 2000, 1300, 0.98),
	}
	a := Resolve("q", hits, cfg, tax)
	b := Resolve("q", hits, cfg, tax)
	if a != b {
		t.Fatalf("Resolve is not pure: %+v vs %+v", a, b)
	}
}

// The tie-break gate is coded as bestAgg.weight > secondWeight*(1+TieEpsilon),
// i.e. the margin is relative to the runner-up's weight, not the winner's.
// These two cases pin that choice down at the boundary: a margin of exactly
// TieEpsilon still backs off (strict inequality), one unit of weight past it
// resolves to the leading sibling.
func TestTieBreakAtExactEpsilonMarginBacksOff(t *testing.T) {
	tax := sampleTaxonomy(t)
	cfg := DefaultConfig()
	cfg.MinSupportWeight = 10
	cfg.MinTaxidSupport = 1
	cfg.ConfidenceFloor = 0.1
	cfg.TieEpsilon = 0.05

	hits := []aggregator.HitSummary{
		hit("r1", 562, 3000, 1050, 1.0), // weight 1050 == 1000*(1+0.05)
		hit("r2", 622, 3000, 1000, 1.0), // weight 1000
	}
	got := Resolve("q5", hits, cfg, tax)
	if got.TaxID != 561 {
		t.Fatalf("expected backoff to genus 561 at an exact epsilon margin, got %d", got.TaxID)
	}
	if !got.AmbiguityFlag {
		t.Fatal("expected ambiguity flag at an exact epsilon margin")
	}
}

func TestTieBreakJustPastEpsilonMarginResolves(t *testing.T) {
	tax := sampleTaxonomy(t)
	cfg := DefaultConfig()
	cfg.MinSupportWeight = 10
	cfg.MinTaxidSupport = 1
	cfg.ConfidenceFloor = 0.1
	cfg.TieEpsilon = 0.05

	hits := []aggregator.HitSummary{
		hit("r1", 562, 3000, 1051, 1.0), // weight 1051 > 1000*(1+0.05)
		hit("r2", 622, 3000, 1000, 1.0), // weight 1000
	}
	got := Resolve("q6", hits, cfg, tax)
	if got.TaxID != 562 {
		t.Fatalf("expected a resolved call to 562 just past the epsilon margin, got %d", got.TaxID)
	}
	if got.AmbiguityFlag {
		t.Fatal("did not expect ambiguity flag once the margin clears epsilon")
	}
}

func TestUnknownTaxidVoteIsIgnoredNotFatal(t *testing.T) {
	tax := sampleTaxonomy(t)
	cfg := DefaultConfig()
	cfg.MinSupportWeight = 10
	hits := []aggregator.HitSummary{
		hit("r1", 0, 2000, 1800, 0.99), // unassigned taxid from the registry
	}
	got := Resolve("q", hits, cfg, tax)
	if got.TaxID != 0 {
		t.Fatalf("a vote with no taxid should not produce a classified result, got %d", got.TaxID)
	}
}
