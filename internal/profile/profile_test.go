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

package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hymet-project/hymet/internal/resolver"
	"github.com/hymet-project/hymet/internal/taxonomy"
)

func writeDump(t *testing.T, dir, name string, lines []string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

// buildTaxonomy wires two genera (G1, G2) each with species children so the
// rank-grouping behaviour of Build can be exercised: species A and B share
// genus G1, species C sits alone under genus G2.
func buildTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	dir := t.TempDir()
	writeDump(t, dir, "nodes.dmp", []string{
		"1|1|no rank|",
		"2|1|superkingdom|",
		"10|2|genus|",
		"11|2|genus|",
		"100|10|species|",
		"101|10|species|",
		"102|11|species|",
	})
	writeDump(t, dir, "names.dmp", []string{
		"1|root|1|scientific name|",
		"2|Bacteria|2|scientific name|",
		"10|G1|10|scientific name|",
		"11|G2|11|scientific name|",
		"100|Species A|100|scientific name|",
		"101|Species B|101|scientific name|",
		"102|Species C|102|scientific name|",
	})
	tax, err := taxonomy.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return tax
}

func assignment(queryID string, taxid taxonomy.TaxID, rank taxonomy.Rank, weight float64) resolver.QueryAssignment {
	return resolver.QueryAssignment{
		QueryID:    queryID,
		TaxID:      taxid,
		Rank:       rank,
		Confidence: 1.0,
		Support:    1,
		Weight:     weight,
		TotalWeight: weight,
	}
}

func TestProfileNormalisationEqualWeights(t *testing.T) {
	tax := buildTaxonomy(t)
	assignments := []resolver.QueryAssignment{
		assignment("q1", 100, taxonomy.Species, 1.0),
		assignment("q2", 101, taxonomy.Species, 1.0),
		assignment("q3", 102, taxonomy.Species, 1.0),
	}
	p := Build(assignments, tax)

	species := rowsForRank(p, taxonomy.Species)
	if len(species) != 3 {
		t.Fatalf("expected 3 species rows, got %d", len(species))
	}
	want := map[taxonomy.TaxID]float64{100: 33.333333, 101: 33.333333, 102: 33.333334}
	var speciesSum float64
	for _, r := range species {
		if diff := r.Percentage - want[r.TaxID]; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("taxid %d: got %.6f, want %.6f", r.TaxID, r.Percentage, want[r.TaxID])
		}
		speciesSum += r.Percentage
	}
	if diff := speciesSum - 100.0; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("species percentages sum to %.6f, want 100.000000", speciesSum)
	}

	genus := rowsForRank(p, taxonomy.Genus)
	if len(genus) != 2 {
		t.Fatalf("expected 2 genus rows, got %d", len(genus))
	}
	wantGenus := map[taxonomy.TaxID]float64{10: 66.666666, 11: 33.333334}
	var genusSum float64
	for _, r := range genus {
		if diff := r.Percentage - wantGenus[r.TaxID]; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("genus %d: got %.6f, want %.6f", r.TaxID, r.Percentage, wantGenus[r.TaxID])
		}
		genusSum += r.Percentage
	}
	if diff := genusSum - 100.0; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("genus percentages sum to %.6f, want 100.000000", genusSum)
	}
}

func TestProfileRowOrdering(t *testing.T) {
	tax := buildTaxonomy(t)
	assignments := []resolver.QueryAssignment{
		assignment("q1", 100, taxonomy.Species, 5.0),
		assignment("q2", 101, taxonomy.Species, 1.0),
		assignment("q3", 102, taxonomy.Species, 1.0),
	}
	p := Build(assignments, tax)
	species := rowsForRank(p, taxonomy.Species)
	if len(species) < 2 || species[0].Percentage < species[1].Percentage {
		t.Fatalf("expected descending percentage order, got %+v", species)
	}
}

// TestProfileNormalisesPerRankAcrossMixedRanks pins the case where classified
// queries resolve at different ranks: one call lands at Species, the other
// backs off to Genus (e.g. via the resolver's tie-epsilon ambiguity path).
// Each rank must still sum to exactly 100%, computed only over the queries
// that actually reach it — the Species table must not carry a residual left
// by a query that never resolved past Genus.
func TestProfileNormalisesPerRankAcrossMixedRanks(t *testing.T) {
	tax := buildTaxonomy(t)
	assignments := []resolver.QueryAssignment{
		assignment("q1", 100, taxonomy.Species, 1.0), // species A, under genus G1 (10)
		assignment("q2", 11, taxonomy.Genus, 1.0),    // backed off to genus G2 itself
	}
	p := Build(assignments, tax)

	species := rowsForRank(p, taxonomy.Species)
	if len(species) != 1 {
		t.Fatalf("expected 1 species row (only q1 reaches species), got %d", len(species))
	}
	if species[0].TaxID != 100 {
		t.Fatalf("expected species row for taxid 100, got %d", species[0].TaxID)
	}
	if diff := species[0].Percentage - 100.0; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("species percentage = %.6f, want 100.000000", species[0].Percentage)
	}

	genus := rowsForRank(p, taxonomy.Genus)
	if len(genus) != 2 {
		t.Fatalf("expected 2 genus rows (G1 via q1, G2 via q2), got %d", len(genus))
	}
	var genusSum float64
	for _, r := range genus {
		if diff := r.Percentage - 50.0; diff > 1e-6 || diff < -1e-6 {
			t.Fatalf("genus %d: got %.6f, want 50.000000", r.TaxID, r.Percentage)
		}
		genusSum += r.Percentage
	}
	if diff := genusSum - 100.0; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("genus percentages sum to %.6f, want 100.000000", genusSum)
	}
}

func TestProfileEmptyWhenNothingClassified(t *testing.T) {
	tax := buildTaxonomy(t)
	assignments := []resolver.QueryAssignment{
		{QueryID: "q1", TaxID: 0, Rank: taxonomy.NoRank},
	}
	p := Build(assignments, tax)
	if len(p.Rows) != 0 {
		t.Fatalf("expected empty profile, got %d rows", len(p.Rows))
	}
}

func TestWriteCAMIFormatsHeaderStanza(t *testing.T) {
	tax := buildTaxonomy(t)
	p := Build([]resolver.QueryAssignment{assignment("q1", 100, taxonomy.Species, 1.0)}, tax)

	dir := t.TempDir()
	path := filepath.Join(dir, "profile.cami.tsv")
	if err := WriteCAMI(path, p, "sample1", "0.9.1"); err != nil {
		t.Fatalf("WriteCAMI: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	content := string(data)
	for _, want := range []string{
		"#CAMI Submission",
		"@SampleID:sample1",
		"@Version:0.9.1",
		"@Ranks:superkingdom|phylum|class|order|family|genus|species",
		"@@TAXID\tRANK\tTAXPATH\tTAXPATHSN\tPERCENTAGE",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, content)
		}
	}
}

func rowsForRank(p Profile, rank taxonomy.Rank) []Row {
	var out []Row
	for _, r := range p.Rows {
		if r.Rank == rank {
			out = append(out, r)
		}
	}
	return out
}
