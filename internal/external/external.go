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

// Package external defines the narrow collaborator interfaces for the
// sketch/screen tool, the long-read aligner, and reference materialisation,
// plus the subprocess adapters that implement them. HYMET never
// re-implements sketching or alignment: it shells out and parses output.
package external

import (
	"context"
)

// Sketcher runs sketch-based screening of a query against a reference
// sketch database, writing rows in the internal/screen TSV schema to
// outPath.
type Sketcher interface {
	Screen(ctx context.Context, queryPath, sketchDBPath, outPath string) error
	Version(ctx context.Context) (string, error)
}

// Aligner runs long-sequence alignment of a query against a materialised
// reference FASTA, writing PAF records to outPath.
type Aligner interface {
	Align(ctx context.Context, queryPath, referencesPath, outPath string, mode AlignMode) error
	// BuildIndex precomputes a reusable index from a reference FASTA, stored
	// alongside it in the cache entry as alignment.index.
	BuildIndex(ctx context.Context, referencesPath, indexPath string) error
	Version(ctx context.Context) (string, error)
}

// AlignMode selects the aligner's preset: contigs favour a long-read/assembly
// preset, reads favour a short-sequence preset. It mirrors resolver.Mode but
// lives independently since the two concerns (aligner preset vs. vote
// weighting) are allowed to diverge.
type AlignMode int

const (
	AlignModeContigs AlignMode = iota
	AlignModeReads
)

// ReferenceMaterialiser downloads/copies the selected references into
// destDir, producing references.fasta and a reference_taxonomy.tsv mapping
// reference IDs to TaxIDs, sourced from NCBI-style assembly summary tables
// under assemblySummaryDir.
type ReferenceMaterialiser interface {
	Materialise(ctx context.Context, referenceIDs []string, destDir, assemblySummaryDir string) error
	Version(ctx context.Context) (string, error)
}
