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

// Package orchestrator wires the taxonomy store, reference registry,
// candidate selector, reference cache, alignment aggregator, weighted-LCA
// resolver, and profile builder into the single run(input, output_dir,
// config) entry point the CLI calls.
package orchestrator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
	"golang.org/x/sync/errgroup"

	"github.com/hymet-project/hymet/internal/aggregator"
	"github.com/hymet-project/hymet/internal/cache"
	"github.com/hymet-project/hymet/internal/config"
	"github.com/hymet-project/hymet/internal/external"
	"github.com/hymet-project/hymet/internal/profile"
	"github.com/hymet-project/hymet/internal/registry"
	"github.com/hymet-project/hymet/internal/resolver"
	"github.com/hymet-project/hymet/internal/screen"
	"github.com/hymet-project/hymet/internal/selector"
	"github.com/hymet-project/hymet/internal/taxonomy"
)

// Stage identifies which region of the pipeline a StageError came from, so
// cmd/run.go's top-level switch can map it to the exit code spec.md section
// 7 assigns to that error category.
type Stage int

const (
	StageConfig Stage = iota
	StageInput
	StageTaxonomy
	StageCache
	StageAlignment
	StageEmptyCandidates
)

// StageError tags an underlying error with the pipeline stage it occurred
// in; components themselves stay free of exit-code knowledge, per the
// Propagation Policy in spec.md section 7.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// Deps are the run's external collaborators; cmd/run.go wires the real
// subprocess adapters, tests wire fakes.
type Deps struct {
	Sketcher     external.Sketcher
	Aligner      external.Aligner
	Materialiser external.ReferenceMaterialiser
	Log          func(format string, args ...interface{})
}

func (d Deps) logf(format string, args ...interface{}) {
	if d.Log != nil {
		d.Log(format, args...)
	}
}

// QuerySeq is one input sequence read from the contigs/reads FASTA, in
// input order.
type QuerySeq struct {
	ID  string
	Len int
}

// Result is everything a successful run produces, handed to the output
// writers in cmd/run.go.
type Result struct {
	Queries     []QuerySeq
	Assignments []resolver.QueryAssignment
	Profile     profile.Profile
	Selection   selector.Result
	CacheDir    string
	ToolVersions map[string]string
}

// Run executes one end-to-end classification. scratchDir is an
// orchestrator-owned working directory (normally cfg.OutDir/work, or a
// temp dir when --keep-work is not set) that the sketch/align steps and
// the candidate materialiser are confined to, per the "shared mutable
// temporary directories" redesign note.
func Run(ctx context.Context, cfg config.Config, deps Deps, scratchDir string) (Result, error) {
	queries, err := readQueries(cfg.InputPath())
	if err != nil {
		return Result{}, &StageError{Stage: StageInput, Err: err}
	}

	// Taxonomy loading and sketch screening touch disjoint inputs (the
	// taxonomy dump vs. the query/sketch-db pair), so they run concurrently
	// rather than one after the other.
	var tax *taxonomy.Taxonomy
	screenPath := filepath.Join(scratchDir, "screen.tsv")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := taxonomy.Load(cfg.TaxonomyDir)
		if err != nil {
			return &StageError{Stage: StageTaxonomy, Err: err}
		}
		tax = t
		return nil
	})
	g.Go(func() error {
		if err := deps.Sketcher.Screen(gctx, cfg.InputPath(), cfg.SketchDBPath, screenPath); err != nil {
			return &StageError{Stage: StageAlignment, Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	rows, err := screen.ReadAll(screenPath)
	if err != nil {
		return Result{}, &StageError{Stage: StageAlignment, Err: err}
	}

	selCfg := selector.Config{
		InitialThreshold:   cfg.SelectorInitialThreshold,
		ThresholdStep:      cfg.SelectorThresholdStep,
		ThresholdFloor:     cfg.SelectorThresholdFloor,
		MinCandidateFactor: cfg.SelectorMinCandidateFactor,
		MinCandidateFloor:  cfg.SelectorMinCandidateFloor,
		SpeciesDedup:       cfg.SpeciesDedup,
		CandMax:            cfg.CandMax,
	}

	preLookup, err := preSelectionLookupFor(cfg)
	if err != nil {
		return Result{}, &StageError{Stage: StageCache, Err: err}
	}

	sel, err := selector.Select(rows, len(queries), selCfg, preLookup, tax)
	if err != nil {
		if errors.Is(err, selector.ErrEmptyCandidateSet) {
			return Result{Queries: queries}, &StageError{Stage: StageEmptyCandidates, Err: err}
		}
		return Result{}, &StageError{Stage: StageAlignment, Err: err}
	}

	c, err := cache.Open(cfg.CacheRoot)
	if err != nil {
		return Result{}, &StageError{Stage: StageCache, Err: err}
	}

	if cfg.ForceDownload {
		if err := c.Invalidate(sel.Fingerprint); err != nil {
			return Result{}, &StageError{Stage: StageCache, Err: err}
		}
	}

	refIDs := make([]string, len(sel.Selected))
	for i, r := range sel.Selected {
		refIDs[i] = r.ReferenceID
	}

	build := func(scratch string) (cache.Meta, error) {
		if err := deps.Materialiser.Materialise(ctx, refIDs, scratch, cfg.AssemblySummaryDir); err != nil {
			return cache.Meta{}, err
		}
		referencesPath := filepath.Join(scratch, "references.fasta")
		indexPath := filepath.Join(scratch, "alignment.index")
		if err := deps.Aligner.BuildIndex(ctx, referencesPath, indexPath); err != nil {
			return cache.Meta{}, err
		}
		sums, err := cache.ChecksumArtifacts(scratch, "references.fasta", "reference_taxonomy.tsv", "alignment.index")
		if err != nil {
			return cache.Meta{}, err
		}
		return cache.Meta{Selection: refIDs, Checksums: sums}, nil
	}

	cacheDir, err := c.Resolve(sel.Fingerprint, build)
	if err != nil {
		return Result{}, &StageError{Stage: StageCache, Err: err}
	}
	release, err := c.AcquireRead(sel.Fingerprint)
	if err != nil {
		return Result{}, &StageError{Stage: StageCache, Err: err}
	}
	defer release()

	reg, err := openRegistry(cfg, cacheDir, tax)
	if err != nil {
		return Result{}, &StageError{Stage: StageCache, Err: err}
	}

	alignPath := filepath.Join(scratchDir, "alignment.paf")
	mode := external.AlignModeContigs
	if cfg.Mode == resolver.ModeReads {
		mode = external.AlignModeReads
	}
	indexPath := filepath.Join(cacheDir, "alignment.index")
	if err := deps.Aligner.Align(ctx, cfg.InputPath(), indexPath, alignPath, mode); err != nil {
		return Result{}, &StageError{Stage: StageAlignment, Err: err}
	}

	hitsByQuery := make(map[string][]aggregator.HitSummary, len(queries))
	aggCfg := aggregator.Config{
		RelCovThreshold:   cfg.RelCovThreshold,
		AbsCovThreshold:   cfg.AbsCovThreshold,
		DropUnknownTaxids: cfg.DropUnknownTaxids,
		MaxParseErrors:    cfg.MaxParseErrors,
		GroupBufferSize:   cfg.GroupBufferSize,
	}
	err = aggregator.StreamFile(alignPath, aggCfg, reg, func(hs aggregator.HitSummary) error {
		hitsByQuery[hs.QueryID] = append(hitsByQuery[hs.QueryID], hs)
		return nil
	})
	if err != nil {
		return Result{}, &StageError{Stage: StageAlignment, Err: err}
	}

	resCfg := resolver.Config{
		MinSupportWeight: cfg.MinSupportWeight,
		MinTaxidSupport:  cfg.MinTaxidSupport,
		ConfidenceFloor:  cfg.ConfidenceFloor,
		TieEpsilon:       cfg.TieEpsilon,
		Mode:             cfg.Mode,
	}

	assignments, err := resolveAll(ctx, queries, hitsByQuery, resCfg, tax, cfg.Threads, cfg.ResolverQueueDepth)
	if err != nil {
		return Result{}, err
	}

	versions := collectVersions(ctx, deps)

	return Result{
		Queries:      queries,
		Assignments:  assignments,
		Profile:      profile.Build(assignments, tax),
		Selection:    sel,
		CacheDir:     cacheDir,
		ToolVersions: versions,
	}, nil
}

// resolveAll drains the aggregator's per-query hit groups through a bounded
// channel of query indices, consumed by a worker pool sized by threads so
// the aggregator-to-resolver handoff overlaps across queries the way the
// earlier taxonomy/screen warm-up already does. The queue depth caps how
// far the channel can run ahead of the slowest worker; resolver.Resolve
// never errors on data, so the errgroup here only exists to bound and join
// the workers, not to propagate a resolve failure.
func resolveAll(ctx context.Context, queries []QuerySeq, hitsByQuery map[string][]aggregator.HitSummary, resCfg resolver.Config, tax *taxonomy.Taxonomy, threads, queueDepth int) ([]resolver.QueryAssignment, error) {
	if queueDepth < 1 {
		queueDepth = 1
	}
	if threads < 1 {
		threads = 1
	}

	assignments := make([]resolver.QueryAssignment, len(queries))
	jobs := make(chan int, queueDepth)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := range queries {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < threads; w++ {
		g.Go(func() error {
			for i := range jobs {
				q := queries[i]
				assignments[i] = resolver.Resolve(q.ID, hitsByQuery[q.ID], resCfg, tax)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, &StageError{Stage: StageAlignment, Err: err}
	}
	return assignments, nil
}

func collectVersions(ctx context.Context, deps Deps) map[string]string {
	versions := make(map[string]string, 3)
	if v, err := deps.Sketcher.Version(ctx); err == nil {
		versions["sketcher"] = v
	}
	if v, err := deps.Aligner.Version(ctx); err == nil {
		versions["aligner"] = v
	}
	if v, err := deps.Materialiser.Version(ctx); err == nil {
		versions["materialiser"] = v
	}
	return versions
}

func openRegistry(cfg config.Config, cacheDir string, tax *taxonomy.Taxonomy) (registry.Lookup, error) {
	tsvPath := filepath.Join(cacheDir, "reference_taxonomy.tsv")
	if countLines(tsvPath) > cfg.BadgerRegistryAbove {
		dbDir := filepath.Join(cacheDir, "registry.badger")
		return registry.BuildBadgerFrom(tsvPath, dbDir, tax)
	}
	return registry.BuildFrom(tsvPath, tax)
}

// preSelectionLookupFor returns the selector.Lookup used for the
// species-dedup pass, which runs before any reference cache entry (and
// therefore the real registry.Lookup) exists. When SpeciesDedup is off, the
// always-miss stub is cheap and correct: a fully-missed lookup degrades to
// "keep every row", never to a wrong dedup decision. When SpeciesDedup is
// on, a miss would silently make the flag a no-op, so this scans the local
// NCBI assembly summary tables (the same static accession->taxid data the
// materialiser reads) to build a real pre-cache lookup instead.
func preSelectionLookupFor(cfg config.Config) (selector.Lookup, error) {
	if !cfg.SpeciesDedup {
		return preSelectionLookup{}, nil
	}
	taxids, err := external.ScanTaxIDs(cfg.AssemblySummaryDir)
	if err != nil {
		return nil, errors.Wrap(err, "scanning assembly summary tables for species dedup")
	}
	return assemblySummaryLookup{taxids: taxids}, nil
}

type preSelectionLookup struct{}

func (preSelectionLookup) Lookup(string) taxonomy.TaxID { return 0 }

// assemblySummaryLookup resolves a reference ID to its TaxID directly from
// the scanned assembly summary tables, without needing a built registry.
type assemblySummaryLookup struct {
	taxids map[string]string
}

func (l assemblySummaryLookup) Lookup(referenceID string) taxonomy.TaxID {
	s, ok := l.taxids[referenceID]
	if !ok {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return taxonomy.TaxID(v)
}

func readQueries(path string) ([]QuerySeq, error) {
	reader, err := fastx.NewDefaultReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening input sequences %s", path)
	}
	var queries []QuerySeq
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrapf(err, "reading input sequences %s", path)
		}
		queries = append(queries, QuerySeq{ID: string(record.Name), Len: len(record.Seq.Seq)})
	}
	if len(queries) == 0 {
		return nil, errors.Errorf("no sequences found in %s", path)
	}
	return queries, nil
}

func countLines(path string) int {
	n, err := countLinesErr(path)
	if err != nil {
		return 0
	}
	return n
}

func countLinesErr(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	buf := make([]byte, 64*1024)
	count := 0
	for {
		n, err := f.Read(buf)
		for i := 0; i < n; i++ {
			if buf[i] == '\n' {
				count++
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return count, nil
}

