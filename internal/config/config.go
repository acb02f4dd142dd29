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

// Package config defines HYMET's immutable run configuration: every
// threshold named across the selector, aggregator, and resolver, plus the
// paths and mode enum the run subcommand needs, built once from cobra flags,
// environment variables, and an optional config file, then passed by value
// into every collaborator's constructor.
package config

import (
	"runtime"

	"github.com/pkg/errors"

	"github.com/hymet-project/hymet/internal/resolver"
)

// Config is the fully-resolved, validated set of parameters for one run.
// It is built once in cmd/run.go and never mutated afterward.
type Config struct {
	// Input/output.
	ContigsPath string
	ReadsPath   string
	OutDir      string
	Threads     int

	// Mode resolves the reads-vs-contigs weighting Open Question: ModeContigs
	// scales votes by weighted_identity, ModeReads by coverage alone.
	Mode resolver.Mode

	// Candidate selector (spec.md section 4.3).
	SelectorInitialThreshold   float64
	SelectorThresholdStep      float64
	SelectorThresholdFloor     float64
	SelectorMinCandidateFactor float64
	SelectorMinCandidateFloor  int
	SpeciesDedup               bool
	CandMax                    int

	// Alignment aggregator (spec.md section 4.5).
	RelCovThreshold    float64
	AbsCovThreshold    float64
	DropUnknownTaxids  bool
	MaxParseErrors     int
	GroupBufferSize    int
	ResolverQueueDepth int

	// Weighted-LCA resolver (spec.md section 4.6).
	MinSupportWeight float64
	MinTaxidSupport  int
	ConfidenceFloor  float64
	TieEpsilon       float64

	// Empty-candidate-set handling (spec.md section 7).
	AllowEmpty bool

	// Cache and external tooling.
	CacheRoot           string
	AssemblySummaryDir  string
	ForceDownload       bool
	KeepWork            bool
	BadgerRegistryAbove int

	// TaxonomyDir is the directory containing nodes.dmp/names.dmp and its
	// optional merged.dmp/delnodes.dmp siblings.
	TaxonomyDir string

	// SketchDBPath is the pre-built sketch database the Sketcher screens the
	// input against.
	SketchDBPath string

	SampleID       string
	ProfileVersion string
}

// Default returns the documented defaults for every threshold, matching the
// zero-flag behaviour of the run subcommand.
func Default() Config {
	return Config{
		Threads: runtime.NumCPU(),
		Mode:    resolver.ModeContigs,

		SelectorInitialThreshold:   0.90,
		SelectorThresholdStep:      0.02,
		SelectorThresholdFloor:     0.70,
		SelectorMinCandidateFactor: 3.25,
		SelectorMinCandidateFloor:  5,
		SpeciesDedup:               false,
		CandMax:                    500,

		RelCovThreshold:    0.1,
		AbsCovThreshold:    0.0,
		DropUnknownTaxids:  false,
		MaxParseErrors:     1000,
		GroupBufferSize:    64,
		ResolverQueueDepth: 256,

		MinSupportWeight: 50,
		MinTaxidSupport:  1,
		ConfidenceFloor:  0.6,
		TieEpsilon:       0.05,

		AllowEmpty: false,

		CacheRoot:           defaultCacheRoot(),
		BadgerRegistryAbove: 2_000_000,

		SampleID:       "sample",
		ProfileVersion: "0.9.1",
	}
}

// Validate checks cross-field invariants and numeric ranges, returning a
// configuration error (exit code 2 at the CLI boundary) on failure.
func (c Config) Validate() error {
	if c.ContigsPath == "" && c.ReadsPath == "" {
		return errors.New("one of --contigs or --reads is required")
	}
	if c.ContigsPath != "" && c.ReadsPath != "" {
		return errors.New("--contigs and --reads are mutually exclusive")
	}
	if c.OutDir == "" {
		return errors.New("--out is required")
	}
	if c.Threads < 1 {
		return errors.New("threads must be >= 1")
	}
	if c.SelectorInitialThreshold <= c.SelectorThresholdFloor {
		return errors.New("selector initial threshold must be above its floor")
	}
	if c.SelectorThresholdStep <= 0 {
		return errors.New("selector threshold step must be positive")
	}
	if c.SelectorMinCandidateFactor <= 0 {
		return errors.New("selector min candidate factor must be positive")
	}
	if c.CandMax < 0 {
		return errors.New("cand-max must be >= 0")
	}
	if c.RelCovThreshold < 0 || c.RelCovThreshold > 1 {
		return errors.New("rel-cov-threshold must be in [0,1]")
	}
	if c.AbsCovThreshold < 0 {
		return errors.New("abs-cov-threshold must be >= 0")
	}
	if c.MaxParseErrors < 0 {
		return errors.New("max-parse-errors must be >= 0")
	}
	if c.GroupBufferSize < 1 {
		return errors.New("group-buffer-size must be >= 1")
	}
	if c.MinSupportWeight < 0 {
		return errors.New("min-support-weight must be >= 0")
	}
	if c.MinTaxidSupport < 1 {
		return errors.New("min-taxid-support must be >= 1")
	}
	if c.ConfidenceFloor < 0 || c.ConfidenceFloor > 1 {
		return errors.New("confidence-floor must be in [0,1]")
	}
	if c.TieEpsilon < 0 {
		return errors.New("tie-epsilon must be >= 0")
	}
	if c.CacheRoot == "" {
		return errors.New("cache root must not be empty")
	}
	if c.TaxonomyDir == "" {
		return errors.New("--taxonomy-dir is required")
	}
	if c.SketchDBPath == "" {
		return errors.New("--sketch-db is required")
	}
	return nil
}

// InputPath returns whichever of ContigsPath/ReadsPath is set.
func (c Config) InputPath() string {
	if c.ContigsPath != "" {
		return c.ContigsPath
	}
	return c.ReadsPath
}

func defaultCacheRoot() string {
	if dir, ok := userCacheDir(); ok {
		return dir + "/hymet"
	}
	return "./.hymet-cache"
}
