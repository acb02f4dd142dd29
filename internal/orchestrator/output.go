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

package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/shenwei356/xopen"

	"github.com/hymet-project/hymet/internal/config"
	"github.com/hymet-project/hymet/internal/profile"
	"github.com/hymet-project/hymet/internal/resolver"
)

// WriteOutputs materialises the output layout under cfg.OutDir: the
// classified-sequences table, the CAMI profile, and the structured logs
// directory. It does not write metadata.json; call WriteMetadata separately
// once the caller has a finish timestamp.
func WriteOutputs(cfg config.Config, res Result) error {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating output directory %s", cfg.OutDir)
	}
	if err := writeClassifiedSequences(cfg.OutDir, res.Assignments); err != nil {
		return err
	}
	if err := profile.WriteCAMI(filepath.Join(cfg.OutDir, "profile.cami.tsv"), res.Profile, cfg.SampleID, cfg.ProfileVersion); err != nil {
		return err
	}
	if err := writeLogs(cfg.OutDir, res); err != nil {
		return err
	}
	return nil
}

// writeClassifiedSequences writes one row per input query in input order,
// matching spec.md section 6's header exactly.
func writeClassifiedSequences(outDir string, assignments []resolver.QueryAssignment) error {
	path := filepath.Join(outDir, "classified_sequences.tsv")
	w, err := xopen.Wopen(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer w.Close()

	fmt.Fprintln(w, "Query\tLineage\tTaxonomicLevel\tConfidence\tTaxID\tAmbiguous")
	for _, a := range assignments {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.6f\t%d\t%t\n",
			a.QueryID, a.LineageString, a.Rank, a.Confidence, a.TaxID, a.AmbiguityFlag)
	}
	return nil
}

// WriteUnclassified emits classified_sequences.tsv with every query marked
// unclassified, for the --allow-empty path after an empty candidate set.
func WriteUnclassified(outDir string, queries []QuerySeq) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating output directory %s", outDir)
	}
	assignments := make([]resolver.QueryAssignment, len(queries))
	for i, q := range queries {
		assignments[i] = resolver.QueryAssignment{QueryID: q.ID}
	}
	return writeClassifiedSequences(outDir, assignments)
}

func writeLogs(outDir string, res Result) error {
	logsDir := filepath.Join(outDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", logsDir)
	}

	candidateLimitPath := filepath.Join(logsDir, "candidate_limit.log")
	clw, err := xopen.Wopen(candidateLimitPath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", candidateLimitPath)
	}
	fmt.Fprintf(clw, "threshold_chosen\t%.4f\n", res.Selection.Threshold)
	fmt.Fprintf(clw, "candidates_selected\t%d\n", len(res.Selection.Selected))
	clw.Close()

	resolverCountersPath := filepath.Join(logsDir, "resolver_counters.log")
	rcw, err := xopen.Wopen(resolverCountersPath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", resolverCountersPath)
	}
	defer rcw.Close()

	var classified, unclassified, ambiguous int
	for _, a := range res.Assignments {
		if a.TaxID == 0 {
			unclassified++
			continue
		}
		classified++
		if a.AmbiguityFlag {
			ambiguous++
		}
	}
	fmt.Fprintf(rcw, "classified\t%d\n", classified)
	fmt.Fprintf(rcw, "unclassified\t%d\n", unclassified)
	fmt.Fprintf(rcw, "ambiguous\t%d\n", ambiguous)
	return nil
}

// PersistWork copies the raw alignment file and the selected reference list
// into outDir/work, present only when the caller has determined
// cfg.KeepWork is set.
func PersistWork(outDir, alignmentPath string, res Result) error {
	workDir := filepath.Join(outDir, "work")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", workDir)
	}

	if data, err := os.ReadFile(alignmentPath); err == nil {
		if err := os.WriteFile(filepath.Join(workDir, "alignment.paf"), data, 0o644); err != nil {
			return errors.Wrap(err, "persisting alignment.paf")
		}
	}

	refListPath := filepath.Join(workDir, "selected_references.tsv")
	w, err := xopen.Wopen(refListPath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", refListPath)
	}
	defer w.Close()
	for _, row := range res.Selection.Selected {
		fmt.Fprintf(w, "%s\t%.6f\n", row.ReferenceID, row.Similarity)
	}
	return nil
}
