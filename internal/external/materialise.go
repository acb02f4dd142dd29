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

package external

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/xopen"
)

// AssemblySummaryMaterialiser resolves selected reference IDs (NCBI assembly
// accessions) against local NCBI assembly_summary_*.tsv tables and copies
// the matching genomic FASTA files into destDir, concatenated into a single
// references.fasta with a reference_taxonomy.tsv sidecar in the registry's
// "reference_id\ttaxid" schema.
//
// It never reaches the network itself: assemblySummaryDir and the genome
// FASTA paths it names are expected to already be present in the on-disk
// cache, refreshed by a separate download step run ahead of time.
type AssemblySummaryMaterialiser struct{}

func NewAssemblySummaryMaterialiser() *AssemblySummaryMaterialiser {
	return &AssemblySummaryMaterialiser{}
}

func (m *AssemblySummaryMaterialiser) Version(ctx context.Context) (string, error) {
	return "assembly-summary/local", nil
}

func (m *AssemblySummaryMaterialiser) Materialise(ctx context.Context, referenceIDs []string, destDir, assemblySummaryDir string) error {
	if len(referenceIDs) == 0 {
		return errors.New("no reference ids to materialise")
	}
	wanted := make(map[string]struct{}, len(referenceIDs))
	for _, id := range referenceIDs {
		wanted[id] = struct{}{}
	}

	taxids, fastaPaths, err := scanAssemblySummaries(assemblySummaryDir, wanted)
	if err != nil {
		return err
	}
	if len(fastaPaths) == 0 {
		return errors.Errorf("none of %d requested reference ids matched an assembly summary row", len(referenceIDs))
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating materialise destination %s", destDir)
	}

	if err := concatFASTA(ctx, fastaPaths, filepath.Join(destDir, "references.fasta")); err != nil {
		return err
	}
	return writeTaxonomyTSV(filepath.Join(destDir, "reference_taxonomy.tsv"), taxids)
}

// ScanTaxIDs reads every accession -> taxid pair out of the NCBI assembly
// summary tables under dir, independent of any reference cache entry. It
// exists for callers that need a taxid lookup before candidate selection
// has run and the real reference_taxonomy.tsv-backed registry.Lookup
// exists yet, such as the selector's species-dedup pass.
func ScanTaxIDs(dir string) (map[string]string, error) {
	taxids := make(map[string]string, 1<<16)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading assembly summary directory %s", dir)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "assembly_summary") {
			continue
		}
		if err := scanOneSummaryTaxIDsOnly(filepath.Join(dir, entry.Name()), taxids); err != nil {
			return nil, err
		}
	}
	return taxids, nil
}

func scanOneSummaryTaxIDsOnly(path string, taxids map[string]string) error {
	fh, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 6 {
			continue
		}
		taxids[cols[0]] = cols[5]
	}
	return scanner.Err()
}

// scanAssemblySummaries walks assemblySummaryDir for NCBI-format
// assembly_summary_*.tsv tables (columns: assembly_accession ... taxid ...
// ftp_path, 0-indexed 0, 5, 19 respectively) and returns, for every accession
// present in wanted, its taxid and the local genomic FASTA path derived from
// its ftp_path column.
func scanAssemblySummaries(dir string, wanted map[string]struct{}) (map[string]string, map[string]string, error) {
	taxids := make(map[string]string, len(wanted))
	fastaPaths := make(map[string]string, len(wanted))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading assembly summary directory %s", dir)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "assembly_summary") {
			continue
		}
		if err := scanOneSummary(filepath.Join(dir, entry.Name()), wanted, taxids, fastaPaths); err != nil {
			return nil, nil, err
		}
		if len(fastaPaths) == len(wanted) {
			break
		}
	}
	return taxids, fastaPaths, nil
}

func scanOneSummary(path string, wanted map[string]struct{}, taxids, fastaPaths map[string]string) error {
	fh, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 20 {
			continue
		}
		accession := cols[0]
		if _, ok := wanted[accession]; !ok {
			continue
		}
		ftpPath := strings.TrimRight(cols[19], "/")
		if ftpPath == "" || ftpPath == "na" {
			continue
		}
		base := filepath.Base(ftpPath)
		fastaPaths[accession] = filepath.Join(filepath.Dir(path), base, base+"_genomic.fna.gz")
		taxids[accession] = cols[5]
	}
	return scanner.Err()
}

// concatFASTA streams each source FASTA (gzip-transparent) into a single
// combined output, as the candidate reference set for one materialise call
// is typically small enough to afford a straight concatenation rather than a
// merged index.
func concatFASTA(ctx context.Context, sources map[string]string, outPath string) error {
	out, err := xopen.Wopen(outPath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", outPath)
	}
	defer out.Close()

	for accession, path := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		in, err := xopen.Ropen(path)
		if err != nil {
			return errors.Wrapf(err, "opening reference FASTA for %s at %s", accession, path)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return errors.Wrapf(err, "copying reference FASTA for %s", accession)
		}
	}
	return nil
}

func writeTaxonomyTSV(path string, taxids map[string]string) error {
	out, err := xopen.Wopen(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer out.Close()

	for accession, taxid := range taxids {
		if _, err := fmt.Fprintf(out, "%s\t%s\n", accession, taxid); err != nil {
			return errors.Wrap(err, "writing reference taxonomy table")
		}
	}
	return nil
}
