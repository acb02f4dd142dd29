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
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/hymet-project/hymet/internal/config"
)

// buildCommit is meant for linker injection (-ldflags "-X ...buildCommit=..."),
// the same convention kmcp/cmd/root.go's VERSION package var follows.
var buildCommit = "unknown"

// Metadata is the metadata.json document written alongside every run's
// output, per spec.md section 6.
type Metadata struct {
	Commit          string            `json:"commit"`
	Config          config.Config     `json:"config"`
	Fingerprint     string            `json:"selection_fingerprint"`
	CacheDir        string            `json:"cache_dir"`
	ToolVersions    map[string]string `json:"tool_versions"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
	QueryCount      int               `json:"query_count"`
	ClassifiedCount int               `json:"classified_count"`
}

// WriteMetadata marshals m as indented JSON into outDir/metadata.json.
func WriteMetadata(outDir string, m Metadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshalling metadata.json")
	}
	path := filepath.Join(outDir, "metadata.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// NewMetadata assembles a Metadata document from a completed Result.
func NewMetadata(cfg config.Config, res Result, startedAt, finishedAt time.Time) Metadata {
	classified := 0
	for _, a := range res.Assignments {
		if a.TaxID != 0 {
			classified++
		}
	}
	return Metadata{
		Commit:          buildCommit,
		Config:          cfg,
		Fingerprint:     res.Selection.Fingerprint,
		CacheDir:        res.CacheDir,
		ToolVersions:    res.ToolVersions,
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
		QueryCount:      len(res.Queries),
		ClassifiedCount: classified,
	}
}
