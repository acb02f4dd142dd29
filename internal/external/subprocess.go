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
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MashSketcher shells out to "mash screen", the same tool whose five-column
// output (identity, shared-hashes, median-multiplicity, p-value, reference
// comment) is parsed verbatim by internal/screen.ParseLine.
type MashSketcher struct {
	BinPath string
	Threads int
}

// NewMashSketcher returns a MashSketcher invoking "mash" on PATH with
// threads parallel hash comparisons; threads <= 0 means mash's own default.
func NewMashSketcher(threads int) *MashSketcher {
	return &MashSketcher{BinPath: "mash", Threads: threads}
}

func (s *MashSketcher) Screen(ctx context.Context, queryPath, sketchDBPath, outPath string) error {
	args := []string{"screen"}
	if s.Threads > 0 {
		args = append(args, "-p", strconv.Itoa(s.Threads))
	}
	args = append(args, sketchDBPath, queryPath)

	cmd := exec.CommandContext(ctx, s.BinPath, args...)
	out, err := cmd.Output()
	if err != nil {
		return wrapExecErr(err, "mash screen")
	}
	return writeAll(outPath, out)
}

func (s *MashSketcher) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, s.BinPath, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", wrapExecErr(err, "mash --version")
	}
	return strings.TrimSpace(string(out)), nil
}

// Minimap2Aligner shells out to minimap2 in PAF output mode (-c omitted: PAF
// without the optional CIGAR is enough for the aggregator's interval/identity
// accounting).
type Minimap2Aligner struct {
	BinPath string
	Threads int
}

func NewMinimap2Aligner(threads int) *Minimap2Aligner {
	return &Minimap2Aligner{BinPath: "minimap2", Threads: threads}
}

func presetFor(mode AlignMode) string {
	if mode == AlignModeReads {
		return "sr"
	}
	return "asm5"
}

func (a *Minimap2Aligner) Align(ctx context.Context, queryPath, referencesPath, outPath string, mode AlignMode) error {
	args := []string{"-x", presetFor(mode), "-o", outPath}
	if a.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(a.Threads))
	}
	args = append(args, referencesPath, queryPath)

	cmd := exec.CommandContext(ctx, a.BinPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(wrapExecErr(err, "minimap2"), "output: %s", string(out))
	}
	return nil
}

// BuildIndex precomputes a .mmi index via "minimap2 -d", so a cache entry
// serving many runs pays the index-construction cost once.
func (a *Minimap2Aligner) BuildIndex(ctx context.Context, referencesPath, indexPath string) error {
	cmd := exec.CommandContext(ctx, a.BinPath, "-d", indexPath, referencesPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(wrapExecErr(err, "minimap2 -d"), "output: %s", string(out))
	}
	return nil
}

func (a *Minimap2Aligner) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, a.BinPath, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", wrapExecErr(err, "minimap2 --version")
	}
	return strings.TrimSpace(string(out)), nil
}

func writeAll(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

func wrapExecErr(err error, what string) error {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return errors.Wrapf(err, "%s exited: %s", what, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return errors.Wrapf(err, "running %s", what)
}
