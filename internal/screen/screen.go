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

// Package screen parses the sketch/screen tool's output rows, the narrow
// (similarity, reference_id) interface the candidate selector consumes.
package screen

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/breader"
)

// Row is one screen result: a similarity score against a reference.
type Row struct {
	Similarity float64
	ReferenceID string
}

// ParseLine parses one TSV row in the fixed schema
// "similarity\tshared_hashes\tmedian_multiplicity\tp_value\treference_id",
// per the "dynamic TSV parsing" redesign note: unknown trailing columns are
// ignored, but the five required columns must be present.
func ParseLine(line string) (Row, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 5 {
		return Row{}, errors.Errorf("expected at least 5 columns, got %d", len(fields))
	}
	sim, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Row{}, errors.Wrap(err, "similarity")
	}
	if sim < 0 || sim > 1 {
		return Row{}, errors.Errorf("similarity %v out of [0,1]", sim)
	}
	return Row{Similarity: sim, ReferenceID: fields[4]}, nil
}

// ReadAll reads every valid row from file. Blank lines and every line that
// ParseLine rejects (such as a header line) are skipped without an error.
func ReadAll(file string) ([]Row, error) {
	fn := func(line string) (interface{}, bool, error) {
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return nil, false, nil
		}
		row, err := ParseLine(line)
		if err != nil {
			return nil, false, nil // tolerate a header row or blank trailer
		}
		return row, true, nil
	}

	reader, err := breader.NewBufferedReader(file, 1, 500, fn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening screen file %s", file)
	}

	rows := make([]Row, 0, 1024)
	for chunk := range reader.Ch {
		if chunk.Err != nil {
			return nil, errors.Wrap(chunk.Err, "reading screen file")
		}
		for _, d := range chunk.Data {
			rows = append(rows, d.(Row))
		}
	}
	return rows, nil
}
