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

// Package paf parses Pairwise mApping Format alignment records, the
// tab-delimited output of the external aligner collaborator.
package paf

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/breader"
)

// Record is one PAF alignment. Optional SAM-style tag columns beyond the 12
// mandatory fields are ignored.
type Record struct {
	QueryID    string
	QueryLen   int
	QueryStart int
	QueryEnd   int
	Strand     byte
	TargetID   string
	TargetLen  int
	TargetStart int
	TargetEnd  int
	Matches    int
	AlnLen     int
	MapQ       int
}

// Validate checks the invariants the spec places on a PafRecord.
func (r Record) Validate() error {
	if !(0 <= r.QueryStart && r.QueryStart < r.QueryEnd && r.QueryEnd <= r.QueryLen) {
		return errors.Errorf("invalid query span [%d,%d) over length %d", r.QueryStart, r.QueryEnd, r.QueryLen)
	}
	if r.Matches > r.AlnLen {
		return errors.Errorf("matches %d exceeds alignment length %d", r.Matches, r.AlnLen)
	}
	return nil
}

// ParseLine parses one tab-delimited PAF line into a Record.
func ParseLine(line string) (Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 12 {
		return Record{}, errors.Errorf("expected at least 12 PAF columns, got %d", len(fields))
	}

	var r Record
	var err error
	r.QueryID = fields[0]
	if r.QueryLen, err = strconv.Atoi(fields[1]); err != nil {
		return Record{}, errors.Wrap(err, "query length")
	}
	if r.QueryStart, err = strconv.Atoi(fields[2]); err != nil {
		return Record{}, errors.Wrap(err, "query start")
	}
	if r.QueryEnd, err = strconv.Atoi(fields[3]); err != nil {
		return Record{}, errors.Wrap(err, "query end")
	}
	if len(fields[4]) != 1 || (fields[4][0] != '+' && fields[4][0] != '-' && fields[4][0] != '*') {
		return Record{}, errors.Errorf("invalid strand column: %q", fields[4])
	}
	r.Strand = fields[4][0]
	r.TargetID = fields[5]
	if r.TargetLen, err = strconv.Atoi(fields[6]); err != nil {
		return Record{}, errors.Wrap(err, "target length")
	}
	if r.TargetStart, err = strconv.Atoi(fields[7]); err != nil {
		return Record{}, errors.Wrap(err, "target start")
	}
	if r.TargetEnd, err = strconv.Atoi(fields[8]); err != nil {
		return Record{}, errors.Wrap(err, "target end")
	}
	if r.Matches, err = strconv.Atoi(fields[9]); err != nil {
		return Record{}, errors.Wrap(err, "matches")
	}
	if r.AlnLen, err = strconv.Atoi(fields[10]); err != nil {
		return Record{}, errors.Wrap(err, "aln length")
	}
	if r.MapQ, err = strconv.Atoi(fields[11]); err != nil {
		return Record{}, errors.Wrap(err, "mapq")
	}

	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Stream reads PAF records from file (any path breader/xopen can open,
// including gzip-compressed streams), invoking onRecord for each valid
// record in file order. Malformed lines are reported through onError; the
// caller decides whether to keep streaming or abort, matching the spec's
// "malformed lines increment a counter, and skip" semantics with the
// max_parse_errors cutoff left to the aggregator.
func Stream(file string, onRecord func(Record) error, onError func(line string, err error) (stop bool)) error {
	fn := func(line string) (interface{}, bool, error) {
		line = strings.TrimRight(line, "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			return nil, false, nil
		}
		return line, true, nil
	}

	reader, err := breader.NewBufferedReader(file, 1, 500, fn)
	if err != nil {
		return errors.Wrapf(err, "opening PAF stream %s", file)
	}

	for chunk := range reader.Ch {
		if chunk.Err != nil {
			return errors.Wrap(chunk.Err, "reading PAF stream")
		}
		for _, d := range chunk.Data {
			line := d.(string)
			rec, err := ParseLine(line)
			if err != nil {
				if onError != nil && onError(line, err) {
					return nil
				}
				continue
			}
			if err := onRecord(rec); err != nil {
				return err
			}
		}
	}
	return nil
}
