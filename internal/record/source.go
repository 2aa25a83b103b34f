package record

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Source is a lazy, finite, non-restartable sequence of records. Next returns
// io.EOF once the sequence is exhausted. A *DecodeError leaves the source
// usable; the following call moves on to the next line.
type Source interface {
	Next() (Record, error)
}

type lineDecoder struct {
	scanner   *bufio.Scanner
	line      int
	skipBlank bool
	parse     func(line []byte) (Record, error)
}

func newLineDecoder(r io.Reader, skipBlank bool, parse func([]byte) (Record, error)) *lineDecoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // 10MB line buffer
	return &lineDecoder{scanner: scanner, skipBlank: skipBlank, parse: parse}
}

func (d *lineDecoder) Next() (Record, error) {
	for d.scanner.Scan() {
		d.line++
		b := bytes.TrimRight(d.scanner.Bytes(), "\r")
		if d.skipBlank && len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		rec, err := d.parse(b)
		if err != nil {
			return nil, &DecodeError{Line: d.line, Err: err}
		}
		return rec, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return nil, io.EOF
}

// NewJSONDecoder reads one JSON object per line. Blank lines are skipped.
func NewJSONDecoder(r io.Reader) Source {
	return newLineDecoder(r, true, func(b []byte) (Record, error) {
		return ParseJSON(b)
	})
}

// NewDelimitedDecoder reads one raw row per line. Blank lines are rows too.
func NewDelimitedDecoder(r io.Reader, delim string) Source {
	return newLineDecoder(r, false, func(b []byte) (Record, error) {
		return ParseDelimited(string(b), delim), nil
	})
}

// NewLabeledDelimitedDecoder reads rows written by the labeler. Every written
// row carries a label field, so blank lines are skipped.
func NewLabeledDelimitedDecoder(r io.Reader, delim string) Source {
	return newLineDecoder(r, true, func(b []byte) (Record, error) {
		return ParseLabeledDelimited(strings.TrimSpace(string(b)), delim), nil
	})
}

// SliceSource yields records from memory.
type SliceSource struct {
	recs []Record
	pos  int
}

func NewSliceSource(recs ...Record) *SliceSource {
	return &SliceSource{recs: recs}
}

func (s *SliceSource) Next() (Record, error) {
	if s.pos >= len(s.recs) {
		return nil, io.EOF
	}
	rec := s.recs[s.pos]
	s.pos++
	return rec, nil
}

// Collect drains a source. Decode errors stop the collection.
func Collect(src Source) ([]Record, error) {
	var out []Record
	for {
		rec, err := src.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
