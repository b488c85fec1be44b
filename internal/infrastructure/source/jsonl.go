// Package source reads structure records for the sieve pipeline.
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/turtacn/PDB-Sieve/pkg/errors"
	"github.com/turtacn/PDB-Sieve/pkg/types/structure"
)

// Source yields records one at a time.  Next returns io.EOF once the input is
// exhausted.
type Source interface {
	Next(ctx context.Context) (*structure.Entry, error)
}

// JSONLines decodes one structure.Entry per line.  Blank lines are skipped.
type JSONLines struct {
	r    *bufio.Reader
	line int
}

// NewJSONLines wraps r.
func NewJSONLines(r io.Reader) *JSONLines {
	return &JSONLines{r: bufio.NewReaderSize(r, 64*1024)}
}

// Line returns the number of the last line read.
func (s *JSONLines) Line() int { return s.line }

// Next decodes, normalizes and validates the next record.  Decode and
// validation failures carry CodeRecordDecode and the offending line number.
func (s *JSONLines) Next(ctx context.Context) (*structure.Entry, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := s.r.ReadBytes('\n')
		if len(raw) == 0 && err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, errors.Wrap(err, errors.CodeRecordDecode, fmt.Sprintf("read failed after line %d", s.line))
		}
		s.line++
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}

		var e structure.Entry
		if derr := json.Unmarshal(raw, &e); derr != nil {
			return nil, errors.Wrap(derr, errors.CodeRecordDecode, fmt.Sprintf("line %d: malformed record", s.line))
		}
		e.Normalize()
		if verr := e.Validate(); verr != nil {
			return nil, errors.Wrap(verr, errors.CodeRecordDecode, fmt.Sprintf("line %d", s.line))
		}
		return &e, nil
	}
}

// File is a JSONLines source backed by a file.  The path "-" reads stdin.
type File struct {
	*JSONLines
	f *os.File
}

// OpenFile opens path for reading.
func OpenFile(path string) (*File, error) {
	if path == "-" {
		return &File{JSONLines: NewJSONLines(os.Stdin)}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNotFound, fmt.Sprintf("cannot open record file %q", path))
	}
	return &File{JSONLines: NewJSONLines(f), f: f}, nil
}

// Close closes the underlying file.  Closing stdin is a no-op.
func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	return f.f.Close()
}

// Slice is an in-memory source.
type Slice struct {
	entries []*structure.Entry
	pos     int
}

// NewSlice returns a source over entries.
func NewSlice(entries ...*structure.Entry) *Slice {
	return &Slice{entries: entries}
}

func (s *Slice) Next(ctx context.Context) (*structure.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.entries) {
		return nil, io.EOF
	}
	e := s.entries[s.pos]
	s.pos++
	return e, nil
}

// ReadAll drains src.
func ReadAll(ctx context.Context, src Source) ([]*structure.Entry, error) {
	var out []*structure.Entry
	for {
		e, err := src.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}
