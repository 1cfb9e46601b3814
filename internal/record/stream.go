package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// StreamWriter appends records to a gzip-compressed text stream, each as
// "label: value" lines followed by a blank line.
type StreamWriter struct {
	name       string
	withReview bool
	gz         *gzip.Writer
	buf        *bufio.Writer
	count      int
}

// NewStreamWriter wraps w. withReviewFlag adds the "review" line.
func NewStreamWriter(name string, w io.Writer, withReviewFlag bool) *StreamWriter {
	gz := gzip.NewWriter(w)
	return &StreamWriter{
		name:       name,
		withReview: withReviewFlag,
		gz:         gz,
		buf:        bufio.NewWriter(gz),
	}
}

// Name identifies the stream in logs and metrics.
func (s *StreamWriter) Name() string {
	return s.name
}

// Count returns the number of records written so far.
func (s *StreamWriter) Count() int {
	return s.count
}

// Write appends one record.
func (s *StreamWriter) Write(r RatingRecord) error {
	for _, f := range r.Fields(s.withReview) {
		if _, err := fmt.Fprintf(s.buf, "%s: %s\n", f.Label, f.Value); err != nil {
			return fmt.Errorf("write %s record: %w", s.name, err)
		}
	}
	if err := s.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("write %s separator: %w", s.name, err)
	}
	s.count++
	return nil
}

// Close flushes buffered data and finishes the gzip member. The underlying
// writer is not closed.
func (s *StreamWriter) Close() error {
	if err := s.buf.Flush(); err != nil {
		_ = s.gz.Close()
		return fmt.Errorf("flush %s stream: %w", s.name, err)
	}
	if err := s.gz.Close(); err != nil {
		return fmt.Errorf("close %s stream: %w", s.name, err)
	}
	return nil
}

// Reader iterates over the blocks of a stream written by StreamWriter.
type Reader struct {
	gz      *gzip.Reader
	scanner *bufio.Scanner
}

const maxLineBytes = 8 << 20

// NewReader opens a compressed stream.
func NewReader(r io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open record stream: %w", err)
	}
	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Reader{gz: gz, scanner: sc}, nil
}

// Next returns the next block as label to value. It returns io.EOF once the
// stream is exhausted.
func (r *Reader) Next() (map[string]string, error) {
	var block map[string]string
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if block != nil {
				return block, nil
			}
			continue
		}
		label, value, ok := strings.Cut(line, ": ")
		if !ok {
			label, value = strings.TrimSuffix(line, ":"), ""
		}
		if block == nil {
			block = make(map[string]string, 17)
		}
		block[label] = value
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read record stream: %w", err)
	}
	if block != nil {
		return block, nil
	}
	return nil, io.EOF
}

// Close releases the decompressor.
func (r *Reader) Close() error {
	if err := r.gz.Close(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("close record stream: %w", err)
	}
	return nil
}
