package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"blank-subtitles/internal/domain"
)

// millisEpsilon absorbs binary float error before truncating to whole milliseconds.
const millisEpsilon = 1e-6

// WriteError reports a failure to open or write the destination file.
type WriteError struct {
	Path string
	Err  error
}

// Error formats the failing path and cause.
func (e *WriteError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

// Unwrap exposes the underlying I/O error.
func (e *WriteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Sort returns a copy of segments ordered by start time. Ties keep input order.
func Sort(segments []domain.Segment) []domain.Segment {
	sorted := append([]domain.Segment(nil), segments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})
	return sorted
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm with milliseconds truncated.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}

	whole := math.Floor(seconds)
	millis := int64(math.Floor((seconds-whole)*1000 + millisEpsilon))
	if millis > 999 {
		millis = 999
	}

	total := int64(whole)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// Encode writes one block per segment, in the given order, to w.
func Encode(w io.Writer, segments []domain.Segment) error {
	bw := bufio.NewWriter(w)
	for i, seg := range segments {
		if _, err := fmt.Fprintf(
			bw,
			"%d\n%s --> %s\n[%s]: \n\n",
			i+1,
			FormatTimestamp(seg.Start),
			FormatTimestamp(seg.End),
			seg.Speaker,
		); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// FileWriter writes ordered subtitle files to disk.
type FileWriter struct {
	create func(name string) (*os.File, error)
}

// NewFileWriter builds a writer backed by os.Create.
func NewFileWriter() *FileWriter {
	return &FileWriter{create: os.Create}
}

// Write sorts segments by start time and serializes them to path.
// On failure the destination may hold partial content and should be treated as invalid.
func (w *FileWriter) Write(path string, segments []domain.Segment) error {
	f, err := w.create(path)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}

	if err := Encode(f, Sort(segments)); err != nil {
		_ = f.Close()
		return &WriteError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}
