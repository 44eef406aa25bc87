package report

import (
	"io"
	"math"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/oniongen/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs one session report.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.SessionReport) (int, error)

	// WriteSessions outputs a listing of sessions, newest first.
	WriteSessions(sessions []*model.SessionReport) (int, error)
}

// MultiWriter writes to multiple Writers, for example the terminal and a file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.SessionReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteSessions outputs the session listing to all configured Writers.
func (m *MultiWriter) WriteSessions(sessions []*model.SessionReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSessions(sessions)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// timeLayout is used for every timestamp in text and Markdown output.
const timeLayout = "2006-01-02 15:04:05 MST"

var titleCaser = cases.Title(language.English)

// statusTitle returns a display form of a status, e.g. "Completed".
func statusTitle(s model.SessionStatus) string {
	if s == "" {
		return "Unknown"
	}
	return titleCaser.String(string(s))
}

// formatCount formats n with thousands separators.
func formatCount(n uint64) string {
	if n > math.MaxInt64 {
		return humanize.Comma(math.MaxInt64)
	}
	return humanize.Comma(int64(n))
}

// formatLimit formats a limit, where zero means no limit.
func formatLimit(n uint64) string {
	if n == 0 {
		return "unlimited"
	}
	return formatCount(n)
}

// formatRate formats addresses per second with one decimal.
func formatRate(r *model.SessionReport) string {
	return humanize.CommafWithDigits(r.Rate(), 1) + "/s"
}

// formatPattern shows an empty pattern explicitly.
func formatPattern(p string) string {
	if p == "" {
		return "(none)"
	}
	return p
}

// formatFinished returns the finish time, or a placeholder for running sessions.
func formatFinished(r *model.SessionReport) string {
	if r.FinishedAt.IsZero() {
		return "-"
	}
	return r.FinishedAt.Format(timeLayout)
}
