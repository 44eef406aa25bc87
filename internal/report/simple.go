package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/oniongen/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether the matches section is shown when empty.
	showEmpty bool

	// verbose adds the directory and time of each match.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the session report in human-readable format.
func (w *SimpleWriter) Write(report *model.SessionReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeMatches(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WriteSessions outputs one line per session.
func (w *SimpleWriter) WriteSessions(sessions []*model.SessionReport) (int, error) {
	var sb strings.Builder

	if len(sessions) == 0 {
		sb.WriteString("No sessions recorded.\n")
		return w.output.Write([]byte(sb.String()))
	}

	sb.WriteString(fmt.Sprintf("%-36s  %-23s  %-9s  %12s  %8s  %s\n",
		"SESSION", "STARTED", "STATUS", "GENERATED", "MATCHED", "PATTERN"))
	for _, s := range sessions {
		sb.WriteString(fmt.Sprintf("%-36s  %-23s  %-9s  %12s  %8s  %s\n",
			s.ID,
			s.StartedAt.Format(timeLayout),
			s.Status,
			formatCount(s.Generated),
			formatCount(s.Matched),
			formatPattern(s.Pattern),
		))
	}

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with session information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.SessionReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                      ONIONGEN SESSION REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Session:   %s\n", report.ID))
	sb.WriteString(fmt.Sprintf("Pattern:   %s\n", formatPattern(report.Pattern)))
	sb.WriteString(fmt.Sprintf("Started:   %s\n", report.StartedAt.Format(timeLayout)))
	sb.WriteString(fmt.Sprintf("Finished:  %s\n", formatFinished(report)))

	if report.Error != "" {
		sb.WriteString(fmt.Sprintf("Status:    %s - %s\n", strings.ToUpper(string(report.Status)), report.Error))
	} else {
		sb.WriteString(fmt.Sprintf("Status:    %s\n", statusTitle(report.Status)))
	}

	sb.WriteString("\n")
}

// writeSummary writes the counters section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.SessionReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  GENERATED: %s (limit %s)\n", formatCount(report.Generated), formatLimit(report.GenerateMax)))
	sb.WriteString(fmt.Sprintf("  MATCHED:   %s (limit %s)\n", formatCount(report.Matched), formatLimit(report.MatchMax)))
	sb.WriteString(fmt.Sprintf("  SAVED:     %d\n", report.SavedCount()))
	sb.WriteString(fmt.Sprintf("  DURATION:  %s\n", report.Duration().Round(time.Millisecond)))
	sb.WriteString(fmt.Sprintf("  RATE:      %s\n", formatRate(report)))
	sb.WriteString("\n")
}

// writeMatches lists the matched addresses.
func (w *SimpleWriter) writeMatches(sb *strings.Builder, report *model.SessionReport) {
	if len(report.Matches) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("MATCHES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.Matches) == 0 {
		sb.WriteString("  No matches\n\n")
		return
	}

	for _, m := range report.Matches {
		sb.WriteString(fmt.Sprintf("  [+] %s\n", m.Hostname()))
		if !w.verbose {
			continue
		}
		if m.Saved() {
			sb.WriteString(fmt.Sprintf("      Directory: %s\n", m.Directory))
		} else {
			sb.WriteString("      Directory: (not saved)\n")
		}
		if !m.FoundAt.IsZero() {
			sb.WriteString(fmt.Sprintf("      Found:     %s\n", m.FoundAt.Format(timeLayout)))
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by oniongen\n")
	sb.WriteString("https://github.com/nao1215/oniongen\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
