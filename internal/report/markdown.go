package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/oniongen/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for documentation
// and sharing. It uses GitHub-flavored alerts and a mermaid pie chart.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the session report in Markdown format.
func (w *MarkdownWriter) Write(report *model.SessionReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeMatches(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteSessions outputs a table of sessions.
func (w *MarkdownWriter) WriteSessions(sessions []*model.SessionReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("oniongen Sessions")
	md.PlainText("")

	if len(sessions) == 0 {
		md.PlainText("No sessions recorded.")
		md.PlainText("")
	} else {
		rows := make([][]string, len(sessions))
		for i, s := range sessions {
			rows[i] = []string{
				"`" + s.ID + "`",
				s.StartedAt.Format(timeLayout),
				statusTitle(s.Status),
				formatCount(s.Generated),
				formatCount(s.Matched),
				"`" + formatPattern(s.Pattern) + "`",
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Session", "Started", "Status", "Generated", "Matched", "Pattern"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// writeHeader writes the report header with session information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.SessionReport) {
	md.H1("oniongen Session Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Session", "`" + report.ID + "`"},
			{"Pattern", "`" + formatPattern(report.Pattern) + "`"},
			{"Started", report.StartedAt.Format(timeLayout)},
			{"Finished", formatFinished(report)},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.SessionReport) string {
	switch report.Status {
	case model.StatusCompleted:
		return "✅ " + statusTitle(report.Status)
	case model.StatusStopped:
		return "⏹️ " + statusTitle(report.Status)
	case model.StatusFailed:
		return "❌ " + statusTitle(report.Status) + " - " + report.Error
	default:
		return "⏳ " + statusTitle(report.Status)
	}
}

// writeSummary writes the counters table, chart and alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.SessionReport) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value", "Limit"},
		Rows: [][]string{
			{"Generated", formatCount(report.Generated), formatLimit(report.GenerateMax)},
			{"Matched", formatCount(report.Matched), formatLimit(report.MatchMax)},
			{"Saved", strconv.Itoa(report.SavedCount()), "-"},
			{"Duration", report.Duration().Round(time.Millisecond).String(), "-"},
			{"Rate", formatRate(report), "-"},
		},
	})
	md.PlainText("")

	if report.Generated > 0 {
		w.writePieChart(md, report)
	}

	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of matched and unmatched addresses.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.SessionReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Generated Addresses"),
		piechart.WithShowData(true),
	)

	if report.Matched > 0 {
		chart.LabelAndIntValue("Matched", report.Matched)
	}
	if unmatched := report.Unmatched(); unmatched > 0 {
		chart.LabelAndIntValue("Unmatched", unmatched)
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert that matches the session outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.SessionReport) {
	switch {
	case report.Status == model.StatusFailed:
		md.Cautionf("The session failed after %s addresses: %s", formatCount(report.Generated), report.Error)
	case report.Matched > 0 && report.SavedCount() < len(report.Matches):
		md.Warningf(
			"%d matching address(es) were counted but not saved. Their keys are only in the audit log.",
			len(report.Matches)-report.SavedCount(),
		)
	case report.Matched > 0:
		md.Importantf(
			"%s matching address(es) found. Keep the hidden service directories private.",
			formatCount(report.Matched),
		)
	case report.Status == model.StatusStopped:
		md.Note("The session was stopped before reaching a limit.")
	default:
		md.Tip("No matching address was found. Widen the pattern or raise the generate limit.")
	}
	md.PlainText("")
}

// writeMatches writes the matches table.
func (w *MarkdownWriter) writeMatches(md *markdown.Markdown, report *model.SessionReport) {
	md.H2("Matches")
	md.PlainText("")

	if len(report.Matches) == 0 {
		md.PlainText("No matching addresses.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Matches))
	for i, m := range report.Matches {
		dir := m.Directory
		if dir == "" {
			dir = "-"
		}
		found := "-"
		if !m.FoundAt.IsZero() {
			found = m.FoundAt.Format(timeLayout)
		}
		rows[i] = []string{"`" + m.Hostname() + "`", dir, found}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Hostname", "Directory", "Found"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [oniongen](https://github.com/nao1215/oniongen)*")
}
