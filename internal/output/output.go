// Package output renders reports for the terminal: a summary table of the
// analyzed files followed by the anomaly windows, with distances colored by
// severity when stdout is a tty.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"github.com/logsift/logsift/internal/report"
)

// Writer renders reports.
type Writer struct {
	out      io.Writer
	useColor bool
}

// New creates a Writer; color is enabled when out is a terminal.
func New(out io.Writer) *Writer {
	useColor := false
	if f, ok := out.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Writer{out: out, useColor: useColor}
}

// NewPlain creates a Writer that never colors.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out}
}

// JSON writes the report as indented JSON.
func (w *Writer) JSON(rep *report.Report) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// Render writes the human-readable report.
func (w *Writer) Render(rep *report.Report) error {
	w.header(rep)
	if err := w.summaryTable(rep); err != nil {
		return err
	}
	for i := range rep.LogReports {
		w.logReport(&rep.LogReports[i])
	}
	w.footer(rep)
	return nil
}

func (w *Writer) header(rep *report.Report) {
	bold := w.sprintf(color.Bold)
	fmt.Fprintf(w.out, "%s %s\n", bold("Target:"), rep.Target)
	for _, baseline := range rep.Baselines {
		fmt.Fprintf(w.out, "%s %s\n", bold("Baseline:"), baseline)
	}
	fmt.Fprintf(w.out, "%s %s, %s %dms\n\n",
		bold("Created:"), time.UnixMilli(int64(rep.CreatedAt)).Format(time.RFC3339),
		bold("Run time:"), rep.RunTime)
}

func (w *Writer) summaryTable(rep *report.Report) error {
	if len(rep.LogReports) == 0 {
		fmt.Fprintln(w.out, "No files were analyzed.")
		return nil
	}
	table := tablewriter.NewWriter(w.out)
	table.Header([]string{"Anomalies", "File", "Index", "Lines", "Test time"})
	var rows [][]string
	for i := range rep.LogReports {
		lr := &rep.LogReports[i]
		rows = append(rows, []string{
			fmt.Sprintf("%d", lr.AnomalyCount()),
			lr.Source.RelPath(),
			lr.IndexName.String(),
			fmt.Sprintf("%d", lr.LineCount),
			lr.TestTime.Round(time.Millisecond).String(),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func (w *Writer) logReport(lr *report.LogReport) {
	if len(lr.Anomalies) == 0 {
		return
	}
	bold := w.sprintf(color.Bold)
	fmt.Fprintf(w.out, "\n%s\n", bold(lr.Source.RelPath()))
	for i, ctx := range lr.Anomalies {
		if i > 0 {
			fmt.Fprintln(w.out, "   ----")
		}
		w.window(&ctx)
	}
}

func (w *Writer) window(ctx *report.AnomalyContext) {
	pos := 0
	if len(ctx.Anomalies) > 0 {
		pos = ctx.Anomalies[0].Line - len(ctx.Before)
	}
	for _, line := range ctx.Before {
		w.contextLine(pos, line)
		pos++
	}
	for _, anomaly := range ctx.Anomalies {
		w.anomalyLine(&anomaly)
		pos = anomaly.Line + 1
		for _, line := range anomaly.Gap {
			w.contextLine(pos, line)
			pos++
		}
	}
	for _, line := range ctx.After {
		w.contextLine(pos, line)
		pos++
	}
}

func (w *Writer) contextLine(pos int, line string) {
	fmt.Fprintf(w.out, "   %4d | %s\n", pos, line)
}

func (w *Writer) anomalyLine(anomaly *report.Anomaly) {
	dist := fmt.Sprintf("%02d", int(anomaly.Distance*99))
	text := anomaly.Text
	if w.useColor {
		c := color.New(color.FgYellow)
		if anomaly.Distance >= 0.7 {
			c = color.New(color.FgRed, color.Bold)
		}
		dist = c.Sprint(dist)
		text = c.Sprint(text)
	}
	fmt.Fprintf(w.out, "%s %4d | %s\n", dist, anomaly.Line, text)
}

func (w *Writer) footer(rep *report.Report) {
	for _, unknown := range rep.UnknownFiles {
		for _, src := range unknown.Sources {
			fmt.Fprintf(w.out, "\nunknown file: %s (no baseline for index %s)\n", src.RelPath(), unknown.Name)
		}
	}
	for _, readErr := range rep.ReadErrors {
		fmt.Fprintf(w.out, "\nread error: %s: %s\n", readErr.Source.RelPath(), readErr.Error)
	}
	bold := w.sprintf(color.Bold)
	fmt.Fprintf(w.out, "\n%s %d anomalies out of %d lines (%.2f%% reduction)\n",
		bold("Result:"), rep.TotalAnomalyCount, rep.TotalLineCount, rep.Reduction())
}

// sprintf returns a color sprint function, or a passthrough without color.
func (w *Writer) sprintf(attrs ...color.Attribute) func(a ...interface{}) string {
	if !w.useColor {
		return fmt.Sprint
	}
	return color.New(attrs...).Sprint
}
