// Package report defines the structured result of a run and its persisted
// binary form.
package report

import (
	"time"

	"github.com/logsift/logsift/internal/source"
	"github.com/logsift/logsift/internal/tokenizer"
)

// Anomaly is one target line whose tokenized form is far from every baseline
// line of the same index.
type Anomaly struct {
	// Distance is the cosine distance to the nearest baseline row, in [0, 1].
	Distance float32 `cbor:"1,keyasint" json:"distance"`

	// Line is the 1-based line number; Offset the byte offset of the line
	// start in the source stream.
	Line   int   `cbor:"2,keyasint" json:"line"`
	Offset int64 `cbor:"3,keyasint" json:"offset"`

	// Text is the raw line.
	Text string `cbor:"4,keyasint" json:"text"`

	// Gap holds the nominal lines between this anomaly and the next one of
	// the same merged context; empty for the last anomaly of a context.
	Gap []string `cbor:"5,keyasint,omitempty" json:"gap,omitempty"`
}

// AnomalyContext is a window of one or more nearby anomalies with their
// surrounding lines. Anomalies closer than the configured context distance
// are merged into a single window; merging never drops an anomaly.
type AnomalyContext struct {
	// Before holds up to before-context lines preceding the first anomaly.
	Before []string `cbor:"1,keyasint,omitempty" json:"before,omitempty"`

	// Anomalies lists the window's anomalies in ascending line order.
	Anomalies []Anomaly `cbor:"2,keyasint" json:"anomalies"`

	// After holds up to after-context lines following the last anomaly.
	After []string `cbor:"3,keyasint,omitempty" json:"after,omitempty"`
}

// LogReport is the per-source result.
type LogReport struct {
	Source    source.Source       `cbor:"1,keyasint" json:"source"`
	IndexName tokenizer.IndexName `cbor:"2,keyasint" json:"index_name"`
	LineCount int64               `cbor:"3,keyasint" json:"line_count"`
	ByteCount int64               `cbor:"4,keyasint" json:"byte_count"`
	TestTime  time.Duration       `cbor:"5,keyasint" json:"test_time"`
	Anomalies []AnomalyContext    `cbor:"6,keyasint" json:"anomalies"`
}

// AnomalyCount returns the number of anomalies across all contexts.
func (lr *LogReport) AnomalyCount() int {
	n := 0
	for _, ctx := range lr.Anomalies {
		n += len(ctx.Anomalies)
	}
	return n
}

// IndexReport summarizes the training of one index.
type IndexReport struct {
	Name      tokenizer.IndexName `cbor:"1,keyasint" json:"name"`
	TrainTime time.Duration       `cbor:"2,keyasint" json:"train_time"`
	Sources   []source.Source     `cbor:"3,keyasint" json:"sources"`
	LineCount int64               `cbor:"4,keyasint" json:"line_count"`
	RowCount  int                 `cbor:"5,keyasint" json:"row_count"`
}

// UnknownFile records target sources with no trained counterpart.
type UnknownFile struct {
	Name    tokenizer.IndexName `cbor:"1,keyasint" json:"name"`
	Sources []source.Source     `cbor:"2,keyasint" json:"sources"`
}

// ReadError records a source that could not be opened or read.
type ReadError struct {
	Source source.Source `cbor:"1,keyasint" json:"source"`
	Error  string        `cbor:"2,keyasint" json:"error"`
}

// Report is the aggregated, write-once result of a run.
type Report struct {
	// CreatedAt and RunTime are unix milliseconds and elapsed milliseconds.
	CreatedAt uint64 `cbor:"1,keyasint" json:"created_at"`
	RunTime   uint64 `cbor:"2,keyasint" json:"run_time"`

	Target    source.Content   `cbor:"3,keyasint" json:"target"`
	Baselines []source.Content `cbor:"4,keyasint" json:"baselines"`

	// LogReports appear in the target's source-expansion order.
	LogReports   []LogReport   `cbor:"5,keyasint" json:"log_reports"`
	IndexReports []IndexReport `cbor:"6,keyasint" json:"index_reports"`
	UnknownFiles []UnknownFile `cbor:"7,keyasint" json:"unknown_files"`
	ReadErrors   []ReadError   `cbor:"8,keyasint" json:"read_errors"`

	TotalLineCount    uint32 `cbor:"9,keyasint" json:"total_line_count"`
	TotalAnomalyCount uint32 `cbor:"10,keyasint" json:"total_anomaly_count"`
}

// Reduction returns the percentage of lines suppressed by the analysis.
func (r *Report) Reduction() float64 {
	if r.TotalLineCount == 0 {
		return 0
	}
	return 100.0 * (1.0 - float64(r.TotalAnomalyCount)/float64(r.TotalLineCount))
}
