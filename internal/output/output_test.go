package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logsift/logsift/internal/report"
	"github.com/logsift/logsift/internal/source"
)

func sampleReport() *report.Report {
	return &report.Report{
		CreatedAt: 1700000000000,
		RunTime:   512,
		Target:    source.File(source.Local("/logs/app.log")),
		Baselines: []source.Content{source.File(source.Local("/logs/app.log.1"))},
		LogReports: []report.LogReport{
			{
				Source:    source.Local("/logs/app.log"),
				IndexName: "app.log",
				LineCount: 100,
				TestTime:  3 * time.Millisecond,
				Anomalies: []report.AnomalyContext{
					{
						Before: []string{"nominal seven", "nominal eight", "nominal nine"},
						Anomalies: []report.Anomaly{
							{Distance: 0.95, Line: 10, Offset: 420, Text: "kernel panic alpha", Gap: []string{"nominal eleven"}},
							{Distance: 0.4, Line: 12, Offset: 500, Text: "mild oddity beta"},
						},
						After: []string{"nominal thirteen"},
					},
				},
			},
		},
		UnknownFiles: []report.UnknownFile{
			{Name: "metrics", Sources: []source.Source{source.Local("/logs/metrics.csv")}},
		},
		ReadErrors: []report.ReadError{
			{Source: source.Local("/logs/gone.log"), Error: "no such file"},
		},
		TotalLineCount:    100,
		TotalAnomalyCount: 2,
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPlain(&buf).Render(sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "Target: /logs/app.log")
	assert.Contains(t, out, "Baseline: /logs/app.log.1")
	assert.Contains(t, out, "kernel panic alpha")
	assert.Contains(t, out, "mild oddity beta")
	assert.Contains(t, out, "nominal seven")
	assert.Contains(t, out, "nominal eleven")
	assert.Contains(t, out, "nominal thirteen")
	assert.Contains(t, out, "metrics.csv")
	assert.Contains(t, out, "no such file")
	assert.Contains(t, out, "2 anomalies out of 100 lines")
	// Distance rendered on a 0-99 scale.
	assert.Contains(t, out, "94   10 | kernel panic alpha")
}

func TestRenderEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	rep := &report.Report{Target: source.File(source.Local("/x"))}
	require.NoError(t, NewPlain(&buf).Render(rep))
	assert.Contains(t, buf.String(), "No files were analyzed.")
	assert.Contains(t, buf.String(), "0 anomalies")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPlain(&buf).JSON(sampleReport()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.EqualValues(t, 2, decoded["total_anomaly_count"])
}
