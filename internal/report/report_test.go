package report

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sifterrors "github.com/logsift/logsift/internal/errors"
	"github.com/logsift/logsift/internal/source"
)

func sampleReport() *Report {
	target := source.File(source.Local("/logs/audit.log"))
	baseline := source.File(source.Local("/logs/audit.log.1"))
	return &Report{
		CreatedAt: 1700000000000,
		RunTime:   1234,
		Target:    target,
		Baselines: []source.Content{baseline},
		LogReports: []LogReport{
			{
				Source:    target.Source,
				IndexName: "audit.log",
				LineCount: 1001,
				ByteCount: 52000,
				TestTime:  25 * time.Millisecond,
				Anomalies: []AnomalyContext{
					{
						Before: []string{"ctx before"},
						Anomalies: []Anomaly{
							{Distance: 0.42, Line: 500, Offset: 26000, Text: "the anomaly"},
							{Distance: 0.35, Line: 503, Offset: 26200, Text: "second anomaly"},
						},
						After: []string{"ctx after"},
					},
				},
			},
		},
		IndexReports: []IndexReport{
			{Name: "audit.log", TrainTime: 12 * time.Millisecond, Sources: []source.Source{baseline.Source}, LineCount: 1000, RowCount: 37},
		},
		UnknownFiles: []UnknownFile{
			{Name: "metrics", Sources: []source.Source{source.Local("/logs/metrics.csv")}},
		},
		ReadErrors: []ReadError{
			{Source: source.Local("/logs/gone.log"), Error: "open /logs/gone.log: no such file"},
		},
		TotalLineCount:    1001,
		TotalAnomalyCount: 2,
	}
}

func TestRoundTrip(t *testing.T) {
	r := sampleReport()
	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestSaveLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "report.bin")
	r := sampleReport()
	require.NoError(t, r.Save(p))

	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestReadRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	require.NoError(t, cbor.NewEncoder(zw).Encode(envelope{Magic: "NOPE", Version: Version}))
	require.NoError(t, zw.Close())

	_, err := Read(&buf)
	require.Error(t, err)
	assert.Equal(t, sifterrors.ErrCodeModelCorrupt, sifterrors.GetCode(err))
}

func TestReadRejectsVersionMismatch(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	require.NoError(t, cbor.NewEncoder(zw).Encode(envelope{Magic: Magic, Version: Version + 1}))
	require.NoError(t, zw.Close())

	_, err := Read(&buf)
	require.Error(t, err)
	assert.Equal(t, sifterrors.ErrCodeModelVersion, sifterrors.GetCode(err))
	assert.True(t, sifterrors.IsFatal(err))
}

func TestReadRejectsGarbage(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not a report at all")))
	require.Error(t, err)
}

func TestAnomalyCountAndReduction(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, 2, r.LogReports[0].AnomalyCount())
	assert.InDelta(t, 99.8, r.Reduction(), 0.1)

	empty := &Report{}
	assert.Zero(t, empty.Reduction())
}
