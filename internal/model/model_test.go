package model

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
	"github.com/logsift/logsift/internal/index"
	"github.com/logsift/logsift/internal/source"
	"github.com/logsift/logsift/internal/tokenizer"
)

func trainedIndex(t *testing.T, lines ...string) *TrainedIndex {
	t.Helper()
	b := index.NewBuilder(0)
	var lineCount int64
	for _, line := range lines {
		b.Add(tokenizer.Tokenize([]byte(line)))
		lineCount++
	}
	return &TrainedIndex{
		Index:     b.Build(),
		CreatedAt: time.UnixMilli(1700000000000),
		TrainTime: 7 * time.Millisecond,
		Sources:   []source.Source{source.Local("/logs/app.log.1")},
		LineCount: lineCount,
		ByteCount: 1024,
	}
}

func TestGetExactAndSingleFallback(t *testing.T) {
	m := New(nil)
	m.Indexes["app.log"] = trainedIndex(t, "steady state line here")

	assert.NotNil(t, m.Get("app.log"))
	assert.NotNil(t, m.Get("unrelated.log"),
		"a single-index model matches any name, so diffing two files works")

	m.Indexes["other.log"] = trainedIndex(t, "another steady line")
	assert.Nil(t, m.Get("unrelated.log"),
		"with several indexes an unknown name has no match")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := New([]source.Content{source.File(source.Local("/logs/app.log.1"))})
	m.Indexes["app.log"] = trainedIndex(t,
		"the first baseline line",
		"the second baseline line",
	)

	p := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, m.Save(p))

	got, err := Load(p)
	require.NoError(t, err)
	require.Contains(t, got.Indexes, tokenizer.IndexName("app.log"))

	orig := m.Indexes["app.log"]
	loaded := got.Indexes["app.log"]
	assert.Equal(t, orig.LineCount, loaded.LineCount)
	assert.Equal(t, orig.Sources, loaded.Sources)
	assert.Equal(t, orig.Index.RowCount(), loaded.Index.RowCount())

	// A loaded index answers queries identically.
	q := tokenizer.Tokenize([]byte("the first baseline line"))
	assert.Equal(t, orig.Index.Distance(q), loaded.Index.Distance(q))
	q = tokenizer.Tokenize([]byte("completely novel content appears"))
	assert.Equal(t, orig.Index.Distance(q), loaded.Index.Distance(q))
}

func TestCheck(t *testing.T) {
	m := New(nil)
	p := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, m.Save(p))

	created, err := Check(p)
	require.NoError(t, err)
	assert.WithinDuration(t, m.CreatedAt, created, time.Second)
}

func TestLoadRejectsVersionMismatch(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	require.NoError(t, cbor.NewEncoder(zw).Encode(envelope{Magic: magic, Version: Version + 1}))
	require.NoError(t, zw.Close())

	_, err := Read(&buf)
	require.Error(t, err)
	assert.Equal(t, sifterrors.ErrCodeModelVersion, sifterrors.GetCode(err))
	assert.True(t, sifterrors.IsFatal(err))
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("garbage")))
	require.Error(t, err)
	assert.Equal(t, sifterrors.ErrCodeModelCorrupt, sifterrors.GetCode(err))
}

func TestMerge(t *testing.T) {
	a := New([]source.Content{source.File(source.Local("/a.log"))})
	a.Indexes["app.log"] = trainedIndex(t, "shared baseline line here", "only in first model")

	b := New([]source.Content{source.File(source.Local("/b.log"))})
	b.Indexes["app.log"] = trainedIndex(t, "shared baseline line here", "only in second model")
	b.Indexes["other.log"] = trainedIndex(t, "other file content line")

	a.Merge(b)
	require.Contains(t, a.Indexes, tokenizer.IndexName("other.log"))
	merged := a.Indexes["app.log"]
	assert.Equal(t, 3, merged.Index.RowCount(), "the shared row is deduplicated")
	assert.Len(t, merged.Sources, 2)
	assert.Len(t, a.Baselines, 2)
}
