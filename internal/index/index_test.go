package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logsift/logsift/internal/tokenizer"
)

func buildFrom(t *testing.T, lines ...string) *Index {
	t.Helper()
	b := NewBuilder(0)
	for _, line := range lines {
		b.Add(tokenizer.Tokenize([]byte(line)))
	}
	return b.Build()
}

func TestDistanceSelfQuery(t *testing.T) {
	lines := []string{
		"the first test line here",
		"the second test line here",
		"the third line is a warning message",
	}
	ix := buildFrom(t, lines...)
	for _, line := range lines {
		assert.Zero(t, ix.Distance(tokenizer.Tokenize([]byte(line))), "line %q", line)
	}
}

func TestDistanceEmptyQuery(t *testing.T) {
	ix := buildFrom(t, "some baseline line here")
	assert.Zero(t, ix.Distance(nil))
	assert.Zero(t, ix.Distance([]string{}))

	empty := NewBuilder(0).Build()
	assert.Zero(t, empty.Distance(nil))
}

func TestDistanceEmptyIndex(t *testing.T) {
	empty := NewBuilder(0).Build()
	assert.Equal(t, float32(1.0), empty.Distance([]string{"anything", "else"}))
	assert.Zero(t, empty.RowCount())
}

func TestDistanceDisjointVocabulary(t *testing.T) {
	ix := buildFrom(t, "scheduler processing event for repo alpha")
	d := ix.Distance(tokenizer.Tokenize([]byte("kernel panic not syncing")))
	assert.Equal(t, float32(1.0), d)
}

func TestDistancePartialOverlap(t *testing.T) {
	ix := buildFrom(t, "the first test is the answer")
	d := ix.Distance(tokenizer.Tokenize([]byte("the second test is the answer")))
	assert.Greater(t, d, float32(0.0))
	assert.Less(t, d, float32(0.5))
}

func TestDistanceRange(t *testing.T) {
	ix := buildFrom(t,
		"alpha beta gamma delta",
		"completely different words entirely",
	)
	queries := []string{
		"alpha beta gamma delta",
		"alpha beta unknown thing",
		"nothing matches anything here",
	}
	for _, q := range queries {
		d := ix.Distance(tokenizer.Tokenize([]byte(q)))
		assert.GreaterOrEqual(t, d, float32(0.0))
		assert.LessOrEqual(t, d, float32(1.0))
	}
}

func TestBuilderDedup(t *testing.T) {
	b := NewBuilder(0)
	b.Add([]string{"alpha", "beta"})
	b.Add([]string{"alpha", "beta"})
	b.Add([]string{"gamma", "delta"})
	b.Add([]string{"alpha", "beta"})
	assert.Equal(t, 2, b.RowCount())
}

func TestBuilderDeterminism(t *testing.T) {
	// Any permutation preserving first occurrence of unique rows yields
	// identical distances.
	a := NewBuilder(0)
	for _, row := range [][]string{
		{"alpha", "beta"}, {"alpha", "beta"}, {"gamma", "delta"}, {"echo", "foxtrot"},
	} {
		a.Add(row)
	}
	b := NewBuilder(0)
	for _, row := range [][]string{
		{"alpha", "beta"}, {"gamma", "delta"}, {"alpha", "beta"}, {"echo", "foxtrot"},
	} {
		b.Add(row)
	}
	ia, ib := a.Build(), b.Build()
	require.Equal(t, ia.RowCount(), ib.RowCount())
	for _, q := range [][]string{
		{"alpha", "beta"}, {"gamma", "unknown"}, {"echo", "foxtrot", "extra"},
	} {
		assert.Equal(t, ia.Distance(q), ib.Distance(q))
	}
}

func TestErrorTermsSeparate(t *testing.T) {
	ix := buildFrom(t, "operation finished with result success code zero")
	plain := ix.Distance(tokenizer.Tokenize([]byte("operation finished with result success code one")))
	errored := ix.Distance(tokenizer.Tokenize([]byte("operation finished with result failure code one")))
	assert.Greater(t, errored, plain,
		"an error word must push the line further from the baseline than a neutral change")
}

func TestSnapshotRoundTrip(t *testing.T) {
	ix := buildFrom(t,
		"the first baseline line",
		"the second baseline line",
	)
	restored := FromSnapshot(ix.Snapshot())
	require.Equal(t, ix.RowCount(), restored.RowCount())
	require.Equal(t, ix.FeatureDim(), restored.FeatureDim())
	for _, q := range []string{
		"the first baseline line",
		"something else entirely now",
	} {
		assert.Equal(t,
			ix.Distance(tokenizer.Tokenize([]byte(q))),
			restored.Distance(tokenizer.Tokenize([]byte(q))))
	}
}

func TestMerge(t *testing.T) {
	a := buildFrom(t, "alpha beta gamma words", "shared common line here")
	b := buildFrom(t, "delta echo foxtrot words", "shared common line here")
	m := Merge(a, b)
	assert.Equal(t, 3, m.RowCount(), "the shared row must be deduplicated")
	assert.Zero(t, m.Distance(tokenizer.Tokenize([]byte("alpha beta gamma words"))))
	assert.Zero(t, m.Distance(tokenizer.Tokenize([]byte("delta echo foxtrot words"))))
}

func TestBuilderDimClamp(t *testing.T) {
	assert.Equal(t, DefaultFeatureDim, NewBuilder(0).Build().FeatureDim())
	assert.Equal(t, MinFeatureDim, NewBuilder(1).Build().FeatureDim())
	assert.Equal(t, MaxFeatureDim, NewBuilder(1<<30).Build().FeatureDim())
}

func TestByteSize(t *testing.T) {
	ix := buildFrom(t, "alpha beta gamma delta")
	assert.Greater(t, ix.ByteSize(), 0)
}

func BenchmarkDistance(b *testing.B) {
	builder := NewBuilder(0)
	for i := 0; i < 5000; i++ {
		builder.Add([]string{"steady", "state", "line", "variant", string(rune('a' + i%26))})
	}
	ix := builder.Build()
	query := []string{"steady", "state", "query", "line", "zz"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		ix.Distance(query)
	}
}
