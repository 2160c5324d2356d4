// Package index stores tokenized log lines as sparse binary feature vectors
// and answers nearest-neighbor cosine-distance queries.
//
// Features are produced with the hashing trick: each token is hashed with a
// 64-bit hash and folded modulo the feature dimension. Rows are kept in one
// contiguous uint32 buffer with a row-offset table (CSR layout), deduplicated
// bytewise on insert. After Build the index is immutable and safe to share
// across goroutines without locking.
package index

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/logsift/logsift/internal/tokenizer"
)

// Feature dimension bounds. The dimension trades hash collisions against
// memory; 2^16 keeps collision noise below the anomaly threshold for corpora
// in the million-line range.
const (
	MinFeatureDim     = 1 << 14
	MaxFeatureDim     = 1 << 18
	DefaultFeatureDim = 1 << 16
)

// errorTermWeight is the number of extra hashed copies added for tokens of
// the error vocabulary. Error lines must separate strongly even when the
// rest of the line matches a nominal one.
const errorTermWeight = 4

// Builder accumulates training rows. Not safe for concurrent use; the
// pipeline trains each index from a single goroutine.
type Builder struct {
	dim      uint32
	offsets  []uint32
	features []uint32
	seen     map[string]struct{}
	dedup    bool
}

// NewBuilder creates a Builder with the given feature dimension, clamped to
// [MinFeatureDim, MaxFeatureDim]. A zero dim selects DefaultFeatureDim.
func NewBuilder(dim int) *Builder {
	switch {
	case dim == 0:
		dim = DefaultFeatureDim
	case dim < MinFeatureDim:
		dim = MinFeatureDim
	case dim > MaxFeatureDim:
		dim = MaxFeatureDim
	}
	return &Builder{
		dim:     uint32(dim),
		offsets: []uint32{0},
		seen:    make(map[string]struct{}),
		dedup:   true,
	}
}

// Add appends the feature vector of one tokenized line. Rows equal to an
// already stored row are discarded; first occurrence order is preserved.
// Empty token sequences are ignored.
func (b *Builder) Add(tokens []string) {
	vec := vectorize(tokens, b.dim)
	if len(vec) == 0 {
		return
	}
	if b.dedup {
		key := vecKey(vec)
		if _, dup := b.seen[key]; dup {
			return
		}
		b.seen[key] = struct{}{}
	}
	b.features = append(b.features, vec...)
	b.offsets = append(b.offsets, uint32(len(b.features)))
}

// RowCount returns the number of unique rows added so far.
func (b *Builder) RowCount() int { return len(b.offsets) - 1 }

// Build finalizes the builder into an immutable Index. The builder must not
// be used afterwards.
func (b *Builder) Build() *Index {
	ix := &Index{
		dim:      b.dim,
		offsets:  b.offsets,
		features: b.features,
		postings: make(map[uint32][]uint32),
	}
	for row := 0; row < ix.RowCount(); row++ {
		for _, f := range ix.row(row) {
			ix.postings[f] = append(ix.postings[f], uint32(row))
		}
	}
	b.seen = nil
	return ix
}

// Index is the immutable trained form. Queries are exact: the posting lists
// only narrow the candidate set to rows sharing at least one feature with
// the query, which is the complete set of rows with non-zero similarity.
type Index struct {
	dim      uint32
	offsets  []uint32
	features []uint32
	postings map[uint32][]uint32
}

// Distance returns 1 - cosine similarity between the query and its closest
// stored row. An empty query returns 0.0 (never anomalous); an empty index
// returns 1.0 for any non-empty query.
func (ix *Index) Distance(tokens []string) float32 {
	vec := vectorize(tokens, ix.dim)
	if len(vec) == 0 {
		return 0.0
	}
	if ix.RowCount() == 0 {
		return 1.0
	}

	counts := make(map[uint32]uint32, 64)
	for _, f := range vec {
		for _, row := range ix.postings[f] {
			counts[row]++
		}
	}
	if len(counts) == 0 {
		return 1.0
	}

	qNorm := float64(len(vec))
	best := 0.0
	for row, shared := range counts {
		rowLen := float64(ix.offsets[row+1] - ix.offsets[row])
		sim := float64(shared) / math.Sqrt(qNorm*rowLen)
		if sim > best {
			best = sim
		}
	}
	if best >= 1.0 {
		return 0.0
	}
	return float32(1.0 - best)
}

// RowCount returns the number of stored rows.
func (ix *Index) RowCount() int { return len(ix.offsets) - 1 }

// ByteSize returns the approximate in-memory size of the row storage
// (posting lists excluded, they mirror the feature buffer).
func (ix *Index) ByteSize() int {
	return 4 * (len(ix.offsets) + len(ix.features))
}

// FeatureDim returns the feature dimension the index was built with.
func (ix *Index) FeatureDim() int { return int(ix.dim) }

func (ix *Index) row(i int) []uint32 {
	return ix.features[ix.offsets[i]:ix.offsets[i+1]]
}

// Snapshot is the serializable form of an Index: the feature dimension and
// the raw CSR buffers. The layout is part of the model version contract.
type Snapshot struct {
	Dim      uint32   `cbor:"1,keyasint"`
	RowCount uint32   `cbor:"2,keyasint"`
	Offsets  []uint32 `cbor:"3,keyasint"`
	Features []uint32 `cbor:"4,keyasint"`
}

// Snapshot extracts the serializable state.
func (ix *Index) Snapshot() Snapshot {
	return Snapshot{
		Dim:      ix.dim,
		RowCount: uint32(ix.RowCount()),
		Offsets:  ix.offsets,
		Features: ix.features,
	}
}

// FromSnapshot rebuilds an immutable Index (including posting lists) from a
// previously serialized snapshot.
func FromSnapshot(s Snapshot) *Index {
	ix := &Index{
		dim:      s.Dim,
		offsets:  s.Offsets,
		features: s.Features,
		postings: make(map[uint32][]uint32),
	}
	if len(ix.offsets) == 0 {
		ix.offsets = []uint32{0}
	}
	for row := 0; row < ix.RowCount(); row++ {
		for _, f := range ix.row(row) {
			ix.postings[f] = append(ix.postings[f], uint32(row))
		}
	}
	return ix
}

// Merge returns a new index holding the rows of ix followed by the rows of
// other that are not already present, preserving dedup semantics.
func Merge(ix, other *Index) *Index {
	b := NewBuilder(int(ix.dim))
	for _, src := range []*Index{ix, other} {
		for row := 0; row < src.RowCount(); row++ {
			vec := src.row(row)
			key := vecKey(vec)
			if _, dup := b.seen[key]; dup {
				continue
			}
			b.seen[key] = struct{}{}
			b.features = append(b.features, vec...)
			b.offsets = append(b.offsets, uint32(len(b.features)))
		}
	}
	return b.Build()
}

// vectorize maps tokens to a sorted, unique feature-id vector. Error-class
// tokens contribute extra feature copies so that error lines dominate the
// similarity balance.
func vectorize(tokens []string, dim uint32) []uint32 {
	if len(tokens) == 0 {
		return nil
	}
	feats := make([]uint32, 0, len(tokens)+errorTermWeight)
	var h xxhash.Digest
	for _, tok := range tokens {
		feats = append(feats, hashToken(&h, tok, 0, dim))
		if tokenizer.IsErrorToken(tok) {
			for salt := byte(1); salt <= errorTermWeight; salt++ {
				feats = append(feats, hashToken(&h, tok, salt, dim))
			}
		}
	}
	sort.Slice(feats, func(i, j int) bool { return feats[i] < feats[j] })
	// Binary vectors: duplicate features within one line collapse to one.
	uniq := feats[:0]
	var prev uint32
	for i, f := range feats {
		if i == 0 || f != prev {
			uniq = append(uniq, f)
			prev = f
		}
	}
	return uniq
}

func hashToken(h *xxhash.Digest, tok string, salt byte, dim uint32) uint32 {
	h.Reset()
	_, _ = h.WriteString(tok)
	if salt != 0 {
		_, _ = h.Write([]byte{salt})
	}
	return uint32(h.Sum64() % uint64(dim))
}

// vecKey is the bytewise dedup key of a feature vector.
func vecKey(vec []uint32) string {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], f)
	}
	return string(buf)
}
