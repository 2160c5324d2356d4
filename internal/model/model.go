// Package model holds the trained bundle of indexes keyed by IndexName and
// its versioned persisted form.
package model

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"

	sifterrors "github.com/logsift/logsift/internal/errors"
	"github.com/logsift/logsift/internal/index"
	"github.com/logsift/logsift/internal/report"
	"github.com/logsift/logsift/internal/source"
	"github.com/logsift/logsift/internal/tokenizer"
)

const magic = "LGSM"

// Version guards compatibility of persisted models. Bump it whenever the
// tokenizer rules or the index layout change; loading rejects mismatches.
const Version = uint32(1)

// TrainedIndex is one index with its training metadata.
type TrainedIndex struct {
	Index     *index.Index
	CreatedAt time.Time
	TrainTime time.Duration
	Sources   []source.Source
	LineCount int64
	ByteCount int64
}

// ToReport extracts the per-index report entry.
func (ti *TrainedIndex) ToReport(name tokenizer.IndexName) report.IndexReport {
	return report.IndexReport{
		Name:      name,
		TrainTime: ti.TrainTime,
		Sources:   ti.Sources,
		LineCount: ti.LineCount,
		RowCount:  ti.Index.RowCount(),
	}
}

// Model is an archive of trained baselines used to search anomalies.
type Model struct {
	CreatedAt time.Time
	Baselines []source.Content
	Indexes   map[tokenizer.IndexName]*TrainedIndex
}

// New creates an empty model.
func New(baselines []source.Content) *Model {
	return &Model{
		CreatedAt: time.Now(),
		Baselines: baselines,
		Indexes:   make(map[tokenizer.IndexName]*TrainedIndex),
	}
}

// Get returns the index for a name. When the model holds exactly one index
// and the name misses, that single index is returned: comparing two
// arbitrary files must work even when their index names differ.
func (m *Model) Get(name tokenizer.IndexName) *TrainedIndex {
	if ti, ok := m.Indexes[name]; ok {
		return ti
	}
	if len(m.Indexes) == 1 {
		for _, ti := range m.Indexes {
			return ti
		}
	}
	return nil
}

// Merge combines another model into this one: indexes sharing a name are
// merged row-wise (first-occurrence dedup preserved), others are adopted.
func (m *Model) Merge(other *Model) {
	for name, ti := range other.Indexes {
		prev, ok := m.Indexes[name]
		if !ok {
			m.Indexes[name] = ti
			continue
		}
		m.Indexes[name] = &TrainedIndex{
			Index:     index.Merge(prev.Index, ti.Index),
			CreatedAt: laterOf(prev.CreatedAt, ti.CreatedAt),
			TrainTime: prev.TrainTime + ti.TrainTime,
			Sources:   append(append([]source.Source(nil), prev.Sources...), ti.Sources...),
			LineCount: prev.LineCount + ti.LineCount,
			ByteCount: prev.ByteCount + ti.ByteCount,
		}
	}
	m.Baselines = append(m.Baselines, other.Baselines...)
	m.CreatedAt = laterOf(m.CreatedAt, other.CreatedAt)
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// Persisted layout. Like reports, models are gzip-compressed CBOR with
// integer field keys.
type envelope struct {
	Magic     string          `cbor:"1,keyasint"`
	Version   uint32          `cbor:"2,keyasint"`
	CreatedAt uint64          `cbor:"3,keyasint"`
	Payload   cbor.RawMessage `cbor:"4,keyasint"`
}

type indexBlob struct {
	Name      tokenizer.IndexName `cbor:"1,keyasint"`
	Snapshot  index.Snapshot      `cbor:"2,keyasint"`
	CreatedAt uint64              `cbor:"3,keyasint"`
	TrainTime uint64              `cbor:"4,keyasint"`
	Sources   []source.Source     `cbor:"5,keyasint"`
	LineCount int64               `cbor:"6,keyasint"`
	ByteCount int64               `cbor:"7,keyasint"`
}

type payload struct {
	Baselines []source.Content `cbor:"1,keyasint"`
	Indexes   []indexBlob      `cbor:"2,keyasint"`
}

// Save writes the model to path.
func (m *Model) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if err := m.Write(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// Write serializes the model to w.
func (m *Model) Write(w io.Writer) error {
	p := payload{Baselines: m.Baselines}
	for name, ti := range m.Indexes {
		p.Indexes = append(p.Indexes, indexBlob{
			Name:      name,
			Snapshot:  ti.Index.Snapshot(),
			CreatedAt: uint64(ti.CreatedAt.UnixMilli()),
			TrainTime: uint64(ti.TrainTime.Milliseconds()),
			Sources:   ti.Sources,
			LineCount: ti.LineCount,
			ByteCount: ti.ByteCount,
		})
	}
	raw, err := cbor.Marshal(p)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(w)
	if err := cbor.NewEncoder(zw).Encode(envelope{
		Magic:     magic,
		Version:   Version,
		CreatedAt: uint64(m.CreatedAt.UnixMilli()),
		Payload:   raw,
	}); err != nil {
		return err
	}
	return zw.Close()
}

// Load reads a model from path, rejecting incompatible versions.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Check validates the envelope of a persisted model without loading the
// indexes, and returns its creation time.
func Check(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	env, err := readEnvelope(f)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(env.CreatedAt)), nil
}

// Read deserializes a model from r.
func Read(r io.Reader) (*Model, error) {
	env, err := readEnvelope(r)
	if err != nil {
		return nil, err
	}
	var p payload
	if err := cbor.Unmarshal(env.Payload, &p); err != nil {
		return nil, sifterrors.New(sifterrors.ErrCodeModelCorrupt, "cannot decode model payload", err)
	}
	m := &Model{
		CreatedAt: time.UnixMilli(int64(env.CreatedAt)),
		Baselines: p.Baselines,
		Indexes:   make(map[tokenizer.IndexName]*TrainedIndex, len(p.Indexes)),
	}
	for _, blob := range p.Indexes {
		m.Indexes[blob.Name] = &TrainedIndex{
			Index:     index.FromSnapshot(blob.Snapshot),
			CreatedAt: time.UnixMilli(int64(blob.CreatedAt)),
			TrainTime: time.Duration(blob.TrainTime) * time.Millisecond,
			Sources:   blob.Sources,
			LineCount: blob.LineCount,
			ByteCount: blob.ByteCount,
		}
	}
	return m, nil
}

func readEnvelope(r io.Reader) (*envelope, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, sifterrors.New(sifterrors.ErrCodeModelCorrupt, "model is not gzip compressed", err)
	}
	var env envelope
	if err := cbor.NewDecoder(zr).Decode(&env); err != nil {
		return nil, sifterrors.New(sifterrors.ErrCodeModelCorrupt, "cannot decode model envelope", err)
	}
	if env.Magic != magic {
		return nil, sifterrors.New(sifterrors.ErrCodeModelCorrupt,
			fmt.Sprintf("bad model magic: %q", env.Magic), nil)
	}
	if env.Version != Version {
		return nil, sifterrors.ModelError(
			fmt.Sprintf("model version %d, this build requires %d", env.Version, Version), nil)
	}
	return &env, nil
}
