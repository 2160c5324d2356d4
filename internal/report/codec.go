package report

import (
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"

	sifterrors "github.com/logsift/logsift/internal/errors"
)

// Reports are persisted as a gzip-compressed CBOR envelope. The schema
// evolves by integer field keys; Version guards layout changes that keyed
// fields cannot express.
const (
	Magic   = "LGSR"
	Version = uint32(1)
)

type envelope struct {
	Magic   string          `cbor:"1,keyasint"`
	Version uint32          `cbor:"2,keyasint"`
	Payload cbor.RawMessage `cbor:"3,keyasint"`
}

// Save writes the report to path.
func (r *Report) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if err := r.Write(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// Write serializes the report to w.
func (r *Report) Write(w io.Writer) error {
	payload, err := cbor.Marshal(r)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(w)
	enc := cbor.NewEncoder(zw)
	if err := enc.Encode(envelope{Magic: Magic, Version: Version, Payload: payload}); err != nil {
		return err
	}
	return zw.Close()
}

// Load reads a report from path. A version mismatch is a fatal
// model-compatibility error; a bad magic or undecodable data is a fatal
// corruption error.
func Load(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Read deserializes a report from r.
func Read(r io.Reader) (*Report, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, sifterrors.New(sifterrors.ErrCodeModelCorrupt, "report is not gzip compressed", err)
	}
	var env envelope
	if err := cbor.NewDecoder(zr).Decode(&env); err != nil {
		return nil, sifterrors.New(sifterrors.ErrCodeModelCorrupt, "cannot decode report envelope", err)
	}
	if env.Magic != Magic {
		return nil, sifterrors.New(sifterrors.ErrCodeModelCorrupt,
			fmt.Sprintf("bad report magic: %q", env.Magic), nil)
	}
	if env.Version != Version {
		return nil, sifterrors.ModelError(
			fmt.Sprintf("report version %d, this build reads %d", env.Version, Version), nil)
	}
	var report Report
	if err := cbor.Unmarshal(env.Payload, &report); err != nil {
		return nil, sifterrors.New(sifterrors.ErrCodeModelCorrupt, "cannot decode report payload", err)
	}
	return &report, nil
}
