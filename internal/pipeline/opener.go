// Package pipeline drives training and querying end-to-end: it expands
// contents, trains one index per baseline group, streams target sources
// through their matching index, and assembles the final report.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/logsift/logsift/internal/discovery"
	sifterrors "github.com/logsift/logsift/internal/errors"
	"github.com/logsift/logsift/internal/reader"
	"github.com/logsift/logsift/internal/source"
)

// Opener turns a Source into a byte stream.
type Opener interface {
	Open(ctx context.Context, src source.Source) (io.ReadCloser, error)
}

// Getter is the transport surface the opener needs for remote sources.
type Getter interface {
	Get(ctx context.Context, url string) (io.ReadCloser, error)
}

// StreamOpener opens local files, remote URLs, and journal ranges. Local and
// remote streams are transparently decompressed.
type StreamOpener struct {
	Getter  Getter
	Journal discovery.JournalReader
}

// Open opens src. Failures are read errors attached to the source.
func (o *StreamOpener) Open(ctx context.Context, src source.Source) (io.ReadCloser, error) {
	switch src.Kind {
	case source.KindLocal:
		rc, err := reader.Open(src.Location)
		if err != nil {
			return nil, sifterrors.ReadError(fmt.Sprintf("%s: %v", src.Location, err), err)
		}
		return rc, nil

	case source.KindRemote:
		if o.Getter == nil {
			return nil, sifterrors.ReadError("no http transport configured", nil)
		}
		body, err := o.Getter.Get(ctx, src.Location)
		if err != nil {
			return nil, sifterrors.ReadError(fmt.Sprintf("%s: %v", src.Location, err), err)
		}
		dr, err := reader.Decompress(src.Location, body)
		if err != nil {
			_ = body.Close()
			return nil, sifterrors.ReadError(fmt.Sprintf("%s: %v", src.Location, err), err)
		}
		return &wrappedCloser{Reader: dr, closer: body}, nil

	case source.KindJournal:
		if o.Journal == nil {
			return nil, sifterrors.ReadError("no journal reader configured", nil)
		}
		since, until, err := parseJournalRange(src.Location)
		if err != nil {
			return nil, sifterrors.ReadError(src.Location, err)
		}
		return o.Journal.Range(ctx, since, until)

	default:
		return nil, sifterrors.ReadError(fmt.Sprintf("unknown source kind: %s", src.Location), nil)
	}
}

type wrappedCloser struct {
	io.Reader
	closer io.Closer
}

func (w *wrappedCloser) Close() error { return w.closer.Close() }

// parseJournalRange decodes the "journal:<since>-<until>" pseudo location.
func parseJournalRange(location string) (time.Time, time.Time, error) {
	spec, ok := strings.CutPrefix(location, "journal:")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("not a journal source: %s", location)
	}
	var since, until int64
	if _, err := fmt.Sscanf(spec, "%d-%d", &since, &until); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad journal range %q: %w", spec, err)
	}
	return time.UnixMilli(since), time.UnixMilli(until), nil
}
