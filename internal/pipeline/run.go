package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	sifterrors "github.com/logsift/logsift/internal/errors"
	"github.com/logsift/logsift/internal/lineiter"
	"github.com/logsift/logsift/internal/model"
	"github.com/logsift/logsift/internal/reader"
	"github.com/logsift/logsift/internal/report"
	"github.com/logsift/logsift/internal/source"
	"github.com/logsift/logsift/internal/tokenizer"
)

// sourceResult is the outcome of one target source. Archive sources produce
// one LogReport per analyzed member.
type sourceResult struct {
	logs     []report.LogReport
	unknowns []source.Source
	readErr  *report.ReadError
}

// Run streams the target through the trained model and assembles the report.
// Per-source read errors are recorded, never fatal; only a failed target
// expansion or cancellation aborts the run (the partial report is discarded).
func (p *Pipeline) Run(ctx context.Context, m *model.Model, target source.Content, baselines []source.Content) (*report.Report, error) {
	start := time.Now()
	sources, err := p.Expander.Expand(ctx, target)
	if err != nil {
		return nil, err
	}

	// Comparing two arbitrary files must work even when their index names
	// differ, so a single-source target may fall back to a single-index
	// model. Multi-source targets use exact name matches only.
	single := len(sources) == 1

	results := make([]sourceResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Config.Workers)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return sifterrors.New(sifterrors.ErrCodeCancelled, "run interrupted", err)
			}
			res, err := p.processSource(gctx, m, src, single)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &report.Report{
		CreatedAt: uint64(start.UnixMilli()),
		Target:    target,
		Baselines: baselines,
	}

	var (
		unknownOrder []tokenizer.IndexName
		unknowns     = make(map[tokenizer.IndexName][]source.Source)
		seenIndexes  = make(map[tokenizer.IndexName]struct{})
	)
	for _, res := range results {
		for _, lr := range res.logs {
			rep.LogReports = append(rep.LogReports, lr)
			rep.TotalLineCount += uint32(lr.LineCount)
			rep.TotalAnomalyCount += uint32(lr.AnomalyCount())
			if _, ok := seenIndexes[lr.IndexName]; !ok {
				seenIndexes[lr.IndexName] = struct{}{}
				if ti := lookupIndex(m, lr.IndexName, true); ti != nil {
					rep.IndexReports = append(rep.IndexReports, ti.ToReport(lr.IndexName))
				}
			}
		}
		for _, src := range res.unknowns {
			name := src.IndexName()
			if _, ok := unknowns[name]; !ok {
				unknownOrder = append(unknownOrder, name)
			}
			unknowns[name] = append(unknowns[name], src)
		}
		if res.readErr != nil {
			rep.ReadErrors = append(rep.ReadErrors, *res.readErr)
		}
	}
	for _, name := range unknownOrder {
		rep.UnknownFiles = append(rep.UnknownFiles, report.UnknownFile{
			Name:    name,
			Sources: unknowns[name],
		})
	}
	rep.RunTime = uint64(time.Since(start).Milliseconds())
	return rep, nil
}

// lookupIndex resolves the index for a name; allowSingle enables the
// single-index fallback used when diffing two arbitrary files.
func lookupIndex(m *model.Model, name tokenizer.IndexName, allowSingle bool) *model.TrainedIndex {
	if ti, ok := m.Indexes[name]; ok {
		return ti
	}
	if allowSingle && len(m.Indexes) == 1 {
		for _, ti := range m.Indexes {
			return ti
		}
	}
	return nil
}

// processSource analyzes one expanded target source. The returned error is
// reserved for cancellation; everything else degrades into the result.
func (p *Pipeline) processSource(ctx context.Context, m *model.Model, src source.Source, single bool) (sourceResult, error) {
	if reader.IsTarball(src.Location) {
		return p.processArchive(ctx, m, src)
	}

	var res sourceResult
	ti := lookupIndex(m, src.IndexName(), single)
	if ti == nil {
		res.unknowns = append(res.unknowns, src)
		return res, nil
	}
	rc, err := p.Opener.Open(ctx, src)
	if err != nil {
		res.readErr = &report.ReadError{Source: src, Error: err.Error()}
		return res, nil
	}
	defer func() { _ = rc.Close() }()

	lr, err := p.processStream(ctx, ti, src, rc)
	if err != nil {
		if sifterrors.GetCode(err) == sifterrors.ErrCodeCancelled {
			return res, err
		}
		res.readErr = &report.ReadError{Source: src, Error: err.Error()}
		return res, nil
	}
	res.logs = append(res.logs, lr)
	return res, nil
}

// processArchive walks a tarball target, analyzing each member against the
// index matching its inner path.
func (p *Pipeline) processArchive(ctx context.Context, m *model.Model, src source.Source) (sourceResult, error) {
	var res sourceResult
	rc, err := p.Opener.Open(ctx, src)
	if err != nil {
		res.readErr = &report.ReadError{Source: src, Error: err.Error()}
		return res, nil
	}
	defer func() { _ = rc.Close() }()

	walkErr := reader.WalkTar(src.Location, rc, p.Config.MaxTarDepth, p.archiveSkip, func(member string, r io.Reader) error {
		if err := ctx.Err(); err != nil {
			return sifterrors.New(sifterrors.ErrCodeCancelled, "run interrupted", err)
		}
		memberSrc := src.Member(memberInner(member, src.Location))
		ti := lookupIndex(m, memberSrc.IndexName(), false)
		if ti == nil {
			res.unknowns = append(res.unknowns, memberSrc)
			return nil
		}
		lr, err := p.processStream(ctx, ti, memberSrc, r)
		if err != nil {
			if sifterrors.GetCode(err) == sifterrors.ErrCodeCancelled {
				return err
			}
			res.readErr = &report.ReadError{Source: memberSrc, Error: err.Error()}
			return nil
		}
		res.logs = append(res.logs, lr)
		return nil
	})
	if walkErr != nil {
		if sifterrors.GetCode(walkErr) == sifterrors.ErrCodeCancelled {
			return res, walkErr
		}
		res.readErr = &report.ReadError{Source: src, Error: walkErr.Error()}
	}
	return res, nil
}

// processStream scores every line of one stream. Emitted anomalies are
// strictly increasing in byte offset; the cancellation flag is checked at
// every line.
func (p *Pipeline) processStream(ctx context.Context, ti *model.TrainedIndex, src source.Source, r io.Reader) (report.LogReport, error) {
	start := time.Now()
	sp := newStreamProcessor(p.Config, ti)
	it := lineiter.New(r)
	for {
		if err := ctx.Err(); err != nil {
			return report.LogReport{}, sifterrors.New(sifterrors.ErrCodeCancelled, "run interrupted", err)
		}
		line, err := it.Next()
		if err != nil {
			return report.LogReport{}, sifterrors.ReadError(fmt.Sprintf("reading %s", src.Location), err)
		}
		if line == nil {
			break
		}
		sp.process(line.Number, line.Offset, line.Bytes)
	}
	return report.LogReport{
		Source:    src,
		IndexName: src.IndexName(),
		LineCount: it.LineCount(),
		ByteCount: it.ByteCount(),
		TestTime:  time.Since(start),
		Anomalies: sp.finish(),
	}, nil
}
