package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/logsift/logsift/internal/config"
	sifterrors "github.com/logsift/logsift/internal/errors"
	"github.com/logsift/logsift/internal/index"
	"github.com/logsift/logsift/internal/lineiter"
	"github.com/logsift/logsift/internal/model"
	"github.com/logsift/logsift/internal/reader"
	"github.com/logsift/logsift/internal/source"
	"github.com/logsift/logsift/internal/tokenizer"
)

// Pipeline wires the expansion, transport, and analysis stages together.
type Pipeline struct {
	Config   *config.TargetConfig
	Expander *source.Expander
	Opener   Opener
}

// groupTrainer accumulates the training state of one IndexName.
type groupTrainer struct {
	builder   *index.Builder
	sources   []source.Source
	createdAt time.Time
	trainTime time.Duration
	lineCount int64
	byteCount int64
	okSources int
}

func (p *Pipeline) newTrainer() *groupTrainer {
	return &groupTrainer{
		builder:   index.NewBuilder(p.Config.FeatureDim),
		createdAt: time.Now(),
	}
}

// Train builds one index per baseline group. Distinct groups train in
// parallel; within a group, sources are ingested sequentially in expansion
// order so the dedup order is deterministic. Archive baselines are walked
// sequentially afterwards, feeding each member into its own group.
func (p *Pipeline) Train(ctx context.Context, baselines []source.Content) (*model.Model, error) {
	var (
		order    []tokenizer.IndexName
		groups   = make(map[tokenizer.IndexName][]source.Source)
		archives []source.Source
	)
	for _, baseline := range baselines {
		sources, err := p.Expander.Expand(ctx, baseline)
		if err != nil {
			slog.Warn("baseline expansion failed",
				slog.String("baseline", baseline.String()),
				slog.String("error", err.Error()))
			continue
		}
		for _, src := range sources {
			if reader.IsTarball(src.Location) {
				archives = append(archives, src)
				continue
			}
			name := src.IndexName()
			if _, ok := groups[name]; !ok {
				order = append(order, name)
			}
			groups[name] = append(groups[name], src)
		}
	}
	if len(groups) == 0 && len(archives) == 0 {
		return nil, sifterrors.TrainingError("no usable baseline sources", nil)
	}

	trainers := make(map[tokenizer.IndexName]*groupTrainer, len(groups))
	for _, name := range order {
		trainers[name] = p.newTrainer()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Config.Workers)
	for _, name := range order {
		trainer, sources := trainers[name], groups[name]
		g.Go(func() error {
			start := time.Now()
			for _, src := range sources {
				if err := gctx.Err(); err != nil {
					return sifterrors.New(sifterrors.ErrCodeCancelled, "training interrupted", err)
				}
				if err := p.ingest(gctx, trainer, src); err != nil {
					slog.Warn("baseline source failed",
						slog.String("source", src.Location),
						slog.String("error", err.Error()))
					continue
				}
				trainer.okSources++
			}
			trainer.trainTime = time.Since(start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Archives cut across groups (each member belongs to its own), so they
	// are ingested sequentially to keep dedup order deterministic.
	for _, src := range archives {
		if err := ctx.Err(); err != nil {
			return nil, sifterrors.New(sifterrors.ErrCodeCancelled, "training interrupted", err)
		}
		if err := p.trainArchive(ctx, trainers, &order, src); err != nil {
			slog.Warn("baseline archive failed",
				slog.String("source", src.Location),
				slog.String("error", err.Error()))
		}
	}

	m := model.New(baselines)
	for _, name := range order {
		trainer := trainers[name]
		if trainer.okSources == 0 {
			slog.Warn("index training failed, sources will be unknown",
				slog.String("index", name.String()))
			continue
		}
		m.Indexes[name] = &model.TrainedIndex{
			Index:     trainer.builder.Build(),
			CreatedAt: trainer.createdAt,
			TrainTime: trainer.trainTime,
			Sources:   trainer.sources,
			LineCount: trainer.lineCount,
			ByteCount: trainer.byteCount,
		}
	}
	if len(m.Indexes) == 0 {
		return nil, sifterrors.TrainingError("all baseline sources failed", nil)
	}
	return m, nil
}

// ingest streams one plain source into its group trainer.
func (p *Pipeline) ingest(ctx context.Context, trainer *groupTrainer, src source.Source) error {
	rc, err := p.Opener.Open(ctx, src)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	return p.ingestReader(ctx, trainer, src, rc)
}

func (p *Pipeline) ingestReader(ctx context.Context, trainer *groupTrainer, src source.Source, r io.Reader) error {
	it := lineiter.New(r)
	for {
		if err := ctx.Err(); err != nil {
			return sifterrors.New(sifterrors.ErrCodeCancelled, "training interrupted", err)
		}
		line, err := it.Next()
		if err != nil {
			trainer.lineCount += it.LineCount()
			trainer.byteCount += it.ByteCount()
			return sifterrors.ReadError(fmt.Sprintf("reading %s", src.Location), err)
		}
		if line == nil {
			break
		}
		if p.Config.IsIgnoredLine(string(line.Bytes)) {
			continue
		}
		trainer.builder.Add(tokenizer.Tokenize(line.Bytes))
	}
	trainer.lineCount += it.LineCount()
	trainer.byteCount += it.ByteCount()
	trainer.sources = append(trainer.sources, src)
	return nil
}

// trainArchive walks a tarball baseline, training each member into the
// group matching its inner path.
func (p *Pipeline) trainArchive(ctx context.Context, trainers map[tokenizer.IndexName]*groupTrainer, order *[]tokenizer.IndexName, src source.Source) error {
	rc, err := p.Opener.Open(ctx, src)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	return reader.WalkTar(src.Location, rc, p.Config.MaxTarDepth, p.archiveSkip, func(member string, r io.Reader) error {
		if err := ctx.Err(); err != nil {
			return sifterrors.New(sifterrors.ErrCodeCancelled, "training interrupted", err)
		}
		memberSrc := src.Member(memberInner(member, src.Location))
		name := memberSrc.IndexName()
		trainer, ok := trainers[name]
		if !ok {
			trainer = p.newTrainer()
			trainers[name] = trainer
			*order = append(*order, name)
		}
		start := time.Now()
		if err := p.ingestReader(ctx, trainer, memberSrc, r); err != nil {
			slog.Warn("archive member failed",
				slog.String("member", member),
				slog.String("error", err.Error()))
			return nil
		}
		trainer.okSources++
		trainer.trainTime += time.Since(start)
		return nil
	})
}

// archiveSkip rejects archive members the analysis never wants.
func (p *Pipeline) archiveSkip(name string) bool {
	return reader.DefaultSkip(name) || !p.Config.IsSourceValid(name)
}

// memberInner strips the archive location prefix from a member name
// produced by reader.WalkTar ("<archive>!<inner>" -> "<inner>").
func memberInner(member, archiveLocation string) string {
	if len(member) > len(archiveLocation)+1 {
		return member[len(archiveLocation)+1:]
	}
	return member
}

// GroupSources groups target sources by IndexName, preserving the expansion
// order of first appearance. Exposed for report assembly and tests.
func GroupSources(sources []source.Source) ([]tokenizer.IndexName, map[tokenizer.IndexName][]source.Source) {
	var order []tokenizer.IndexName
	groups := make(map[tokenizer.IndexName][]source.Source)
	for _, src := range sources {
		name := src.IndexName()
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], src)
	}
	return order, groups
}
