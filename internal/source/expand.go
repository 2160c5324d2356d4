package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/logsift/logsift/internal/config"
	sifterrors "github.com/logsift/logsift/internal/errors"
	"github.com/logsift/logsift/internal/reader"
)

// DirLister lists the files behind a remote directory index.
type DirLister interface {
	ListDir(ctx context.Context, url string) ([]string, error)
}

// BuildResolver turns a CI build into its log URLs and discovers baseline
// builds ("prior successful build of same job, project, and branch").
type BuildResolver interface {
	Resolve(ctx context.Context, content *Content) ([]string, error)
	FindBaselines(ctx context.Context, content *Content, count int) ([]Content, error)
}

// Expander expands Contents into Sources using the external collaborators.
type Expander struct {
	Lister DirLister
	Zuul   BuildResolver
	Prow   BuildResolver
	Config *config.TargetConfig
}

// Expand returns the ordered list of sources of a Content. Sources rejected
// by the include/exclude rules are silently dropped; an expansion yielding
// zero sources is a read error on the content.
func (e *Expander) Expand(ctx context.Context, c Content) ([]Source, error) {
	sources, err := e.expand(ctx, c)
	if err != nil {
		return nil, err
	}
	kept := sources[:0]
	for _, src := range sources {
		if e.Config == nil || e.Config.IsSourceValid(src.RelPath()) {
			kept = append(kept, src)
		}
	}
	if len(kept) == 0 {
		return nil, sifterrors.New(sifterrors.ErrCodeSourceEmpty,
			fmt.Sprintf("empty source list for %s", c), nil)
	}
	return kept, nil
}

func (e *Expander) expand(ctx context.Context, c Content) ([]Source, error) {
	switch c.Kind {
	case ContentFile, ContentJournalRange:
		return []Source{c.Source}, nil

	case ContentDir:
		if c.Source.Kind == KindRemote {
			return e.listRemote(ctx, c.Source)
		}
		return walkDir(ctx, c.Source)

	case ContentLocalZuul:
		return walkDir(ctx, c.Source)

	case ContentZuulBuild:
		return e.resolveBuild(ctx, e.Zuul, c)

	case ContentProwBuild:
		return e.resolveBuild(ctx, e.Prow, c)

	default:
		return nil, fmt.Errorf("unknown content kind: %d", c.Kind)
	}
}

func (e *Expander) listRemote(ctx context.Context, src Source) ([]Source, error) {
	if e.Lister == nil {
		return nil, sifterrors.ReadError("no directory lister configured", nil)
	}
	urls, err := e.Lister.ListDir(ctx, src.Location)
	if err != nil {
		return nil, sifterrors.ReadError(fmt.Sprintf("listing %s", src.Location), err)
	}
	sources := make([]Source, 0, len(urls))
	for _, u := range urls {
		sources = append(sources, Remote(u, len(src.Location)))
	}
	return sources, nil
}

func (e *Expander) resolveBuild(ctx context.Context, resolver BuildResolver, c Content) ([]Source, error) {
	if resolver == nil {
		return nil, sifterrors.ReadError("no build resolver configured", nil)
	}
	urls, err := resolver.Resolve(ctx, &c)
	if err != nil {
		return nil, sifterrors.ReadError(fmt.Sprintf("resolving %s", c), err)
	}
	prefix := 0
	if c.Build != nil {
		prefix = len(c.Build.LogURL)
	}
	sources := make([]Source, 0, len(urls))
	for _, u := range urls {
		sources = append(sources, Remote(u, prefix))
	}
	return sources, nil
}

// walkDir recursively lists the regular files under a local directory,
// skipping hidden entries, symlinks, and the built-in noise locations. The
// result is sorted for deterministic expansion order.
func walkDir(ctx context.Context, root Source) ([]Source, error) {
	var sources []Source
	base := root.Location
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			// Unreadable entries are skipped, not fatal for siblings.
			slog.Debug("skipping unreadable entry", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != base && name[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		if reader.DefaultSkip(rel) {
			return nil
		}
		sources = append(sources, Source{
			Kind:      KindLocal,
			Location:  path,
			PrefixLen: len(base) + 1,
		})
		return nil
	})
	if err != nil {
		return nil, sifterrors.ReadError(fmt.Sprintf("walking %s", base), err)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Location < sources[j].Location })
	return sources, nil
}

// DiscoverBaselines finds nominal counterparts for the target Content.
// Returning zero baselines is fatal for the run.
func (e *Expander) DiscoverBaselines(ctx context.Context, c Content) ([]Content, error) {
	var (
		baselines []Content
		err       error
	)
	switch c.Kind {
	case ContentFile:
		if c.Source.Kind != KindLocal {
			return nil, sifterrors.DiscoveryError("cannot discover baselines for a remote file", nil)
		}
		baselines = rotatedSiblings(c.Source)

	case ContentDir:
		return nil, sifterrors.DiscoveryError("cannot discover baselines for a directory", nil)

	case ContentZuulBuild:
		baselines, err = e.findBuildBaselines(ctx, e.Zuul, c)

	case ContentProwBuild:
		baselines, err = e.findBuildBaselines(ctx, e.Prow, c)

	case ContentLocalZuul:
		baselines, err = e.findBuildBaselines(ctx, e.Zuul, c)

	default:
		return nil, sifterrors.DiscoveryError(fmt.Sprintf("cannot discover baselines for %s", c), nil)
	}
	if err != nil {
		return nil, err
	}
	if len(baselines) == 0 {
		return nil, sifterrors.DiscoveryError(fmt.Sprintf("no baselines found for %s", c), nil)
	}
	return baselines, nil
}

func (e *Expander) findBuildBaselines(ctx context.Context, resolver BuildResolver, c Content) ([]Content, error) {
	if resolver == nil {
		return nil, sifterrors.DiscoveryError("no build resolver configured", nil)
	}
	baselines, err := resolver.FindBaselines(ctx, &c, 1)
	if err != nil {
		return nil, sifterrors.DiscoveryError(fmt.Sprintf("baseline discovery failed for %s", c), err)
	}
	return baselines, nil
}

// rotatedSiblings returns the existing rotated or compressed variants of a
// file (app.log -> app.log.1, app.log.0, app.log.1.gz, ...).
func rotatedSiblings(src Source) []Content {
	var found []Content
	for _, suffix := range []string{".0", ".1", ".2", ".0.gz", ".1.gz", ".2.gz"} {
		candidate := src.Location + suffix
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			sibling := Local(candidate)
			sibling.PrefixLen = src.PrefixLen
			found = append(found, File(sibling))
		}
	}
	return found
}
