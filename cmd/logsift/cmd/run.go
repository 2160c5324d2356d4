package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/logsift/logsift/internal/config"
	"github.com/logsift/logsift/internal/discovery"
	"github.com/logsift/logsift/internal/model"
	"github.com/logsift/logsift/internal/output"
	"github.com/logsift/logsift/internal/pipeline"
	"github.com/logsift/logsift/internal/report"
	"github.com/logsift/logsift/internal/source"
	"github.com/logsift/logsift/internal/transport"
)

// env bundles the process-wide collaborators of a run.
type env struct {
	cfg    *config.Config
	client *transport.Client
	zuul   *discovery.Zuul
	prow   *discovery.Prow
}

func newEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client, err := transport.New()
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:    cfg,
		client: client,
		zuul:   &discovery.Zuul{Fetcher: client},
		prow:   &discovery.Prow{Fetcher: client},
	}, nil
}

// newPipeline resolves the per-job configuration and wires the pipeline.
func (e *env) newPipeline(jobName string) (*pipeline.Pipeline, error) {
	tc, err := e.cfg.Resolve(jobName)
	if err != nil {
		return nil, err
	}
	return &pipeline.Pipeline{
		Config: tc,
		Expander: &source.Expander{
			Lister: e.client,
			Zuul:   e.zuul,
			Prow:   e.prow,
			Config: tc,
		},
		Opener: &pipeline.StreamOpener{
			Getter:  e.client,
			Journal: &discovery.Journalctl{},
		},
	}, nil
}

// runReport is the shared flow of the path, url, diff, and journal commands:
// discover or accept baselines, train or load the model, stream the target,
// render and optionally persist the report.
func runReport(ctx context.Context, target source.Content, baselines []source.Content) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	p, err := e.newPipeline(target.JobName())
	if err != nil {
		return err
	}

	if len(baselines) == 0 && modelPath == "" {
		baselines, err = p.Expander.DiscoverBaselines(ctx, target)
		if err != nil {
			return err
		}
		for _, baseline := range baselines {
			slog.Info("discovered baseline", slog.String("baseline", baseline.String()))
		}
	}

	var m *model.Model
	if modelPath != "" {
		m, err = model.Load(modelPath)
		if err != nil {
			return err
		}
		baselines = m.Baselines
	} else {
		m, err = p.Train(ctx, baselines)
		if err != nil {
			return err
		}
	}
	if saveModelPath != "" {
		if err := m.Save(saveModelPath); err != nil {
			return err
		}
		slog.Info("model saved", slog.String("path", saveModelPath))
	}

	rep, err := p.Run(ctx, m, target, baselines)
	if err != nil {
		return err
	}
	if reportPath != "" {
		if err := rep.Save(reportPath); err != nil {
			return err
		}
		slog.Info("report saved", slog.String("path", reportPath))
	}
	return render(rep)
}

func render(rep *report.Report) error {
	w := output.New(os.Stdout)
	if jsonOutput {
		return w.JSON(rep)
	}
	return w.Render(rep)
}
