package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/logsift/logsift/internal/source"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train BASELINE...",
		Short: "Train a model from baselines and persist it",
		Long: `Train one index per file role found in the baselines and write the
model to --save-model. The model can later be reused with --model to skip
training.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if saveModelPath == "" {
				return fmt.Errorf("train requires --save-model")
			}
			e, err := newEnv()
			if err != nil {
				return err
			}
			p, err := e.newPipeline("")
			if err != nil {
				return err
			}
			baselines := make([]source.Content, 0, len(args))
			for _, arg := range args {
				baseline, err := source.FromInput(arg)
				if err != nil {
					return err
				}
				baselines = append(baselines, baseline)
			}
			m, err := p.Train(cmd.Context(), baselines)
			if err != nil {
				return err
			}
			if err := m.Save(saveModelPath); err != nil {
				return err
			}
			fmt.Printf("Trained %d indexes into %s\n", len(m.Indexes), saveModelPath)
			return nil
		},
	}
	return cmd
}
