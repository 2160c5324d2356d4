package cmd

import (
	"github.com/spf13/cobra"

	"github.com/logsift/logsift/internal/source"
)

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff BASELINE... TARGET",
		Short: "Analyze a target against explicit baselines",
		Long: `Analyze the last argument using the preceding arguments as baselines.
Arguments may be local paths or URLs; a single-file target matches a
single-file baseline even when their names differ.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			baselines := make([]source.Content, 0, len(args)-1)
			for _, arg := range args[:len(args)-1] {
				baseline, err := source.FromInput(arg)
				if err != nil {
					return err
				}
				baselines = append(baselines, baseline)
			}
			target, err := source.FromInput(args[len(args)-1])
			if err != nil {
				return err
			}
			return runReport(cmd.Context(), target, baselines)
		},
	}
}
