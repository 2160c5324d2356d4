package cmd

import (
	"github.com/spf13/cobra"

	"github.com/logsift/logsift/internal/source"
)

func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path TARGET",
		Short: "Analyze a local file or directory",
		Long: `Analyze a local file or directory. Baselines of a file are discovered
from rotated siblings (app.log -> app.log.1) unless --model is given; a
directory target needs --model.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := source.FromInput(args[0])
			if err != nil {
				return err
			}
			return runReport(cmd.Context(), target, nil)
		},
	}
}
