package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/logsift/logsift/internal/source"
)

func newURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url URL",
		Short: "Analyze a remote file, directory index, or CI build",
		Long: `Analyze a remote target. Zuul build pages and Prow spyglass pages are
recognized and resolved through their APIs; baselines are the prior
successful builds of the same job, project, and branch. Any other URL is
treated as a file, or as a directory index when it ends with a slash.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			rawURL := args[0]

			target, ok, err := e.zuul.ContentFromZuulURL(cmd.Context(), rawURL)
			if err != nil {
				return fmt.Errorf("resolving zuul build: %w", err)
			}
			if !ok {
				if target, ok = e.prow.ContentFromProwURL(rawURL); !ok {
					if target, err = source.FromInput(rawURL); err != nil {
						return err
					}
				}
			}
			return runReport(cmd.Context(), target, nil)
		},
	}
}
