package cmd

import (
	"github.com/spf13/cobra"

	"github.com/logsift/logsift/internal/report"
)

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read FILE",
		Short: "Render a previously saved report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := report.Load(args[0])
			if err != nil {
				return err
			}
			return render(rep)
		},
	}
}
