package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/logsift/logsift/internal/model"
)

func newCheckModelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-model FILE",
		Short: "Validate a persisted model",
		Long:  `Check that a persisted model is readable and compatible with this build.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := model.Check(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Model %s is valid (created %s)\n",
				args[0], created.Format(time.RFC3339))
			return nil
		},
	}
}
