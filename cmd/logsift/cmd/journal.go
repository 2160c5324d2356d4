package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/logsift/logsift/internal/source"
)

func newJournalCmd() *cobra.Command {
	var since, baselineSince time.Duration

	cmd := &cobra.Command{
		Use:   "journald",
		Short: "Analyze the systemd journal",
		Long: `Analyze the recent systemd journal against an earlier window of the
same journal. The target window is the last --since; the baseline window
is the equally sized period before it, or --baseline-since when given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if since <= 0 {
				return fmt.Errorf("--since must be positive")
			}
			now := time.Now()
			target := source.JournalRange(now.Add(-since), now)

			baselineLen := baselineSince
			if baselineLen <= 0 {
				baselineLen = since
			}
			baseline := source.JournalRange(now.Add(-since-baselineLen), now.Add(-since))
			return runReport(cmd.Context(), target, []source.Content{baseline})
		},
	}
	cmd.Flags().DurationVar(&since, "since", time.Hour, "Target window length")
	cmd.Flags().DurationVar(&baselineSince, "baseline-since", 0, "Baseline window length (default: same as --since)")
	return cmd
}
