package discovery

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// JournalReader streams systemd journal lines for a time range.
type JournalReader interface {
	Range(ctx context.Context, since, until time.Time) (io.ReadCloser, error)
}

// Journalctl reads the local journal through the journalctl binary.
type Journalctl struct {
	// Unit restricts the range to one systemd unit when non-empty.
	Unit string
}

// Range starts journalctl over [since, until) and returns its stdout. The
// process is terminated when the returned reader is closed.
func (j *Journalctl) Range(ctx context.Context, since, until time.Time) (io.ReadCloser, error) {
	args := []string{
		"--output=short-iso",
		"--no-pager",
		"--since", since.Format("2006-01-02 15:04:05"),
		"--until", until.Format("2006-01-02 15:04:05"),
	}
	if j.Unit != "" {
		args = append(args, "--unit", j.Unit)
	}
	cmd := exec.CommandContext(ctx, "journalctl", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting journalctl: %w", err)
	}
	return &journalStream{ReadCloser: stdout, cmd: cmd}, nil
}

type journalStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (s *journalStream) Close() error {
	err := s.ReadCloser.Close()
	_ = s.cmd.Wait()
	return err
}
