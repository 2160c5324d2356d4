package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logsift/logsift/internal/report"
)

// resetFlags clears the package-level flag state between tests.
func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		configPath, reportPath, modelPath, saveModelPath = "", "", "", ""
		jsonOutput, debugMode = false, false
		flagThreshold = 0
		flagBeforeCtx, flagAfterCtx, flagCtxDistance, flagTarDepth, flagWorkers = 0, 0, 0, 0, 0
		profileCPU, profileMem, profileTrace = "", "", ""
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func nominalLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("service heartbeat cycle %04d completed cleanly", i)
	}
	return lines
}

func TestRootHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "logsift")
	assert.Contains(t, out, "diff")
	assert.Contains(t, out, "path")
}

func TestVersionCommand(t *testing.T) {
	_, err := execute(t, "version")
	require.NoError(t, err)
}

func TestDiffEndToEnd(t *testing.T) {
	dir := t.TempDir()
	baseline := filepath.Join(dir, "base.log")
	target := filepath.Join(dir, "target.log")
	writeLines(t, baseline, nominalLines(100)...)
	writeLines(t, target, append(nominalLines(100), "unexpected fatal crash tore everything down")...)

	reportFile := filepath.Join(dir, "report.bin")
	_, err := execute(t, "diff", baseline, target, "--report", reportFile)
	require.NoError(t, err)

	rep, err := report.Load(reportFile)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), rep.TotalAnomalyCount)
	require.Len(t, rep.LogReports, 1)
	assert.Equal(t, int64(101), rep.LogReports[0].LineCount)
}

func TestPathWithoutBaselinesFails(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "alone.log")
	writeLines(t, target, nominalLines(10)...)

	_, err := execute(t, "path", target)
	require.Error(t, err, "no rotated sibling exists, discovery must fail")
}

func TestPathWithRotatedSibling(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "app.log")
	writeLines(t, target, append(nominalLines(50), "catastrophic meltdown in reactor four")...)
	writeLines(t, target+".1", nominalLines(50)...)

	reportFile := filepath.Join(dir, "report.bin")
	_, err := execute(t, "path", target, "--report", reportFile)
	require.NoError(t, err)

	rep, err := report.Load(reportFile)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), rep.TotalAnomalyCount)
}

func TestTrainAndReuseModel(t *testing.T) {
	dir := t.TempDir()
	baseline := filepath.Join(dir, "base.log")
	writeLines(t, baseline, nominalLines(100)...)
	modelFile := filepath.Join(dir, "model.bin")

	_, err := execute(t, "train", baseline, "--save-model", modelFile)
	require.NoError(t, err)

	_, err = execute(t, "check-model", modelFile)
	require.NoError(t, err)

	target := filepath.Join(dir, "target.log")
	writeLines(t, target, append(nominalLines(100), "unexpected fatal crash tore everything down")...)
	reportFile := filepath.Join(dir, "report.bin")
	_, err = execute(t, "path", target, "--model", modelFile, "--report", reportFile)
	require.NoError(t, err)

	rep, err := report.Load(reportFile)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), rep.TotalAnomalyCount)
}

func TestTrainRequiresSaveModel(t *testing.T) {
	dir := t.TempDir()
	baseline := filepath.Join(dir, "base.log")
	writeLines(t, baseline, nominalLines(10)...)

	_, err := execute(t, "train", baseline)
	require.Error(t, err)
}

func TestReadRejectsGarbageFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "junk.bin")
	require.NoError(t, os.WriteFile(p, []byte("junk"), 0o644))
	_, err := execute(t, "read", p)
	require.Error(t, err)
}

func TestBadConfigIsFatal(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("includes: [\"][\"]"), 0o644))
	dir := t.TempDir()
	target := filepath.Join(dir, "app.log")
	writeLines(t, target, nominalLines(10)...)
	writeLines(t, target+".1", nominalLines(10)...)

	_, err := execute(t, "path", target, "--config", p)
	require.Error(t, err)
}
