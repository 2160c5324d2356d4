package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sifterrors "github.com/logsift/logsift/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "logsift.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, float32(DefaultThreshold), cfg.Threshold)
	assert.Equal(t, DefaultBeforeContext, cfg.BeforeContext)
	assert.Equal(t, DefaultAfterContext, cfg.AfterContext)
	assert.Equal(t, DefaultContextDistance, cfg.ContextDistance)
	assert.Equal(t, DefaultMaxTarDepth, cfg.MaxTarDepth)
	assert.Positive(t, cfg.EffectiveWorkers())
}

func TestLoadFile(t *testing.T) {
	p := writeConfig(t, `
anomaly_threshold: 0.5
before_context: 5
includes:
  - "\\.log$"
ignore_patterns:
  - "fetch logs"
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), cfg.Threshold)
	assert.Equal(t, 5, cfg.BeforeContext)
	assert.Equal(t, DefaultAfterContext, cfg.AfterContext, "unset knobs keep defaults")
	assert.Equal(t, []string{`\.log$`}, cfg.Includes)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
	assert.Equal(t, sifterrors.ErrCodeConfigInvalid, sifterrors.GetCode(err))
	assert.True(t, sifterrors.IsFatal(err))
}

func TestLoadBadYAML(t *testing.T) {
	p := writeConfig(t, "anomaly_threshold: [not a number")
	_, err := Load(p)
	require.Error(t, err)
	assert.Equal(t, sifterrors.ErrCodeConfigInvalid, sifterrors.GetCode(err))
}

func TestResolveBadRegexIsFatal(t *testing.T) {
	cfg := Default()
	cfg.Excludes = []string{"]["}
	_, err := cfg.Resolve("")
	require.Error(t, err)
	assert.True(t, sifterrors.IsFatal(err))
}

func TestResolveSourceRules(t *testing.T) {
	cfg := Default()
	cfg.Excludes = []string{`^secret/`}
	tc, err := cfg.Resolve("")
	require.NoError(t, err)

	assert.True(t, tc.IsSourceValid("logs/app.log"))
	assert.False(t, tc.IsSourceValid("secret/token.log"))
	assert.False(t, tc.IsSourceValid("image.png"), "default excludes apply")
	assert.False(t, tc.IsSourceValid("logs/.hidden"), "hidden files are excluded")
}

func TestResolveDefaultExcludesToggle(t *testing.T) {
	off := false
	cfg := Default()
	cfg.DefaultExcludes = &off
	tc, err := cfg.Resolve("")
	require.NoError(t, err)
	assert.True(t, tc.IsSourceValid("image.png"))
}

func TestResolveIncludesWhitelist(t *testing.T) {
	cfg := Default()
	cfg.Includes = []string{`\.log$`}
	tc, err := cfg.Resolve("")
	require.NoError(t, err)
	assert.True(t, tc.IsSourceValid("app.log"))
	assert.False(t, tc.IsSourceValid("app.txt"))
}

func TestResolveJobOverrides(t *testing.T) {
	higher := float32(0.6)
	cfg := Default()
	cfg.IgnorePatterns = []string{"global noise"}
	cfg.Jobs = []JobOverride{
		{Match: "tox-*", IgnorePatterns: []string{"tox specific"}, Threshold: &higher},
		{Match: "*", IgnorePatterns: []string{"catch all"}},
	}

	tc, err := cfg.Resolve("tox-py311")
	require.NoError(t, err)
	assert.Equal(t, higher, tc.Threshold)
	assert.True(t, tc.IsIgnoredLine("some tox specific line"))
	assert.True(t, tc.IsIgnoredLine("some global noise line"))
	assert.False(t, tc.IsIgnoredLine("catch all is not applied"), "only the first match wins")

	tc, err = cfg.Resolve("other-job")
	require.NoError(t, err)
	assert.Equal(t, float32(DefaultThreshold), tc.Threshold)
	assert.True(t, tc.IsIgnoredLine("catch all line"))
}

func TestFromEnvKeepDuplicate(t *testing.T) {
	t.Setenv("LOGSIFT_KEEP_DUPLICATE", "1")
	cfg := Default()
	cfg.FromEnv()
	assert.True(t, cfg.KeepDuplicates)
}

func TestIsIgnoredLine(t *testing.T) {
	cfg := Default()
	cfg.IgnorePatterns = []string{`^DEBUG `}
	tc, err := cfg.Resolve("")
	require.NoError(t, err)
	assert.True(t, tc.IsIgnoredLine("DEBUG chatty internals"))
	assert.False(t, tc.IsIgnoredLine("ERROR something real"))
}
