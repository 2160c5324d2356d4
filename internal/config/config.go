// Package config loads and validates the logsift configuration.
//
// Configuration is YAML with sensible zero-config defaults. All regexes are
// compiled by Resolve, before any source is opened, so that a malformed
// config fails before any I/O.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"gopkg.in/yaml.v3"

	sifterrors "github.com/logsift/logsift/internal/errors"
)

// Default knob values.
const (
	DefaultThreshold       = 0.3
	DefaultBeforeContext   = 3
	DefaultAfterContext    = 1
	DefaultContextDistance = 5
	DefaultMaxTarDepth     = 2
)

// Config is the raw user configuration as it appears on disk.
type Config struct {
	// Threshold is the minimum cosine distance for a line to be anomalous.
	Threshold float32 `yaml:"anomaly_threshold"`

	// BeforeContext / AfterContext are the context window sizes around an
	// anomaly; ContextDistance is the maximum gap (in lines) between two
	// anomalies merged into one context.
	BeforeContext   int `yaml:"before_context"`
	AfterContext    int `yaml:"after_context"`
	ContextDistance int `yaml:"context_distance"`

	// FeatureDim is the hashed feature dimension (0 selects the default).
	FeatureDim int `yaml:"feature_dim"`

	// MaxTarDepth bounds nested tarball traversal.
	MaxTarDepth int `yaml:"max_tar_depth"`

	// Workers sizes the pipeline worker pool (0 selects NumCPU).
	Workers int `yaml:"workers"`

	// KeepDuplicates disables deduplication of identical anomalous lines.
	KeepDuplicates bool `yaml:"keep_duplicates"`

	// Includes / Excludes are regexes applied to relative source paths.
	// A non-empty Includes list is a whitelist. DefaultExcludes toggles the
	// built-in exclusion list (default on).
	Includes        []string `yaml:"includes"`
	Excludes        []string `yaml:"excludes"`
	DefaultExcludes *bool    `yaml:"default_excludes"`

	// IgnorePatterns drops matching lines before tokenization, both during
	// training and during query.
	IgnorePatterns []string `yaml:"ignore_patterns"`

	// Jobs are per-job overrides, matched by job-name glob in order.
	Jobs []JobOverride `yaml:"jobs"`
}

// JobOverride is a partial configuration applied when the target's job name
// matches the glob.
type JobOverride struct {
	Match          string   `yaml:"match"`
	Includes       []string `yaml:"includes"`
	Excludes       []string `yaml:"excludes"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
	Threshold      *float32 `yaml:"anomaly_threshold"`
}

// Default returns the zero-config defaults.
func Default() *Config {
	return &Config{
		Threshold:       DefaultThreshold,
		BeforeContext:   DefaultBeforeContext,
		AfterContext:    DefaultAfterContext,
		ContextDistance: DefaultContextDistance,
		MaxTarDepth:     DefaultMaxTarDepth,
	}
}

// Load reads a YAML config file. An empty path returns the defaults; a
// malformed file is a fatal config error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sifterrors.ConfigError(fmt.Sprintf("config file not found: %s", path), err)
		}
		return nil, sifterrors.ConfigError(fmt.Sprintf("cannot read config: %s", path), err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, sifterrors.ConfigError(fmt.Sprintf("invalid yaml in %s", path), err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// FromEnv overlays environment knobs on the config.
func (c *Config) FromEnv() {
	if os.Getenv("LOGSIFT_KEEP_DUPLICATE") != "" {
		c.KeepDuplicates = true
	}
}

func (c *Config) applyDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.BeforeContext <= 0 {
		c.BeforeContext = DefaultBeforeContext
	}
	if c.AfterContext <= 0 {
		c.AfterContext = DefaultAfterContext
	}
	if c.ContextDistance <= 0 {
		c.ContextDistance = DefaultContextDistance
	}
	if c.MaxTarDepth <= 0 {
		c.MaxTarDepth = DefaultMaxTarDepth
	}
}

// EffectiveWorkers returns the worker pool size.
func (c *Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// Resolve compiles the config, with the overrides of the first job glob
// matching jobName applied, into an immutable TargetConfig. Regex errors are
// fatal config errors.
func (c *Config) Resolve(jobName string) (*TargetConfig, error) {
	includes := append([]string(nil), c.Includes...)
	excludes := append([]string(nil), c.Excludes...)
	ignores := append([]string(nil), c.IgnorePatterns...)
	threshold := c.Threshold

	for _, job := range c.Jobs {
		matched, err := filepath.Match(job.Match, jobName)
		if err != nil {
			return nil, sifterrors.ConfigError(fmt.Sprintf("bad job glob: %s", job.Match), err)
		}
		if !matched {
			continue
		}
		includes = append(includes, job.Includes...)
		excludes = append(excludes, job.Excludes...)
		ignores = append(ignores, job.IgnorePatterns...)
		if job.Threshold != nil {
			threshold = *job.Threshold
		}
		break
	}

	if c.DefaultExcludes == nil || *c.DefaultExcludes {
		excludes = append(excludes, defaultExcludes...)
	}

	tc := &TargetConfig{
		Threshold:       threshold,
		BeforeContext:   c.BeforeContext,
		AfterContext:    c.AfterContext,
		ContextDistance: c.ContextDistance,
		FeatureDim:      c.FeatureDim,
		MaxTarDepth:     c.MaxTarDepth,
		Workers:         c.EffectiveWorkers(),
		KeepDuplicates:  c.KeepDuplicates,
	}
	var err error
	if tc.includes, err = compileAll(includes); err != nil {
		return nil, err
	}
	if tc.excludes, err = compileAll(excludes); err != nil {
		return nil, err
	}
	if tc.ignores, err = compileAll(ignores); err != nil {
		return nil, err
	}
	return tc, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, sifterrors.ConfigError(fmt.Sprintf("bad regex: %s", p), err)
		}
		res = append(res, re)
	}
	return res, nil
}

// TargetConfig is the compiled, read-only view consumed by the pipeline.
// It is safe to share across goroutines.
type TargetConfig struct {
	Threshold       float32
	BeforeContext   int
	AfterContext    int
	ContextDistance int
	FeatureDim      int
	MaxTarDepth     int
	Workers         int
	KeepDuplicates  bool

	includes []*regexp.Regexp
	excludes []*regexp.Regexp
	ignores  []*regexp.Regexp
}

// IsSourceValid reports whether the relative source path should be analyzed.
func (tc *TargetConfig) IsSourceValid(relPath string) bool {
	if len(tc.includes) > 0 {
		found := false
		for _, re := range tc.includes {
			if re.MatchString(relPath) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, re := range tc.excludes {
		if re.MatchString(relPath) {
			return false
		}
	}
	return true
}

// IsIgnoredLine reports whether a raw line is dropped before tokenization.
func (tc *TargetConfig) IsIgnoredLine(line string) bool {
	for _, re := range tc.ignores {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
