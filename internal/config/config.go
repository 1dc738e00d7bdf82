// Package config resolves pipeline settings from explicit overrides,
// config files, and environment variables into one immutable Settings value.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when no source supplies a value.
const (
	DefaultMaxIterations = 5
	DefaultTimeout       = 5 * time.Minute
	DefaultMaxRetries    = 2
	DefaultBaseBranch    = "main"
	DefaultOutputDir     = ".agentloop"
)

// ProjectConfigName is the project-scoped config file searched at the root.
const ProjectConfigName = ".agentloop.yaml"

// ConfigError reports a required setting that no source supplied.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Settings is the fully resolved pipeline configuration. Built once per run
// and never mutated afterward.
type Settings struct {
	PromptFile       string
	RequirementsFile string
	MaxIterations    int
	Timeout          time.Duration
	MaxRetries       int
	BaseBranch       string
	OutputDir        string
	ParallelGates    bool
	PluginDir        string
	WebhookURL       string
}

// Overrides carries explicit call-time values. Nil fields mean "not set".
type Overrides struct {
	PromptFile       *string
	RequirementsFile *string
	MaxIterations    *int
	Timeout          *time.Duration
	MaxRetries       *int
	BaseBranch       *string
	OutputDir        *string
	ParallelGates    *bool
	PluginDir        *string
	WebhookURL       *string
}

// layer is one partially filled config source. Timeout is in seconds in
// file and environment sources.
type layer struct {
	PromptFile       *string `yaml:"prompt-file"`
	RequirementsFile *string `yaml:"requirements-file"`
	MaxIterations    *int    `yaml:"max-iterations"`
	TimeoutSec       *int    `yaml:"timeout"`
	MaxRetries       *int    `yaml:"max-retries"`
	BaseBranch       *string `yaml:"base-branch"`
}

// Resolve merges all sources into a Settings value. Precedence, highest
// first: explicit overrides, project config, fallback config, environment,
// built-in defaults. Each field is resolved independently.
func Resolve(root string, explicit Overrides) *Settings {
	s := &Settings{
		MaxIterations: DefaultMaxIterations,
		Timeout:       DefaultTimeout,
		MaxRetries:    DefaultMaxRetries,
		BaseBranch:    DefaultBaseBranch,
		OutputDir:     DefaultOutputDir,
	}

	// CLI-only concerns resolved from the environment first, so explicit
	// overrides below still win.
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		s.OutputDir = v
	}
	if v := os.Getenv("PLUGIN_DIR"); v != "" {
		s.PluginDir = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		s.WebhookURL = v
	}
	s.ParallelGates = parseBool(os.Getenv("PARALLEL_GATES"))

	// Shared settings, lowest priority first.
	layers := []layer{
		fromEnv(),
		fromFile(fallbackConfigPath()),
		fromFile(filepath.Join(root, ProjectConfigName)),
	}
	for _, l := range layers {
		s.applyLayer(l)
	}
	s.applyOverrides(explicit)
	return s
}

// ValidateForRun checks that the fields a full pipeline run requires were
// resolved. Returns a *ConfigError naming the first missing field.
func (s *Settings) ValidateForRun() error {
	if s.PromptFile == "" {
		return &ConfigError{Field: "prompt-file", Message: "required (flag, config file, or PROMPT_FILE)"}
	}
	return s.ValidateForVerify()
}

// ValidateForVerify checks the fields verification alone requires.
func (s *Settings) ValidateForVerify() error {
	if s.RequirementsFile == "" {
		return &ConfigError{Field: "requirements-file", Message: "required (flag, config file, or REQUIREMENTS_FILE)"}
	}
	return nil
}

func (s *Settings) applyLayer(l layer) {
	if l.PromptFile != nil {
		s.PromptFile = *l.PromptFile
	}
	if l.RequirementsFile != nil {
		s.RequirementsFile = *l.RequirementsFile
	}
	if l.MaxIterations != nil {
		s.MaxIterations = *l.MaxIterations
	}
	if l.TimeoutSec != nil {
		s.Timeout = time.Duration(*l.TimeoutSec) * time.Second
	}
	if l.MaxRetries != nil {
		s.MaxRetries = *l.MaxRetries
	}
	if l.BaseBranch != nil {
		s.BaseBranch = *l.BaseBranch
	}
}

func (s *Settings) applyOverrides(o Overrides) {
	if o.PromptFile != nil {
		s.PromptFile = *o.PromptFile
	}
	if o.RequirementsFile != nil {
		s.RequirementsFile = *o.RequirementsFile
	}
	if o.MaxIterations != nil {
		s.MaxIterations = *o.MaxIterations
	}
	if o.Timeout != nil {
		s.Timeout = *o.Timeout
	}
	if o.MaxRetries != nil {
		s.MaxRetries = *o.MaxRetries
	}
	if o.BaseBranch != nil {
		s.BaseBranch = *o.BaseBranch
	}
	if o.OutputDir != nil {
		s.OutputDir = *o.OutputDir
	}
	if o.ParallelGates != nil {
		s.ParallelGates = *o.ParallelGates
	}
	if o.PluginDir != nil {
		s.PluginDir = *o.PluginDir
	}
	if o.WebhookURL != nil {
		s.WebhookURL = *o.WebhookURL
	}
}

// fromFile reads one YAML config layer. A missing or malformed file yields
// an empty layer; a broken config source degrades rather than aborting.
func fromFile(path string) layer {
	var l layer
	data, err := os.ReadFile(path)
	if err != nil {
		return layer{}
	}
	if err := yaml.Unmarshal(data, &l); err != nil {
		return layer{}
	}
	return l
}

// fallbackConfigPath returns ~/.agentloop/config.yaml, or "" when the home
// directory cannot be determined. A variable so tests can point it at a
// scratch directory.
var fallbackConfigPath = func() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".agentloop", "config.yaml")
}

// fromEnv reads the shared settings from environment variables.
func fromEnv() layer {
	var l layer
	if v := os.Getenv("PROMPT_FILE"); v != "" {
		l.PromptFile = &v
	}
	if v := os.Getenv("REQUIREMENTS_FILE"); v != "" {
		l.RequirementsFile = &v
	}
	if n, ok := envInt("MAX_ITERATIONS"); ok {
		l.MaxIterations = &n
	}
	if n, ok := envInt("CLAUDE_TIMEOUT"); ok {
		l.TimeoutSec = &n
	}
	if n, ok := envInt("MAX_RETRIES"); ok {
		l.MaxRetries = &n
	}
	if v := os.Getenv("BASE_BRANCH"); v != "" {
		l.BaseBranch = &v
	}
	return l
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	}
	return false
}
