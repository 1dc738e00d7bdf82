package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeProjectConfig(t *testing.T, root, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, ProjectConfigName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// setFallbackConfig points the home-directory fallback at path for the
// duration of the test, keeping the developer's real ~/.agentloop out of
// the resolution.
func setFallbackConfig(t *testing.T, path string) {
	t.Helper()
	prev := fallbackConfigPath
	fallbackConfigPath = func() string { return path }
	t.Cleanup(func() { fallbackConfigPath = prev })
}

func TestResolveDefaults(t *testing.T) {
	setFallbackConfig(t, "")
	s := Resolve(t.TempDir(), Overrides{})

	if s.MaxIterations != DefaultMaxIterations {
		t.Errorf("expected %d iterations, got %d", DefaultMaxIterations, s.MaxIterations)
	}
	if s.Timeout != DefaultTimeout {
		t.Errorf("expected %s timeout, got %s", DefaultTimeout, s.Timeout)
	}
	if s.MaxRetries != DefaultMaxRetries {
		t.Errorf("expected %d retries, got %d", DefaultMaxRetries, s.MaxRetries)
	}
	if s.BaseBranch != DefaultBaseBranch {
		t.Errorf("expected branch %q, got %q", DefaultBaseBranch, s.BaseBranch)
	}
	if s.OutputDir != DefaultOutputDir {
		t.Errorf("expected output dir %q, got %q", DefaultOutputDir, s.OutputDir)
	}
	if s.PromptFile != "" || s.RequirementsFile != "" {
		t.Error("prompt and requirements have no defaults")
	}
}

func TestResolveProjectConfig(t *testing.T) {
	setFallbackConfig(t, "")
	root := t.TempDir()
	writeProjectConfig(t, root, `
prompt-file: PROMPT.md
requirements-file: reqs.md
max-iterations: 7
timeout: 120
max-retries: 4
base-branch: develop
`)

	s := Resolve(root, Overrides{})
	if s.PromptFile != "PROMPT.md" || s.RequirementsFile != "reqs.md" {
		t.Errorf("unexpected files: %q %q", s.PromptFile, s.RequirementsFile)
	}
	if s.MaxIterations != 7 {
		t.Errorf("expected 7 iterations, got %d", s.MaxIterations)
	}
	if s.Timeout != 2*time.Minute {
		t.Errorf("expected 2m timeout, got %s", s.Timeout)
	}
	if s.MaxRetries != 4 {
		t.Errorf("expected 4 retries, got %d", s.MaxRetries)
	}
	if s.BaseBranch != "develop" {
		t.Errorf("expected develop, got %q", s.BaseBranch)
	}
}

func TestResolveExplicitWinsOverFile(t *testing.T) {
	setFallbackConfig(t, "")
	root := t.TempDir()
	writeProjectConfig(t, root, "max-iterations: 7\nprompt-file: FILE.md\n")

	iters := 2
	prompt := "CLI.md"
	s := Resolve(root, Overrides{MaxIterations: &iters, PromptFile: &prompt})

	if s.MaxIterations != 2 {
		t.Errorf("explicit override should win, got %d", s.MaxIterations)
	}
	if s.PromptFile != "CLI.md" {
		t.Errorf("explicit override should win, got %q", s.PromptFile)
	}
}

func TestResolveFileWinsOverEnv(t *testing.T) {
	setFallbackConfig(t, "")
	root := t.TempDir()
	writeProjectConfig(t, root, "max-iterations: 7\n")
	t.Setenv("MAX_ITERATIONS", "9")
	t.Setenv("BASE_BRANCH", "trunk")

	s := Resolve(root, Overrides{})
	if s.MaxIterations != 7 {
		t.Errorf("file should shadow env, got %d", s.MaxIterations)
	}
	// Fields absent from the file still come from the environment.
	if s.BaseBranch != "trunk" {
		t.Errorf("env should fill unshadowed fields, got %q", s.BaseBranch)
	}
}

func TestResolveEnv(t *testing.T) {
	setFallbackConfig(t, "")
	t.Setenv("PROMPT_FILE", "p.md")
	t.Setenv("REQUIREMENTS_FILE", "r.md")
	t.Setenv("CLAUDE_TIMEOUT", "60")
	t.Setenv("OUTPUT_DIR", ".loop-out")
	t.Setenv("PARALLEL_GATES", "true")
	t.Setenv("WEBHOOK_URL", "http://example.com/hook")

	s := Resolve(t.TempDir(), Overrides{})
	if s.PromptFile != "p.md" || s.RequirementsFile != "r.md" {
		t.Errorf("unexpected files: %q %q", s.PromptFile, s.RequirementsFile)
	}
	if s.Timeout != time.Minute {
		t.Errorf("expected 1m timeout, got %s", s.Timeout)
	}
	if s.OutputDir != ".loop-out" {
		t.Errorf("unexpected output dir %q", s.OutputDir)
	}
	if !s.ParallelGates {
		t.Error("expected parallel gates on")
	}
	if s.WebhookURL != "http://example.com/hook" {
		t.Errorf("unexpected webhook %q", s.WebhookURL)
	}
}

func TestResolveFallbackConfig(t *testing.T) {
	fallback := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(fallback, []byte("max-iterations: 8\nbase-branch: trunk\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	setFallbackConfig(t, fallback)
	t.Setenv("BASE_BRANCH", "env-branch")

	root := t.TempDir()
	writeProjectConfig(t, root, "max-iterations: 3\n")

	s := Resolve(root, Overrides{})
	if s.MaxIterations != 3 {
		t.Errorf("project config should shadow the fallback, got %d", s.MaxIterations)
	}
	if s.BaseBranch != "trunk" {
		t.Errorf("fallback should shadow env, got %q", s.BaseBranch)
	}
}

func TestResolveMalformedValuesDegrade(t *testing.T) {
	setFallbackConfig(t, "")
	root := t.TempDir()
	writeProjectConfig(t, root, "max-iterations: [not an int\n")
	t.Setenv("MAX_ITERATIONS", "not-a-number")

	s := Resolve(root, Overrides{})
	if s.MaxIterations != DefaultMaxIterations {
		t.Errorf("malformed sources should fall back to the default, got %d", s.MaxIterations)
	}
}

func TestValidate(t *testing.T) {
	s := &Settings{}
	err := s.ValidateForRun()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if cfgErr.Field != "prompt-file" {
		t.Errorf("expected prompt-file error, got %q", cfgErr.Field)
	}

	s.PromptFile = "p.md"
	err = s.ValidateForRun()
	if !errors.As(err, &cfgErr) || cfgErr.Field != "requirements-file" {
		t.Errorf("expected requirements-file error, got %v", err)
	}

	// Verification alone does not need a prompt file.
	s2 := &Settings{RequirementsFile: "r.md"}
	if err := s2.ValidateForVerify(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	s.RequirementsFile = "r.md"
	if err := s.ValidateForRun(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
