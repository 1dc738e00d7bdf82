package detect

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// testDetector builds a Detector with hermetic seams: an explicit env map,
// an explicit set of PATH tools, and no git.
func testDetector(root string, env map[string]string, tools ...string) *Detector {
	d := New(root, "main")
	d.getenv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	onPath := make(map[string]bool, len(tools))
	for _, tool := range tools {
		onPath[tool] = true
	}
	d.lookPath = func(name string) (string, error) {
		if onPath[name] {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}
	d.git = func(args ...string) []string { return nil }
	return d
}

func touch(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestProjectTypeMarkers(t *testing.T) {
	cases := []struct {
		marker string
		want   string
	}{
		{"pyproject.toml", TypePython},
		{"setup.py", TypePython},
		{"setup.cfg", TypePython},
		{"package.json", TypeNode},
		{"Cargo.toml", TypeRust},
		{"go.mod", TypeGo},
	}
	for _, tc := range cases {
		root := t.TempDir()
		touch(t, root, tc.marker)
		d := testDetector(root, nil)
		if got := d.ProjectType(); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.marker, tc.want, got)
		}
	}
}

func TestProjectTypeUnknown(t *testing.T) {
	d := testDetector(t.TempDir(), nil)
	if got := d.ProjectType(); got != TypeUnknown {
		t.Errorf("expected unknown, got %s", got)
	}
}

func TestProjectTypePythonWinsOverNode(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "pyproject.toml", "package.json")
	d := testDetector(root, nil)
	if got := d.ProjectType(); got != TypePython {
		t.Errorf("expected python to take priority, got %s", got)
	}
}

func TestProjectTypeEnvWins(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "go.mod")
	d := testDetector(root, map[string]string{"PROJECT_TYPE": "rust"})
	if got := d.ProjectType(); got != "rust" {
		t.Errorf("expected env override, got %s", got)
	}
}

func TestProjectTypeIsCachedAfterFirstResolve(t *testing.T) {
	root := t.TempDir()
	d := testDetector(root, nil)
	if got := d.ProjectType(); got != TypeUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
	// A marker appearing later must not change the resolved value.
	touch(t, root, "go.mod")
	if got := d.ProjectType(); got != TypeUnknown {
		t.Errorf("cached value changed to %s", got)
	}
}

func TestSrcDirs(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"src", "lib", "docs"} {
		if err := os.Mkdir(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	d := testDetector(root, nil)
	if got := d.SrcDirs(); got != "src/ lib/" {
		t.Errorf("expected \"src/ lib/\", got %q", got)
	}

	empty := testDetector(t.TempDir(), nil)
	if got := empty.SrcDirs(); got != "." {
		t.Errorf(`expected ".", got %q`, got)
	}
}

func TestCommandOverrideThreeState(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "go.mod")

	// Unset: auto-detect runs.
	d := testDetector(root, nil)
	if got := d.LintCmd(); got != "go vet ./..." {
		t.Errorf("expected go vet, got %q", got)
	}

	// Set but empty: the gate is skipped, detection must not run.
	d = testDetector(root, map[string]string{"LINT_CMD": ""})
	if got := d.LintCmd(); got != "" {
		t.Errorf("empty override should skip, got %q", got)
	}

	// Set: used verbatim.
	d = testDetector(root, map[string]string{"LINT_CMD": "mylint --strict"})
	if got := d.LintCmd(); got != "mylint --strict" {
		t.Errorf("expected verbatim override, got %q", got)
	}
}

func TestMakeTargetWinsOverDetection(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "go.mod")
	makefile := "lint:\n\tgolangci-lint run\n\ntest-unit:\n\tgo test\n"
	if err := os.WriteFile(filepath.Join(root, "Makefile"), []byte(makefile), 0o644); err != nil {
		t.Fatal(err)
	}

	d := testDetector(root, nil, "golangci-lint")
	if got := d.LintCmd(); got != "make lint" {
		t.Errorf("expected make lint, got %q", got)
	}
	// "test-unit:" must not match the "test" target.
	if got := d.TestCmd(); got != "go test ./..." {
		t.Errorf("expected go test, got %q", got)
	}
}

func TestPythonCommandsWithRunnerPrefix(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "pyproject.toml", "uv.lock")
	if err := os.Mkdir(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}

	d := testDetector(root, nil, "uv", "ruff", "pytest", "bandit")
	if got := d.LintCmd(); got != "uv run ruff check src/" {
		t.Errorf("unexpected lint %q", got)
	}
	if got := d.TestCmd(); got != "uv run pytest -q" {
		t.Errorf("unexpected test %q", got)
	}
	if got := d.SecurityCmd(); got != "uv run bandit -r src/ -q" {
		t.Errorf("unexpected security %q", got)
	}
}

func TestPythonVirtualEnvFallback(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "pyproject.toml")

	venv := t.TempDir()
	binDir := filepath.Join(venv, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(binDir, "ruff"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	// ruff is not on PATH but lives in the virtualenv.
	d := testDetector(root, map[string]string{"VIRTUAL_ENV": venv})
	want := filepath.Join(binDir, "ruff") + " check ."
	if got := d.LintCmd(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNodeCommands(t *testing.T) {
	root := t.TempDir()
	pkg := `{"name":"x","scripts":{"lint":"eslint .","test":"jest"}}`
	if err := os.WriteFile(filepath.Join(root, "package.json"), []byte(pkg), 0o644); err != nil {
		t.Fatal(err)
	}

	d := testDetector(root, nil)
	if got := d.LintCmd(); got != "npm run lint" {
		t.Errorf("unexpected lint %q", got)
	}
	if got := d.TestCmd(); got != "npm test" {
		t.Errorf("unexpected test %q", got)
	}
	if got := d.SecurityCmd(); got != "npm audit --audit-level=high" {
		t.Errorf("unexpected security %q", got)
	}
}

func TestRustCommands(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "Cargo.toml")

	d := testDetector(root, nil)
	if got := d.LintCmd(); got != "cargo clippy -- -D warnings" {
		t.Errorf("unexpected lint %q", got)
	}
	if got := d.TestCmd(); got != "cargo test" {
		t.Errorf("unexpected test %q", got)
	}
	// cargo-audit absent: no security gate.
	if got := d.SecurityCmd(); got != "" {
		t.Errorf("expected no security command, got %q", got)
	}
}

func TestSemgrepPreferredForSecurity(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "go.mod")

	d := testDetector(root, nil, "semgrep", "gosec")
	if got := d.SecurityCmd(); got != "semgrep scan --config auto --quiet ." {
		t.Errorf("unexpected security %q", got)
	}
}

func TestUnknownProjectSkipsAllGates(t *testing.T) {
	d := testDetector(t.TempDir(), nil)
	if got := d.LintCmd(); got != "" {
		t.Errorf("expected no lint, got %q", got)
	}
	if got := d.TestCmd(); got != "" {
		t.Errorf("expected no test, got %q", got)
	}
	if got := d.SecurityCmd(); got != "" {
		t.Errorf("expected no security, got %q", got)
	}
}

func TestInstructionFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "CLAUDE.md", "CONTRIBUTING.md",
		".claude/rules/20-style.md", ".claude/rules/10-naming.md")

	d := testDetector(root, nil)
	want := []string{
		"CLAUDE.md",
		"CONTRIBUTING.md",
		filepath.Join(".claude", "rules", "10-naming.md"),
		filepath.Join(".claude", "rules", "20-style.md"),
	}
	if got := d.InstructionFiles(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDesignDocs(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "docs/architecture.md", "ARCHITECTURE.md")

	d := testDetector(root, nil)
	want := []string{"docs/architecture.md", "ARCHITECTURE.md"}
	if got := d.DesignDocs(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestChangedFilesMergesGitSources(t *testing.T) {
	d := testDetector(t.TempDir(), nil)
	outputs := map[string][]string{
		"diff --name-only main..HEAD":          {"b.go", "a.go"},
		"diff --name-only --cached":            {"c.go"},
		"diff --name-only HEAD":                {"a.go"},
		"ls-files --others --exclude-standard": {"d.go"},
	}
	d.git = func(args ...string) []string {
		return outputs[strings.Join(args, " ")]
	}

	want := []string{"a.go", "b.go", "c.go", "d.go"}
	if got := d.ChangedFiles(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestChangedFilesFallbackWalk(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "go.mod", "main.go", "internal/app.go",
		"node_modules/dep/index.go", "README.md")

	d := testDetector(root, nil)
	want := []string{filepath.Join("internal", "app.go"), "main.go"}
	if got := d.ChangedFiles(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestChangedFilesPlaceholder(t *testing.T) {
	d := testDetector(t.TempDir(), map[string]string{"PROJECT_TYPE": TypeGo})
	got := d.ChangedFiles()
	if len(got) != 1 || got[0] != NoChangedFiles {
		t.Errorf("expected placeholder, got %v", got)
	}
}

func TestChangedFilesEnvOverride(t *testing.T) {
	d := testDetector(t.TempDir(), map[string]string{"CHANGED_FILES": "x.go y.go"})
	want := []string{"x.go", "y.go"}
	if got := d.ChangedFiles(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSnapshotString(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "go.mod")
	d := testDetector(root, nil)

	out := d.Snapshot().String()
	for _, want := range []string{
		"=== Detected Project Configuration ===",
		"PROJECT_TYPE:      go",
		"TEST_CMD:          go test ./...",
		"SECURITY_CMD:      <none — will skip>",
		"INSTRUCTION_FILES: <none>",
		"BASE_BRANCH:       main",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("snapshot missing %q:\n%s", want, out)
		}
	}
}
