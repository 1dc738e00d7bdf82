// Package detect infers the project type and the lint/test/security
// commands to run, without ever mutating the filesystem.
package detect

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Project types returned by (*Detector).ProjectType.
const (
	TypePython  = "python"
	TypeNode    = "node"
	TypeRust    = "rust"
	TypeGo      = "go"
	TypeUnknown = "unknown"
)

// Detector resolves project attributes once per run. Each accessor caches
// its first successful result, so repeated calls are idempotent and
// order-independent.
type Detector struct {
	root       string
	baseBranch string

	projectType  *string
	srcDirs      *string
	lintCmd      *string
	testCmd      *string
	securityCmd  *string
	runnerPrefix *string

	instructionFiles []string
	designDocs       []string
	changedFiles     []string
	filesCached      map[string]bool

	// Test seams; default to the real implementations.
	lookPath func(string) (string, error)
	getenv   func(string) (string, bool)
	git      func(args ...string) []string
}

// New creates a Detector rooted at the given directory, diffing against
// baseBranch for changed-file detection.
func New(root, baseBranch string) *Detector {
	if baseBranch == "" {
		baseBranch = "main"
	}
	d := &Detector{
		root:        root,
		baseBranch:  baseBranch,
		filesCached: make(map[string]bool),
		lookPath:    exec.LookPath,
		getenv:      os.LookupEnv,
	}
	d.git = d.runGit
	return d
}

// BaseBranch returns the diff base reference.
func (d *Detector) BaseBranch() string {
	return d.baseBranch
}

// ProjectType infers the project type from marker files, checked in
// priority order. PROJECT_TYPE in the environment always wins.
func (d *Detector) ProjectType() string {
	if d.projectType != nil {
		return *d.projectType
	}
	result := d.detectProjectType()
	d.projectType = &result
	return result
}

func (d *Detector) detectProjectType() string {
	if v, ok := d.getenv("PROJECT_TYPE"); ok && v != "" {
		return v
	}
	switch {
	case d.anyFile("pyproject.toml", "setup.py", "setup.cfg"):
		return TypePython
	case d.isFile("package.json"):
		return TypeNode
	case d.isFile("Cargo.toml"):
		return TypeRust
	case d.isFile("go.mod"):
		return TypeGo
	}
	return TypeUnknown
}

// SrcDirs returns a space-separated list of source directories, or "."
// when none of the conventional ones exist.
func (d *Detector) SrcDirs() string {
	if d.srcDirs != nil {
		return *d.srcDirs
	}
	result := d.detectSrcDirs()
	d.srcDirs = &result
	return result
}

func (d *Detector) detectSrcDirs() string {
	if v, ok := d.getenv("SRC_DIRS"); ok && v != "" {
		return v
	}
	var dirs []string
	for _, name := range []string{"src", "app", "lib", "pkg"} {
		if d.isDir(name) {
			dirs = append(dirs, name+"/")
		}
	}
	if len(dirs) == 0 {
		return "."
	}
	return strings.Join(dirs, " ")
}

// commandOverride implements the three-state semantics for command env
// overrides: unset means auto-detect, set-but-empty means skip the gate.
func (d *Detector) commandOverride(key string) (string, bool) {
	return d.getenv(key)
}

// resolveCmd resolves a tool name. A PATH hit yields the bare name; a file
// under $VIRTUAL_ENV/bin yields the full path (detection may run inside an
// environment where nothing is installed globally); otherwise "".
func (d *Detector) resolveCmd(name string) string {
	if _, err := d.lookPath(name); err == nil {
		return name
	}
	if venv, ok := d.getenv("VIRTUAL_ENV"); ok && venv != "" {
		candidate := filepath.Join(venv, "bin", name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func (d *Detector) cmdExists(name string) bool {
	return d.resolveCmd(name) != ""
}

// hasMakeTarget reports whether the project Makefile declares the target.
func (d *Detector) hasMakeTarget(target string) bool {
	data, err := os.ReadFile(filepath.Join(d.root, "Makefile"))
	if err != nil {
		return false
	}
	re := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(target) + `:`)
	return re.Match(data)
}

// hasNpmScript reports whether package.json declares the script.
func (d *Detector) hasNpmScript(script string) bool {
	data, err := os.ReadFile(filepath.Join(d.root, "package.json"))
	if err != nil {
		return false
	}
	var pkg struct {
		Scripts map[string]json.RawMessage `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	_, ok := pkg.Scripts[script]
	return ok
}

// pythonRunner resolves the lockfile-driven execution wrapper: uv.lock with
// uv available wins, then poetry.lock with poetry, else no prefix.
func (d *Detector) pythonRunner() string {
	if d.runnerPrefix != nil {
		return *d.runnerPrefix
	}
	result := ""
	if d.isFile("uv.lock") && d.cmdExists("uv") {
		result = "uv run"
	} else if d.isFile("poetry.lock") && d.cmdExists("poetry") {
		result = "poetry run"
	}
	d.runnerPrefix = &result
	return result
}

func (d *Detector) isFile(name string) bool {
	info, err := os.Stat(filepath.Join(d.root, name))
	return err == nil && !info.IsDir()
}

func (d *Detector) isDir(name string) bool {
	info, err := os.Stat(filepath.Join(d.root, name))
	return err == nil && info.IsDir()
}

func (d *Detector) anyFile(names ...string) bool {
	for _, n := range names {
		if d.isFile(n) {
			return true
		}
	}
	return false
}

// Project is a snapshot of every detected attribute, for display and for
// consumers that want a plain value instead of the detector.
type Project struct {
	Type             string
	SrcDirs          string
	LintCmd          string
	TestCmd          string
	SecurityCmd      string
	InstructionFiles []string
	DesignDocs       []string
	ChangedFiles     []string
	BaseBranch       string
}

// Snapshot resolves every attribute and returns the result.
func (d *Detector) Snapshot() Project {
	return Project{
		Type:             d.ProjectType(),
		SrcDirs:          d.SrcDirs(),
		LintCmd:          d.LintCmd(),
		TestCmd:          d.TestCmd(),
		SecurityCmd:      d.SecurityCmd(),
		InstructionFiles: d.InstructionFiles(),
		DesignDocs:       d.DesignDocs(),
		ChangedFiles:     d.ChangedFiles(),
		BaseBranch:       d.baseBranch,
	}
}

// String renders the snapshot in the fixed block format the detect
// command prints.
func (p Project) String() string {
	orSkip := func(s string) string {
		if s == "" {
			return "<none — will skip>"
		}
		return s
	}
	orNone := func(list []string) string {
		if len(list) == 0 {
			return "<none>"
		}
		return strings.Join(list, " ")
	}
	lines := []string{
		"=== Detected Project Configuration ===",
		fmt.Sprintf("  PROJECT_TYPE:      %s", p.Type),
		fmt.Sprintf("  SRC_DIRS:          %s", p.SrcDirs),
		fmt.Sprintf("  LINT_CMD:          %s", orSkip(p.LintCmd)),
		fmt.Sprintf("  TEST_CMD:          %s", orSkip(p.TestCmd)),
		fmt.Sprintf("  SECURITY_CMD:      %s", orSkip(p.SecurityCmd)),
		fmt.Sprintf("  INSTRUCTION_FILES: %s", orNone(p.InstructionFiles)),
		fmt.Sprintf("  DESIGN_DOCS:       %s", orNone(p.DesignDocs)),
		fmt.Sprintf("  BASE_BRANCH:       %s", p.BaseBranch),
		"=======================================",
	}
	return strings.Join(lines, "\n")
}
