package detect

import "fmt"

// LintCmd resolves the lint command for the project, or "" to skip.
// Priority: env override, Makefile target, npm script, tool probe by type.
func (d *Detector) LintCmd() string {
	if d.lintCmd != nil {
		return *d.lintCmd
	}
	result := d.detectLintCmd()
	d.lintCmd = &result
	return result
}

func (d *Detector) detectLintCmd() string {
	if v, ok := d.commandOverride("LINT_CMD"); ok {
		return v
	}
	if d.hasMakeTarget("lint") {
		return "make lint"
	}
	ptype := d.ProjectType()
	if ptype == TypeNode && d.hasNpmScript("lint") {
		return "npm run lint"
	}

	sdirs := d.SrcDirs()
	switch ptype {
	case TypePython:
		runner := d.pythonRunner()
		if resolved := d.resolveCmd("ruff"); resolved != "" {
			if runner != "" {
				return fmt.Sprintf("%s ruff check %s", runner, sdirs)
			}
			return fmt.Sprintf("%s check %s", resolved, sdirs)
		}
		if resolved := d.resolveCmd("flake8"); resolved != "" {
			if runner != "" {
				return fmt.Sprintf("%s flake8 %s", runner, sdirs)
			}
			return fmt.Sprintf("%s %s", resolved, sdirs)
		}
		if resolved := d.resolveCmd("pylint"); resolved != "" {
			if runner != "" {
				return fmt.Sprintf("%s pylint %s", runner, sdirs)
			}
			return fmt.Sprintf("%s %s", resolved, sdirs)
		}
	case TypeNode:
		if d.cmdExists("eslint") {
			return fmt.Sprintf("npx eslint %s", sdirs)
		}
	case TypeRust:
		return "cargo clippy -- -D warnings"
	case TypeGo:
		if d.cmdExists("golangci-lint") {
			return "golangci-lint run ./..."
		}
		return "go vet ./..."
	}
	return ""
}

// TestCmd resolves the test command for the project, or "" to skip.
func (d *Detector) TestCmd() string {
	if d.testCmd != nil {
		return *d.testCmd
	}
	result := d.detectTestCmd()
	d.testCmd = &result
	return result
}

func (d *Detector) detectTestCmd() string {
	if v, ok := d.commandOverride("TEST_CMD"); ok {
		return v
	}
	if d.hasMakeTarget("test") {
		return "make test"
	}
	ptype := d.ProjectType()
	if ptype == TypeNode && d.hasNpmScript("test") {
		return "npm test"
	}

	switch ptype {
	case TypePython:
		runner := d.pythonRunner()
		if resolved := d.resolveCmd("pytest"); resolved != "" {
			if runner != "" {
				return fmt.Sprintf("%s pytest -q", runner)
			}
			return fmt.Sprintf("%s -q", resolved)
		}
		if d.isDir("tests") || d.isDir("test") {
			prefix := ""
			if runner != "" {
				prefix = runner + " "
			}
			return prefix + "python -m unittest discover"
		}
	case TypeNode:
		if d.cmdExists("jest") {
			return "npx jest"
		}
		if d.cmdExists("vitest") {
			return "npx vitest run"
		}
	case TypeRust:
		return "cargo test"
	case TypeGo:
		return "go test ./..."
	}
	return ""
}

// SecurityCmd resolves the security-scan command, or "" to skip. semgrep
// is preferred for every project type, then language-specific fallbacks.
func (d *Detector) SecurityCmd() string {
	if d.securityCmd != nil {
		return *d.securityCmd
	}
	result := d.detectSecurityCmd()
	d.securityCmd = &result
	return result
}

func (d *Detector) detectSecurityCmd() string {
	if v, ok := d.commandOverride("SECURITY_CMD"); ok {
		return v
	}

	sdirs := d.SrcDirs()
	if semgrep := d.resolveCmd("semgrep"); semgrep != "" {
		return fmt.Sprintf("%s scan --config auto --quiet %s", semgrep, sdirs)
	}

	switch d.ProjectType() {
	case TypePython:
		runner := d.pythonRunner()
		if resolved := d.resolveCmd("bandit"); resolved != "" {
			if runner != "" {
				return fmt.Sprintf("%s bandit -r %s -q", runner, sdirs)
			}
			return fmt.Sprintf("%s -r %s -q", resolved, sdirs)
		}
	case TypeNode:
		return "npm audit --audit-level=high"
	case TypeRust:
		if d.cmdExists("cargo-audit") {
			return "cargo audit"
		}
	case TypeGo:
		if d.cmdExists("gosec") {
			return "gosec ./..."
		}
	}
	return ""
}
