// Package scaffold creates starter files for a new agentloop project.
package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentloop/agentloop/internal/config"
)

const promptTemplate = `# Feature: [Feature Name]

## Context

[Brief project description. What should the agent read before coding?]

Read the following for project context:
- [instruction file, e.g., CLAUDE.md, convention.md, CONTRIBUTING.md]
- [design doc, e.g., docs/design-doc.md, docs/architecture.md]

## Requirements

Read ` + "`[path/to/requirements.md]`" + ` for full requirements.

Summary:
1. [Key requirement 1]
2. [Key requirement 2]
3. [Key requirement 3]

## Existing Patterns to Follow

- Model example: ` + "`[path/to/existing/code]`" + `
- Test example: ` + "`[path/to/existing/test]`" + `

## Completion Criteria

- [ ] All functional requirements implemented
- [ ] Lint passes (0 errors)
- [ ] All tests pass (existing + new)
- [ ] Security scan passes (if configured)
- [ ] Project conventions followed

## On Failure

- Lint failure: read error output, fix specific issues
- Test failure: read failing test output, fix the implementation
- Security failure: read scan report, fix flagged issues
- Triangular verification failure: read discrepancy-report.md, fix each listed issue
`

const requirementsTemplate = `# Requirements: [Feature Name]

## Functional Requirements

### FR-1: [Requirement Title]
- **Endpoint / Interface**: [describe]
- **Input**: [describe]
- **Output**: [describe]
- **Validation**: [describe constraints]

### FR-2: [Requirement Title]
- ...

## Non-Functional Requirements

### NFR-1: Testing
- Unit tests for each feature (happy path + error cases)

### NFR-2: Code Quality
- Follow existing project patterns
`

const configTemplate = `# agentloop configuration

prompt-file: PROMPT.md
requirements-file: requirements.md
# max-iterations: 5
# timeout: 300
# base-branch: main
`

const gitignoreEntry = config.DefaultOutputDir + "/"

// Run scaffolds starter files under root and reports the actions taken.
// Existing files are left alone unless force is set.
func Run(root string, force bool) ([]string, error) {
	var actions []string

	files := []struct {
		name    string
		content string
	}{
		{"PROMPT.md", promptTemplate},
		{"requirements.md", requirementsTemplate},
		{config.ProjectConfigName, configTemplate},
	}
	for _, f := range files {
		path := filepath.Join(root, f.name)
		if _, err := os.Stat(path); err == nil && !force {
			actions = append(actions, fmt.Sprintf("Skipped %s (already exists)", f.name))
			continue
		}
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return actions, fmt.Errorf("write %s: %w", f.name, err)
		}
		actions = append(actions, "Created "+f.name)
	}

	action, err := ensureGitignore(root)
	if err != nil {
		return actions, err
	}
	actions = append(actions, action)
	return actions, nil
}

// ensureGitignore adds the output directory to .gitignore, creating the
// file if the project has none.
func ensureGitignore(root string) (string, error) {
	path := filepath.Join(root, ".gitignore")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(gitignoreEntry+"\n"), 0o644); err != nil {
			return "", fmt.Errorf("create .gitignore: %w", err)
		}
		return "Created .gitignore", nil
	}
	if err != nil {
		return "", fmt.Errorf("read .gitignore: %w", err)
	}

	content := string(data)
	if strings.Contains(content, gitignoreEntry) {
		return "Skipped .gitignore (entry already exists)", nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open .gitignore: %w", err)
	}
	defer f.Close()
	if !strings.HasSuffix(content, "\n") {
		fmt.Fprintln(f)
	}
	fmt.Fprintln(f, gitignoreEntry)
	return fmt.Sprintf("Added %s to .gitignore", gitignoreEntry), nil
}
