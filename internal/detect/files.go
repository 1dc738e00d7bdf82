package detect

import (
	"context"
	"io/fs"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// changedFilesLimit caps how many paths each git source and the fallback
// walk contribute.
const changedFilesLimit = 200

// NoChangedFiles is the placeholder entry when nothing could be detected.
const NoChangedFiles = "No changed files detected"

// InstructionFiles returns project instruction/convention files, in a
// stable order: static candidates first, then .claude/rules/*.md sorted.
func (d *Detector) InstructionFiles() []string {
	if d.filesCached["instruction"] {
		return d.instructionFiles
	}
	d.instructionFiles = d.detectInstructionFiles()
	d.filesCached["instruction"] = true
	return d.instructionFiles
}

func (d *Detector) detectInstructionFiles() []string {
	if v, ok := d.getenv("INSTRUCTION_FILES"); ok && v != "" {
		return strings.Fields(v)
	}

	var files []string
	seen := make(map[string]bool)
	for _, name := range []string{"CLAUDE.md", "convention.md", "CONTRIBUTING.md"} {
		if d.isFile(name) && !seen[name] {
			files = append(files, name)
			seen[name] = true
		}
	}

	rulesDir := filepath.Join(d.root, ".claude", "rules")
	matches, err := filepath.Glob(filepath.Join(rulesDir, "*.md"))
	if err == nil {
		sort.Strings(matches)
		for _, m := range matches {
			rel, err := filepath.Rel(d.root, m)
			if err != nil {
				continue
			}
			if !seen[rel] {
				files = append(files, rel)
				seen[rel] = true
			}
		}
	}
	return files
}

// DesignDocs returns architecture/design documentation files found from a
// fixed candidate list.
func (d *Detector) DesignDocs() []string {
	if d.filesCached["design"] {
		return d.designDocs
	}
	d.designDocs = d.detectDesignDocs()
	d.filesCached["design"] = true
	return d.designDocs
}

func (d *Detector) detectDesignDocs() []string {
	if v, ok := d.getenv("DESIGN_DOCS"); ok && v != "" {
		return strings.Fields(v)
	}
	candidates := []string{
		"docs/design-doc.md",
		"docs/architecture.md",
		"docs/design.md",
		"ARCHITECTURE.md",
	}
	var files []string
	for _, c := range candidates {
		if d.isFile(filepath.FromSlash(c)) {
			files = append(files, c)
		}
	}
	return files
}

// ChangedFiles returns files changed versus the base branch, merged from
// committed, staged, unstaged, and untracked sources, deduplicated and
// sorted. Falls back to a source-file walk by extension, then to a
// placeholder entry.
func (d *Detector) ChangedFiles() []string {
	if d.filesCached["changed"] {
		return d.changedFiles
	}
	d.changedFiles = d.detectChangedFiles()
	d.filesCached["changed"] = true
	return d.changedFiles
}

func (d *Detector) detectChangedFiles() []string {
	if v, ok := d.getenv("CHANGED_FILES"); ok && v != "" {
		return strings.Fields(v)
	}

	set := make(map[string]bool)
	add := func(lines []string) {
		for _, line := range lines {
			if line != "" {
				set[line] = true
			}
		}
	}
	add(d.git("diff", "--name-only", d.baseBranch+"..HEAD"))
	add(d.git("diff", "--name-only", "--cached"))
	add(d.git("diff", "--name-only", "HEAD"))
	add(d.git("ls-files", "--others", "--exclude-standard"))

	files := make([]string, 0, len(set))
	for f := range set {
		files = append(files, f)
	}
	sort.Strings(files)

	if len(files) == 0 {
		files = d.walkSourceFiles()
	}
	if len(files) == 0 {
		files = []string{NoChangedFiles}
	}
	return files
}

// extByType maps project types to the extensions the fallback walk matches.
var extByType = map[string][]string{
	TypePython: {".py"},
	TypeNode:   {".ts", ".tsx", ".js", ".jsx"},
	TypeRust:   {".rs"},
	TypeGo:     {".go"},
}

var skipWalkDirs = map[string]bool{
	"node_modules": true,
	".venv":        true,
	"target":       true,
	"__pycache__":  true,
}

// walkSourceFiles finds source files by extension when git yields nothing.
func (d *Detector) walkSourceFiles() []string {
	exts, ok := extByType[d.ProjectType()]
	if !ok {
		exts = []string{".py", ".ts", ".js", ".rs", ".go"}
	}
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		extSet[e] = true
	}

	var files []string
	_ = filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			if skipWalkDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !extSet[filepath.Ext(path)] {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return nil
		}
		files = append(files, rel)
		return nil
	})

	sort.Strings(files)
	if len(files) > changedFilesLimit {
		files = files[:changedFilesLimit]
	}
	return files
}

// runGit executes a git subcommand in the project root with a short
// timeout, returning its non-empty output lines capped at the limit.
// Any failure yields nil; change detection degrades, never errors.
func (d *Detector) runGit(args ...string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) >= changedFilesLimit {
			break
		}
	}
	return lines
}
