package gate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// interpreters maps plugin file extensions to their fixed interpreter.
var interpreters = map[string]string{
	".sh": "bash",
	".py": "python3",
}

// LoadPlugins scans dir for plugin scripts and returns one plugin gate per
// recognized file, in sorted filename order. A missing or empty dir yields
// no gates.
func LoadPlugins(dir string) []Gate {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var gates []Gate
	for _, name := range names {
		interp, ok := interpreters[filepath.Ext(name)]
		if !ok {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		gates = append(gates, Plugin(
			"plugin:"+stem,
			fmt.Sprintf("%s %s", interp, filepath.Join(dir, name)),
		))
	}
	return gates
}
