package execution

import (
	"os"
	"path/filepath"
)

// DefaultInterpreter is used when no environment root provides one.
const DefaultInterpreter = "python"

// ResolveInterpreter returns the interpreter inside envRoot (bin/python on
// Unix layouts, Scripts/python.exe on Windows layouts) or fallback when
// envRoot is empty or contains neither. An empty fallback selects
// DefaultInterpreter.
func ResolveInterpreter(envRoot, fallback string) string {
	if fallback == "" {
		fallback = DefaultInterpreter
	}
	if envRoot == "" {
		return fallback
	}
	for _, candidate := range []string{
		filepath.Join(envRoot, "bin", "python"),
		filepath.Join(envRoot, "Scripts", "python.exe"),
	} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return fallback
}
