package sources

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// ListDirectory walks dir and lists every file with its relative path and
// human-readable size.
func ListDirectory(dir string) (string, error) {
	type entry struct {
		path string
		size string
	}
	var files []entry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		size := "unknown size"
		if info, err := d.Info(); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		files = append(files, entry{path: rel, size: size})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", dir, err)
	}

	var b strings.Builder
	b.WriteString("FILES DIRECTORY EXPLORATION\n")
	fmt.Fprintf(&b, "Directory: %s\n", dir)
	fmt.Fprintf(&b, "Total files found: %d\n\n", len(files))
	b.WriteString("FILE LISTING:\n")
	b.WriteString(strings.Repeat("-", 50) + "\n")
	for _, f := range files {
		fmt.Fprintf(&b, "%s (%s)\n", f.path, f.size)
	}
	return b.String(), nil
}
