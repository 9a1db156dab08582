// Package sources turns the operator's inputs (PDF files, links, a files
// directory and the working directory) into the single text blob every role
// receives as context.
package sources

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Rule separates a source's content from its header in formatted output.
var Rule = strings.Repeat("=", 50)

// MaxLinkChars caps the content kept from one link.
const MaxLinkChars = 2000

// Logger receives warnings about skipped inputs. *slog.Logger and
// *logging.Logger both satisfy it.
type Logger interface {
	Warn(msg string, args ...any)
}

// Bundle holds already-ingested content to be assembled.
type Bundle struct {
	Links          string // formatted link content
	PDFs           string // formatted PDF content
	FilesDirectory string // formatted files-directory listing
	WorkingDir     string // directory whose files are listed; empty skips the listing
}

// Assemble joins the non-empty parts of b into labeled sections.
func Assemble(b Bundle) (string, error) {
	var parts []string
	if b.Links != "" {
		parts = append(parts, "Link Content:\n"+b.Links)
	}
	if b.PDFs != "" {
		parts = append(parts, "PDF Content:\n"+b.PDFs)
	}
	if b.FilesDirectory != "" {
		parts = append(parts, "Files Directory Content:\n"+b.FilesDirectory)
	}
	if b.WorkingDir != "" {
		listing, err := CurrentDirectory(b.WorkingDir)
		if err != nil {
			return "", err
		}
		parts = append(parts, listing)
	}
	return strings.Join(parts, "\n\n"), nil
}

// CurrentDirectory lists the regular files directly inside dir, sorted by name.
func CurrentDirectory(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", abs, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return fmt.Sprintf("Current Directory Information:\nCurrent Working Directory: %s\nFiles in current directory:\n%s",
		abs, strings.Join(names, "\n")), nil
}

func formatEntry(label, name, content string) string {
	return fmt.Sprintf("%s: %s\n%s\n%s\n%s", label, name, Rule, content, Rule)
}

func capText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
