package sources

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPDF returns the plain text of every page in the PDF at path.
func ExtractPDF(path string) (text string, err error) {
	// The parser panics on some malformed object streams.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			_ = f.Close()
		}
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text %s: %w", path, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// PDFs extracts and formats each PDF. Missing files are skipped with a
// warning; an unreadable PDF is kept with the extraction error as content.
func PDFs(paths []string, logger Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	var entries []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			logger.Warn("pdf not found", "path", p)
			continue
		}
		content, err := ExtractPDF(p)
		if err != nil {
			logger.Warn("pdf extraction failed", "path", p, "error", err)
			content = fmt.Sprintf("Error extracting text from PDF: %v", err)
		}
		entries = append(entries, formatEntry("PDF", filepath.Base(p), content))
	}
	return strings.Join(entries, "\n\n")
}
