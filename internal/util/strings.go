// Package util provides shared utility functions used across the codebase.
package util

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

var (
	thinkBlockRe  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	headingRe     = regexp.MustCompile(`(?m)^\s*#+\s*`)
	ruleRe        = regexp.MustCompile(`(?m)^\s*-{3,}\s*$`)
	fencedBlockRe = regexp.MustCompile("(?s)```(?:python)?\n(.*?)```")
)

// TruncateString truncates a string to maxLen runes, adding "..." if truncated.
// This is a simple truncation that does not account for ANSI escape codes or
// wide characters. For terminal output with styling, use TruncateANSI instead.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

// TruncateANSI truncates a string to maxWidth visual columns, adding "..." if truncated.
// This function properly handles ANSI escape codes and wide characters, making it
// suitable for terminal output with styling.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}

// Preview returns at most maxLen runes of s followed by a truncation marker.
// Unlike TruncateString the marker is appended, not counted.
func Preview(s string, maxLen int) string {
	runes := []rune(s)
	if maxLen < 0 || len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "... [truncated]"
}

// Tail returns the last maxChars runes of s.
func Tail(s string, maxChars int) string {
	runes := []rune(s)
	if maxChars < 0 || len(runes) <= maxChars {
		return s
	}
	return string(runes[len(runes)-maxChars:])
}

// StripThinking removes <think>...</think> blocks emitted by reasoning models.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkBlockRe.ReplaceAllString(s, ""))
}

// CleanReport strips reasoning blocks, markdown headings and horizontal rules
// from a generated report.
func CleanReport(s string) string {
	s = thinkBlockRe.ReplaceAllString(s, "")
	s = headingRe.ReplaceAllString(s, "")
	s = ruleRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ExtractCode returns the body of the first fenced code block in s, or the
// whole (trimmed) text when there is none. Reasoning blocks are dropped first.
func ExtractCode(s string) string {
	s = thinkBlockRe.ReplaceAllString(s, "")
	if m := fencedBlockRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}
