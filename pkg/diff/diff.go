// Package diff renders the change between two computed module file
// lists as a unified-style diff, for debug logging when a module's
// persisted build version no longer matches the freshly computed one.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	maxDiffLines    = 2000
	truncateMessage = "... (diff truncated) ..."
)

// FileListDiff compares two sorted file lists line by line and returns
// a unified-style rendering of previous -> current. Returns "" when the
// lists are identical. Output beyond maxDiffLines is truncated with a
// marker line.
func FileListDiff(previous, current []string, previousLabel, currentLabel string) string {
	prevText := strings.Join(previous, "\n") + "\n"
	curText := strings.Join(current, "\n") + "\n"
	if prevText == curText {
		return ""
	}

	dmp := diffmatchpatch.New()
	prevChars, curChars, lineIndex := dmp.DiffLinesToChars(prevText, curText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(prevChars, curChars, false), lineIndex)

	var sb strings.Builder
	sb.WriteString("--- " + previousLabel + "\n")
	sb.WriteString("+++ " + currentLabel + "\n")

	emitted := 0
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range splitLines(d.Text) {
			if emitted >= maxDiffLines {
				sb.WriteString(truncateMessage + "\n")
				return sb.String()
			}
			sb.WriteString(prefix + line + "\n")
			emitted++
		}
	}
	return sb.String()
}

// splitLines drops the empty trailing element Split produces for text
// ending in a newline, so the diff never renders a phantom blank line.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
