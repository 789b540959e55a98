package util

import (
	"strings"
	"unicode/utf8"
)

// ExtractNewOutput isolates the text added to a pane snapshot after the before
// state. It handles cases where the buffer has scrolled (before is not a
// simple prefix of after).
func ExtractNewOutput(before, after string) string {
	if before == "" {
		return after
	}
	if after == "" {
		return ""
	}

	// Fast path: simple append.
	if len(after) >= len(before) && after[:len(before)] == before {
		return after[len(before):]
	}

	// Scrolled output: find the longest suffix of before matching a prefix of
	// after. Search using a chunk from the start of after; the earliest match
	// in the scan region gives the longest suffix.
	const chunkSize = 40
	searchChunk := after
	if len(after) >= chunkSize {
		searchChunk = after[:chunkSize]
	}

	scanStart := len(before) - len(after)
	if scanStart < 0 {
		scanStart = 0
	}

	remaining := before[scanStart:]
	offset := 0
	for {
		idx := strings.Index(remaining, searchChunk)
		if idx == -1 {
			break
		}
		absIdx := scanStart + offset + idx
		suffixLen := len(before) - absIdx
		if len(after) >= suffixLen && after[:suffixLen] == before[absIdx:] {
			return after[suffixLen:]
		}
		step := idx + 1
		remaining = remaining[step:]
		offset += step
	}

	// Overlaps shorter than the search chunk.
	maxOverlap := len(after) - 1
	if maxOverlap > len(before) {
		maxOverlap = len(before)
	}
	if maxOverlap >= chunkSize {
		maxOverlap = chunkSize - 1
	}
	for k := maxOverlap; k > 0; k-- {
		if before[len(before)-k:] == after[:k] {
			return after[k:]
		}
	}

	// No overlap found.
	return after
}

// Truncate shortens a string to at most n bytes, appending "..." when cut.
// Cuts land on rune boundaries.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		lastValid := 0
		for i := range s {
			if i > n {
				break
			}
			lastValid = i
		}
		return s[:lastValid]
	}
	targetLen := n - 3
	prevI := 0
	for i := range s {
		if i > targetLen {
			return s[:prevI] + "..."
		}
		prevI = i
	}
	return s[:prevI] + "..."
}

// SanitizeFilename makes a string safe for use as a filename. Pane ids like
// "%12" become "_12" so each pane gets a stable event stream file.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "-",
		"<", "-",
		">", "-",
		"|", "-",
		"%", "_",
		" ", "_",
	)
	safe := replacer.Replace(strings.TrimSpace(name))

	if len(safe) > 50 {
		for i := 50; i >= 0; i-- {
			if utf8.RuneStart(safe[i]) {
				return safe[:i]
			}
		}
		return safe[:50]
	}
	return safe
}
