package batch

import (
	"strings"
	"unicode"
)

// overlapThreshold is the fraction of one export's lines that must appear in
// another for the two to count as the same chat.
const overlapThreshold = 0.8

// fingerprint holds the normalized message lines of one export.
type fingerprint struct {
	Path  string
	Lines map[string]struct{}
}

// buildFingerprint normalizes every non-empty line of an export. Case and
// whitespace differences between two exports of the same chat are ignored.
func buildFingerprint(path, conversation string) fingerprint {
	fp := fingerprint{Path: path, Lines: make(map[string]struct{})}
	for _, line := range strings.Split(conversation, "\n") {
		norm := strings.Join(strings.FieldsFunc(strings.ToLower(line), unicode.IsSpace), " ")
		if norm == "" {
			continue
		}
		fp.Lines[norm] = struct{}{}
	}
	return fp
}

// findDuplicates returns the paths of exports that are contained in an
// earlier export. The first file of a duplicate pair is kept.
func findDuplicates(fps []fingerprint) map[string]bool {
	duplicates := make(map[string]bool)

	for i, later := range fps {
		if len(later.Lines) == 0 {
			continue
		}
		for _, earlier := range fps[:i] {
			if duplicates[earlier.Path] {
				continue
			}
			if isOverlapping(earlier, later) {
				duplicates[later.Path] = true
				break
			}
		}
	}

	return duplicates
}

// isOverlapping reports whether at least overlapThreshold of b's lines appear in a.
func isOverlapping(a, b fingerprint) bool {
	if len(b.Lines) == 0 {
		return false
	}

	matches := 0
	for line := range b.Lines {
		if _, ok := a.Lines[line]; ok {
			matches++
		}
	}

	return float64(matches)/float64(len(b.Lines)) >= overlapThreshold
}
