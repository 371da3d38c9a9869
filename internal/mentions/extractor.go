// Package mentions turns free-text video titles into validated channel
// references. Extraction is a pure parsing step; validation resolves the
// candidate handles against the store and, failing that, the API.
package mentions

import (
	"regexp"
	"strings"
)

// handlePattern matches an @-mention of a channel handle: 4-25 characters,
// alphanumeric plus underscore.
var handlePattern = regexp.MustCompile(`@([A-Za-z0-9_]{4,25})`)

// bareHandlePattern validates a handle with no marker, for classifying
// caller-supplied candidates.
var bareHandlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{4,25}$`)

// Extract returns the candidate handles mentioned in text, lowercased and
// deduplicated, in order of first occurrence. It is a pure function with no
// validation beyond the handle syntax itself.
func Extract(text string) []string {
	matches := handlePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var handles []string
	for _, m := range matches {
		h := strings.ToLower(m[1])
		if !seen[h] {
			seen[h] = true
			handles = append(handles, h)
		}
	}
	return handles
}

// wellFormed reports whether a candidate handle has valid syntax.
func wellFormed(handle string) bool {
	return bareHandlePattern.MatchString(handle)
}
