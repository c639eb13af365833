// Package extract turns raw extraction-collaborator output into typed
// records. Model output routinely wraps the payload in prose or a markdown
// fence, so the first stage salvages the first balanced JSON object out of
// arbitrary surrounding text and only then does schema validation run.
package extract

import "strings"

// SalvageObject scans text left to right and returns the first balanced
// top-level JSON object found, tracking string and escape state so braces
// inside string values are ignored. A quote toggles in-string unless the
// previous character armed an escape; a backslash escapes exactly the next
// character. Returns false when no balanced top-level object exists.
func SalvageObject(text string) (string, bool) {
	s := strings.TrimSpace(text)

	start := -1
	depth := 0
	inString := false
	escaped := false

	// Byte scan is safe: the delimiters are ASCII and UTF-8 continuation
	// bytes can never alias them.
	for i := 0; i < len(s); i++ {
		ch := s[i]

		if ch == '\\' && !escaped {
			escaped = true
			continue
		}
		if ch == '"' && !escaped {
			inString = !inString
		}
		if !inString {
			switch ch {
			case '{':
				if depth == 0 {
					start = i
				}
				depth++
			case '}':
				if depth > 0 {
					depth--
					if depth == 0 && start != -1 {
						return s[start : i+1], true
					}
				}
			}
		}
		escaped = false
	}
	return "", false
}
