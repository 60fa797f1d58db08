package enrich

import "strings"

// extractJSON recovers a JSON object from a model response that may wrap
// it in prose or a markdown code fence. It first looks for a fenced block,
// then falls back to the first balanced top-level object. If neither is
// found the input is returned as-is and left for json.Unmarshal to reject.
func extractJSON(s string) []byte {
	s = strings.TrimSpace(s)

	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		// Tolerate a language tag after the opening fence.
		if j := strings.IndexByte(rest, '\n'); j >= 0 && len(strings.Fields(rest[:j])) <= 1 {
			rest = rest[j+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return []byte(s)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return []byte(s[start : i+1])
				}
			}
		}
	}
	return []byte(s[start:])
}
