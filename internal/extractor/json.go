package extractor

import (
	"encoding/json"
	"strings"
)

// extractContentFromChoices reads openai-style choices[0].message.content
func extractContentFromChoices(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}

	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	c0, _ := choices[0].(map[string]any)
	if c0 == nil {
		return ""
	}
	msg, _ := c0["message"].(map[string]any)
	if msg == nil {
		return ""
	}
	content, _ := msg["content"].(string)
	return content
}

// stripFences removes markdown code fences models like to wrap JSON in.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, r := range []string{"```json", "```JSON", "```"} {
		s = strings.ReplaceAll(s, r, "")
	}
	return s
}

// extractJSONArray finds the first balanced JSON array in s that decodes.
func extractJSONArray(s string) string {
	s = stripFences(s)
	for start := strings.IndexByte(s, '['); start >= 0; {
		if end := balancedEnd(s, start, '[', ']'); end > 0 {
			candidate := strings.TrimSpace(s[start:end])
			if json.Valid([]byte(candidate)) {
				return candidate
			}
		}
		next := strings.IndexByte(s[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return ""
}

// balancedEnd returns the index just past the bracket closing the one at start, ignoring
// brackets inside JSON strings, or -1.
func balancedEnd(s string, start int, opener, closer byte) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
