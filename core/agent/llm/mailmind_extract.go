package llm

import (
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// ExtractJSON decodes the JSON payload of a model answer into v. It tries
// the first ```json fenced block, then the first generic fenced block, then
// the whole text. It reports whether any candidate decoded.
func ExtractJSON(text string, v any) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	if _, after, ok := strings.Cut(text, "```json"); ok {
		block, _, _ := strings.Cut(after, "```")
		if decode(block, v) {
			return true
		}
	}

	if _, after, ok := strings.Cut(text, "```"); ok {
		block, _, _ := strings.Cut(after, "```")
		if decode(block, v) {
			return true
		}
	}

	return decode(text, v)
}

func decode(s string, v any) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return json.Unmarshal([]byte(s), v) == nil
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
