// Package structured turns free-form model output into typed scorer and
// commenter results. Parsing is best effort: malformed output degrades to
// zero values and never produces an error.
package structured

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// fenceRegex captures the body of a Markdown code fence, with or without a language tag.
	fenceRegex = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

	// objectRegex matches from the first '{' to the last '}'.
	objectRegex = regexp.MustCompile(`(?s)\{.*\}`)
)

// ExtractJSON finds a JSON object in content. It tries, in order, a direct
// parse, the body of a code fence, and the outermost {...} block.
func ExtractJSON(content string) (map[string]any, bool) {
	if obj, ok := decodeObject(content); ok {
		return obj, true
	}

	if m := fenceRegex.FindStringSubmatch(content); m != nil {
		if obj, ok := decodeObject(m[1]); ok {
			return obj, true
		}
	}

	if block := objectRegex.FindString(content); block != "" {
		if obj, ok := decodeObject(block); ok {
			return obj, true
		}
	}

	return nil, false
}

func decodeObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
