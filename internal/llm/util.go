package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ParseJSON decodes the first JSON object found in raw model output into
// out, tolerating code fences and surrounding prose.
func ParseJSON(raw string, out any) error {
	text := stripFences(strings.TrimSpace(raw))
	if text == "" {
		return errors.New("llm: empty model output")
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return errors.New("llm: no JSON object in model output")
	}
	return json.Unmarshal([]byte(text[start:end+1]), out)
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
	s = strings.TrimSpace(strings.TrimPrefix(s, "json"))
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = strings.TrimSpace(s[:idx])
	}
	return s
}
