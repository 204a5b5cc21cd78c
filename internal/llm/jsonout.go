package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON returns the JSON document embedded in model output. Markdown
// code fences and leading or trailing prose are stripped. If no object or
// array is found the trimmed text is returned unchanged.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.LastIndex(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s
	}
	return s[start : end+1]
}

// DecodeJSON parses the JSON document in model output into v. Parse failures
// wrap ErrMalformedOutput.
func DecodeJSON(text string, v any) error {
	if err := json.Unmarshal([]byte(ExtractJSON(text)), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}
