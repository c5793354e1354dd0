package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fintalk/fintalk/internal/common"
)

// ExtractJSON pulls the first balanced JSON object out of a model reply.
// Models wrap output in code fences, prepend prose and occasionally emit raw
// newlines inside string values; all of that is repaired before decoding.
func ExtractJSON(reply string) (json.RawMessage, error) {
	cleaned := stripCodeFences(reply)

	obj, ok := firstBalancedObject(cleaned)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in reply", common.ErrMalformedReply)
	}

	obj = escapeNewlinesInStrings(obj)

	if !json.Valid([]byte(obj)) {
		return nil, fmt.Errorf("%w: invalid JSON object", common.ErrMalformedReply)
	}

	return json.RawMessage(obj), nil
}

// Decode extracts the first JSON object from reply and unmarshals it into v.
func Decode(reply string, v any) error {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedReply, err)
	}
	return nil
}

// stripCodeFences removes markdown code fence markers, with or without a
// language tag.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	for _, marker := range []string{"```json", "```JSON", "```"} {
		s = strings.ReplaceAll(s, marker, "")
	}
	return strings.TrimSpace(s)
}

// firstBalancedObject scans for the first top-level {...} pair, respecting
// string literals and escape sequences.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// escapeNewlinesInStrings replaces literal newlines inside JSON string
// values with their escaped form so the object decodes.
func escapeNewlinesInStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			case c == '\n':
				b.WriteString(`\n`)
				continue
			case c == '\r':
				b.WriteString(`\r`)
				continue
			case c == '\t':
				b.WriteString(`\t`)
				continue
			}
		} else if c == '"' {
			inString = true
		}

		b.WriteByte(c)
	}

	return b.String()
}
