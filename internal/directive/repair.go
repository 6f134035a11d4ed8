package directive

import (
	"encoding/json"
	"strings"
)

// repair is one escalation step applied to a candidate JSON text
type repair func(string) string

// repairs are tried in order, each building on the output of the previous one
var repairs = []repair{
	func(s string) string { return s },
	stripTrailingCommas,
	func(s string) string { return stripTrailingCommas(stripComments(s)) },
}

// decodeRepaired tries every repair in turn and returns the first object that unmarshals
func decodeRepaired(candidate string) (map[string]json.RawMessage, error) {
	var lastErr error
	text := candidate
	for _, fix := range repairs {
		text = fix(text)
		var obj map[string]json.RawMessage
		err := json.Unmarshal([]byte(text), &obj)
		if err == nil && obj != nil {
			return obj, nil
		}
		if err == nil {
			err = errNotObject
		}
		lastErr = err
	}
	return nil, lastErr
}

// stripTrailingCommas removes commas that directly precede a closing bracket or brace, ignoring whitespace in
// between. String literals are left untouched.
func stripTrailingCommas(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			out.WriteByte(c)
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
		if c == '"' {
			inString = true
			out.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isJSONSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		out.WriteByte(c)
	}
	return out.String()
}

// stripComments removes // line comments and /* */ block comments outside string literals
func stripComments(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			out.WriteByte(c)
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
		if c == '"' {
			inString = true
			out.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(s) {
			switch s[i+1] {
			case '/':
				end := strings.IndexByte(s[i:], '\n')
				if end < 0 {
					return out.String()
				}
				i += end - 1
				continue
			case '*':
				end := strings.Index(s[i+2:], "*/")
				if end < 0 {
					return out.String()
				}
				i += end + 3
				continue
			}
		}
		out.WriteByte(c)
	}
	return out.String()
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
