package directive

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// FieldModifications holds the directive array in the trailing block
	FieldModifications = "notepad_modifications"
	// FieldComplete holds the end-of-discussion flag in the trailing block
	FieldComplete = "discussion_complete"
)

// Placeholder replies used when the model said nothing besides the directive block
const (
	PlaceholderEditAndEnd = "(Updated the notepad and ended the discussion.)"
	PlaceholderEdit       = "(Updated the notepad.)"
	PlaceholderEnd        = "(Ended the discussion.)"
)

var errNotObject = errors.New("directive block is not a JSON object")

// BlockError reports a fenced directive block that could not be decoded even after repairs
type BlockError struct {
	Block string
	Err   error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("failed to parse directive block: %s", e.Err)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// ParsedResponse is a model reply split into what should be shown and what should be applied
type ParsedResponse struct {
	SpokenText string
	Directives []Directive
	EndSignal  bool
	// ParseError is set only when a fenced block was present but undecodable
	ParseError error
	// Rejected lists directive entries that were skipped
	Rejected []Rejection
}

// candidate is a span of the reply that may hold the directive block
type candidate struct {
	start, end int // span removed from the reply on success
	body       string
}

// Parse extracts the trailing directive block from a raw model reply. It performs no I/O.
func Parse(raw string) ParsedResponse {
	result := ParsedResponse{SpokenText: raw, Directives: []Directive{}}
	if strings.TrimSpace(raw) == "" {
		return result
	}

	if c, ok := lastFencedBlock(raw); ok {
		obj, err := decodeRepaired(c.body)
		if err != nil {
			result.ParseError = &BlockError{Block: c.body, Err: err}
			return result
		}
		return finish(raw, c, obj)
	}

	for _, c := range heuristicCandidates(raw) {
		obj, err := decodeRepaired(c.body)
		if err != nil {
			continue
		}
		return finish(raw, c, obj)
	}
	return result
}

func finish(raw string, c candidate, obj map[string]json.RawMessage) ParsedResponse {
	result := ParsedResponse{Directives: []Directive{}}

	if mods, ok := obj[FieldModifications]; ok {
		directives, rejected, err := DecodeList(mods)
		if err != nil {
			rejected = append(rejected, Rejection{Index: -1, Raw: string(mods), Err: err})
		}
		if directives != nil {
			result.Directives = directives
		}
		result.Rejected = rejected
	}
	if complete, ok := obj[FieldComplete]; ok {
		var end bool
		if err := json.Unmarshal(complete, &end); err == nil {
			result.EndSignal = end
		}
	}

	result.SpokenText = strings.TrimSpace(removeSpan(raw, c.start, c.end))
	if result.SpokenText == "" {
		result.SpokenText = placeholder(len(result.Directives) > 0, result.EndSignal)
	}
	return result
}

func placeholder(edited, ended bool) string {
	switch {
	case edited && ended:
		return PlaceholderEditAndEnd
	case edited:
		return PlaceholderEdit
	case ended:
		return PlaceholderEnd
	}
	return ""
}

// removeSpan cuts raw[start:end]. A span that is the suffix of the reply is trimmed off directly; otherwise the
// exact position is removed so a repeated block elsewhere in the text is left alone.
func removeSpan(raw string, start, end int) string {
	trimmed := strings.TrimRight(raw, " \t\r\n")
	if end >= len(trimmed) {
		return raw[:start]
	}
	return raw[:start] + raw[end:]
}

// lastFencedBlock pairs ``` fences left to right and returns the last one that is untagged or tagged as JSON
func lastFencedBlock(raw string) (candidate, bool) {
	var found candidate
	ok := false
	pos := 0
	for {
		open := strings.Index(raw[pos:], "```")
		if open < 0 {
			break
		}
		open += pos
		inner := open + 3
		closing := strings.Index(raw[inner:], "```")
		if closing < 0 {
			break
		}
		closing += inner
		end := closing + 3

		if body, isJSON := fenceBody(raw[inner:closing]); isJSON {
			found = candidate{start: open, end: end, body: body}
			ok = true
		}
		pos = end
	}
	return found, ok
}

// fenceBody splits the info string from the fence contents
func fenceBody(inner string) (string, bool) {
	nl := strings.IndexByte(inner, '\n')
	if nl < 0 {
		body := strings.TrimSpace(inner)
		if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
			body = strings.TrimSpace(body[4:])
		}
		return body, true
	}
	info := strings.TrimSpace(inner[:nl])
	switch {
	case info == "":
		return inner[nl+1:], true
	case strings.HasPrefix(info, "{") || strings.HasPrefix(info, "["):
		return inner, true
	case strings.EqualFold(info, "json"), strings.EqualFold(info, "jsonc"), strings.EqualFold(info, "json5"):
		return inner[nl+1:], true
	}
	return "", false
}

// heuristicCandidates locates an unfenced block by its field names. The nearest opening brace before the last field
// name comes first; braces further back are offered in case the nearest one opens a nested object.
func heuristicCandidates(raw string) []candidate {
	key := max(strings.LastIndex(raw, `"`+FieldModifications+`"`), strings.LastIndex(raw, `"`+FieldComplete+`"`))
	if key < 0 {
		return nil
	}
	closing := strings.LastIndex(raw, "}")
	if closing < key {
		return nil
	}

	var candidates []candidate
	for open := strings.LastIndex(raw[:key], "{"); open >= 0; open = strings.LastIndex(raw[:open], "{") {
		candidates = append(candidates, candidate{start: open, end: closing + 1, body: raw[open : closing+1]})
	}
	return candidates
}
