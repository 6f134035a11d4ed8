// Package directive extracts notepad edit directives from free-form model replies.
package directive

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the edit a Directive performs
type Kind string

const (
	KindReplaceAll      Kind = "replace_all"
	KindAppend          Kind = "append"
	KindPrepend         Kind = "prepend"
	KindReplaceSection  Kind = "replace_section"
	KindAppendToSection Kind = "append_to_section"
	KindSearchReplace   Kind = "search_replace"
)

var ErrUnknownAction = errors.New("unknown action")

// Kinds lists every supported action
func Kinds() []Kind {
	return []Kind{KindReplaceAll, KindAppend, KindPrepend, KindReplaceSection, KindAppendToSection, KindSearchReplace}
}

// Directive is one structural edit to the notepad. Only the fields relevant to Kind are set.
type Directive struct {
	Kind        Kind   `json:"action" jsonschema:"enum=replace_all,enum=append,enum=prepend,enum=replace_section,enum=append_to_section,enum=search_replace"`
	Content     string `json:"content,omitempty" jsonschema:"description=Markdown text to write"`
	Header      string `json:"section,omitempty" jsonschema:"description=Header of the target section (section actions only)"`
	Find        string `json:"find,omitempty" jsonschema:"description=Literal text to look for (search_replace only)"`
	Replacement string `json:"replace,omitempty" jsonschema:"description=Replacement text (search_replace only)"`
	All         bool   `json:"all,omitempty" jsonschema:"description=Replace every occurrence instead of the first"`
}

func ReplaceAll(content string) Directive {
	return Directive{Kind: KindReplaceAll, Content: content}
}

func Append(content string) Directive {
	return Directive{Kind: KindAppend, Content: content}
}

func Prepend(content string) Directive {
	return Directive{Kind: KindPrepend, Content: content}
}

func ReplaceSection(header, content string) Directive {
	return Directive{Kind: KindReplaceSection, Header: header, Content: content}
}

func AppendToSection(header, content string) Directive {
	return Directive{Kind: KindAppendToSection, Header: header, Content: content}
}

func SearchReplace(find, replacement string, all bool) Directive {
	return Directive{Kind: KindSearchReplace, Find: find, Replacement: replacement, All: all}
}

// Rejection records an entry of the directive array that could not be turned into a Directive
type Rejection struct {
	Index int
	Raw   string
	Err   error
}

func (r Rejection) Error() string {
	return fmt.Sprintf("directive %d rejected: %s", r.Index, r.Err)
}

func (r Rejection) Unwrap() error {
	return r.Err
}

// rawDirective accepts the field spellings models commonly produce
type rawDirective struct {
	Action      string  `json:"action"`
	Type        string  `json:"type"`
	Content     *string `json:"content"`
	Section     *string `json:"section"`
	Header      *string `json:"header"`
	Find        *string `json:"find"`
	Search      *string `json:"search"`
	Replace     *string `json:"replace"`
	Replacement *string `json:"replacement"`
	All         *bool   `json:"all"`
	ReplaceAll  *bool   `json:"replace_all"`
}

// Decode validates a single untyped directive object
func Decode(raw json.RawMessage) (Directive, error) {
	var rd rawDirective
	if err := json.Unmarshal(raw, &rd); err != nil {
		return Directive{}, fmt.Errorf("malformed directive: %w", err)
	}

	action := rd.Action
	if action == "" {
		action = rd.Type
	}
	kind := Kind(strings.ToLower(strings.TrimSpace(action)))
	if kind == "replace" {
		kind = KindReplaceAll
	}

	content := firstString(rd.Content)
	header := firstString(rd.Section, rd.Header)

	switch kind {
	case KindReplaceAll, KindAppend, KindPrepend:
		if rd.Content == nil {
			return Directive{}, fmt.Errorf("%s requires content", kind)
		}
		return Directive{Kind: kind, Content: content}, nil
	case KindReplaceSection, KindAppendToSection:
		if strings.TrimSpace(header) == "" {
			return Directive{}, fmt.Errorf("%s requires a section header", kind)
		}
		if rd.Content == nil {
			return Directive{}, fmt.Errorf("%s requires content", kind)
		}
		return Directive{Kind: kind, Header: header, Content: content}, nil
	case KindSearchReplace:
		find := firstString(rd.Find, rd.Search)
		if find == "" {
			return Directive{}, fmt.Errorf("%s requires a non-empty find string", kind)
		}
		all := false
		if rd.All != nil {
			all = *rd.All
		} else if rd.ReplaceAll != nil {
			all = *rd.ReplaceAll
		}
		return SearchReplace(find, firstString(rd.Replace, rd.Replacement), all), nil
	default:
		return Directive{}, fmt.Errorf("%w %q", ErrUnknownAction, action)
	}
}

// DecodeList decodes every element of a directive array. Elements that fail validation are skipped and reported
// rather than failing the batch.
func DecodeList(raw json.RawMessage) ([]Directive, []Rejection, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, fmt.Errorf("directive list is not an array: %w", err)
	}

	directives := []Directive{}
	var rejected []Rejection
	for i, item := range items {
		d, err := Decode(item)
		if err != nil {
			rejected = append(rejected, Rejection{Index: i, Raw: string(item), Err: err})
			continue
		}
		directives = append(directives, d)
	}
	return directives, rejected, nil
}

func firstString(candidates ...*string) string {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return ""
}
