package notepad

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DomeenoH/dual/internal/directive"
)

var (
	ErrSectionNotFound = errors.New("section not found")
	// ErrTextNotFound is a warning: the document is left as it was
	ErrTextNotFound = errors.New("text not found")
)

// ApplyError reports a directive that could not be applied. Later directives are still applied.
type ApplyError struct {
	Index     int
	Directive directive.Directive
	Err       error
}

func (e *ApplyError) Error() string {
	target := e.Directive.Header
	if e.Directive.Kind == directive.KindSearchReplace {
		target = e.Directive.Find
	}
	return fmt.Sprintf("directive %d (%s %q): %s", e.Index, e.Directive.Kind, target, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// Result is the outcome of applying a batch of directives
type Result struct {
	Document string
	Errors   []*ApplyError
}

// Apply runs directives in order, each against the document produced by the previous one. A directive that fails is
// recorded and skipped; nothing already applied is rolled back.
func Apply(doc string, directives []directive.Directive) Result {
	result := Result{Document: doc}
	for i, d := range directives {
		next, err := applyOne(result.Document, d)
		if err != nil {
			result.Errors = append(result.Errors, &ApplyError{Index: i, Directive: d, Err: err})
			continue
		}
		result.Document = next
	}
	return result
}

func applyOne(doc string, d directive.Directive) (string, error) {
	switch d.Kind {
	case directive.KindReplaceAll:
		return d.Content, nil
	case directive.KindAppend:
		return join(doc, d.Content), nil
	case directive.KindPrepend:
		return join(d.Content, doc), nil
	case directive.KindReplaceSection:
		return replaceSection(doc, d.Header, d.Content)
	case directive.KindAppendToSection:
		return appendToSection(doc, d.Header, d.Content)
	case directive.KindSearchReplace:
		return searchReplace(doc, d.Find, d.Replacement, d.All)
	default:
		return doc, fmt.Errorf("%w %q", directive.ErrUnknownAction, d.Kind)
	}
}

// join concatenates two texts with a newline between them unless one is already present at the join point
func join(first, second string) string {
	if first == "" || second == "" {
		return first + second
	}
	if strings.HasSuffix(first, "\n") || strings.HasPrefix(second, "\n") {
		return first + second
	}
	return first + "\n" + second
}

// sectionEnd returns the index of the first line after start whose structural level is at or above level
func sectionEnd(lines []string, start, level int) int {
	for i := start + 1; i < len(lines); i++ {
		if l, ok := structuralLevel(lines[i]); ok && l <= level {
			return i
		}
	}
	return len(lines)
}

func replaceSection(doc, header, content string) (string, error) {
	lines := strings.Split(doc, "\n")
	loc, ok := Locate(lines, header)
	if !ok {
		return doc, ErrSectionNotFound
	}
	end := sectionEnd(lines, loc.Line, loc.Level)

	updated := make([]string, 0, len(lines)+strings.Count(content, "\n")+1)
	updated = append(updated, lines[:loc.Line+1]...)
	updated = append(updated, strings.Split(content, "\n")...)
	updated = append(updated, lines[end:]...)
	return collapseBlankLines(updated), nil
}

func appendToSection(doc, header, content string) (string, error) {
	lines := strings.Split(doc, "\n")
	loc, ok := Locate(lines, header)
	if !ok {
		return doc, ErrSectionNotFound
	}
	end := sectionEnd(lines, loc.Line, loc.Level)

	insert := strings.Split(content, "\n")
	if strings.TrimSpace(lines[end-1]) != "" {
		insert = append([]string{""}, insert...)
	}

	updated := make([]string, 0, len(lines)+len(insert))
	updated = append(updated, lines[:end]...)
	updated = append(updated, insert...)
	updated = append(updated, lines[end:]...)
	return collapseBlankLines(updated), nil
}

func searchReplace(doc, find, replacement string, all bool) (string, error) {
	if all {
		return strings.ReplaceAll(doc, find, replacement), nil
	}
	if !strings.Contains(doc, find) {
		return doc, ErrTextNotFound
	}
	return strings.Replace(doc, find, replacement, 1), nil
}

// collapseBlankLines joins lines, reducing every run of three or more blank lines to a single blank line
func collapseBlankLines(lines []string) string {
	out := make([]string, 0, len(lines))
	run := 0
	flush := func() {
		if run >= 3 {
			run = 1
		}
		for ; run > 0; run-- {
			out = append(out, "")
		}
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			run++
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()
	return strings.Join(out, "\n")
}
