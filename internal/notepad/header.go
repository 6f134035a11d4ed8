// Package notepad applies directives to the shared notepad document.
package notepad

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	boldLevel     = 4
	plainLevel    = 3
	fallbackLevel = 2

	// plainHeaderMaxLen is the rune length under which a plain line may still be treated as a header
	plainHeaderMaxLen = 100
	// minFuzzyLen is the length a normalized string must exceed before substring matching applies
	minFuzzyLen = 2
)

var (
	markerHeaderPattern = regexp.MustCompile(`^(#+)\s*(.*)$`)
	boldLinePattern     = regexp.MustCompile(`^\*\*(.+?)\*\*\s*[:：]?$`)
)

// Location is a resolved section header
type Location struct {
	Line  int
	Level int
}

// headerLine is a line classified as a possible header
type headerLine struct {
	text  string
	level int
}

var punctuationReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
	"：", ":",
)

// NormalizeHeader reduces header text to a comparable form: surrounding markers and whitespace trimmed, lower case,
// typographic quotes and the full-width colon mapped to ASCII, trailing punctuation removed.
func NormalizeHeader(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "#*_ \t")
	s = strings.ToLower(s)
	s = punctuationReplacer.Replace(s)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	return s
}

// CleanHeader keeps only ASCII word characters and Han ideographs, lower cased
func CleanHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == '_' || (r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r))) || unicode.Is(unicode.Han, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// classify returns the header reading of a non-blank line, if any
func classify(line string) (headerLine, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return headerLine{}, false
	}
	if m := markerHeaderPattern.FindStringSubmatch(trimmed); m != nil {
		return headerLine{text: m[2], level: len(m[1])}, true
	}
	if m := boldLinePattern.FindStringSubmatch(trimmed); m != nil {
		return headerLine{text: m[1], level: boldLevel}, true
	}
	if utf8.RuneCountInString(trimmed) < plainHeaderMaxLen {
		return headerLine{text: trimmed, level: plainLevel}, true
	}
	return headerLine{}, false
}

// structuralLevel is the level of a line for section boundary purposes. Plain lines never end a section.
func structuralLevel(line string) (int, bool) {
	trimmed := strings.TrimSpace(line)
	if m := markerHeaderPattern.FindStringSubmatch(trimmed); m != nil {
		return len(m[1]), true
	}
	if boldLinePattern.MatchString(trimmed) {
		return boldLevel, true
	}
	return 0, false
}

// Locate finds the first line, top to bottom, whose header approximately matches target. Each line is tested against
// exact normalized match, normalized substring match, then substring match on the cleaned forms. When no header
// matches, any line whose lower-case text contains or is contained in the target is accepted at level 2.
func Locate(lines []string, target string) (Location, bool) {
	normTarget := NormalizeHeader(target)
	if normTarget == "" {
		return Location{}, false
	}
	cleanTarget := CleanHeader(normTarget)

	for i, line := range lines {
		h, ok := classify(line)
		if !ok {
			continue
		}
		norm := NormalizeHeader(h.text)
		for _, rule := range matchRules {
			if rule(norm, normTarget, cleanTarget) {
				return Location{Line: i, Level: h.level}, true
			}
		}
	}

	lowerTarget := strings.ToLower(strings.TrimSpace(target))
	for i, line := range lines {
		lower := strings.ToLower(strings.TrimSpace(line))
		if lower == "" {
			continue
		}
		if strings.Contains(lower, lowerTarget) || strings.Contains(lowerTarget, lower) {
			return Location{Line: i, Level: fallbackLevel}, true
		}
	}
	return Location{}, false
}

type matchRule func(norm, normTarget, cleanTarget string) bool

var matchRules = []matchRule{
	exactMatch,
	substringMatch,
	cleanedSubstringMatch,
}

func exactMatch(norm, normTarget, _ string) bool {
	return norm == normTarget
}

func substringMatch(norm, normTarget, _ string) bool {
	return len(normTarget) > minFuzzyLen && norm != "" &&
		(strings.Contains(norm, normTarget) || strings.Contains(normTarget, norm))
}

func cleanedSubstringMatch(norm, _, cleanTarget string) bool {
	clean := CleanHeader(norm)
	return len(cleanTarget) > minFuzzyLen && len(clean) > minFuzzyLen &&
		(strings.Contains(clean, cleanTarget) || strings.Contains(cleanTarget, clean))
}
