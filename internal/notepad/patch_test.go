package notepad

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DomeenoH/dual/internal/directive"
)

const sampleDoc = `# Notes

## A
alpha one
alpha two

## B
beta one

### B.1
beta nested
`

func TestApply_ReplaceAllIdempotent(t *testing.T) {
	d := directive.ReplaceAll("fresh")
	once := Apply(sampleDoc, []directive.Directive{d})
	twice := Apply(sampleDoc, []directive.Directive{d, d})

	assert.Empty(t, once.Errors)
	assert.Equal(t, "fresh", once.Document)
	assert.Equal(t, once, twice)
}

func TestApply_AppendPrepend(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		d    directive.Directive
		want string
	}{
		{"append adds separator", "a", directive.Append("b"), "a\nb"},
		{"append keeps existing newline", "a\n", directive.Append("b"), "a\nb"},
		{"append content with leading newline", "a", directive.Append("\nb"), "a\nb"},
		{"append to empty", "", directive.Append("b"), "b"},
		{"prepend adds separator", "b", directive.Prepend("a"), "a\nb"},
		{"prepend keeps existing newline", "b", directive.Prepend("a\n"), "a\nb"},
		{"prepend to empty", "", directive.Prepend("a"), "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Apply(tt.doc, []directive.Directive{tt.d})
			assert.Empty(t, result.Errors)
			assert.Equal(t, tt.want, result.Document)
		})
	}
}

func TestApply_ReplaceSectionLeavesSiblingsAlone(t *testing.T) {
	result := Apply(sampleDoc, []directive.Directive{directive.ReplaceSection("A", "replaced\n")})

	require.Empty(t, result.Errors)
	assert.Equal(t, `# Notes

## A
replaced

## B
beta one

### B.1
beta nested
`, result.Document)
	assert.Equal(t, sampleDoc[strings.Index(sampleDoc, "## B"):],
		result.Document[strings.Index(result.Document, "## B"):])
}

func TestApply_ReplaceSectionIncludesNestedHeaders(t *testing.T) {
	result := Apply(sampleDoc, []directive.Directive{directive.ReplaceSection("## B", "only")})

	require.Empty(t, result.Errors)
	assert.Equal(t, "# Notes\n\n## A\nalpha one\nalpha two\n\n## B\nonly", result.Document)
}

func TestApply_ReplaceSectionTargetsFirstFuzzyHeader(t *testing.T) {
	doc := "## Summary of results\nold\n## Summary\nkeep"
	result := Apply(doc, []directive.Directive{directive.ReplaceSection("Summary", "new")})

	require.Empty(t, result.Errors)
	assert.Equal(t, "## Summary of results\nnew\n## Summary\nkeep", result.Document)
}

func TestApply_ReplaceSectionNotFound(t *testing.T) {
	result := Apply(sampleDoc, []directive.Directive{directive.ReplaceSection("Zoo", "x")})

	assert.Equal(t, sampleDoc, result.Document)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], ErrSectionNotFound)
	assert.Equal(t, 0, result.Errors[0].Index)
}

func TestApply_ReplaceSectionCollapsesBlankLines(t *testing.T) {
	doc := "## A\nold\n## B\nb"
	result := Apply(doc, []directive.Directive{directive.ReplaceSection("A", "\n\n\nnew\n\n\n\n")})

	require.Empty(t, result.Errors)
	assert.Equal(t, "## A\n\nnew\n\n## B\nb", result.Document)
	assert.NotContains(t, result.Document, "\n\n\n")
}

func TestApply_AppendToSection(t *testing.T) {
	doc := "## A\nalpha\n## B\nbeta"
	result := Apply(doc, []directive.Directive{directive.AppendToSection("A", "added")})

	require.Empty(t, result.Errors)
	assert.Equal(t, "## A\nalpha\n\nadded\n## B\nbeta", result.Document)
}

func TestApply_AppendToSectionAfterBlankLine(t *testing.T) {
	result := Apply(sampleDoc, []directive.Directive{directive.AppendToSection("A", "alpha three")})

	require.Empty(t, result.Errors)
	assert.Contains(t, result.Document, "alpha two\n\nalpha three\n## B")
}

func TestApply_AppendToLastSection(t *testing.T) {
	doc := "## A\nalpha"
	result := Apply(doc, []directive.Directive{directive.AppendToSection("a", "omega")})

	require.Empty(t, result.Errors)
	assert.Equal(t, "## A\nalpha\n\nomega", result.Document)
}

func TestApply_SearchReplace(t *testing.T) {
	doc := "x y x y x"

	first := Apply(doc, []directive.Directive{directive.SearchReplace("x", "z", false)})
	assert.Empty(t, first.Errors)
	assert.Equal(t, "z y x y x", first.Document)

	all := Apply(doc, []directive.Directive{directive.SearchReplace("x", "z", true)})
	assert.Empty(t, all.Errors)
	assert.Equal(t, "z y z y z", all.Document)
}

func TestApply_SearchReplaceIsLiteral(t *testing.T) {
	result := Apply("cost: $1.00 (approx)", []directive.Directive{directive.SearchReplace("$1.00 (approx)", "$2", false)})

	assert.Empty(t, result.Errors)
	assert.Equal(t, "cost: $2", result.Document)
}

func TestApply_SearchReplaceMissingWarnsOnlyForSingle(t *testing.T) {
	single := Apply("abc", []directive.Directive{directive.SearchReplace("zzz", "y", false)})
	require.Len(t, single.Errors, 1)
	assert.ErrorIs(t, single.Errors[0], ErrTextNotFound)
	assert.Equal(t, "abc", single.Document)

	all := Apply("abc", []directive.Directive{directive.SearchReplace("zzz", "y", true)})
	assert.Empty(t, all.Errors)
	assert.Equal(t, "abc", all.Document)
}

func TestApply_FailuresDoNotBlockLaterDirectives(t *testing.T) {
	result := Apply("## A\nalpha", []directive.Directive{
		directive.Append("tail"),
		directive.ReplaceSection("Missing section", "x"),
		directive.SearchReplace("alpha", "ALPHA", false),
	})

	assert.Equal(t, "## A\nALPHA\ntail", result.Document)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Errors[0].Index)
	assert.Contains(t, result.Errors[0].Error(), "Missing section")
}

func TestApply_DirectivesSeePreviousEdits(t *testing.T) {
	result := Apply("", []directive.Directive{
		directive.ReplaceAll("## Plan\n- draft"),
		directive.AppendToSection("Plan", "- review"),
		directive.SearchReplace("draft", "write", false),
	})

	require.Empty(t, result.Errors)
	assert.Equal(t, "## Plan\n- write\n\n- review", result.Document)
}
