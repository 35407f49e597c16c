package sanitize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitize_Empty(t *testing.T) {
	require.Equal(t, "", Sanitize(""))
}

func TestSanitize_CollapsesWhitespace(t *testing.T) {
	in := "Article 6\n\n\n\nGeneral   obligations"
	out := Sanitize(in)
	require.NotContains(t, out, "\n\n\n")
}

func TestSanitize_DropsBareEnumeratorAtEndOfBlock(t *testing.T) {
	in := "Some obligation text.\n(3)\n"
	out := Sanitize(in)
	require.NotContains(t, out, "(3)")
}

func TestSanitize_KeepsEnumeratorFollowedByText(t *testing.T) {
	in := "Article 9\n(a)\nthe provider shall establish a risk management system"
	out := Sanitize(in)
	require.Contains(t, out, "(a)")
}

func TestSanitize_StripsAnnexeDuplicate(t *testing.T) {
	in := "ANNEXE IV\nANNEX IV\nTechnical documentation"
	out := Sanitize(in)
	require.NotContains(t, out, "ANNEXE")
}

func TestSanitize_DropsLoneISOLanguageCode(t *testing.T) {
	in := "EN\nSubject matter"
	out := Sanitize(in)
	require.Equal(t, "Subject matter", out)
}

func TestSanitize_StripsELIFooter(t *testing.T) {
	in := "Article 1\nScope\nELI: http://data.europa.eu/eli/reg/2024/1689/oj"
	out := Sanitize(in)
	require.NotContains(t, out, "ELI:")
}

func TestSanitize_StripsPageCounter(t *testing.T) {
	in := "some text\n45/144\nmore text"
	out := Sanitize(in)
	require.NotContains(t, out, "45/144")
}

func TestSanitize_JoinsSoftWrappedLines(t *testing.T) {
	in := "This obligation applies\nto all providers."
	out := Sanitize(in)
	require.Equal(t, "This obligation applies to all providers.", out)
}

func TestSanitize_PreservesBreakBeforeEnumerator(t *testing.T) {
	in := "The provider shall:\n(a) establish a system"
	out := Sanitize(in)
	require.Contains(t, out, "\n(a) establish a system")
}

func TestSanitize_PreservesBreakBeforeStructuralHeader(t *testing.T) {
	in := "concludes this part.\nArticle 11\nTransparency"
	out := Sanitize(in)
	require.Contains(t, out, "\nArticle 11")
}

func TestSanitize_CollapsesHyphenatedWrap(t *testing.T) {
	in := "a system ensuring inter-\noperability across providers"
	out := Sanitize(in)
	require.Contains(t, out, "interoperability")
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"Article 6\n\n\n\nGeneral   obligations",
		"ANNEXE IV\nANNEX IV\nTechnical documentation",
		"This obligation applies\nto all providers.",
		"a system ensuring inter-\noperability across providers",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		require.Equal(t, once, twice, "sanitize not idempotent for %q", in)
	}
}
