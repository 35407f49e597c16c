package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/annex4parser/annex4parser/pkg/sanitize"
)

func TestParse_SimpleArticle(t *testing.T) {
	raw := "Article 9\nRisk management system\n1. A risk management system shall be established.\n2. The risk management system shall be documented.\nArticle 10\nData and data governance\n1. Training data sets shall be subject to data governance practices."

	rules := Parse(sanitize.Sanitize(raw))
	require.NotEmpty(t, rules)

	var codes []string
	for _, r := range rules {
		codes = append(codes, r.SectionCode)
	}
	require.Contains(t, codes, "Article9")
	require.Contains(t, codes, "Article9.1")
	require.Contains(t, codes, "Article9.2")
	require.Contains(t, codes, "Article10")
}

func TestParse_RejectsCrossReference(t *testing.T) {
	raw := "Article 9\nRisk management system\n1. As referred to in Article 98(2), further guidance may be issued."
	rules := Parse(sanitize.Sanitize(raw))

	for _, r := range rules {
		require.NotEqual(t, "Article98", r.SectionCode)
	}
}

func TestParse_AnnexWithSubsections(t *testing.T) {
	raw := "ANNEX IV\nTechnical documentation\n1. A general description of the AI system.\n2. A detailed description of the elements of the AI system.\n(a) the methods and steps performed for the development.\n(b) the design specifications of the system."

	rules := Parse(sanitize.Sanitize(raw))
	var codes []string
	for _, r := range rules {
		codes = append(codes, r.SectionCode)
	}
	require.Contains(t, codes, "AnnexIV")
	require.Contains(t, codes, "AnnexIV.1")
	require.Contains(t, codes, "AnnexIV.2")
	require.Contains(t, codes, "AnnexIV.2.a")
	require.Contains(t, codes, "AnnexIV.2.b")
}

func TestParse_StableUnderDoubleSanitize(t *testing.T) {
	raw := "Article 6\nClassification rules for high-risk AI systems\n1. An AI system shall be considered high-risk where it is a safety component."

	once := Parse(sanitize.Sanitize(raw))
	twice := Parse(sanitize.Sanitize(sanitize.Sanitize(raw)))

	require.Equal(t, len(once), len(twice))
	for i := range once {
		require.Equal(t, once[i].SectionCode, twice[i].SectionCode)
		require.Equal(t, once[i].Content, twice[i].Content)
	}
}

func TestFormatOrderIndex(t *testing.T) {
	require.Equal(t, "001", formatOrderIndex("1"))
	require.Equal(t, "012", formatOrderIndex("12"))
	require.Equal(t, "a", formatOrderIndex("A"))
}
