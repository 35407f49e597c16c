package tfidf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimilarity_IdenticalTextsScoreOne(t *testing.T) {
	text := "the provider shall establish a risk management system for the AI system"
	require.InDelta(t, 1.0, Similarity(text, text), 1e-9)
}

func TestSimilarity_EmptyTextScoresZero(t *testing.T) {
	require.Equal(t, 0.0, Similarity("", "some text here"))
	require.Equal(t, 0.0, Similarity("some text here", ""))
}

func TestSimilarity_UnrelatedTextsScoreLow(t *testing.T) {
	a := "the provider shall establish a risk management system"
	b := "high-risk AI systems used in critical infrastructure require conformity assessment"
	score := Similarity(a, b)
	require.Less(t, score, 1.0)
}

func TestVectorizer_TransformIsNormalized(t *testing.T) {
	v := NewVectorizer([]string{"risk management system", "conformity assessment procedure"})
	vec := v.Transform("risk management system")
	norm := CosineSimilarity(vec, vec)
	require.InDelta(t, 1.0, norm, 1e-9)
}
