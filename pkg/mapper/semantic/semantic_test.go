package semantic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/annex4parser/annex4parser/pkg/models"
)

type fixedRules []models.Rule

func (f fixedRules) AllRules(ctx context.Context) ([]models.Rule, error) {
	return f, nil
}

func TestMatch_ScoresAboveThreshold(t *testing.T) {
	rules := fixedRules{
		{SectionCode: "Article9", Content: "The provider shall establish a risk management system for the AI system."},
		{SectionCode: "Article13", Content: "High-risk AI systems shall be designed to ensure transparency to users."},
	}

	scores, err := Match(context.Background(), rules, "establish a risk management system for the AI system", DefaultThreshold)
	require.NoError(t, err)
	require.Contains(t, scores, "Article9")
	require.Greater(t, scores["Article9"], scores["Article13"])
}

func TestMatch_NoRulesReturnsEmpty(t *testing.T) {
	scores, err := Match(context.Background(), fixedRules{}, "anything", DefaultThreshold)
	require.NoError(t, err)
	require.Empty(t, scores)
}
