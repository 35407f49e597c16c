// Package semantic implements the TF-IDF document-to-rule mapper (spec.md
// §4.8).
package semantic

import (
	"context"

	"github.com/annex4parser/annex4parser/pkg/models"
	"github.com/annex4parser/annex4parser/pkg/tfidf"
)

// DefaultThreshold is the minimum cosine similarity for a rule to be
// considered a semantic match (spec.md §4.8).
const DefaultThreshold = 0.1

// RuleSource loads every Rule a document can be matched against. pkg/store
// implements it; tests can supply a fixed slice.
type RuleSource interface {
	AllRules(ctx context.Context) ([]models.Rule, error)
}

// Match fits a TF-IDF vectorizer over docText and every known rule's
// content, and returns {section_code: score} for rules scoring at or above
// threshold.
func Match(ctx context.Context, rules RuleSource, docText string, threshold float64) (map[string]float64, error) {
	all, err := rules.AllRules(ctx)
	if err != nil {
		return nil, err
	}

	corpus := make([]string, 0, len(all)+1)
	corpus = append(corpus, docText)
	for _, r := range all {
		corpus = append(corpus, r.Content)
	}

	vectorizer := tfidf.NewVectorizer(corpus)
	docVec := vectorizer.Transform(docText)

	scores := make(map[string]float64)
	for _, r := range all {
		ruleVec := vectorizer.Transform(r.Content)
		score := tfidf.CosineSimilarity(docVec, ruleVec)
		if score >= threshold {
			if existing, ok := scores[r.SectionCode]; !ok || score > existing {
				scores[r.SectionCode] = score
			}
		}
	}

	return scores, nil
}
