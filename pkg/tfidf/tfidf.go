// Package tfidf implements a small TF-IDF vectorizer and cosine similarity
// over gonum's dense vector/matrix types, used by the legal diff analyzer
// (spec.md §4.6) and the semantic document mapper (spec.md §4.8).
package tfidf

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// MaxFeatures bounds the vocabulary size considered by a Vectorizer
// (spec.md §4.6: "≤1,000 features").
const MaxFeatures = 1000

var (
	tokenRe = regexp.MustCompile(`[a-zA-Z]+`)

	// englishStopWords is the standard scikit-learn-style English stop list,
	// trimmed to the terms that actually recur in EU legal text.
	englishStopWords = map[string]bool{
		"a": true, "about": true, "above": true, "after": true, "again": true,
		"against": true, "all": true, "am": true, "an": true, "and": true,
		"any": true, "are": true, "as": true, "at": true, "be": true,
		"because": true, "been": true, "before": true, "being": true, "below": true,
		"between": true, "both": true, "but": true, "by": true, "can": true,
		"did": true, "do": true, "does": true, "doing": true, "down": true,
		"during": true, "each": true, "few": true, "for": true, "from": true,
		"further": true, "had": true, "has": true, "have": true, "having": true,
		"he": true, "her": true, "here": true, "hers": true, "herself": true,
		"him": true, "himself": true, "his": true, "how": true, "i": true,
		"if": true, "in": true, "into": true, "is": true, "it": true,
		"its": true, "itself": true, "me": true, "more": true, "most": true,
		"my": true, "myself": true, "no": true, "nor": true, "not": true,
		"of": true, "off": true, "on": true, "once": true, "only": true,
		"or": true, "other": true, "our": true, "ours": true, "ourselves": true,
		"out": true, "over": true, "own": true, "same": true, "she": true,
		"should": true, "so": true, "some": true, "such": true, "than": true,
		"that": true, "the": true, "their": true, "theirs": true, "them": true,
		"themselves": true, "then": true, "there": true, "these": true, "they": true,
		"this": true, "those": true, "through": true, "to": true, "too": true,
		"under": true, "until": true, "up": true, "very": true, "was": true,
		"we": true, "were": true, "what": true, "when": true, "where": true,
		"which": true, "while": true, "who": true, "whom": true, "why": true,
		"will": true, "with": true, "you": true, "your": true, "yours": true,
		"yourself": true, "yourselves": true,
	}
)

// tokenize lowercases text, extracts alphabetic runs, drops English stop
// words, and emits both unigrams and adjacent bigrams.
func tokenize(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	var unigrams []string
	for _, w := range raw {
		if !englishStopWords[w] {
			unigrams = append(unigrams, w)
		}
	}

	tokens := make([]string, 0, len(unigrams)*2)
	tokens = append(tokens, unigrams...)
	for i := 0; i+1 < len(unigrams); i++ {
		tokens = append(tokens, unigrams[i]+" "+unigrams[i+1])
	}
	return tokens
}

// Vectorizer fits a bounded vocabulary over a corpus and transforms
// documents into TF-IDF weighted vectors.
type Vectorizer struct {
	vocab map[string]int
	idf   []float64
}

// NewVectorizer fits a Vectorizer over docs, capping the vocabulary at
// MaxFeatures terms ranked by corpus document frequency.
func NewVectorizer(docs []string) *Vectorizer {
	df := make(map[string]int)
	tokenized := make([][]string, len(docs))
	for i, d := range docs {
		tokens := tokenize(d)
		tokenized[i] = tokens
		seen := make(map[string]bool, len(tokens))
		for _, t := range tokens {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}

	terms := make([]string, 0, len(df))
	for t := range df {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] != df[terms[j]] {
			return df[terms[i]] > df[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > MaxFeatures {
		terms = terms[:MaxFeatures]
	}

	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(docs))
	for i, t := range terms {
		vocab[t] = i
		idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}

	return &Vectorizer{vocab: vocab, idf: idf}
}

// Transform maps a document to a TF-IDF weighted, L2-normalized vector over
// the fitted vocabulary.
func (v *Vectorizer) Transform(doc string) *mat.VecDense {
	vec := mat.NewVecDense(len(v.vocab), nil)
	if len(v.vocab) == 0 {
		return vec
	}

	tf := make(map[int]float64)
	for _, t := range tokenize(doc) {
		if idx, ok := v.vocab[t]; ok {
			tf[idx]++
		}
	}

	for idx, count := range tf {
		vec.SetVec(idx, count*v.idf[idx])
	}

	norm := mat.Norm(vec, 2)
	if norm > 0 {
		vec.ScaleVec(1/norm, vec)
	}
	return vec
}

// CosineSimilarity scores the similarity of two already L2-normalized
// vectors of equal length; 0 when either is zero.
func CosineSimilarity(a, b *mat.VecDense) float64 {
	if a.Len() == 0 || b.Len() == 0 || a.Len() != b.Len() {
		return 0
	}
	return mat.Dot(a, b)
}

// Similarity fits a Vectorizer over exactly the two texts and returns their
// cosine similarity (spec.md §4.6 semantic_score). Empty texts score 0.
func Similarity(a, b string) float64 {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0
	}
	v := NewVectorizer([]string{a, b})
	va := v.Transform(a)
	vb := v.Transform(b)
	return CosineSimilarity(va, vb)
}
