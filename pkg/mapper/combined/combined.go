// Package combined fuses the keyword and semantic mapper signals into a
// single confidence score per section (spec.md §4.9).
package combined

// KeywordWeight and SemanticWeight are the fixed fusion weights from
// spec.md §4.9.
const (
	KeywordWeight  = 0.30
	SemanticWeight = 0.70
)

// Fuse combines keyword and semantic hit maps into {section_code: score},
// clipped to 1.0. The returned map is the union of both inputs' keys.
func Fuse(keywordHits, semanticHits map[string]float64) map[string]float64 {
	result := make(map[string]float64, len(keywordHits)+len(semanticHits))

	for code := range keywordHits {
		result[code] = 0
	}
	for code := range semanticHits {
		if _, ok := result[code]; !ok {
			result[code] = 0
		}
	}

	for code := range result {
		var keywordTerm float64
		if _, hit := keywordHits[code]; hit {
			keywordTerm = KeywordWeight
		}
		semanticTerm := SemanticWeight * semanticHits[code]

		score := keywordTerm + semanticTerm
		if score > 1.0 {
			score = 1.0
		}
		result[code] = score
	}

	return result
}
