// Package difflegal classifies the legal significance of a rule's text
// change between two ingested versions (spec.md §4.6).
package difflegal

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/annex4parser/annex4parser/pkg/tfidf"
)

// ChangeType classifies how a section's text moved between versions.
type ChangeType string

const (
	ChangeNone          ChangeType = "no_change"
	ChangeAddition      ChangeType = "addition"
	ChangeDeletion      ChangeType = "deletion"
	ChangeModification  ChangeType = "modification"
	ChangeClarification ChangeType = "clarification"
)

// Severity is the compliance-relevant weight attached to a Change.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Change is the result of analyzing one section's old and new text.
type Change struct {
	ChangeType      ChangeType
	Severity        Severity
	DiffScore       float64
	SemanticScore   float64
	KeywordsAffected []string
}

// criticalKeywords and importantKeywords are the domain vocabularies that
// drive severity escalation (spec.md §4.6).
var (
	criticalKeywords = []string{
		"shall", "must", "required", "obligatory", "mandatory", "prohibited",
		"forbidden", "illegal", "criminal", "penalty", "fine", "sanction",
		"liability", "risk", "safety", "security", "privacy", "data protection",
	}
	importantKeywords = []string{
		"may", "should", "recommended", "guidance", "best practice",
		"documentation", "record", "log", "audit", "compliance", "assessment",
		"evaluation", "monitoring", "supervision",
	}
)

// Analyze compares a section's old and new text and classifies the change
// (spec.md §4.6). sectionCode is accepted for symmetry with the spec's
// signature but does not affect the classification itself.
func Analyze(old, newText, sectionCode string) Change {
	if old == newText {
		return Change{
			ChangeType:    ChangeNone,
			Severity:      SeverityLow,
			DiffScore:     0,
			SemanticScore: 1,
		}
	}

	oldLines := strings.Split(old, "\n")
	newLines := strings.Split(newText, "\n")

	matcher := difflib.NewMatcher(oldLines, newLines)
	opCodes := matcher.GetOpCodes()

	var removed, added []string
	var addedChars, removedChars int

	for _, op := range opCodes {
		switch op.Tag {
		case 'd':
			for _, l := range oldLines[op.I1:op.I2] {
				removed = append(removed, l)
				removedChars += len(l)
			}
		case 'i':
			for _, l := range newLines[op.J1:op.J2] {
				added = append(added, l)
				addedChars += len(l)
			}
		case 'r':
			for _, l := range oldLines[op.I1:op.I2] {
				removed = append(removed, l)
				removedChars += len(l)
			}
			for _, l := range newLines[op.J1:op.J2] {
				added = append(added, l)
				addedChars += len(l)
			}
		}
	}

	changeType := classifyChangeType(removed, added)

	diffScore := float64(addedChars+removedChars) / 100
	if diffScore > 1.0 {
		diffScore = 1.0
	}

	semanticScore := tfidf.Similarity(old, newText)

	keywords := keywordsAffected(old, newText)

	if isClarification(changeType, diffScore, removed, added) {
		changeType = ChangeClarification
	}

	severity := classifySeverity(changeType, diffScore, semanticScore, keywords)

	return Change{
		ChangeType:       changeType,
		Severity:         severity,
		DiffScore:        diffScore,
		SemanticScore:    semanticScore,
		KeywordsAffected: keywords,
	}
}

func classifyChangeType(removed, added []string) ChangeType {
	if len(removed) == 0 && len(added) == 0 {
		return ChangeNone
	}
	if len(removed) == 0 {
		return ChangeAddition
	}
	if len(added) == 0 {
		return ChangeDeletion
	}

	// Mixed: if every removed line is a substring of some added line (or
	// vice versa — the added line extends the removed one), treat the
	// whole change as additive rather than a real modification.
	allExtend := true
	for _, r := range removed {
		extended := false
		for _, a := range added {
			if strings.Contains(a, r) || strings.Contains(r, a) {
				extended = true
				break
			}
		}
		if !extended {
			allExtend = false
			break
		}
	}
	if allExtend {
		return ChangeAddition
	}
	return ChangeModification
}

// isClarification recognizes small mixed edits that reword text without
// materially changing its content — a light-weight approximation of the
// teacher's "trivial rewording" heuristic.
func isClarification(ct ChangeType, diffScore float64, removed, added []string) bool {
	if ct != ChangeModification {
		return false
	}
	return diffScore <= 0.05 && len(removed) <= 2 && len(added) <= 2
}

func classifySeverity(ct ChangeType, diffScore, semanticScore float64, keywords []string) Severity {
	if len(keywords) > 0 {
		for _, kw := range keywords {
			if isCritical(kw) {
				return SeverityHigh
			}
		}
	}
	if ct == ChangeClarification {
		return SeverityLow
	}
	if semanticScore > 0.9 && diffScore <= 0.10 {
		return SeverityLow
	}
	if diffScore > 0.4 || semanticScore < 0.6 {
		return SeverityHigh
	}
	if diffScore > 0.15 || semanticScore < 0.85 {
		return SeverityMedium
	}
	return SeverityLow
}

func isCritical(kw string) bool {
	for _, c := range criticalKeywords {
		if c == kw {
			return true
		}
	}
	return false
}

// keywordsAffected returns the domain keywords (critical or important)
// whose whole-word occurrence count differs between old and new.
func keywordsAffected(old, newText string) []string {
	var affected []string
	all := append(append([]string{}, criticalKeywords...), importantKeywords...)
	for _, kw := range all {
		if wholeWordCount(old, kw) != wholeWordCount(newText, kw) {
			affected = append(affected, kw)
		}
	}
	return affected
}

func wholeWordCount(text, phrase string) int {
	pattern := `(?i)\b` + regexp.QuoteMeta(phrase) + `\b`
	return len(regexp.MustCompile(pattern).FindAllStringIndex(text, -1))
}
