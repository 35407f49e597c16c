// Package canonical implements canonicalization of legal section codes
// (Article/Annex identifiers) into the dotted grammar described in spec.md §3.
package canonical

import (
	"regexp"
	"strings"
)

var (
	parenGroup    = regexp.MustCompile(`\(([a-zA-Z0-9]+)\)`)
	repeatedDots  = regexp.MustCompile(`\.{2,}`)
	whitespaceRun = regexp.MustCompile(`\s+`)
	trailingLower = regexp.MustCompile(`^(Article\d+)([A-Za-z])$`)
)

// Canonicalize normalizes a raw section code into the canonical dotted form.
//
// Canonicalize is idempotent: Canonicalize(Canonicalize(x)) == Canonicalize(x).
func Canonicalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = whitespaceRun.ReplaceAllString(s, "")

	// "(x)" -> ".x."
	s = parenGroup.ReplaceAllString(s, ".$1.")

	s = repeatedDots.ReplaceAllString(s, ".")
	s = strings.Trim(s, ".")

	// Lowercase a trailing Article letter: Article10A -> Article10a.
	if m := trailingLower.FindStringSubmatch(s); m != nil {
		s = m[1] + strings.ToLower(m[2])
	} else {
		s = lowerTrailingArticleLetter(s)
	}

	return s
}

// lowerTrailingArticleLetter handles codes where the Article-letter segment is
// followed by further dotted segments, e.g. "Article10A.1" -> "Article10a.1".
func lowerTrailingArticleLetter(s string) string {
	if !strings.HasPrefix(s, "Article") {
		return s
	}
	idx := strings.IndexByte(s, '.')
	head := s
	tail := ""
	if idx >= 0 {
		head = s[:idx]
		tail = s[idx:]
	}
	m := trailingLower.FindStringSubmatch(head)
	if m == nil {
		return s
	}
	return m[1] + strings.ToLower(m[2]) + tail
}

// ParentCode returns the section code's longest proper dotted prefix, and
// false if the code has no dot (i.e. it is already a root Article/Annex node).
func ParentCode(code string) (string, bool) {
	idx := strings.LastIndexByte(code, '.')
	if idx < 0 {
		return "", false
	}
	return code[:idx], true
}

// IsDotted reports whether a canonical code has a dotted (non-root) suffix.
func IsDotted(code string) bool {
	return strings.Contains(code, ".")
}
