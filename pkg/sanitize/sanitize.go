// Package sanitize implements the pure-function text normalizer (spec.md
// §4.4) that runs on every fetched regulation body before parsing and
// hashing.
package sanitize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	annexeDup     = regexp.MustCompile(`(?i)\bANNEXE\s+[IVXLC]+\b`)
	isoLangLine   = regexp.MustCompile(`^[A-Z]{2,3}$`)
	backtickChars = regexp.MustCompile("[`´]")

	bareEnum      = regexp.MustCompile(`^\(?\d+\)?$|^\([a-zA-Z]\)$|^\[\d+\]$`)
	pageCounter   = regexp.MustCompile(`^\d+/\d+$`)
	ojFooterDate  = regexp.MustCompile(`(?i)^EN\s+OJ\s+L,?\s+\d{1,2}\.\d{1,2}\.\d{4}.*$`)
	eliFooterLine = regexp.MustCompile(`(?im)^\s*ELI:\s*\S+.*$`)

	runWhitespace = regexp.MustCompile(`[ \t]+`)
	runBlankLines = regexp.MustCompile(`\n{3,}`)

	hyphenWrap = regexp.MustCompile(`([A-Za-z])-\n([a-z])`)

	continuationEnum = regexp.MustCompile(`^(?:\(?[a-zA-Z]\)?|\([ivxlc]+\)|\d+\.)\s+`)
	structuralHeader = regexp.MustCompile(`(?i)^(?:ANNEX|Article|Section|Chapter|Part)\b`)
)

// Sanitize normalizes a fetched regulation body per spec.md §4.4. It is a
// pure function: Sanitize(Sanitize(t)) == Sanitize(t).
func Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	text := norm.NFKC.String(raw)
	text = strings.ReplaceAll(text, " ", " ")

	rawLines := strings.Split(text, "\n")
	lines := make([]string, 0, len(rawLines))

	for i := 0; i < len(rawLines); i++ {
		s := strings.TrimSpace(rawLines[i])

		s = annexeDup.ReplaceAllString(s, "")
		s = strings.TrimSpace(s)

		if isoLangLine.MatchString(s) {
			continue
		}

		s = backtickChars.ReplaceAllString(s, "")
		s = strings.TrimSpace(s)

		nextNonEmpty := ""
		for j := i + 1; j < len(rawLines); j++ {
			nxt := strings.TrimSpace(rawLines[j])
			if nxt != "" {
				nextNonEmpty = nxt
				break
			}
		}

		if bareEnum.MatchString(s) && nextNonEmpty == "" {
			continue
		}

		if pageCounter.MatchString(s) || ojFooterDate.MatchString(s) {
			continue
		}

		if s == ";" || s == "." {
			continue
		}

		lines = append(lines, s)
	}

	cleaned := strings.Join(lines, "\n")
	cleaned = runWhitespace.ReplaceAllString(cleaned, " ")
	cleaned = runBlankLines.ReplaceAllString(cleaned, "\n\n")
	cleaned = eliFooterLine.ReplaceAllString(cleaned, "")
	cleaned = runBlankLines.ReplaceAllString(cleaned, "\n\n")
	cleaned = unwrapSoftLinebreaks(cleaned)

	return strings.TrimSpace(cleaned)
}

// unwrapSoftLinebreaks collapses single newlines between text lines into a
// space, preserving newlines before enumerators and structural headers, and
// collapses hyphenated word wraps.
func unwrapSoftLinebreaks(s string) string {
	s = hyphenWrap.ReplaceAllString(s, "$1$2")

	lines := strings.Split(s, "\n")
	var b strings.Builder
	for i, after := range lines {
		if i > 0 {
			if lines[i-1] == "" || after == "" ||
				continuationEnum.MatchString(after) || structuralHeader.MatchString(after) {
				b.WriteString("\n")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString(after)
	}
	return b.String()
}
