// Package parser extracts an Article/Annex rule hierarchy out of sanitized
// regulation text (spec.md §4.5).
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/annex4parser/annex4parser/pkg/canonical"
	"github.com/annex4parser/annex4parser/pkg/sanitize"
)

// RuleRecord is one node recovered from a regulation's Article/Annex
// hierarchy, prior to being persisted as a models.Rule.
type RuleRecord struct {
	SectionCode       string
	Title             *string
	Content           string
	ParentSectionCode *string
	OrderIndex        *string
}

var (
	stopStart   = regexp.MustCompile(`(?i)^(and|or|for|where|when|which|that)\b`)
	titleVerb   = regexp.MustCompile(`(?i)\b(shall|must|may|should|contain|contains|include|includes|apply|applies|provide|provided|ensure|indicate|keep|draw up|affix|comply|take|inform|act|establish|implement)\b`)
	badTicks    = regexp.MustCompile("[`´]")
	badHead     = regexp.MustCompile(`(?i)^(CHAPTER|SECTION|SUBSECTION|TITLE|ANNEX|PART)\b`)
	endPunct    = regexp.MustCompile(`[.:;]\s*$`)
	allCapsRom  = regexp.MustCompile(`^[A-Z0-9\s\-–—IVXLC]+$`)
	enumPrefix  = regexp.MustCompile(`(?i)^(\(?[0-9ivx]+\)?\.?|\([a-zA-Z]\))\s+`)
	leadingPunc = regexp.MustCompile(`^[\x{2013}\x{2014}\-:;,.]+\s*`)
	bilingual   = regexp.MustCompile(`[a-z]([A-Z][a-z].*)$`)

	articleBoundaryRe = regexp.MustCompile(`(?im)^\s*Article\s+\d+[a-zA-Z]?(?:\s*\()?`)
	articleHeaderRe   = regexp.MustCompile(`(?i)^\s*Article\s+(\d+[a-zA-Z]?)`)
	annexBoundaryRe   = regexp.MustCompile(`(?im)^(\s*ANNEX\s+[IVXLC]+\b)`)
	annexHeaderRe     = regexp.MustCompile(`(?i)^\s*ANNEX\s+([IVXLC]+)\b(?:\s+(.*))?$`)
	structBoundaryRe  = regexp.MustCompile(`(?im)^\s*(CHAPTER|SECTION|SUBSECTION|TITLE|PART)\s+[IVXLC0-9A-Z]+\b`)
	artikelRe         = regexp.MustCompile(`(?i)^\s*Artikel\s+%s\s*$`)
	annexSubHeadRe    = regexp.MustCompile(`(?i)^(Section|Part|Chapter|Titre|Sezione|Kapitel)\b`)

	pointPrefixRe = regexp.MustCompile(`(?m)^\s*([1-9]\d{0,2})\.\s+`)
	letterPrefixRe = regexp.MustCompile(`(?m)^\s*\(([a-zA-Z])\)\s+`)
)

type boundaryKind int

const (
	kindArticle boundaryKind = iota
	kindAnnex
	kindDivider
)

type boundary struct {
	kind   boundaryKind
	start  int
	header string
}

// Parse extracts the Article/Annex rule hierarchy from already-sanitized
// text (spec.md §4.5). Parse is stable under Sanitize: Parse(Sanitize(t)) ==
// Parse(Sanitize(Sanitize(t))).
func Parse(cleanText string) []RuleRecord {
	var rules []RuleRecord

	text := cleanText

	var boundaries []boundary

	for _, m := range articleBoundaryRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if articleHeaderIsValid(text, start, end) {
			boundaries = append(boundaries, boundary{kindArticle, start, strings.TrimSpace(text[start:end])})
		}
	}

	for _, m := range annexBoundaryRe.FindAllStringSubmatchIndex(text, -1) {
		start := m[2]
		end := m[3]
		boundaries = append(boundaries, boundary{kindAnnex, start, strings.TrimSpace(text[start:end])})
	}

	for _, m := range structBoundaryRe.FindAllStringIndex(text, -1) {
		boundaries = append(boundaries, boundary{kindDivider, m[0], strings.TrimSpace(text[m[0]:m[1]])})
	}

	sortBoundaries(boundaries)
	boundaries = dropDividersRightAfterArticleHeader(text, boundaries)

	for i, b := range boundaries {
		var end int
		if b.kind == kindAnnex {
			j := i + 1
			for j < len(boundaries) && boundaries[j].kind == kindDivider {
				j++
			}
			if j < len(boundaries) {
				end = boundaries[j].start
			} else {
				end = len(text)
			}
		} else {
			if i+1 < len(boundaries) {
				end = boundaries[i+1].start
			} else {
				end = len(text)
			}
		}
		blockText := strings.TrimSpace(text[b.start:end])

		switch b.kind {
		case kindDivider:
			continue
		case kindArticle:
			rules = append(rules, parseArticleBlock(blockText)...)
		case kindAnnex:
			rules = append(rules, parseAnnexBlock(blockText)...)
		}
	}

	return rules
}

func sortBoundaries(bs []boundary) {
	for i := 1; i < len(bs); i++ {
		for j := i; j > 0 && bs[j].start < bs[j-1].start; j-- {
			bs[j], bs[j-1] = bs[j-1], bs[j]
		}
	}
}

// dropDividersRightAfterArticleHeader removes a Divider boundary that
// immediately follows an Article header with no intervening text — a
// CHAPTER/SECTION line glued to the article header is not a real boundary.
func dropDividersRightAfterArticleHeader(text string, bs []boundary) []boundary {
	var out []boundary
	for _, b := range bs {
		if b.kind == kindDivider && len(out) > 0 && out[len(out)-1].kind == kindArticle {
			prevStart := out[len(out)-1].start
			segment := text[prevStart:b.start]
			afterHeader := ""
			if idx := strings.IndexByte(segment, '\n'); idx >= 0 {
				afterHeader = segment[idx+1:]
			}
			if strings.TrimSpace(afterHeader) == "" {
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

// articleHeaderIsValid rejects cross-references like "Article 98(2)" and
// other false positives (spec.md §4.5 boundary validation).
func articleHeaderIsValid(t string, start, end int) bool {
	lineEnd := strings.IndexByte(t[end:], '\n')
	if lineEnd < 0 {
		lineEnd = len(t)
	} else {
		lineEnd += end
	}
	tail := strings.TrimSpace(t[end:lineEnd])
	if tail != "" && (isLowerFirst(tail) || titleVerb.MatchString(tail)) {
		return false
	}

	blockEnd := end + 1200
	if blockEnd > len(t) {
		blockEnd = len(t)
	}
	block := t[end:blockEnd]
	var lines []string
	for _, ln := range strings.Split(block, "\n") {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			lines = append(lines, ln)
		}
	}

	limit := 5
	if limit > len(lines) {
		limit = len(lines)
	}
	for _, ln := range lines[:limit] {
		if isTitleLike(normTitleText(ln)) {
			return true
		}
	}

	limit10 := 10
	if limit10 > len(lines) {
		limit10 = len(lines)
	}
	pointRe := regexp.MustCompile(`^\d+\.\s+`)
	for _, ln := range lines[:limit10] {
		if pointRe.MatchString(ln) {
			return true
		}
	}

	if m := articleHeaderRe.FindStringSubmatch(t[start:end]); m != nil {
		n := regexp.QuoteMeta(m[1])
		re := regexp.MustCompile(fmt.Sprintf(`(?i)^\s*Artikel\s+%s\s*$`, n))
		limit5 := 5
		if limit5 > len(lines) {
			limit5 = len(lines)
		}
		for _, ln := range lines[:limit5] {
			if re.MatchString(ln) {
				return true
			}
		}
	}

	return false
}

func isLowerFirst(s string) bool {
	if s == "" {
		return false
	}
	r := s[0]
	return r >= 'a' && r <= 'z'
}

func isTitleLike(s string) bool {
	if s == "" {
		return false
	}
	if strings.HasPrefix(s, "(") || strings.HasPrefix(s, "[") {
		return false
	}
	if stopStart.MatchString(s) {
		return false
	}
	if isLowerFirst(s) {
		return false
	}
	if titleVerb.MatchString(s) {
		return false
	}
	if badHead.MatchString(s) {
		return false
	}
	return true
}

func isHardTitleCandidate(s string) bool {
	return isTitleLike(s) &&
		!endPunct.MatchString(s) &&
		!allCapsRom.MatchString(s) &&
		len(s) <= 220
}

func normTitleText(s string) string {
	s = badTicks.ReplaceAllString(s, "")
	s = leadingPunc.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = clipBilingualTrail(s)
	if parts := regexp.MustCompile(`\s{2,}`).Split(s, 2); len(parts) > 0 {
		s = strings.TrimSpace(parts[0])
	}
	return s
}

func clipBilingualTrail(s string) string {
	if loc := bilingual.FindStringSubmatchIndex(s); loc != nil {
		return strings.TrimSpace(s[:loc[2]])
	}
	return s
}

func cleanTitlePiece(s string) string {
	return strings.TrimSpace(badTicks.ReplaceAllString(s, ""))
}

func parseArticleBlock(blockText string) []RuleRecord {
	var out []RuleRecord
	lines := strings.Split(blockText, "\n")
	if len(lines) == 0 {
		return out
	}

	m := articleHeaderRe.FindStringSubmatch(lines[0])
	if m == nil {
		return out
	}
	code := strings.TrimSpace(m[1])
	if n := len(code); n > 0 && isAlpha(code[n-1]) {
		code = code[:n-1] + strings.ToLower(code[n-1:])
	}

	rest := lines[0][len(m[0]):]
	rest = regexp.MustCompile(`(?i)^\s*Artikel\s+\d+[a-zA-Z]?\s*`).ReplaceAllString(rest, "")
	rest = strings.TrimSpace(rest)

	t0 := normTitleText(rest)
	var title string
	if isTitleLike(t0) {
		title = t0
	}

	titleLineIdx := 0
	if title == "" {
		markerSeen := false
		limit := 20
		if limit > len(lines) {
			limit = len(lines)
		}
		for k := 1; k < limit; k++ {
			cand := strings.TrimSpace(lines[k])
			if cand == "" {
				continue
			}
			if regexp.MustCompile(`(?i)^(ANNEX|Article)\b`).MatchString(cand) {
				break
			}
			if regexp.MustCompile(`^(\(?\d+\)?|\d+\.|\([a-zA-Z]\))`).MatchString(cand) {
				markerSeen = true
				continue
			}
			if markerSeen {
				break
			}
			candNorm := normTitleText(cand)
			if isTitleLike(candNorm) && !endPunct.MatchString(candNorm) && !allCapsRom.MatchString(candNorm) {
				title = candNorm
				titleLineIdx = k
				break
			}
		}
	}
	if title == "" {
		limit := 50
		if limit > len(lines) {
			limit = len(lines)
		}
		for k := 1; k < limit; k++ {
			cand := strings.TrimSpace(lines[k])
			if cand == "" {
				continue
			}
			if regexp.MustCompile(`(?i)^(ANNEX|Article)\b`).MatchString(cand) {
				break
			}
			if enumPrefix.MatchString(cand) {
				continue
			}
			candNorm := normTitleText(cand)
			head := candNorm
			if len(head) > 20 {
				head = head[:20]
			}
			if isHardTitleCandidate(candNorm) && !titleVerb.MatchString(head) {
				title = candNorm
				titleLineIdx = k
				break
			}
		}
	}

	var titlePtr *string
	if title != "" {
		titlePtr = &title
	}

	raw := strings.TrimSpace(strings.Join(lines[titleLineIdx+1:], "\n"))
	content := sanitize.Sanitize(collapseBlank(raw))
	parentCode := canonical.Canonicalize("Article" + code)

	out = append(out, RuleRecord{
		SectionCode: parentCode,
		Title:       titlePtr,
		Content:     content,
	})

	out = append(out, parseArticleSubsections(parentCode, content)...)
	return out
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func collapseBlank(s string) string {
	return regexp.MustCompile(`\n{3,}`).ReplaceAllString(s, "\n\n")
}

func parseAnnexBlock(blockText string) []RuleRecord {
	var out []RuleRecord
	lines := strings.Split(blockText, "\n")
	if len(lines) == 0 {
		return out
	}
	headerLine := lines[0]
	m := annexHeaderRe.FindStringSubmatch(headerLine)
	if m == nil {
		return out
	}
	roman := strings.ToUpper(m[1])
	annexTitle := strings.TrimSpace(m[2])
	consumed := 0

	if annexTitle != "" {
		t := regexp.MustCompile(`(?i)\bANNEXE\s+[IVXLC]+\b`).ReplaceAllString(annexTitle, "")
		t = strings.TrimSpace(t)
		t = cleanTitlePiece(t)
		t = leadingPunc.ReplaceAllString(t, "")
		parts := regexp.MustCompile(`\s{2,}`).Split(t, 2)
		annexTitle = strings.TrimSpace(parts[0])
	}
	if annexTitle != "" && (!isTitleLike(annexTitle) || titleVerb.MatchString(annexTitle) || endPunct.MatchString(annexTitle)) {
		annexTitle = ""
	}

	if annexTitle == "" {
		k := 1
		firstTitle := ""
		limit := 40
		if limit > len(lines) {
			limit = len(lines)
		}
		for k < limit {
			tNorm := strings.TrimSpace(lines[k])
			if tNorm == "" {
				k++
				continue
			}
			if annexSubHeadRe.MatchString(tNorm) {
				break
			}
			if regexp.MustCompile(`^\d+\.\s+|\([a-zA-Z]\)\s+`).MatchString(tNorm) {
				break
			}
			if len(tNorm) > 0 && strings.ContainsRune(",—–-;.", rune(tNorm[0])) {
				break
			}
			tNorm = cleanTitlePiece(leadingPunc.ReplaceAllString(tNorm, ""))
			if titleVerb.MatchString(tNorm) || endPunct.MatchString(tNorm) || allCapsRom.MatchString(tNorm) {
				break
			}
			if !isTitleLike(tNorm) {
				break
			}
			firstTitle = tNorm
			k++
			break
		}
		annexTitle = firstTitle
		if annexTitle != "" {
			consumed = k - 1
		} else {
			consumed = 0
		}
	}

	rawBody := ""
	if 1+consumed < len(lines) {
		rawBody = strings.TrimSpace(strings.Join(lines[1+consumed:], "\n"))
	}
	body := sanitize.Sanitize(collapseBlank(rawBody))

	parentCode := canonical.Canonicalize("Annex" + roman)
	var titlePtr *string
	if annexTitle != "" {
		titlePtr = &annexTitle
	}
	out = append(out, RuleRecord{
		SectionCode: parentCode,
		Title:       titlePtr,
		Content:     body,
	})

	out = append(out, parseAnnexSubsections(parentCode, body)...)
	return out
}

func parseArticleSubsections(parentCode, body string) []RuleRecord {
	return splitNumberedAndLettered(parentCode, body)
}

func parseAnnexSubsections(parentCode, body string) []RuleRecord {
	return splitNumberedAndLettered(parentCode, body)
}

// splitNumberedAndLettered recovers "N." top-level points and "(x)" lettered
// subpoints from a rule's body (shared by Article and Annex parsing).
//
// Go's regexp.Split discards captured groups (unlike Python's re.split), so
// the split is done by hand from match indices to recover both the
// enumerator and the text that follows it.
func splitNumberedAndLettered(parentCode, body string) []RuleRecord {
	var out []RuleRecord

	topIdx := pointPrefixRe.FindAllStringSubmatchIndex(body, -1)
	if len(topIdx) == 0 {
		return out
	}

	for i, m := range topIdx {
		num := body[m[2]:m[3]]
		textEnd := len(body)
		if i+1 < len(topIdx) {
			textEnd = topIdx[i+1][0]
		}
		textI := body[m[1]:textEnd]

		contentI := sanitize.Sanitize(normalizeLines(textI))
		codeI := canonical.Canonicalize(fmt.Sprintf("%s.%s", parentCode, num))
		orderI := formatOrderIndex(num)
		parentI := parentCode

		out = append(out, RuleRecord{
			SectionCode:       codeI,
			Content:           contentI,
			ParentSectionCode: &parentI,
			OrderIndex:        &orderI,
		})

		subIdx := letterPrefixRe.FindAllStringSubmatchIndex(contentI, -1)
		if len(subIdx) > 0 {
			for j, sm := range subIdx {
				letter := strings.ToLower(contentI[sm[2]:sm[3]])
				textJEnd := len(contentI)
				if j+1 < len(subIdx) {
					textJEnd = subIdx[j+1][0]
				}
				textJ := contentI[sm[1]:textJEnd]

				contentJ := sanitize.Sanitize(normalizeLines(textJ))
				subCode := canonical.Canonicalize(fmt.Sprintf("%s.%s", codeI, letter))
				orderJ := formatOrderIndex(letter)
				parentJ := codeI

				out = append(out, RuleRecord{
					SectionCode:       subCode,
					Content:           contentJ,
					ParentSectionCode: &parentJ,
					OrderIndex:        &orderJ,
				})
			}
		}
	}

	return out
}

func normalizeLines(s string) string {
	var lines []string
	for _, ln := range strings.Split(strings.TrimSpace(s), "\n") {
		lines = append(lines, strings.TrimSpace(ln))
	}
	return strings.Join(lines, "\n")
}

// formatOrderIndex zero-pads numeric indices to three digits and lower-cases
// letter indices (spec.md Rule.order_index).
func formatOrderIndex(idx string) string {
	if n, err := strconv.Atoi(idx); err == nil {
		return fmt.Sprintf("%03d", n)
	}
	return strings.ToLower(idx)
}
