// Package extract converts a fetched manifestation item's body (HTML or
// PDF) into plain text for the sanitizer and rule parser.
package extract

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// Extractor converts a manifestation body into plain text.
type Extractor interface {
	Extract(body []byte) (string, error)
}

// HTML extracts visible text from an HTML document by parsing it and walking
// its text nodes, then passing the result through bluemonday's strict policy.
type HTML struct {
	policy *bluemonday.Policy
}

// NewHTML builds the default HTML extractor.
func NewHTML() *HTML {
	return &HTML{policy: bluemonday.StrictPolicy()}
}

// Extract strips all markup and returns newline-joined visible text,
// preserving block boundaries so the rule parser can still find Article
// and Annex headers on their own lines.
func (h *HTML) Extract(body []byte) (string, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	walk(doc, &sb)

	return h.policy.Sanitize(sb.String()), nil
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"article": true, "section": true, "table": true,
}

func walk(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, sb)
	}

	if n.Type == html.ElementNode && blockTags[n.Data] {
		sb.WriteString("\n")
	}
}

// PDF is a stub extractor: no PDF text-extraction library appears in the
// corpus, so it returns an empty string, matching the "fall back to HTML
// item" path in spec.md §4.10 when the PDF body is unusable.
type PDF struct{}

// NewPDF builds the stub PDF extractor.
func NewPDF() *PDF {
	return &PDF{}
}

// Extract always returns an empty string; callers treat it as "too short"
// and fall back to the HTML manifestation.
func (p *PDF) Extract(body []byte) (string, error) {
	return "", nil
}
