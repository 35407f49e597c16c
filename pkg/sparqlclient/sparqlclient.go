// Package sparqlclient queries the EUR-Lex Common Data Model SPARQL
// endpoint for regulation metadata and manifestation items (spec.md §4.2).
//
// No SPARQL client library appears anywhere in the example corpus; the wire
// contract here is a static query template plus "GET, JSON results, POST
// fallback", which stdlib net/http and encoding/json already cover cleanly.
package sparqlclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Item is one manifestation of a regulation (a downloadable PDF or HTML
// rendition).
type Item struct {
	URL    string
	Format string
}

// Metadata is the CDM metadata recovered for one CELEX identifier.
type Metadata struct {
	Title   string
	Date    string
	Version string
	Items   []Item
}

// Client queries a CDM SPARQL endpoint.
type Client struct {
	http *http.Client
}

// New builds a Client over an existing *http.Client. Requests are not
// retried beyond the single GET-to-POST fallback.
func New(httpClient *http.Client) *Client {
	return &Client{http: httpClient}
}

const metadataQueryTemplate = `
PREFIX cdm: <http://publications.europa.eu/ontology/cdm#>
SELECT ?title ?date ?version ?item ?format WHERE {
  ?work cdm:resource_legal_id_celex "%s" .
  OPTIONAL { ?work cdm:expression_title ?title }
  OPTIONAL { ?work cdm:work_date_document ?date }
  OPTIONAL { ?work cdm:expression_version ?version }
  OPTIONAL {
    ?expr cdm:expression_belongs_to_work ?work .
    ?manifestation cdm:manifestation_manifests_expression ?expr .
    ?manifestation cdm:manifestation_publication_type ?format .
    BIND(?manifestation AS ?item)
  }
}`

const consolidatedQueryTemplate = `
PREFIX cdm: <http://publications.europa.eu/ontology/cdm#>
SELECT ?celex ?date WHERE {
  ?work cdm:resource_legal_id_celex ?celex .
  ?work cdm:work_date_document ?date .
  FILTER(STRSTARTS(?celex, "%s"))
}`

// FetchLatest resolves a CELEX identifier's title, work date, expression
// version, and manifestation items (spec.md §4.2).
func (c *Client) FetchLatest(ctx context.Context, endpoint, celexID string) (*Metadata, error) {
	query := fmt.Sprintf(metadataQueryTemplate, celexID)
	result, err := c.execute(ctx, endpoint, query)
	if err != nil {
		return nil, err
	}

	meta := &Metadata{}
	seen := make(map[string]bool)
	for _, b := range result.Results.Bindings {
		if t, ok := b["title"]; ok && meta.Title == "" {
			meta.Title = t.Value
		}
		if d, ok := b["date"]; ok && meta.Date == "" {
			meta.Date = d.Value
		}
		if v, ok := b["version"]; ok && meta.Version == "" {
			meta.Version = v.Value
		}
		itemURL, hasURL := b["item"]
		format, hasFormat := b["format"]
		if hasURL && hasFormat && !seen[itemURL.Value] {
			seen[itemURL.Value] = true
			meta.Items = append(meta.Items, Item{URL: itemURL.Value, Format: format.Value})
		}
	}

	return meta, nil
}

// ResolveLatestConsolidated finds the newest CELEX of form
// "0YYYY…-YYYYMMDD" whose prefix matches baseCelex, breaking ties by the
// greatest date and then lexicographically by CELEX (spec.md §4.2). The
// second return value is false if no matching consolidated CELEX exists.
func (c *Client) ResolveLatestConsolidated(ctx context.Context, endpoint, baseCelex string) (string, string, bool, error) {
	query := fmt.Sprintf(consolidatedQueryTemplate, baseCelex)
	result, err := c.execute(ctx, endpoint, query)
	if err != nil {
		return "", "", false, err
	}

	type candidate struct{ celex, date string }
	var candidates []candidate
	for _, b := range result.Results.Bindings {
		celex, hasCelex := b["celex"]
		date, hasDate := b["date"]
		if hasCelex && hasDate {
			candidates = append(candidates, candidate{celex.Value, date.Value})
		}
	}
	if len(candidates) == 0 {
		return "", "", false, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].date != candidates[j].date {
			return candidates[i].date > candidates[j].date
		}
		return candidates[i].celex > candidates[j].celex
	})

	best := candidates[0]
	return best.celex, best.date, true, nil
}

type sparqlResults struct {
	Results struct {
		Bindings []map[string]sparqlValue `json:"bindings"`
	} `json:"results"`
}

type sparqlValue struct {
	Value string `json:"value"`
}

// execute tries a GET request first, falling back to a POST form-encoded
// request on failure (spec.md §4.2).
func (c *Client) execute(ctx context.Context, endpoint, query string) (*sparqlResults, error) {
	result, err := c.executeGet(ctx, endpoint, query)
	if err == nil {
		return result, nil
	}
	return c.executePost(ctx, endpoint, query)
}

func (c *Client) executeGet(ctx context.Context, endpoint, query string) (*sparqlResults, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("query", query)
	q.Set("format", "application/sparql-results+json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/sparql-results+json")

	return c.do(req)
}

func (c *Client) executePost(ctx context.Context, endpoint, query string) (*sparqlResults, error) {
	form := url.Values{}
	form.Set("query", query)
	form.Set("format", "application/sparql-results+json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*sparqlResults, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sparqlclient: endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result sparqlResults
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("sparqlclient: decode response: %w", err)
	}
	return &result, nil
}
