// Package monitor implements the Source monitor V2 (spec.md §4.10): polling
// every active Source concurrently, routing each to its ELI/RSS/HTML state
// machine, and recording one RegulationSourceLog row per attempt. All
// per-source state lives in the store; the Monitor itself is stateless
// between UpdateAll/UpdateByType calls, matching the teacher's
// Swarm.pollAll semaphore-bounded fan-out.
package monitor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/annex4parser/annex4parser/pkg/extract"
	"github.com/annex4parser/annex4parser/pkg/fetcher"
	"github.com/annex4parser/annex4parser/pkg/models"
	"github.com/annex4parser/annex4parser/pkg/rssreader"
	"github.com/annex4parser/annex4parser/pkg/sanitize"
	"github.com/annex4parser/annex4parser/pkg/sparqlclient"
	"github.com/annex4parser/annex4parser/pkg/store"
)

// ingestEngine is the subset of pkg/ingest.Engine the monitor needs.
type ingestEngine interface {
	Ingest(ctx context.Context, name, version, text, url, celexID, expressionVersion string, workDate *time.Time) (*models.Regulation, error)
}

// alertSink is the subset of pkg/alertemit.Emitter the monitor needs.
type alertSink interface {
	EmitRssUpdate(ctx context.Context, sourceID, title, link, priority string)
	EmitRegulationUpdate(ctx context.Context, regulationID int64, regulationName, version, sourceURL string, rulesCount int)
}

// Counts aggregates one UpdateAll/UpdateByType run's outcomes.
type Counts struct {
	ELISPARQL int
	RSS       int
	HTML      int
	Errors    int
	Total     int
}

func (c *Counts) add(other Counts) {
	c.ELISPARQL += other.ELISPARQL
	c.RSS += other.RSS
	c.HTML += other.HTML
	c.Errors += other.Errors
	c.Total += other.Total
}

// Monitor polls active Sources and reconciles their content into the store.
type Monitor struct {
	store          *store.Store
	fetcher        *fetcher.Fetcher
	sparql         *sparqlclient.Client
	rss            *rssreader.Reader
	htmlExtractor  extract.Extractor
	pdfExtractor   extract.Extractor
	ingest         ingestEngine
	alerts         alertSink
	maxConcurrency int
}

// New builds a Monitor. maxConcurrency bounds how many sources are polled
// in parallel; 0 defaults to 10, mirroring the teacher's DefaultSwarmConfig.
func New(s *store.Store, f *fetcher.Fetcher, sparql *sparqlclient.Client, rss *rssreader.Reader,
	ingestEngine ingestEngine, alerts alertSink, maxConcurrency int) *Monitor {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Monitor{
		store:          s,
		fetcher:        f,
		sparql:         sparql,
		rss:            rss,
		htmlExtractor:  extract.NewHTML(),
		pdfExtractor:   extract.NewPDF(),
		ingest:         ingestEngine,
		alerts:         alerts,
		maxConcurrency: maxConcurrency,
	}
}

// UpdateAll loads every active, due Source and polls it concurrently.
func (m *Monitor) UpdateAll(ctx context.Context) (Counts, error) {
	sources, err := m.store.ListActiveSources(ctx)
	if err != nil {
		return Counts{}, err
	}
	return m.pollSources(ctx, dueSources(sources, time.Now())), nil
}

// UpdateByType loads active, due Sources of one type, for the scheduler's
// per-cadence jobs (ELI every 6h, RSS every 1h, HTML every 24h by default).
func (m *Monitor) UpdateByType(ctx context.Context, sourceType models.SourceType) (Counts, error) {
	sources, err := m.store.ListActiveSources(ctx)
	if err != nil {
		return Counts{}, err
	}

	var filtered []models.Source
	for _, s := range sources {
		if s.Type == sourceType {
			filtered = append(filtered, s)
		}
	}
	return m.pollSources(ctx, dueSources(filtered, time.Now())), nil
}

func (m *Monitor) pollSources(ctx context.Context, sources []models.Source) Counts {
	var mu sync.Mutex
	var total Counts

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxConcurrency)

	for _, src := range sources {
		src := src
		g.Go(func() error {
			c := m.pollOne(gctx, src)
			mu.Lock()
			total.add(c)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return total
}

func (m *Monitor) pollOne(ctx context.Context, src models.Source) Counts {
	var c Counts
	c.Total = 1

	var fetchMode models.FetchMode
	var hash string
	var err error

	start := time.Now()
	switch src.Type {
	case models.SourceTypeELISPARQL:
		fetchMode, hash, err = m.processELI(ctx, src)
		c.ELISPARQL = 1
	case models.SourceTypeRSS:
		fetchMode, err = m.processRSS(ctx, src)
		c.RSS = 1
	default:
		fetchMode, hash, err = m.processHTML(ctx, src)
		c.HTML = 1
	}
	elapsed := time.Since(start).Seconds()

	if err != nil {
		c.Errors = 1
	}

	// processRSS already wrote its own feed-envelope and per-item log rows;
	// writing another success row here would double-log every RSS poll.
	if src.Type == models.SourceTypeRSS && err == nil {
		_ = m.store.UpdateSourceLastFetched(ctx, src.ID, time.Now().UTC())
		return c
	}

	logEntry := &models.RegulationSourceLog{
		SourceID:     src.ID,
		FetchedAt:    time.Now().UTC(),
		ResponseTime: elapsed,
		FetchMode:    fetchMode,
		ContentHash:  hash,
	}
	if err != nil {
		logEntry.Status = models.FetchError
		logEntry.ErrorMessage = err.Error()
	} else {
		logEntry.Status = models.FetchSuccess
	}
	_ = m.store.LogFetch(ctx, logEntry)
	_ = m.store.UpdateSourceLastFetched(ctx, src.ID, time.Now().UTC())

	return c
}

// processELI implements spec.md §4.10's ELI processing steps 1-4. It returns
// the fetched content's hash alongside the fetch mode so the caller can
// persist it on the log row for the next poll's change-detection lookup.
func (m *Monitor) processELI(ctx context.Context, src models.Source) (models.FetchMode, string, error) {
	celexID := src.Extra["celex_id"]
	if celexID == "" {
		celexID = extractCelexFromURL(src.URL)
	}

	endpoint := src.Extra["endpoint"]
	var workDate *time.Time

	if src.Extra["consolidated"] == "true" {
		if resolved, date, found, err := m.sparql.ResolveLatestConsolidated(ctx, endpoint, celexID); err == nil && found {
			celexID = resolved
			if parsed, ok := dateFromConsolidatedCelex(resolved); ok {
				workDate = &parsed
			} else if d, err := time.Parse("2006-01-02", date); err == nil {
				workDate = &d
			}
		}
	}

	meta, err := m.sparql.FetchLatest(ctx, endpoint, celexID)
	if err != nil {
		return "", "", err
	}
	if workDate == nil {
		if d, err := time.Parse("2006-01-02", meta.Date); err == nil {
			workDate = &d
		}
	}

	text, fetchMode, err := m.resolveELIText(ctx, meta, celexID)
	if err != nil {
		return fetchMode, "", err
	}

	clean := sanitize.Sanitize(text)
	hash := sha256Hex(clean)

	last, lastErr := m.store.GetLastSuccessfulHash(ctx, src.ID)
	if lastErr == nil && last == hash {
		return fetchMode, hash, nil
	}

	reg, err := m.ingest.Ingest(ctx, meta.Title, versionFromHash(hash), clean, src.URL, celexID, meta.Version, workDate)
	if err != nil {
		return fetchMode, hash, err
	}

	rules, _ := m.store.ListRulesByRegulation(ctx, reg.ID)
	m.alerts.EmitRegulationUpdate(ctx, reg.ID, reg.Name, reg.Version, src.URL, len(rules))

	return fetchMode, hash, nil
}

// resolveELIText prefers the PDF manifestation, falls back to HTML, and
// finally to a stable Official Journal URL derived from the CELEX id
// (spec.md §4.10 ELI processing step 3).
func (m *Monitor) resolveELIText(ctx context.Context, meta *sparqlclient.Metadata, celexID string) (string, models.FetchMode, error) {
	var pdfItem, htmlItem *sparqlclient.Item
	for i, it := range meta.Items {
		switch strings.ToUpper(it.Format) {
		case "PDF":
			if pdfItem == nil {
				pdfItem = &meta.Items[i]
			}
		case "HTML", "XHTML":
			if htmlItem == nil {
				htmlItem = &meta.Items[i]
			}
		}
	}

	if pdfItem != nil {
		body, err := m.fetcher.Fetch(ctx, pdfItem.URL)
		if err == nil {
			text, _ := m.pdfExtractor.Extract([]byte(body))
			if len(strings.TrimSpace(text)) >= 300 {
				return text, models.FetchModeSPARQLItem, nil
			}
		}
	}

	if htmlItem != nil {
		body, err := m.fetcher.Fetch(ctx, htmlItem.URL)
		if err == nil {
			text, extractErr := m.htmlExtractor.Extract([]byte(body))
			if extractErr == nil {
				return text, models.FetchModeSPARQLMetaHTML, nil
			}
		}
	}

	ojURL := buildOJFallbackURL(celexID)
	body, err := m.fetcher.Fetch(ctx, ojURL)
	if err != nil {
		return "", models.FetchModeHTMLFallback, err
	}
	text, err := m.htmlExtractor.Extract([]byte(body))
	if err != nil {
		return "", models.FetchModeHTMLFallback, err
	}
	return text, models.FetchModeHTMLFallback, nil
}

// processRSS implements spec.md §4.10's RSS processing.
func (m *Monitor) processRSS(ctx context.Context, src models.Source) (models.FetchMode, error) {
	entries, err := m.rss.FetchFeed(ctx, src.URL)
	if err != nil {
		return "", err
	}

	var envelope strings.Builder
	for _, e := range entries {
		envelope.WriteString(e.ContentHash)
	}
	envelopeHash := sha256Hex(envelope.String())

	_ = m.store.LogFetch(ctx, &models.RegulationSourceLog{
		SourceID: src.ID, Status: models.FetchSuccess, FetchedAt: time.Now().UTC(),
		ContentHash: envelopeHash, FetchMode: models.FetchModeRSSFeed,
	})

	for _, e := range entries {
		seen, err := m.store.HasContentHash(ctx, src.ID, e.ContentHash)
		if err != nil || seen {
			continue
		}

		m.alerts.EmitRssUpdate(ctx, src.ID, e.Title, e.Link, "")
		_ = m.store.LogFetch(ctx, &models.RegulationSourceLog{
			SourceID: src.ID, Status: models.FetchSuccess, FetchedAt: time.Now().UTC(),
			ContentHash: e.ContentHash, FetchMode: models.FetchModeRSSItem,
		})
	}

	return models.FetchModeRSSFeed, nil
}

// processHTML implements spec.md §4.10's HTML processing. It returns the
// fetched content's hash alongside the fetch mode so the caller can persist
// it on the log row for the next poll's change-detection lookup.
func (m *Monitor) processHTML(ctx context.Context, src models.Source) (models.FetchMode, string, error) {
	body, err := m.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return models.FetchModeHTML, "", err
	}

	text, err := m.htmlExtractor.Extract([]byte(body))
	if err != nil {
		return models.FetchModeHTML, "", err
	}

	clean := sanitize.Sanitize(text)
	hash := sha256Hex(clean)

	last, lastErr := m.store.GetLastSuccessfulHash(ctx, src.ID)
	if lastErr == nil && last == hash {
		return models.FetchModeHTML, hash, nil
	}

	celexID := src.Extra["celex_id"]
	reg, err := m.ingest.Ingest(ctx, src.ID, versionFromHash(hash), clean, src.URL, celexID, "", nil)
	if err != nil {
		return models.FetchModeHTML, hash, err
	}

	rules, _ := m.store.ListRulesByRegulation(ctx, reg.ID)
	m.alerts.EmitRegulationUpdate(ctx, reg.ID, reg.Name, reg.Version, src.URL, len(rules))

	return models.FetchModeHTML, hash, nil
}

// dueSources returns the Sources for which now - last_fetched >= freq.
func dueSources(sources []models.Source, now time.Time) []models.Source {
	due := make([]models.Source, 0, len(sources))
	for _, s := range sources {
		if isDue(s, now) {
			due = append(due, s)
		}
	}
	return due
}

func isDue(src models.Source, now time.Time) bool {
	if src.LastFetched == nil {
		return true
	}
	return now.Sub(*src.LastFetched) >= parseFreq(src.Freq)
}

func parseFreq(freq string) time.Duration {
	if freq == "instant" || freq == "" {
		return 0
	}
	if d, err := time.ParseDuration(freq); err == nil {
		return d
	}
	return 0
}

// extractCelexFromURL recovers a CELEX-looking token from an ELI URL when
// extra.celex_id is absent, e.g. ".../eli/reg/2024/1689/oj" style paths
// never carry a literal CELEX, so this is a best-effort fallback.
func extractCelexFromURL(rawURL string) string {
	parts := strings.Split(rawURL, "/")
	for _, p := range parts {
		if len(p) >= 9 && isDigitOrCelexLetter(p) {
			return p
		}
	}
	return ""
}

func isDigitOrCelexLetter(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("0123456789RLDC", r) {
			return false
		}
	}
	return true
}

// dateFromConsolidatedCelex derives a YYYY-MM-DD date from a consolidated
// CELEX suffix of the form "0YYYY...-YYYYMMDD".
func dateFromConsolidatedCelex(celex string) (time.Time, bool) {
	idx := strings.LastIndexByte(celex, '-')
	if idx < 0 || len(celex[idx+1:]) != 8 {
		return time.Time{}, false
	}
	suffix := celex[idx+1:]
	d, err := time.Parse("20060102", suffix)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// buildOJFallbackURL builds the stable Official Journal URL for a CELEX id
// (spec.md §4.10 ELI processing step 3): sector(1) + year(4) + doctype(1) +
// number(rest).
func buildOJFallbackURL(celexID string) string {
	if len(celexID) < 9 {
		return ""
	}
	year := celexID[1:5]
	doctype := celexID[5:6]
	number := celexID[6:]

	kind := "reg"
	switch doctype {
	case "L":
		kind = "dir"
	case "D":
		kind = "dec"
	}

	return fmt.Sprintf("https://eur-lex.europa.eu/eli/%s/%s/%s/oj/eng", kind, year, trimLeadingZeros(number))
}

func trimLeadingZeros(s string) string {
	n, err := strconv.Atoi(s)
	if err != nil {
		return s
	}
	return strconv.Itoa(n)
}

func versionFromHash(hash string) string {
	if len(hash) < 12 {
		return hash
	}
	return hash[:12]
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
