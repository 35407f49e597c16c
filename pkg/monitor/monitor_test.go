package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/annex4parser/annex4parser/pkg/fetcher"
	"github.com/annex4parser/annex4parser/pkg/models"
	"github.com/annex4parser/annex4parser/pkg/rssreader"
	"github.com/annex4parser/annex4parser/pkg/sparqlclient"
	"github.com/annex4parser/annex4parser/pkg/store"
)

type fakeIngest struct {
	mu    sync.Mutex
	calls int
	reg   *models.Regulation
	err   error
}

func (f *fakeIngest) Ingest(ctx context.Context, name, version, text, url, celexID, expressionVersion string, workDate *time.Time) (*models.Regulation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.reg != nil {
		return f.reg, nil
	}
	return &models.Regulation{ID: 1, Name: name, Version: version}, nil
}

type fakeAlerts struct {
	mu         sync.Mutex
	rssUpdates int
	regUpdates int
}

func (f *fakeAlerts) EmitRssUpdate(ctx context.Context, sourceID, title, link, priority string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rssUpdates++
}

func (f *fakeAlerts) EmitRegulationUpdate(ctx context.Context, regulationID int64, regulationName, version, sourceURL string, rulesCount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regUpdates++
}

func TestIsDue_NoLastFetched(t *testing.T) {
	src := models.Source{Freq: "1h"}
	require.True(t, isDue(src, time.Now()))
}

func TestIsDue_RespectsFrequency(t *testing.T) {
	last := time.Now().Add(-30 * time.Minute)
	src := models.Source{Freq: "1h", LastFetched: &last}
	require.False(t, isDue(src, time.Now()))

	longAgo := time.Now().Add(-2 * time.Hour)
	src.LastFetched = &longAgo
	require.True(t, isDue(src, time.Now()))
}

func TestParseFreq_InstantIsZero(t *testing.T) {
	require.Equal(t, time.Duration(0), parseFreq("instant"))
	require.Equal(t, time.Hour, parseFreq("1h"))
}

func TestBuildOJFallbackURL_RegulationCelex(t *testing.T) {
	url := buildOJFallbackURL("32024R1689")
	require.Equal(t, "https://eur-lex.europa.eu/eli/reg/2024/1689/oj/eng", url)
}

func TestBuildOJFallbackURL_DirectiveCelex(t *testing.T) {
	url := buildOJFallbackURL("32019L0790")
	require.Equal(t, "https://eur-lex.europa.eu/eli/dir/2019/790/oj/eng", url)
}

func TestProcessHTML_NewContentIngestsAndAlerts(t *testing.T) {
	html := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("<html><body><p>Article 1</p><p>General provisions.</p></body></html>"))
	}))
	defer html.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT content_hash FROM regulation_source_logs").
		WillReturnRows(sqlmock.NewRows([]string{"content_hash"}))
	mock.ExpectQuery("FROM rules WHERE regulation_id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "regulation_id", "section_code", "title", "content", "risk_level", "version",
			"parent_rule_id", "effective_date", "last_modified", "order_index", "ingested_at",
		}))

	s := store.New(db, "postgres")
	f := fetcher.New("annex4parser-test/1.0")
	sp := sparqlclient.New(&http.Client{Timeout: 5 * time.Second})
	rss := rssreader.New(&http.Client{Timeout: 5 * time.Second})
	ing := &fakeIngest{}
	al := &fakeAlerts{}
	m := New(s, f, sp, rss, ing, al, 4)

	src := models.Source{ID: "test-html", URL: html.URL, Type: models.SourceTypeHTML}
	mode, hash, err := m.processHTML(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, models.FetchModeHTML, mode)
	require.NotEmpty(t, hash)

	ing.mu.Lock()
	require.Equal(t, 1, ing.calls)
	ing.mu.Unlock()

	al.mu.Lock()
	require.Equal(t, 1, al.regUpdates)
	al.mu.Unlock()
}

func TestProcessRSS_UnseenEntryEmitsAlert(t *testing.T) {
	feedXML := `<?xml version="1.0"?>
<rss><channel>
  <item><link>https://eur-lex.europa.eu/corrigendum/1</link><title>Corrigendum 1</title></item>
</channel></rss>`

	rssSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(feedXML))
	}))
	defer rssSrv.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO regulation_source_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO regulation_source_logs").
		WillReturnResult(sqlmock.NewResult(2, 1))

	s := store.New(db, "postgres")
	f := fetcher.New("annex4parser-test/1.0")
	sp := sparqlclient.New(&http.Client{Timeout: 5 * time.Second})
	rss := rssreader.New(&http.Client{Timeout: 5 * time.Second})
	al := &fakeAlerts{}
	m := New(s, f, sp, rss, &fakeIngest{}, al, 4)

	src := models.Source{ID: "test-rss", URL: rssSrv.URL, Type: models.SourceTypeRSS}
	mode, err := m.processRSS(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, models.FetchModeRSSFeed, mode)

	al.mu.Lock()
	require.Equal(t, 1, al.rssUpdates)
	al.mu.Unlock()
}

func TestPollOne_RSSDoesNotDoubleLog(t *testing.T) {
	feedXML := `<?xml version="1.0"?>
<rss><channel>
  <item><link>https://eur-lex.europa.eu/corrigendum/1</link><title>Corrigendum 1</title></item>
</channel></rss>`

	rssSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(feedXML))
	}))
	defer rssSrv.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// processRSS writes exactly 2 rows (1 feed envelope + 1 new item); pollOne
	// must not append a third "rss_feed" success row on top of those.
	mock.ExpectExec("INSERT INTO regulation_source_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO regulation_source_logs").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("UPDATE sources SET last_fetched").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := store.New(db, "postgres")
	f := fetcher.New("annex4parser-test/1.0")
	sp := sparqlclient.New(&http.Client{Timeout: 5 * time.Second})
	rss := rssreader.New(&http.Client{Timeout: 5 * time.Second})
	m := New(s, f, sp, rss, &fakeIngest{}, &fakeAlerts{}, 4)

	src := models.Source{ID: "test-rss", URL: rssSrv.URL, Type: models.SourceTypeRSS}
	c := m.pollOne(context.Background(), src)
	require.Equal(t, 0, c.Errors)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPollOne_HTMLPersistsContentHashForChangeDetection(t *testing.T) {
	html := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>stable content</p></body></html>"))
	}))
	defer html.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT content_hash FROM regulation_source_logs").
		WillReturnRows(sqlmock.NewRows([]string{"content_hash"}))
	mock.ExpectQuery("FROM rules WHERE regulation_id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "regulation_id", "section_code", "title", "content", "risk_level", "version",
			"parent_rule_id", "effective_date", "last_modified", "order_index", "ingested_at",
		}))
	mock.ExpectExec("INSERT INTO regulation_source_logs").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE sources SET last_fetched").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := store.New(db, "postgres")
	f := fetcher.New("annex4parser-test/1.0")
	sp := sparqlclient.New(&http.Client{Timeout: 5 * time.Second})
	rss := rssreader.New(&http.Client{Timeout: 5 * time.Second})
	m := New(s, f, sp, rss, &fakeIngest{}, &fakeAlerts{}, 4)

	src := models.Source{ID: "test-html-hash", URL: html.URL, Type: models.SourceTypeHTML}
	c := m.pollOne(context.Background(), src)
	require.Equal(t, 0, c.Errors)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPollSources_AggregatesCountsAcrossConcurrentSources(t *testing.T) {
	html := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("<html><body><p>stable content</p></body></html>"))
	}))
	defer html.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	emptyRuleRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"id", "regulation_id", "section_code", "title", "content", "risk_level", "version",
			"parent_rule_id", "effective_date", "last_modified", "order_index", "ingested_at",
		})
	}

	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT content_hash FROM regulation_source_logs").
			WillReturnRows(sqlmock.NewRows([]string{"content_hash"}))
		mock.ExpectQuery("FROM rules WHERE regulation_id").
			WillReturnRows(emptyRuleRows())
		mock.ExpectExec("INSERT INTO regulation_source_logs").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE sources SET last_fetched").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	s := store.New(db, "postgres")
	f := fetcher.New("annex4parser-test/1.0")
	sp := sparqlclient.New(&http.Client{Timeout: 5 * time.Second})
	rss := rssreader.New(&http.Client{Timeout: 5 * time.Second})
	ing := &fakeIngest{}
	al := &fakeAlerts{}
	m := New(s, f, sp, rss, ing, al, 4)

	sources := []models.Source{
		{ID: "src-a", URL: html.URL, Type: models.SourceTypeHTML},
		{ID: "src-b", URL: html.URL, Type: models.SourceTypeHTML},
	}

	counts := m.pollSources(context.Background(), sources)
	require.Equal(t, 2, counts.Total)
	require.Equal(t, 2, counts.HTML)
	require.Equal(t, 0, counts.Errors)
}
