package rssreader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>EUR-Lex updates</title>
    <item>
      <title>Corrigendum to Regulation (EU) 2024/1689</title>
      <link>https://eur-lex.europa.eu/corrigendum/1</link>
    </item>
    <item>
      <title>Implementing act adopted</title>
      <link>https://eur-lex.europa.eu/implementing/2</link>
    </item>
  </channel>
</rss>`

func TestFetchFeed_ParsesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	r := New(srv.Client())
	entries, err := r.FetchFeed(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "https://eur-lex.europa.eu/corrigendum/1", entries[0].Link)
	require.NotEmpty(t, entries[0].ContentHash)
}

func TestFetchFeed_ContentHashIsDeterministic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	r := New(srv.Client())
	first, err := r.FetchFeed(context.Background(), srv.URL)
	require.NoError(t, err)
	second, err := r.FetchFeed(context.Background(), srv.URL)
	require.NoError(t, err)

	require.Equal(t, first[0].ContentHash, second[0].ContentHash)
}
