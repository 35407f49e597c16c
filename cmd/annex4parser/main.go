// Command annex4parser is the CLI entrypoint for the regulatory watch
// service (spec.md §6). It mirrors the teacher's cmd/helm Run(args, stdout,
// stderr) int dispatch pattern: os.Exit wraps a testable Run, which switches
// on the first argument.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/annex4parser/annex4parser/pkg/alertemit"
	"github.com/annex4parser/annex4parser/pkg/config"
	"github.com/annex4parser/annex4parser/pkg/fetcher"
	"github.com/annex4parser/annex4parser/pkg/ingest"
	"github.com/annex4parser/annex4parser/pkg/monitor"
	"github.com/annex4parser/annex4parser/pkg/observability"
	"github.com/annex4parser/annex4parser/pkg/rssreader"
	"github.com/annex4parser/annex4parser/pkg/sanitize"
	"github.com/annex4parser/annex4parser/pkg/sparqlclient"
	"github.com/annex4parser/annex4parser/pkg/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the CLI entrypoint, split out from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(stderr, "Usage: annex4parser <update-single|update-all> [flags]")
		return 2
	}

	switch args[1] {
	case "update-single":
		return runUpdateSingle(args[2:], stdout, stderr)
	case "update-all":
		return runUpdateAll(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		fmt.Fprintln(stdout, "Usage: annex4parser <update-single|update-all> [flags]")
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		return 2
	}
}

// observabilityConfig builds the tracing/metrics config from the process's
// ambient configuration, only enabling OTLP export when ANNEX4_OTEL_ENDPOINT
// was actually set.
func observabilityConfig(cfg *config.Config) *observability.Config {
	oc := observability.DefaultConfig()
	oc.Enabled = cfg.TracingEnabled()
	if cfg.OTELEndpoint != "" {
		oc.OTLPEndpoint = cfg.OTELEndpoint
	}
	return oc
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderrWriter{}, &slog.HandlerOptions{Level: level}))
}

// stderrWriter keeps the logger's default handler decoupled from the Run's
// stdout/stderr args (loggers always go to the process's real stderr, not a
// test double), matching how the teacher's runServer uses slog.Default().
type stderrWriter struct{}

func (stderrWriter) Write(p []byte) (int, error) { return os.Stderr.Write(p) }

func openStore(dbURL string) (*store.Store, *sql.DB, error) {
	driver, dsn := splitDBURL(dbURL)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	s := store.New(db, driver)
	if err := s.Init(context.Background()); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init schema: %w", err)
	}
	return s, db, nil
}

// splitDBURL maps a sqlite://<path> or postgres://... config URL to a
// database/sql driver name plus the DSN that driver expects.
func splitDBURL(dbURL string) (driver, dsn string) {
	if rest, ok := strings.CutPrefix(dbURL, "sqlite://"); ok {
		return "sqlite", rest
	}
	return "postgres", dbURL
}

func runUpdateSingle(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("update-single", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		name, version, url, dbURL, cacheDir string
		verbose                             bool
	)
	defaultCfg := config.Load()
	fs.StringVar(&name, "name", "", "regulation name (required)")
	fs.StringVar(&version, "version", "", "version identifier (required)")
	fs.StringVar(&url, "url", "", "source URL to fetch (required)")
	fs.StringVar(&dbURL, "db-url", defaultCfg.DBURL, "database URL")
	fs.StringVar(&cacheDir, "cache-dir", "", "directory for cached source text (defaults to no caching)")
	fs.BoolVar(&verbose, "verbose", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" || version == "" || url == "" {
		fmt.Fprintln(stderr, "Error: --name, --version, and --url are required")
		return 2
	}

	logger := newLogger(verbose)
	obs, err := observability.New(context.Background(), observabilityConfig(defaultCfg))
	if err != nil {
		fmt.Fprintf(stderr, "observability init: %v\n", err)
		return 1
	}
	defer obs.Shutdown(context.Background())

	ctx, done := obs.TrackOperation(context.Background(), "cli.update_single")
	var runErr error
	defer func() { done(runErr) }()

	s, db, err := openStore(dbURL)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		runErr = err
		return 1
	}
	defer db.Close()

	text, err := fetchWithCache(ctx, defaultCfg, url, cacheDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error fetching %s: %v\n", url, err)
		runErr = err
		return 1
	}

	alerts := alertemit.New(http.DefaultClient, "", logger)
	engine := ingest.New(s, alerts)

	reg, err := engine.Ingest(ctx, name, version, sanitize.Sanitize(text), url, "", "", nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error ingesting %s: %v\n", url, err)
		runErr = err
		return 1
	}

	fmt.Fprintf(stdout, "Processed %s version %s.\n", reg.Name, reg.Version)
	return 0
}

// newFetcher builds a Fetcher backed by Redis when cfg.CachingEnabled (i.e.
// ANNEX4_CACHE_REDIS_URL is set), and by the in-process TTL cache fetcher.New
// already defaults to otherwise (SPEC_FULL Fetcher caching requirement).
func newFetcher(cfg *config.Config) *fetcher.Fetcher {
	if !cfg.CachingEnabled() {
		return fetcher.New("annex4parser/1.0")
	}
	opts, err := redis.ParseURL(cfg.CacheRedisURL)
	if err != nil {
		return fetcher.New("annex4parser/1.0")
	}
	client := redis.NewClient(opts)
	return fetcher.NewWithCache("annex4parser/1.0", fetcher.NewRedisCache(client))
}

// fetchWithCache fetches url via pkg/fetcher, consulting and then updating a
// flat-file cache keyed by a slugified URL when cacheDir is set, mirroring
// RegulationMonitor.get_cached_text/save_cached_text from the V1 Python path.
func fetchWithCache(ctx context.Context, cfg *config.Config, url, cacheDir string) (string, error) {
	if cacheDir != "" {
		if cached, ok := readCache(cacheDir, url); ok {
			return cached, nil
		}
	}

	f := newFetcher(cfg)
	text, err := f.Fetch(ctx, url)
	if err != nil {
		return "", err
	}

	if cacheDir != "" {
		writeCache(cacheDir, url, text)
	}
	return text, nil
}

var slugInvalid = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func cachePath(cacheDir, url string) string {
	slug := strings.Trim(slugInvalid.ReplaceAllString(url, "_"), "_")
	return filepath.Join(cacheDir, slug+".txt")
}

func readCache(cacheDir, url string) (string, bool) {
	data, err := os.ReadFile(cachePath(cacheDir, url))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func writeCache(cacheDir, url, text string) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(cachePath(cacheDir, url), []byte(text), 0o644)
}

func runUpdateAll(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("update-all", flag.ContinueOnError)
	fs.SetOutput(stderr)

	defaultCfg := config.Load()
	var (
		dbURL, sourcesPath string
		verbose            bool
	)
	fs.StringVar(&dbURL, "db-url", defaultCfg.DBURL, "database URL")
	fs.StringVar(&sourcesPath, "config", defaultCfg.SourcesPath, "path to sources YAML (required)")
	fs.BoolVar(&verbose, "verbose", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if sourcesPath == "" {
		fmt.Fprintln(stderr, "Error: --config is required")
		return 2
	}

	logger := newLogger(verbose)
	obs, err := observability.New(context.Background(), observabilityConfig(defaultCfg))
	if err != nil {
		fmt.Fprintf(stderr, "observability init: %v\n", err)
		return 1
	}
	defer obs.Shutdown(context.Background())

	ctx, done := obs.TrackOperation(context.Background(), "cli.update_all")
	var runErr error
	defer func() { done(runErr) }()

	s, db, err := openStore(dbURL)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		runErr = err
		return 1
	}
	defer db.Close()

	sources, err := config.LoadSources(sourcesPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		runErr = err
		return 1
	}
	for _, src := range sources {
		if err := s.UpsertSource(ctx, &src); err != nil {
			fmt.Fprintf(stderr, "Error upserting source %s: %v\n", src.ID, err)
			runErr = err
			return 1
		}
	}

	alerts := alertemit.New(http.DefaultClient, "", logger)
	engine := ingest.New(s, alerts)
	f := newFetcher(defaultCfg)
	sparql := sparqlclient.New(http.DefaultClient)
	rss := rssreader.New(http.DefaultClient)

	mon := monitor.New(s, f, sparql, rss, engine, alerts, 0)
	counts, err := mon.UpdateAll(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		runErr = err
		return 1
	}

	fmt.Fprintf(stdout, "eli_sparql=%d rss=%d html=%d errors=%d total=%d\n",
		counts.ELISPARQL, counts.RSS, counts.HTML, counts.Errors, counts.Total)
	return 0
}
