package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/studysync/internal/cache"
	"github.com/hyperifyio/studysync/internal/dates"
	"github.com/hyperifyio/studysync/internal/deliver"
	"github.com/hyperifyio/studysync/internal/extract"
	"github.com/hyperifyio/studysync/internal/fetch"
	"github.com/hyperifyio/studysync/internal/item"
	"github.com/hyperifyio/studysync/internal/render"
)

// ErrNothingFound is returned when no page produced a dated item. The CLI
// exits with status 2 on it.
var ErrNothingFound = errors.New("no dated items found")

// renderFunc loads a page in a browser; swapped out in tests.
type renderFunc func(ctx context.Context, url string, opts render.Options) (*render.Result, error)

type App struct {
	cfg      Config
	loc      *time.Location
	store    *cache.Store
	fetcher  *fetch.Client
	backend  *deliver.Client
	dispatch *extract.Dispatcher
	render   renderFunc
	stdout   io.Writer
}

// pageResult is what one input page produced.
type pageResult struct {
	Source    string
	URL       string
	Extractor string
	Records   []item.Record
}

func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.DefaultTime == "" {
		cfg.DefaultTime = dates.DefaultTime
	}
	if cfg.APIBase == "" {
		cfg.APIBase = deliver.DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent()
	}
	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone: %w", err)
		}
		loc = l
	}

	a := &App{cfg: cfg, loc: loc, render: render.Snapshot, stdout: os.Stdout}

	if cfg.CacheDir != "" {
		// Apply cache invalidation controls
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		if cfg.CacheMaxAge > 0 {
			if n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge, a.now()); err != nil {
				log.Warn().Err(err).Msg("cache purge failed")
			} else if n > 0 {
				log.Debug().Int("removed", n).Msg("purged stale page snapshots")
			}
		}
		a.store = &cache.Store{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms, Now: cfg.Now}
	}

	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = fetchTimeoutDefault
	}
	a.fetcher = &fetch.Client{
		HTTPClient:        newHTTPClient(timeout, false),
		UserAgent:         cfg.UserAgent,
		Cookie:            cfg.Cookie,
		MaxAttempts:       3,
		PerRequestTimeout: timeout,
		Cache:             a.store,
		MaxAge:            cfg.CacheMaxAge,
		MaxConcurrent:     2,
	}
	if cfg.FetchRate > 0 {
		a.fetcher.Limiter = rate.NewLimiter(rate.Limit(cfg.FetchRate), 1)
	}

	a.backend = &deliver.Client{
		BaseURL:    cfg.APIBase,
		Token:      cfg.APIToken,
		HTTPClient: newHTTPClient(timeout, cfg.InsecureTLS),
		UserAgent:  cfg.UserAgent,
		Logger:     log.Logger,
	}

	env := extract.NewEnv()
	env.Location = loc
	env.Logger = log.Logger
	if cfg.Now != nil {
		env.Now = cfg.Now
	}
	a.dispatch = extract.Default(env)
	return a, nil
}

// Close drops pooled connections held by the page and backend clients.
func (a *App) Close() {
	if a.fetcher != nil && a.fetcher.HTTPClient != nil {
		a.fetcher.HTTPClient.CloseIdleConnections()
	}
	if a.backend != nil && a.backend.HTTPClient != nil {
		a.backend.HTTPClient.CloseIdleConnections()
	}
}

func (a *App) now() time.Time {
	if a.cfg.Now != nil {
		return a.cfg.Now()
	}
	return time.Now()
}

func (a *App) prefs() extract.Prefs {
	return extract.Prefs{IncludeAll: a.cfg.IncludeAll, DefaultTime: a.cfg.DefaultTime}
}

// Run scrapes every configured page, writes the requested outputs and, unless
// dry-run, delivers each page's records to the backend.
func (a *App) Run(ctx context.Context) error {
	pages, err := a.scrapeAll(ctx)
	if err != nil {
		return err
	}
	all := mergeRecords(pages)
	if len(all) == 0 {
		log.Info().Msg("No dated items found here.")
		return ErrNothingFound
	}

	if a.cfg.OutPath != "" {
		if err := writeRecordsFile(a.cfg.OutPath, all); err != nil {
			return err
		}
		log.Info().Str("path", a.cfg.OutPath).Int("records", len(all)).Msg("wrote records")
	}
	if a.cfg.PDFPath != "" {
		if err := writeAgendaPDF(all, a.loc, a.now(), a.cfg.PDFPath); err != nil {
			return fmt.Errorf("write agenda pdf: %w", err)
		}
		log.Info().Str("path", a.cfg.PDFPath).Msg("wrote agenda")
	}

	if a.cfg.DryRun {
		log.Info().Int("records", len(all)).Msg("dry run; not delivering")
		return writeRecordsJSON(a.stdout, all)
	}
	return a.deliverAll(ctx, pages)
}

// scrapeAll loads and extracts every input. A page that fails to load is
// logged and skipped; the run fails only when every page failed.
func (a *App) scrapeAll(ctx context.Context) ([]pageResult, error) {
	var (
		results  []pageResult
		firstErr error
		loaded   int
	)
	sources := normalizeSources(a.cfg.URLs)
	if a.cfg.HTMLPath != "" {
		sources = append(sources, "file:"+a.cfg.HTMLPath)
	}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := a.load(ctx, src)
		if err != nil {
			log.Error().Err(err).Str("source", src).Msg("load page failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		loaded++
		res := a.dispatch.Dispatch(page, a.prefs())
		pr := pageResult{Source: src, URL: page.URL.String(), Extractor: res.Extractor, Records: res.Records}
		if res.Empty() {
			log.Info().Str("page", pr.URL).Str("title", page.Title()).Msg("no dated items on page")
		} else {
			log.Info().Str("page", pr.URL).Str("extractor", res.Extractor).Int("records", len(res.Records)).Msg("found items")
			for _, r := range res.Records {
				log.Debug().Str("uid", r.SourceUID).Str("kind", string(r.Kind)).Str("course", r.Course).Time("due", r.DueAt).Msg(r.Title)
			}
		}
		results = append(results, pr)
	}
	if loaded == 0 && firstErr != nil {
		return nil, fmt.Errorf("no page could be loaded: %w", firstErr)
	}
	return results, nil
}

// load turns one source into a parsed page. Sources prefixed "file:" are
// saved snapshots; anything else is fetched, or rendered when configured.
func (a *App) load(ctx context.Context, src string) (*extract.Page, error) {
	if path, ok := strings.CutPrefix(src, "file:"); ok {
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		return extract.NewPage(a.cfg.PageURL, body)
	}
	if a.cfg.Render {
		return a.loadRendered(ctx, src)
	}
	res, err := a.fetcher.Get(ctx, src)
	if err != nil {
		return nil, err
	}
	if res.FromCache {
		log.Debug().Str("url", src).Msg("page served from cache")
	}
	return extract.NewPage(res.FinalURL, res.Body)
}

func (a *App) loadRendered(ctx context.Context, src string) (*extract.Page, error) {
	if a.store != nil && a.store.Fresh(ctx, src, a.cfg.CacheMaxAge) {
		if meta, body, err := a.store.Load(ctx, src); err == nil && meta.Rendered {
			log.Debug().Str("url", src).Msg("rendered page served from cache")
			return extract.NewPage(meta.FinalURL, body)
		}
	}
	snap, err := a.render(ctx, src, render.Options{
		ChromePath: a.cfg.ChromePath,
		UserAgent:  a.cfg.UserAgent,
		Cookie:     a.cfg.Cookie,
		Timeout:    a.cfg.FetchTimeout,
		Settle:     2 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("url", src).Str("final", snap.FinalURL).Dur("took", snap.Took).Msg("rendered page")
	if a.store != nil {
		if err := a.store.Save(ctx, cache.Entry{URL: src, FinalURL: snap.FinalURL, ContentType: "text/html", Rendered: true}, []byte(snap.HTML)); err != nil {
			log.Warn().Err(err).Msg("save rendered snapshot failed")
		}
	}
	return extract.NewPage(snap.FinalURL, []byte(snap.HTML))
}

// deliverAll posts each page's records as its own batch after a best-effort
// health check.
func (a *App) deliverAll(ctx context.Context, pages []pageResult) error {
	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := a.backend.Health(hctx); err != nil {
		log.Warn().Err(err).Str("api", a.cfg.APIBase).Msg("backend health check failed; continuing")
	}
	cancel()

	synced := 0
	for _, p := range pages {
		if len(p.Records) == 0 {
			continue
		}
		stats, err := a.backend.Bulk(ctx, p.Records)
		if err != nil {
			if errors.Is(err, deliver.ErrUnauthorized) {
				log.Error().Msg("Please configure api.token first (sign up or log in to StudySync).")
			}
			return fmt.Errorf("deliver %s: %w", p.URL, err)
		}
		synced += len(p.Records)
		log.Info().Str("page", p.URL).Int("imported", stats.Imported).Int("updated", stats.Updated).Msgf("Synced %d item(s)", len(p.Records))
	}
	log.Info().Int("records", synced).Int("pages", len(pages)).Msg("sync complete")
	return nil
}
