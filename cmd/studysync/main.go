package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/studysync/internal/app"
	"github.com/hyperifyio/studysync/internal/deliver"
	"github.com/hyperifyio/studysync/internal/fetch"
)

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			*s = append(*s, p)
		}
	}
	return nil
}

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		urls        stringList
		flagCfg     app.Config
		configPath  string
		envFiles    string
		showVersion bool
	)

	flag.Var(&urls, "url", "LMS page to scrape (repeatable or comma separated)")
	flag.StringVar(&flagCfg.HTMLPath, "html", "", "Saved HTML snapshot to scrape instead of fetching")
	flag.StringVar(&flagCfg.PageURL, "page.url", "", "Address the -html snapshot was taken from")
	flag.StringVar(&flagCfg.DefaultTime, "defaultTime", "23:59", "Time of day used when an item has no explicit time")
	flag.BoolVar(&flagCfg.IncludeAll, "includeAll", false, "Keep availability notices that are not framed as due")
	flag.StringVar(&flagCfg.Timezone, "tz", "", "IANA zone the LMS shows times in (default: local)")
	flag.StringVar(&flagCfg.APIBase, "api.base", deliver.DefaultBaseURL, "StudySync backend base URL")
	flag.StringVar(&flagCfg.APIToken, "api.token", "", "StudySync access token")
	flag.BoolVar(&flagCfg.InsecureTLS, "api.insecure", false, "Skip TLS verification for a self-hosted backend")
	flag.StringVar(&flagCfg.Cookie, "cookie", "", "Raw Cookie header from a signed-in LMS session")
	flag.BoolVar(&flagCfg.Render, "render", false, "Load pages in headless Chrome")
	flag.StringVar(&flagCfg.ChromePath, "chrome.path", "", "Chrome binary for -render (default: auto-detect)")
	flag.DurationVar(&flagCfg.FetchTimeout, "fetch.timeout", 30*time.Second, "Per-page load timeout")
	flag.Float64Var(&flagCfg.FetchRate, "fetch.rate", 2, "Max LMS requests per second (0 = unlimited)")
	flag.StringVar(&flagCfg.CacheDir, "cache.dir", ".studysync-cache", "Page snapshot cache directory (empty disables)")
	flag.DurationVar(&flagCfg.CacheMaxAge, "cache.maxAge", 0, "Serve snapshots younger than this and purge older ones; 0 disables")
	flag.BoolVar(&flagCfg.CacheClear, "cache.clear", false, "Clear cache directory before run")
	flag.BoolVar(&flagCfg.CacheStrictPerms, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	flag.BoolVar(&flagCfg.DryRun, "dry-run", false, "Print the records as JSON instead of delivering them")
	flag.StringVar(&flagCfg.OutPath, "out", "", "Also write the records as JSON to this file")
	flag.StringVar(&flagCfg.PDFPath, "pdf", "", "Also write a printable agenda PDF to this file")
	flag.BoolVar(&flagCfg.Verbose, "v", false, "Verbose logging")
	flag.StringVar(&configPath, "config", os.Getenv("STUDYSYNC_CONFIG"), "YAML or JSON config file")
	flag.StringVar(&envFiles, "env", ".env", "Comma separated dotenv files to load")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()
	flagCfg.URLs = urls

	if showVersion {
		fmt.Printf("studysync %s (%s, %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		return
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := buildConfig(flagCfg, set, configPath, strings.Split(envFiles, ","))
	if err != nil {
		log.Error().Err(err).Msg("configuration failed")
		os.Exit(1)
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		code := exitCode(err)
		if code == 2 {
			log.Warn().Err(err).Msg("run finished without items")
		} else {
			log.Error().Err(err).Msg("run failed")
		}
		os.Exit(code)
	}
}

// buildConfig layers configuration: defaults and file values, then env, then
// the flags that were explicitly set.
func buildConfig(flagCfg app.Config, set map[string]bool, configPath string, envFiles []string) (app.Config, error) {
	if err := app.LoadEnvFiles(envFiles...); err != nil {
		return app.Config{}, fmt.Errorf("load env files: %w", err)
	}
	cfg := flagCfg
	if strings.TrimSpace(configPath) != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			return app.Config{}, fmt.Errorf("load config file: %w", err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)
	overlayFlags(&cfg, flagCfg, set)
	if err := app.ValidateConfig(cfg); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

// overlayFlags copies explicitly set flags from src into dst.
func overlayFlags(dst *app.Config, src app.Config, set map[string]bool) {
	apply := map[string]func(){
		"url":               func() { dst.URLs = src.URLs },
		"html":              func() { dst.HTMLPath = src.HTMLPath },
		"page.url":          func() { dst.PageURL = src.PageURL },
		"defaultTime":       func() { dst.DefaultTime = src.DefaultTime },
		"includeAll":        func() { dst.IncludeAll = src.IncludeAll },
		"tz":                func() { dst.Timezone = src.Timezone },
		"api.base":          func() { dst.APIBase = src.APIBase },
		"api.token":         func() { dst.APIToken = src.APIToken },
		"api.insecure":      func() { dst.InsecureTLS = src.InsecureTLS },
		"cookie":            func() { dst.Cookie = src.Cookie },
		"render":            func() { dst.Render = src.Render },
		"chrome.path":       func() { dst.ChromePath = src.ChromePath },
		"fetch.timeout":     func() { dst.FetchTimeout = src.FetchTimeout },
		"fetch.rate":        func() { dst.FetchRate = src.FetchRate },
		"cache.dir":         func() { dst.CacheDir = src.CacheDir },
		"cache.maxAge":      func() { dst.CacheMaxAge = src.CacheMaxAge },
		"cache.clear":       func() { dst.CacheClear = src.CacheClear },
		"cache.strictPerms": func() { dst.CacheStrictPerms = src.CacheStrictPerms },
		"dry-run":           func() { dst.DryRun = src.DryRun },
		"out":               func() { dst.OutPath = src.OutPath },
		"pdf":               func() { dst.PDFPath = src.PDFPath },
		"v":                 func() { dst.Verbose = src.Verbose },
	}
	for name := range set {
		if f, ok := apply[name]; ok {
			f()
		}
	}
}

// exitCode maps run errors to the process exit status: 2 when nothing was
// found, 3 when the backend or the LMS refused our credentials, 1 otherwise.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, app.ErrNothingFound):
		return 2
	case errors.Is(err, deliver.ErrUnauthorized), errors.Is(err, fetch.ErrLoginRequired):
		return 3
	default:
		return 1
	}
}

func run(ctx context.Context, cfg app.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}
