package app

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    yaml "gopkg.in/yaml.v3"

    "github.com/hyperifyio/studysync/internal/dates"
    "github.com/hyperifyio/studysync/internal/deliver"
)

// FileConfig represents the single-file configuration schema.
// Nested sections map naturally to the dotted flag names.
type FileConfig struct {
    URLs []string `yaml:"urls" json:"urls"`
    HTML string   `yaml:"html" json:"html"`
    Page struct {
        URL string `yaml:"url" json:"url"`
    } `yaml:"page" json:"page"`

    DefaultTime string `yaml:"defaultTime" json:"defaultTime"`
    IncludeAll  bool   `yaml:"includeAll" json:"includeAll"`
    Timezone    string `yaml:"timezone" json:"timezone"`

    API struct {
        Base     string `yaml:"base" json:"base"`
        Token    string `yaml:"token" json:"token"`
        Insecure bool   `yaml:"insecure" json:"insecure"`
    } `yaml:"api" json:"api"`

    Cookie     string `yaml:"cookie" json:"cookie"`
    Render     bool   `yaml:"render" json:"render"`
    Chrome struct {
        Path string `yaml:"path" json:"path"`
    } `yaml:"chrome" json:"chrome"`
    Fetch struct {
        Timeout   time.Duration `yaml:"timeout" json:"timeout"`
        Rate      float64       `yaml:"rate" json:"rate"`
        UserAgent string        `yaml:"userAgent" json:"userAgent"`
    } `yaml:"fetch" json:"fetch"`

    Cache struct {
        Dir         string        `yaml:"dir" json:"dir"`
        MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
        Clear       bool          `yaml:"clear" json:"clear"`
        StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
    } `yaml:"cache" json:"cache"`

    DryRun  bool   `yaml:"dryRun" json:"dryRun"`
    Out     string `yaml:"out" json:"out"`
    PDF     string `yaml:"pdf" json:"pdf"`
    Verbose bool   `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
    var fc FileConfig
    b, err := os.ReadFile(path)
    if err != nil {
        return fc, err
    }
    switch ext := filepath.Ext(path); ext {
    case ".yaml", ".yml":
        if err := yaml.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse yaml: %w", err)
        }
    case ".json":
        if err := json.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse json: %w", err)
        }
    default:
        // Try YAML then JSON
        if err := yaml.Unmarshal(b, &fc); err != nil {
            if jerr := json.Unmarshal(b, &fc); jerr != nil {
                return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
            }
        }
    }
    return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields that
// are currently unset or still at their flag default. Flags should already
// have been parsed; file config supplies defaults while explicit flags win.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
    if cfg == nil { return }

    if len(cfg.URLs) == 0 && len(fc.URLs) > 0 { cfg.URLs = append([]string{}, fc.URLs...) }
    if cfg.HTMLPath == "" && fc.HTML != "" { cfg.HTMLPath = fc.HTML }
    if cfg.PageURL == "" && fc.Page.URL != "" { cfg.PageURL = fc.Page.URL }

    if (cfg.DefaultTime == "" || cfg.DefaultTime == defaultTimeDefault) && fc.DefaultTime != "" { cfg.DefaultTime = fc.DefaultTime }
    if !cfg.IncludeAll && fc.IncludeAll { cfg.IncludeAll = true }
    if cfg.Timezone == "" && fc.Timezone != "" { cfg.Timezone = fc.Timezone }

    if (cfg.APIBase == "" || cfg.APIBase == deliver.DefaultBaseURL) && fc.API.Base != "" { cfg.APIBase = fc.API.Base }
    if cfg.APIToken == "" && fc.API.Token != "" { cfg.APIToken = fc.API.Token }
    if !cfg.InsecureTLS && fc.API.Insecure { cfg.InsecureTLS = true }

    if cfg.Cookie == "" && fc.Cookie != "" { cfg.Cookie = fc.Cookie }
    if !cfg.Render && fc.Render { cfg.Render = true }
    if cfg.ChromePath == "" && fc.Chrome.Path != "" { cfg.ChromePath = fc.Chrome.Path }
    if (cfg.FetchTimeout == 0 || cfg.FetchTimeout == fetchTimeoutDefault) && fc.Fetch.Timeout > 0 { cfg.FetchTimeout = fc.Fetch.Timeout }
    if (cfg.FetchRate == 0 || cfg.FetchRate == fetchRateDefault) && fc.Fetch.Rate > 0 { cfg.FetchRate = fc.Fetch.Rate }
    if cfg.UserAgent == "" && fc.Fetch.UserAgent != "" { cfg.UserAgent = fc.Fetch.UserAgent }

    if (cfg.CacheDir == "" || cfg.CacheDir == cacheDirDefault) && fc.Cache.Dir != "" { cfg.CacheDir = fc.Cache.Dir }
    if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge > 0 { cfg.CacheMaxAge = fc.Cache.MaxAge }
    if !cfg.CacheClear && fc.Cache.Clear { cfg.CacheClear = true }
    if !cfg.CacheStrictPerms && fc.Cache.StrictPerms { cfg.CacheStrictPerms = true }

    if !cfg.DryRun && fc.DryRun { cfg.DryRun = true }
    if cfg.OutPath == "" && fc.Out != "" { cfg.OutPath = fc.Out }
    if cfg.PDFPath == "" && fc.PDF != "" { cfg.PDFPath = fc.PDF }
    if !cfg.Verbose && fc.Verbose { cfg.Verbose = true }
}

// ValidateConfig performs minimal schema validation for required settings.
// For dry-run, the API token may be omitted.
func ValidateConfig(cfg Config) error {
    if len(cfg.URLs) == 0 && strings.TrimSpace(cfg.HTMLPath) == "" {
        return errors.New("config: at least one -url or -html snapshot is required")
    }
    for _, u := range cfg.URLs {
        if strings.TrimSpace(u) == "" {
            return errors.New("config: empty url")
        }
    }
    if cfg.DefaultTime != "" && !dates.ValidClock(cfg.DefaultTime) {
        return fmt.Errorf("config: defaultTime %q is not a time of day (e.g. 23:59 or 11:59 PM)", cfg.DefaultTime)
    }
    if cfg.Timezone != "" {
        if _, err := time.LoadLocation(cfg.Timezone); err != nil {
            return fmt.Errorf("config: timezone %q: %w", cfg.Timezone, err)
        }
    }
    if !cfg.DryRun && strings.TrimSpace(cfg.APIToken) == "" {
        return errors.New("config: api.token is required unless dry-run (or set STUDYSYNC_TOKEN)")
    }
    if cfg.FetchRate < 0 || cfg.FetchTimeout < 0 || cfg.CacheMaxAge < 0 {
        return errors.New("config: negative limits are not allowed")
    }
    return nil
}
