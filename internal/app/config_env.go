package app

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
    if cfg == nil { return }

    setString := func(dst *string, envKey string) {
        if *dst == "" {
            *dst = strings.TrimSpace(os.Getenv(envKey))
        }
    }
    setString(&cfg.APIBase, "STUDYSYNC_API_BASE")
    setString(&cfg.APIToken, "STUDYSYNC_TOKEN")
    setString(&cfg.DefaultTime, "STUDYSYNC_DEFAULT_TIME")
    setString(&cfg.Timezone, "STUDYSYNC_TZ")
    setString(&cfg.Cookie, "STUDYSYNC_COOKIE")
    setString(&cfg.CacheDir, "CACHE_DIR")

    if len(cfg.URLs) == 0 {
        cfg.URLs = splitList(os.Getenv("STUDYSYNC_URLS"))
    }

    // Optional durations
    if cfg.CacheMaxAge == 0 {
        if s := os.Getenv("CACHE_MAX_AGE"); s != "" {
            if d, err := time.ParseDuration(s); err == nil {
                cfg.CacheMaxAge = d
            }
        }
    }
    if cfg.FetchRate == 0 {
        if s := strings.TrimSpace(os.Getenv("FETCH_RATE")); s != "" {
            if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
                cfg.FetchRate = f
            }
        }
    }

    // Booleans
    setBool := func(dst *bool, envKey string) {
        if *dst { return }
        if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
            if s == "1" || s == "true" || s == "yes" || s == "on" {
                *dst = true
            }
        }
    }
    setBool(&cfg.IncludeAll, "INCLUDE_GENERAL")
    setBool(&cfg.DryRun, "DRY_RUN")
    setBool(&cfg.Verbose, "VERBOSE")
    setBool(&cfg.CacheClear, "CACHE_CLEAR")
    setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
}

// ApplyEnvOverrides forcefully overrides cfg fields with environment variables
// when the corresponding env vars are set. This lets env take precedence over
// values coming from a config file while flags remain highest precedence.
func ApplyEnvOverrides(cfg *Config) {
    if cfg == nil { return }

    if v := os.Getenv("STUDYSYNC_API_BASE"); v != "" { cfg.APIBase = v }
    if v := os.Getenv("STUDYSYNC_TOKEN"); v != "" { cfg.APIToken = v }
    if v := os.Getenv("STUDYSYNC_DEFAULT_TIME"); v != "" { cfg.DefaultTime = v }
    if v := os.Getenv("STUDYSYNC_TZ"); v != "" { cfg.Timezone = v }
    if v := os.Getenv("STUDYSYNC_COOKIE"); v != "" { cfg.Cookie = v }
    if v := os.Getenv("CACHE_DIR"); v != "" { cfg.CacheDir = v }
    if v := splitList(os.Getenv("STUDYSYNC_URLS")); len(v) > 0 { cfg.URLs = v }

    if s := os.Getenv("CACHE_MAX_AGE"); s != "" {
        if d, err := time.ParseDuration(s); err == nil {
            cfg.CacheMaxAge = d
        }
    }

    // Booleans override when env present and truthy/falsey
    setBool := func(dst *bool, envKey string) {
        if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
            switch s {
            case "1", "true", "yes", "on":
                *dst = true
            case "0", "false", "no", "off":
                *dst = false
            }
        }
    }
    setBool(&cfg.IncludeAll, "INCLUDE_GENERAL")
    setBool(&cfg.DryRun, "DRY_RUN")
    setBool(&cfg.Verbose, "VERBOSE")
    setBool(&cfg.CacheClear, "CACHE_CLEAR")
    setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
}

// splitList splits a comma separated list, dropping blanks.
func splitList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if v := strings.TrimSpace(p); v != "" {
            out = append(out, v)
        }
    }
    return out
}
