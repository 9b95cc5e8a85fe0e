package app

import "time"

// Config holds runtime configuration for the application.
type Config struct {
	// Input: LMS pages to load, or a saved snapshot.
	URLs     []string
	HTMLPath string
	// PageURL is the address a saved snapshot was taken from; extractors
	// match on it.
	PageURL string

	// Preferences
	DefaultTime string
	IncludeAll  bool
	Timezone    string

	// Delivery
	APIBase     string
	APIToken    string
	InsecureTLS bool

	// Fetching
	Cookie       string
	Render       bool
	ChromePath   string
	FetchTimeout time.Duration
	// FetchRate is requests per second against the LMS; 0 means unlimited.
	FetchRate float64
	UserAgent string

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool

	// Behavior
	DryRun  bool
	OutPath string
	PDFPath string
	Verbose bool

	// Now overrides the clock that supplies the current year.
	Now func() time.Time
}

const (
	defaultTimeDefault  = "23:59"
	cacheDirDefault     = ".studysync-cache"
	fetchTimeoutDefault = 30 * time.Second
	fetchRateDefault    = 2.0
)
