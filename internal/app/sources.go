package app

import (
	"net/url"
	"strings"
)

// normalizeSources canonicalizes the -url inputs and drops repeats, so one
// page listed twice is scraped and delivered once. Unparseable entries are
// kept verbatim and fail later at load time.
func normalizeSources(raw []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := s
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			normalizeURL(u)
			key = u.String()
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func normalizeURL(u *url.URL) {
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)
	if u.RawQuery == "" {
		return
	}
	q := u.Query()
	// Tracking and cache-busting parameters do not change the page.
	for _, p := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id", "gclid", "fbclid", "d2l_body_type", "_"} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
}
