package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/studysync/internal/cache"
)

// ErrLoginRequired reports that the LMS bounced the request to its sign-in
// page, which means the session cookie is missing or expired.
var ErrLoginRequired = errors.New("lms redirected to login; session cookie missing or expired")

var loginPathRe = regexp.MustCompile(`(?i)/d2l/login|/d2l/lp/auth/login`)

// StatusError carries a non-2xx response status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Result is one loaded LMS page.
type Result struct {
	// URL is the address that was requested; FinalURL is where redirects ended.
	URL         string
	FinalURL    string
	ContentType string
	Body        []byte
	FromCache   bool
}

// Client wraps http.Client with the session cookie, timeouts, a request rate
// limit and limited retry on transient errors.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// Cookie is a raw Cookie header copied from a signed-in browser session.
	Cookie string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// Optional on-disk snapshot store.
	Cache *cache.Store
	// MaxAge serves snapshots younger than this without touching the network.
	MaxAge time.Duration
	// If true, skip conditional headers and cached bodies but still save.
	BypassCache bool

	// RedirectMaxHops caps redirect following to avoid loops. Zero means default (10).
	RedirectMaxHops int
	// Limiter paces requests to the LMS. Nil means unlimited.
	Limiter *rate.Limiter
	// MaxConcurrent limits concurrent in-flight requests. Zero means unlimited.
	MaxConcurrent int

	sem     chan struct{}
	semOnce sync.Once

	jarMu  sync.Mutex
	jar    http.CookieJar
	seeded map[string]bool
}

// NewJar returns a cookie jar seeded with a raw Cookie header for base, so
// cookies survive the redirects the LMS issues between its pages.
func NewJar(base *url.URL, header string) (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if base != nil {
		seedJar(jar, base, header)
	}
	return jar, nil
}

// ParseCookieHeader splits "a=1; b=2" into cookies.
func ParseCookieHeader(header string) []*http.Cookie {
	req := http.Request{Header: http.Header{"Cookie": {header}}}
	return req.Cookies()
}

// seedJar stores the header's cookies for the whole of u's host. A Cookie
// header carries no path, and the jar would otherwise scope each cookie to
// the directory of u.
func seedJar(jar http.CookieJar, u *url.URL, header string) {
	if strings.TrimSpace(header) == "" {
		return
	}
	cookies := ParseCookieHeader(header)
	for _, ck := range cookies {
		ck.Path = "/"
	}
	jar.SetCookies(&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, cookies)
}

// cookieJar returns the client's jar, seeding the session cookie the first
// time each host is requested.
func (c *Client) cookieJar(target *url.URL) (http.CookieJar, error) {
	c.jarMu.Lock()
	defer c.jarMu.Unlock()
	if c.jar == nil {
		if c.HTTPClient != nil && c.HTTPClient.Jar != nil {
			c.jar = c.HTTPClient.Jar
		} else {
			jar, err := NewJar(nil, "")
			if err != nil {
				return nil, err
			}
			c.jar = jar
		}
		c.seeded = map[string]bool{}
	}
	host := strings.ToLower(target.Host)
	if c.Cookie != "" && !c.seeded[host] {
		seedJar(c.jar, target, c.Cookie)
		c.seeded[host] = true
	}
	return c.jar, nil
}

func (c *Client) getHTTPClient(jar http.CookieJar) *http.Client {
	var base http.Client
	if c.HTTPClient != nil {
		// Clone to attach our policy without mutating caller's client
		base = *c.HTTPClient
	} else {
		base.Timeout = c.PerRequestTimeout
	}
	base.CheckRedirect = c.checkRedirectFunc()
	base.Jar = jar
	return &base
}

// Get loads rawURL, serving or revalidating a cached snapshot when a cache
// is configured.
func (c *Client) Get(ctx context.Context, rawURL string) (*Result, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(target) {
		return nil, fmt.Errorf("unsupported URL scheme: %q", rawURL)
	}

	var etag, lastMod string
	if c.Cache != nil && !c.BypassCache {
		if meta, body, err := c.Cache.Load(ctx, rawURL); err == nil {
			if c.Cache.Fresh(ctx, rawURL, c.MaxAge) {
				return &Result{URL: rawURL, FinalURL: firstNonEmpty(meta.FinalURL, rawURL), ContentType: meta.ContentType, Body: body, FromCache: true}, nil
			}
			etag = meta.ETag
			lastMod = meta.LastModified
		}
	}

	jar, err := c.cookieJar(target)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	httpClient := c.getHTTPClient(jar)

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		res, status, err := c.tryOnce(ctx, httpClient, rawURL, etag, lastMod)
		if err == nil {
			if status == http.StatusNotModified && c.Cache != nil {
				meta, cached, err := c.Cache.Load(ctx, rawURL)
				if err == nil {
					_ = c.Cache.Touch(ctx, rawURL)
					return &Result{URL: rawURL, FinalURL: firstNonEmpty(meta.FinalURL, rawURL), ContentType: meta.ContentType, Body: cached, FromCache: true}, nil
				}
				return nil, fmt.Errorf("304 without cached body: %w", err)
			}
			if c.Cache != nil {
				_ = c.Cache.Save(ctx, cache.Entry{
					URL:          rawURL,
					FinalURL:     res.FinalURL,
					ContentType:  res.ContentType,
					ETag:         res.etag,
					LastModified: res.lastModified,
				}, res.Body)
			}
			return &res.Result, nil
		}
		if !isTransient(err) || i == attempts-1 {
			return nil, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

type response struct {
	Result
	etag         string
	lastModified string
}

func (c *Client) tryOnce(ctx context.Context, httpClient *http.Client, rawURL, etag, lastMod string) (*response, int, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
	}
	c.acquire()
	defer c.release()

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("new request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Encoding", "br, gzip")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
		if loginPathRe.MatchString(resp.Request.URL.Path) {
			return nil, resp.StatusCode, ErrLoginRequired
		}
	}
	if resp.StatusCode == http.StatusNotModified {
		return &response{Result: Result{URL: rawURL, FinalURL: final}}, resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isAllowedHTMLContentType(contentType) {
		return nil, resp.StatusCode, fmt.Errorf("unsupported content type: %s", contentType)
	}
	body, err := decodeBody(resp)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return &response{
		Result:       Result{URL: rawURL, FinalURL: final, ContentType: contentType, Body: body},
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}, resp.StatusCode, nil
}

// decodeBody undoes the Content-Encoding we asked for. Setting
// Accept-Encoding by hand turns off the transport's own gzip handling.
func decodeBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return raw, nil
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("unsupported content encoding: %s", resp.Header.Get("Content-Encoding"))
	}
}

func isTransient(err error) bool {
	// HTTP 5xx, 429 and context deadline are worth another attempt.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 10
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		// Only allow http/https during redirects
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isAllowedHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) acquire() {
	if c.MaxConcurrent <= 0 {
		return
	}
	c.semOnce.Do(func() {
		c.sem = make(chan struct{}, c.MaxConcurrent)
	})
	c.sem <- struct{}{}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.sem == nil {
		return
	}
	select {
	case <-c.sem:
	default:
	}
}
