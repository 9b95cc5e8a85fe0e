// Package render loads LMS pages in headless Chrome, for pages whose
// upcoming-events widgets and calendar lists are filled in by script after
// the initial HTML arrives.
package render

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/hyperifyio/studysync/internal/fetch"
)

// Options configures a browser snapshot.
type Options struct {
	// ChromePath is the Chrome binary. Empty lets chromedp find one.
	ChromePath string
	UserAgent  string
	// Cookie is a raw Cookie header; each pair is installed for the target URL.
	Cookie string
	// Timeout bounds the whole snapshot. Zero means 45s.
	Timeout time.Duration
	// Settle is extra time after the body is ready for late widgets.
	Settle time.Duration
	// Headful shows the browser window instead of running headless.
	Headful bool
}

// Result is the rendered document and where the browser ended up.
type Result struct {
	HTML     string
	FinalURL string
	Took     time.Duration
}

const defaultTimeout = 45 * time.Second

// Snapshot navigates to targetURL and returns the rendered outer HTML.
func Snapshot(ctx context.Context, targetURL string, opts Options) (*Result, error) {
	u, err := url.Parse(targetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("render: unsupported url %q", targetURL)
	}
	start := time.Now()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)
	defer allocCancel()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(allocCtx, timeout)
	defer cancel()
	runCtx, cancel = chromedp.NewContext(runCtx)
	defer cancel()

	var html, finalURL string
	actions := []chromedp.Action{
		network.Enable(),
		installCookies(targetURL, opts.Cookie),
		network.SetExtraHTTPHeaders(network.Headers(map[string]interface{}{
			"Accept-Language": "en-US,en;q=0.9",
		})),
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if opts.Settle > 0 {
		actions = append(actions, chromedp.Sleep(opts.Settle))
	}
	actions = append(actions,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("render %s: timed out after %s: %w", targetURL, timeout, err)
		}
		return nil, fmt.Errorf("render %s: %w", targetURL, err)
	}
	return &Result{HTML: html, FinalURL: finalURL, Took: time.Since(start)}, nil
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-component-update", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.Flag("use-mock-keychain", true),
		chromedp.WindowSize(1440, 1024),
	}
	if !opts.Headful {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}
	return allocOpts
}

// installCookies seeds the browser with the session cookie before the first
// navigation so the LMS does not bounce to its sign-in page.
func installCookies(targetURL, header string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		params := CookieParams(targetURL, header)
		if len(params) == 0 {
			return nil
		}
		return network.SetCookies(params).Do(ctx)
	})
}

// CookieParams converts a raw Cookie header into devtools cookie parameters
// for targetURL's whole host.
func CookieParams(targetURL, header string) []*network.CookieParam {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	var out []*network.CookieParam
	for _, c := range fetch.ParseCookieHeader(header) {
		out = append(out, &network.CookieParam{
			Name:  c.Name,
			Value: c.Value,
			URL:   targetURL,
			Path:  "/",
		})
	}
	return out
}
