// Package preview extracts social preview metadata (Open Graph and Twitter
// card tags) for a page, memoized per page URL with request coalescing.
package preview

import (
	"context"
	"crypto/tls"
	"html"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/linkgrab/pkg/httpcache"
	"github.com/codeGROOVE-dev/linkgrab/pkg/memo"
)

const fetchTimeout = 8 * time.Second

// Preview holds the structured preview fields of a page.
type Preview struct {
	Title       string
	Description string
	ImageURL    string
}

// IsZero reports whether no preview field was found.
func (p Preview) IsZero() bool {
	return p.Title == "" && p.Description == "" && p.ImageURL == ""
}

// Fetcher retrieves and memoizes page previews. Concurrent calls for the same
// page URL share a single underlying fetch.
type Fetcher struct {
	client *http.Client
	cache  *memo.Cache[string, Preview]
	body   httpcache.Cacher
	logger *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithClient sets a custom HTTP client.
func WithClient(client *http.Client) Option {
	return func(f *Fetcher) { f.client = client }
}

// WithHTTPCache sets a persistent body cache shared with other fetchers.
func WithHTTPCache(cache httpcache.Cacher) Option {
	return func(f *Fetcher) { f.body = cache }
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: fetchTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // needed for corporate proxies
			},
		},
		cache:  memo.New[string, Preview](),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the preview for pageURL, fetching it at most once per process.
// Pages without preview metadata report ok=false and are not memoized.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (Preview, bool) {
	p, ok, err := f.cache.Get(ctx, pageURL, func(ctx context.Context) (Preview, bool, error) {
		return f.fetch(ctx, pageURL)
	})
	if err != nil {
		f.logger.Debug("preview fetch failed", "url", pageURL, "error", err)
		return Preview{}, false
	}
	return p, ok
}

func (f *Fetcher) fetch(ctx context.Context, pageURL string) (Preview, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return Preview{}, false, err
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	body, err := httpcache.FetchURL(ctx, f.body, f.client, req, f.logger)
	if err != nil {
		return Preview{}, false, err
	}

	p := Parse(string(body))
	return p, !p.IsZero(), nil
}

// Parse scans htmlContent for preview meta tags. Open Graph properties win;
// Twitter card tags fill the gaps.
func Parse(htmlContent string) Preview {
	return Preview{
		Title:       firstMeta(htmlContent, "og:title", "twitter:title"),
		Description: firstMeta(htmlContent, "og:description", "twitter:description"),
		ImageURL:    firstMeta(htmlContent, "og:image", "twitter:image"),
	}
}

func firstMeta(htmlContent string, keys ...string) string {
	for _, key := range keys {
		if v := metaContent(htmlContent, key); v != "" {
			return v
		}
	}
	return ""
}

// metaContent extracts a meta tag value by its property or name attribute,
// case-insensitively, handling either attribute order.
func metaContent(htmlContent, key string) string {
	quoted := regexp.QuoteMeta(key)
	// key before content
	p1 := regexp.MustCompile(`(?i)<meta[^>]+(?:property|name)=["']` + quoted + `["'][^>]+content=["']([^"']*)["']`)
	if m := p1.FindStringSubmatch(htmlContent); len(m) > 1 {
		return strings.TrimSpace(html.UnescapeString(m[1]))
	}
	// content before key
	p2 := regexp.MustCompile(`(?i)<meta[^>]+content=["']([^"']*)["'][^>]+(?:property|name)=["']` + quoted + `["']`)
	if m := p2.FindStringSubmatch(htmlContent); len(m) > 1 {
		return strings.TrimSpace(html.UnescapeString(m[1]))
	}
	return ""
}
