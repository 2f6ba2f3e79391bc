// Package linkgrab extracts the links referenced by a web page, enriches each
// with a resolved title and optional preview metadata and site icon, and
// produces rule-rewritten (title, url) pairs for output.
//
// Basic usage:
//
//	session := linkgrab.New()
//	links := session.Extract(pageHTML, pageURL)
//	session.Enrich(ctx, links)
//	for _, l := range links {
//	    title, url := session.Output(l, rules, "")
//	    fmt.Printf("%s\t%s\n", title, url)
//	}
package linkgrab

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/linkgrab/pkg/favicon"
	"github.com/codeGROOVE-dev/linkgrab/pkg/httpcache"
	"github.com/codeGROOVE-dev/linkgrab/pkg/link"
	"github.com/codeGROOVE-dev/linkgrab/pkg/preview"
	"github.com/codeGROOVE-dev/linkgrab/pkg/rewrite"
	"github.com/codeGROOVE-dev/linkgrab/pkg/title"
)

// Session orchestrates one extraction pass: normalizer output, concurrent
// enrichment, and output-time rewriting. The preview and icon caches live for
// the Session's lifetime, so one Session per process is the expected shape.
type Session struct {
	titles   *title.Resolver
	previews *preview.Fetcher
	icons    *favicon.Fetcher
	logger   *slog.Logger
	limit    int
	onUpdate func(*link.Link)
}

// Option configures a Session.
type Option func(*config)

type config struct {
	logger   *slog.Logger
	body     httpcache.Cacher
	cookies  title.CookieFunc
	titles   *title.Resolver
	previews *preview.Fetcher
	icons    *favicon.Fetcher
	onUpdate func(*link.Link)
	limit    int
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithHTTPCache sets a persistent HTTP body cache shared by the preview and
// icon fetchers.
func WithHTTPCache(cache httpcache.Cacher) Option {
	return func(c *config) { c.body = cache }
}

// WithCookieFunc sets a per-host cookie source for the title resolver,
// typically auth.BrowserSource.Cookies.
func WithCookieFunc(fn title.CookieFunc) Option {
	return func(c *config) { c.cookies = fn }
}

// WithConcurrency bounds enrichment fan-out. Zero (the default) lets every
// link's title fetch proceed independently and in parallel.
func WithConcurrency(n int) Option {
	return func(c *config) { c.limit = n }
}

// WithUpdateFunc registers a callback invoked after each link's enrichment
// settles, from the enriching goroutine. Callers treat each invocation as an
// independent, eventually-consistent update.
func WithUpdateFunc(fn func(*link.Link)) Option {
	return func(c *config) { c.onUpdate = fn }
}

// WithTitleResolver replaces the default title resolver.
func WithTitleResolver(r *title.Resolver) Option {
	return func(c *config) { c.titles = r }
}

// WithPreviewFetcher replaces the default preview fetcher.
func WithPreviewFetcher(f *preview.Fetcher) Option {
	return func(c *config) { c.previews = f }
}

// WithIconFetcher replaces the default icon fetcher.
func WithIconFetcher(f *favicon.Fetcher) Option {
	return func(c *config) { c.icons = f }
}

// New creates a Session.
func New(opts ...Option) *Session {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.titles == nil {
		topts := []title.Option{title.WithLogger(cfg.logger)}
		if cfg.cookies != nil {
			topts = append(topts, title.WithCookieFunc(cfg.cookies))
		}
		cfg.titles = title.New(topts...)
	}
	if cfg.previews == nil {
		popts := []preview.Option{preview.WithLogger(cfg.logger)}
		if cfg.body != nil {
			popts = append(popts, preview.WithHTTPCache(cfg.body))
		}
		cfg.previews = preview.New(popts...)
	}
	if cfg.icons == nil {
		fopts := []favicon.Option{favicon.WithLogger(cfg.logger)}
		if cfg.body != nil {
			fopts = append(fopts, favicon.WithHTTPCache(cfg.body))
		}
		cfg.icons = favicon.New(fopts...)
	}

	return &Session{
		titles:   cfg.titles,
		previews: cfg.previews,
		icons:    cfg.icons,
		logger:   cfg.logger,
		limit:    cfg.limit,
		onUpdate: cfg.onUpdate,
	}
}

// Extract runs the normalizer over one page's HTML. Output order is
// deterministic for a given input.
func (s *Session) Extract(rawHTML, baseURL string) []*link.Link {
	links := link.Extract(rawHTML, baseURL)
	s.logger.Debug("extracted links", "count", len(links), "base", baseURL)
	return links
}

// Enrich resolves titles for all links concurrently and returns when every
// fetch has settled. Each link's state advances pending -> fetching ->
// success/failed; failures degrade to absence, never to an error. There is no
// ordering guarantee between links.
func (s *Session) Enrich(ctx context.Context, links []*link.Link) {
	var g errgroup.Group
	if s.limit > 0 {
		g.SetLimit(s.limit)
	}

	for _, l := range links {
		g.Go(func() error {
			s.enrichOne(ctx, l)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // enrichment never returns errors
}

func (s *Session) enrichOne(ctx context.Context, l *link.Link) {
	l.Advance(link.StateFetching)

	if t, ok := s.titles.Resolve(ctx, l.URL); ok {
		l.Title = t
		l.Advance(link.StateSuccess)
	} else {
		l.Advance(link.StateFailed)
	}

	if s.onUpdate != nil {
		s.onUpdate(l)
	}
}

// Preview returns the memoized social preview for a page URL. Concurrent
// calls for one URL share a single fetch.
func (s *Session) Preview(ctx context.Context, pageURL string) (preview.Preview, bool) {
	return s.previews.Fetch(ctx, pageURL)
}

// Icon returns the memoized site icon for the host of rawURL.
func (s *Session) Icon(ctx context.Context, rawURL string) ([]byte, bool) {
	return s.icons.Fetch(ctx, rawURL)
}

// Output produces the final (title, url) pair for a link: the display
// fallback chain (title, anchor text, URL) rewritten through the rule set.
// A nil rule set passes the pair through unchanged.
func (s *Session) Output(l *link.Link, rules *rewrite.RuleSet, scopeKey string) (string, string) {
	t, u := l.DisplayTitle(), l.URL
	if rules == nil {
		return t, u
	}
	return rules.Apply(t, u, scopeKey)
}
