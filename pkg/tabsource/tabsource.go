// Package tabsource supplies the open tabs of a running browser and, on
// demand, a tab's raw page HTML. The extraction core treats both as opaque
// inputs; this package is the adapter that produces them over the Chrome
// DevTools protocol.
package tabsource

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
)

// Tab describes one open browser tab.
type Tab struct {
	Index  int
	Title  string
	URL    string
	Active bool
}

// Source lists open tabs and fetches a tab's page source.
type Source interface {
	Tabs(ctx context.Context) ([]Tab, error)
	HTML(ctx context.Context, url string) (string, error)
}

// Browser is a Source attached to an already-running Chrome instance via its
// DevTools websocket URL. It never launches a browser of its own.
type Browser struct {
	browser *rod.Browser
	logger  *slog.Logger
}

// Connect attaches to the Chrome instance at wsURL
// (e.g. ws://127.0.0.1:9222/devtools/browser/<id>).
func Connect(wsURL string, logger *slog.Logger) (*Browser, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser at %s: %w", wsURL, err)
	}
	logger.Debug("attached to browser", "url", wsURL)

	return &Browser{browser: b, logger: logger}, nil
}

// Close detaches from the browser. The browser itself keeps running.
func (b *Browser) Close() error {
	return b.browser.Close()
}

// Tabs lists the browser's open http(s) pages in target order. The visible
// tab of each window is reported as active.
func (b *Browser) Tabs(ctx context.Context) ([]Tab, error) {
	pages, err := b.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	var tabs []Tab
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			b.logger.Debug("skipping page without target info", "error", err)
			continue
		}
		if !strings.HasPrefix(info.URL, "http://") && !strings.HasPrefix(info.URL, "https://") {
			continue
		}
		tabs = append(tabs, Tab{
			Index:  len(tabs),
			Title:  info.Title,
			URL:    info.URL,
			Active: isVisible(ctx, p),
		})
	}
	return tabs, nil
}

// HTML returns the serialized DOM of the open tab whose URL matches url.
func (b *Browser) HTML(ctx context.Context, url string) (string, error) {
	pages, err := b.browser.Context(ctx).Pages()
	if err != nil {
		return "", fmt.Errorf("list pages: %w", err)
	}

	for _, p := range pages {
		info, err := p.Info()
		if err != nil || !sameTab(info.URL, url) {
			continue
		}
		res, err := p.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
		if err != nil {
			return "", fmt.Errorf("serialize page %s: %w", url, err)
		}
		return res.Value.Str(), nil
	}
	return "", fmt.Errorf("no open tab for %s", url)
}

func isVisible(ctx context.Context, p *rod.Page) bool {
	res, err := p.Context(ctx).Eval(`() => document.visibilityState`)
	if err != nil {
		return false
	}
	return res.Value.Str() == "visible"
}

// sameTab compares tab URLs loosely: exact match, or equal after dropping a
// trailing slash, so the URL a tab reported moments ago still finds it.
func sameTab(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}
