// Command linkgrab extracts the links referenced by a web page, enriches
// them with resolved titles, and prints rule-rewritten title/URL pairs.
//
// Usage:
//
//	linkgrab -ws ws://127.0.0.1:9222/... # list open browser tabs
//	linkgrab -ws ws://127.0.0.1:9222/... -tab 2
//	linkgrab -html page.html -base https://example.com/
//	curl -s https://example.com/ | linkgrab -html - -base https://example.com/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/codeGROOVE-dev/linkgrab/pkg/auth"
	"github.com/codeGROOVE-dev/linkgrab/pkg/httpcache"
	"github.com/codeGROOVE-dev/linkgrab/pkg/link"
	"github.com/codeGROOVE-dev/linkgrab/pkg/linkgrab"
	"github.com/codeGROOVE-dev/linkgrab/pkg/rewrite"
	"github.com/codeGROOVE-dev/linkgrab/pkg/tabsource"
)

func main() {
	wsURL := flag.String("ws", "", "DevTools websocket URL of a running browser")
	tabIndex := flag.Int("tab", -1, "tab index to extract from (with -ws; omit to list tabs)")
	htmlPath := flag.String("html", "", "read page HTML from a file ('-' for stdin)")
	baseURL := flag.String("base", "", "base URL for resolving relative links (with -html)")
	rulesPath := flag.String("rules", "", "YAML rule file for title/URL rewriting")
	scopeKey := flag.String("scope", "", "destination scope key for scoped rule groups")
	format := flag.String("format", "text", "output format: text, markdown, or json")
	previews := flag.Bool("previews", false, "also fetch social preview metadata per link")
	icons := flag.Bool("icons", false, "also fetch site icons per link")
	browserCookies := flag.Bool("browser-cookies", false, "send browser cookies with title fetches")
	concurrency := flag.Int("concurrency", 0, "max concurrent enrichment fetches (0 = unbounded)")
	timeout := flag.Duration("timeout", 60*time.Second, "overall deadline for the extraction session")
	noCache := flag.Bool("no-cache", false, "disable the persistent HTTP body cache")
	cacheTTL := flag.Duration("cache-ttl", 7*24*time.Hour, "persistent cache time-to-live")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pageHTML, pageBase, err := pageInput(ctx, *wsURL, *tabIndex, *htmlPath, *baseURL, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if pageHTML == "" {
		// Tab listing mode already printed; nothing to extract.
		return
	}

	var cache *httpcache.Cache
	if !*noCache {
		cache, err = httpcache.New(*cacheTTL)
		if err != nil {
			logger.Warn("failed to initialize cache, continuing without cache", "error", err)
		} else {
			defer func() {
				if err := cache.Close(); err != nil {
					logger.Warn("failed to close cache", "error", err)
				}
			}()
		}
	}

	opts := []linkgrab.Option{
		linkgrab.WithLogger(logger),
		linkgrab.WithConcurrency(*concurrency),
	}
	if cache != nil {
		opts = append(opts, linkgrab.WithHTTPCache(cache))
	}
	if *browserCookies {
		opts = append(opts, linkgrab.WithCookieFunc(auth.NewBrowserSource(logger).Cookies))
	}

	session := linkgrab.New(opts...)

	rules, err := loadRules(*rulesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1) //nolint:gocritic // exitAfterDefer is acceptable in main
	}

	links := session.Extract(pageHTML, pageBase)
	session.Enrich(ctx, links)

	if err := output(ctx, session, links, rules, *scopeKey, *format, *previews, *icons); err != nil {
		fmt.Fprintf(os.Stderr, "Output error: %v\n", err)
		os.Exit(1)
	}
}

// pageInput resolves the page HTML and base URL from either a browser tab or
// a local file/stdin. In tab-listing mode it prints the tabs and returns
// empty HTML.
func pageInput(ctx context.Context, wsURL string, tabIndex int, htmlPath, baseURL string, logger *slog.Logger) (pageHTML, pageBase string, err error) {
	switch {
	case wsURL != "":
		src, err := tabsource.Connect(wsURL, logger)
		if err != nil {
			return "", "", err
		}
		defer func() { _ = src.Close() }() //nolint:errcheck // detaching, browser keeps running

		tabs, err := src.Tabs(ctx)
		if err != nil {
			return "", "", err
		}
		if tabIndex < 0 {
			printTabs(tabs)
			return "", "", nil
		}
		if tabIndex >= len(tabs) {
			return "", "", fmt.Errorf("tab %d out of range (%d open tabs)", tabIndex, len(tabs))
		}
		html, err := src.HTML(ctx, tabs[tabIndex].URL)
		if err != nil {
			return "", "", err
		}
		return html, tabs[tabIndex].URL, nil

	case htmlPath != "":
		if baseURL == "" {
			return "", "", fmt.Errorf("-base is required with -html")
		}
		var data []byte
		if htmlPath == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(htmlPath)
		}
		if err != nil {
			return "", "", err
		}
		return string(data), baseURL, nil

	default:
		flag.Usage()
		return "", "", fmt.Errorf("one of -ws or -html is required")
	}
}

func printTabs(tabs []tabsource.Tab) {
	for _, t := range tabs {
		marker := " "
		if t.Active {
			marker = "*"
		}
		fmt.Printf("%s [%d] %s\t%s\n", marker, t.Index, t.Title, t.URL)
	}
}

func loadRules(path string) (*rewrite.RuleSet, error) {
	if path == "" {
		return nil, nil //nolint:nilnil // no rule file means pass-through output
	}
	return rewrite.LoadRules(path)
}

type jsonLink struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	AnchorText  string `json:"anchorText,omitempty"`
	State       string `json:"state"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	IconBytes   int    `json:"iconBytes,omitempty"`
}

func output(ctx context.Context, session *linkgrab.Session, links []*link.Link,
	rules *rewrite.RuleSet, scopeKey, format string, previews, icons bool,
) error {
	var out []jsonLink
	for _, l := range links {
		title, url := session.Output(l, rules, scopeKey)
		row := jsonLink{Title: title, URL: url, AnchorText: l.AnchorText, State: l.State().String()}
		if previews {
			if p, ok := session.Preview(ctx, l.URL); ok {
				row.Description = p.Description
				row.ImageURL = p.ImageURL
			}
		}
		if icons {
			if icon, ok := session.Icon(ctx, l.URL); ok {
				row.IconBytes = len(icon)
			}
		}
		out = append(out, row)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "markdown":
		for _, row := range out {
			fmt.Printf("[%s](%s)\n", row.Title, row.URL)
		}
	case "text":
		for _, row := range out {
			fmt.Printf("%s\t%s\n", row.Title, row.URL)
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}
