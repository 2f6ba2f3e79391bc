// Package link extracts hyperlinks from raw HTML and normalizes them into a
// deduplicated, order-stable set of canonical links.
package link

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

// State tracks a link's enrichment progress. Transitions are monotonic:
// Pending -> Fetching -> Success | Failed.
type State int

// Enrichment states.
const (
	StatePending State = iota
	StateFetching
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Link is a single hyperlink discovered on a page.
//
//nolint:govet // fieldalignment: intentional layout for readability
type Link struct {
	URL        string // canonical, possibly scheme-upgraded
	AnchorText string // entity-decoded display text, "" when absent
	Title      string // resolved page title, "" until enrichment succeeds

	state State
}

// State reports the current enrichment state.
func (l *Link) State() State { return l.state }

// Advance moves the enrichment state forward. Back-transitions are refused
// and reported as false.
func (l *Link) Advance(next State) bool {
	if next <= l.state {
		return false
	}
	l.state = next
	return true
}

// DisplayTitle returns the best available display text: resolved title,
// then anchor text, then the URL itself.
func (l *Link) DisplayTitle() string {
	if l.Title != "" {
		return l.Title
	}
	if l.AnchorText != "" {
		return l.AnchorText
	}
	return l.URL
}

// anchorPattern matches complete anchor elements with an href attribute in
// any position, using double quotes, single quotes, or no quotes. Unterminated
// anchors deliberately do not match.
var anchorPattern = regexp.MustCompile(
	`(?is)<a\s[^>]*?href\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))[^>]*>(.*?)</a>`)

// schemePattern detects whether a reference already carries a URL scheme.
var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)

// skippedSchemes are non-navigational references that never produce a link.
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// Extract scans rawHTML for anchor tags and returns the deduplicated links in
// encounter order. Relative references are resolved against baseURL. Only
// http and https results survive. When the same canonical resource appears
// first as http and later as https, the stored URL is upgraded to https while
// the first occurrence's position and anchor text are kept.
func Extract(rawHTML, baseURL string) []*Link {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	var links []*Link
	index := make(map[string]int)

	for _, m := range anchorPattern.FindAllStringSubmatch(rawHTML, -1) {
		href := strings.TrimSpace(m[1] + m[2] + m[3])
		resolved := resolveHref(href, base)
		if resolved == nil {
			continue
		}

		key := canonicalKey(resolved)
		if i, seen := index[key]; seen {
			// Prefer the secure scheme, keep everything else from the
			// first occurrence.
			if resolved.Scheme == "https" && strings.HasPrefix(links[i].URL, "http://") {
				links[i].URL = "https://" + strings.TrimPrefix(links[i].URL, "http://")
			}
			continue
		}

		index[key] = len(links)
		links = append(links, &Link{
			URL:        normalizedString(resolved),
			AnchorText: InnerText(m[4]),
		})
	}

	return links
}

// resolveHref turns a raw href value into an absolute http(s) URL, or nil if
// the reference is non-navigational or unparseable.
func resolveHref(href string, base *url.URL) *url.URL {
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	lower := strings.ToLower(href)
	for _, s := range skippedSchemes {
		if strings.HasPrefix(lower, s) {
			return nil
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}

	var abs *url.URL
	switch {
	case schemePattern.MatchString(href):
		abs = ref
	case base != nil:
		abs = base.ResolveReference(ref)
	default:
		return nil
	}

	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil
	}
	if abs.Host == "" {
		return nil
	}
	return abs
}

// CanonicalKey computes the identity under which two raw references are
// considered the same resource: fragment stripped, one trailing slash removed
// from a non-root path, scheme folded so http and https collapse, host
// lowercased. The query string is left untouched.
func CanonicalKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return canonicalKey(u)
}

func canonicalKey(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.Host = strings.ToLower(c.Host)
	c.Path = trimTrailingSlash(c.Path)
	c.RawPath = ""
	if c.Scheme == "http" {
		c.Scheme = "https"
	}
	return c.String()
}

// normalizedString renders the stored form of a link URL: fragment stripped
// and trailing slash normalized, but the original scheme preserved.
func normalizedString(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.Path = trimTrailingSlash(c.Path)
	c.RawPath = ""
	return c.String()
}

func trimTrailingSlash(path string) string {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return path[:len(path)-1]
	}
	return path
}

// Display-text cleanup patterns.
var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// InnerText reduces anchor body markup to plain display text: tags stripped,
// entities decoded, whitespace runs collapsed to single spaces.
func InnerText(markup string) string {
	text := tagPattern.ReplaceAllString(markup, " ")
	text = html.UnescapeString(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
