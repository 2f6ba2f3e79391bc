// Package auth reads cookies from browser cookie stores so enrichment
// fetches can see pages that require a logged-in session.
package auth

import (
	"context"
	"log/slog"
	"net"
	"strings"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // Import all browser cookie stores
)

// BrowserSource reads cookies from browser cookie stores.
type BrowserSource struct {
	logger *slog.Logger
}

// NewBrowserSource creates a new browser cookie source.
func NewBrowserSource(logger *slog.Logger) *BrowserSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserSource{logger: logger}
}

// Cookies returns the browser cookies valid for host. A failed or empty read
// is not an error; enrichment simply proceeds unauthenticated.
func (s *BrowserSource) Cookies(ctx context.Context, host string) map[string]string {
	domain := RegistrableDomain(host)
	if domain == "" {
		return nil
	}

	kookies, err := kooky.ReadCookies(ctx, kooky.Valid, kooky.DomainHasSuffix(domain))
	if err != nil {
		s.logger.Debug("failed to read browser cookies", "domain", domain, "error", err)
		return nil
	}
	if len(kookies) == 0 {
		return nil
	}

	cookies := make(map[string]string, len(kookies))
	for _, c := range kookies {
		cookies[c.Name] = c.Value
	}
	s.logger.Debug("loaded browser cookies", "domain", domain, "count", len(cookies))
	return cookies
}

// RegistrableDomain reduces a hostname to the suffix cookies are scoped to:
// the last two labels ("docs.example.co" -> "example.co"). Bare hosts and IP
// literals are returned unchanged; empty input stays empty.
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if net.ParseIP(host) != nil {
		return host
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
