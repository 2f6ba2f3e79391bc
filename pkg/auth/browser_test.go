package auth

import "testing"

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"bare domain", "example.com", "example.com"},
		{"subdomain stripped", "docs.example.com", "example.com"},
		{"deep subdomain stripped", "a.b.example.com", "example.com"},
		{"case folded", "Docs.Example.COM", "example.com"},
		{"trailing dot removed", "example.com.", "example.com"},
		{"single label kept", "localhost", "localhost"},
		{"ipv4 kept whole", "192.168.1.5", "192.168.1.5"},
		{"ipv6 kept whole", "::1", "::1"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RegistrableDomain(tt.host); got != tt.want {
				t.Errorf("RegistrableDomain(%q) = %q, want %q", tt.host, got, tt.want)
			}
		})
	}
}
