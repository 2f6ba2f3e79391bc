package preview

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		html string
		want Preview
	}{
		{
			name: "og tags in property-first order",
			html: `<meta property="og:title" content="The Title">` +
				`<meta property="og:description" content="The description.">` +
				`<meta property="og:image" content="https://img.test/x.png">`,
			want: Preview{Title: "The Title", Description: "The description.", ImageURL: "https://img.test/x.png"},
		},
		{
			name: "content before property",
			html: `<meta content="Reversed" property="og:title">`,
			want: Preview{Title: "Reversed"},
		},
		{
			name: "case-insensitive markers",
			html: `<META PROPERTY="OG:TITLE" CONTENT="Shouty">`,
			want: Preview{Title: "Shouty"},
		},
		{
			name: "single quotes",
			html: `<meta property='og:title' content='Quoted'>`,
			want: Preview{Title: "Quoted"},
		},
		{
			name: "twitter card fallback via name attribute",
			html: `<meta name="twitter:title" content="Tweet Title">` +
				`<meta name="twitter:description" content="Tweet desc">`,
			want: Preview{Title: "Tweet Title", Description: "Tweet desc"},
		},
		{
			name: "og wins over twitter",
			html: `<meta name="twitter:title" content="Tweet">` +
				`<meta property="og:title" content="OG">`,
			want: Preview{Title: "OG"},
		},
		{
			name: "entities decoded",
			html: `<meta property="og:title" content="Q&amp;A">`,
			want: Preview{Title: "Q&A"},
		},
		{
			name: "no preview markers",
			html: `<title>plain page</title>`,
			want: Preview{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.html)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchMemoizes(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `<meta property="og:title" content="Once">`)
	}))
	defer srv.Close()

	f := New(WithClient(srv.Client()))
	ctx := context.Background()

	for range 3 {
		p, ok := f.Fetch(ctx, srv.URL)
		if !ok || p.Title != "Once" {
			t.Fatalf("Fetch() = (%+v, %v), want title Once", p, ok)
		}
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("server saw %d requests, want 1", n)
	}
}

func TestFetchCoalescesConcurrentCallers(t *testing.T) {
	var requests atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		<-release
		fmt.Fprint(w, `<meta property="og:title" content="Shared">`)
	}))
	defer srv.Close()

	f := New(WithClient(srv.Client()))
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p, ok := f.Fetch(ctx, srv.URL); !ok || p.Title != "Shared" {
				t.Errorf("Fetch() = (%+v, %v), want title Shared", p, ok)
			}
		}()
	}
	close(release)
	wg.Wait()

	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d requests for concurrent fetches, want 1", got)
	}
}

func TestFetchAbsenceNotMemoized(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `<html><body>no preview tags</body></html>`)
	}))
	defer srv.Close()

	f := New(WithClient(srv.Client()))
	ctx := context.Background()

	for range 2 {
		if p, ok := f.Fetch(ctx, srv.URL); ok {
			t.Fatalf("Fetch() = (%+v, true), want absence", p)
		}
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("server saw %d requests, want 2 (absence must not be memoized)", n)
	}
}

func TestFetchErrorYieldsAbsence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(WithClient(srv.Client()))
	if p, ok := f.Fetch(context.Background(), srv.URL); ok {
		t.Errorf("Fetch() = (%+v, true), want absence on 503", p)
	}
}
