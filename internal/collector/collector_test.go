package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prvlabs/prva/internal/knowledge"
	"github.com/prvlabs/prva/internal/log"
)

func page(title, body string, links ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p>", title, title, body)
	for _, l := range links {
		fmt.Fprintf(&b, `<a href=%q>%s</a>`, l, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newCrawlSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page("Valve maintenance index",
			"Disassembly and reassembly procedures for spring-loaded pressure relief valves.",
			"/seat", "/spring"))
	})
	mux.HandleFunc("/seat", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page("Seat lapping",
			"Lap the seat with fine compound until the sealing surface is free of scoring."))
	})
	mux.HandleFunc("/spring", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page("Spring inspection",
			"Measure free length and compare against the nameplate spring chart."))
	})
	mux.HandleFunc("/data.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"not":"html"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCollectRequiresSeeds(t *testing.T) {
	t.Parallel()

	c := New(Config{}, log.NewNop())
	if _, err := c.Collect(context.Background(), nil); err == nil {
		t.Error("Collect() without seeds expected error")
	}
}

func TestCollectFollowsLinks(t *testing.T) {
	t.Parallel()
	srv := newCrawlSite(t)

	c := New(Config{Timeout: 5 * time.Second, ValveModel: "PSV-100"}, log.NewNop())
	result, err := c.Collect(context.Background(), []string{srv.URL + "/"})
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}

	if len(result.Documents) != 3 {
		t.Fatalf("collected %d pages, want 3: %v", len(result.Documents), result.Visited)
	}

	byID := make(map[string]knowledge.Document, len(result.Documents))
	for _, doc := range result.Documents {
		byID[doc.SourceID] = doc
	}

	doc, ok := byID[srv.URL+"/seat"]
	if !ok {
		t.Fatalf("linked page not collected: %v", result.Visited)
	}
	if doc.SourceType != knowledge.SourceTypeWeb {
		t.Errorf("SourceType = %s, want web", doc.SourceType)
	}
	if doc.ValveModel != "PSV-100" {
		t.Errorf("ValveModel = %s, want PSV-100", doc.ValveModel)
	}
	if doc.Metadata["url"] != srv.URL+"/seat" {
		t.Errorf("metadata url = %q", doc.Metadata["url"])
	}
	if !strings.Contains(doc.RawText, "Lap the seat with fine compound") {
		t.Errorf("extracted text missing page body:\n%s", doc.RawText)
	}
	if strings.Contains(doc.RawText, "<p>") {
		t.Errorf("extracted text contains markup:\n%s", doc.RawText)
	}
}

func TestCollectHonorsPageBudget(t *testing.T) {
	t.Parallel()
	srv := newCrawlSite(t)

	c := New(Config{MaxPages: 1, Timeout: 5 * time.Second}, log.NewNop())
	result, err := c.Collect(context.Background(), []string{srv.URL + "/"})
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}

	if len(result.Documents) != 1 {
		t.Errorf("collected %d pages with budget 1: %v", len(result.Documents), result.Visited)
	}
}

func TestCollectSkipsNonHTML(t *testing.T) {
	t.Parallel()
	srv := newCrawlSite(t)

	c := New(Config{Timeout: 5 * time.Second}, log.NewNop())
	result, err := c.Collect(context.Background(), []string{srv.URL + "/data.json"})
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if len(result.Documents) != 0 {
		t.Errorf("non-HTML response produced %d documents", len(result.Documents))
	}
}

func TestCollectDomainFilter(t *testing.T) {
	t.Parallel()
	srv := newCrawlSite(t)

	c := New(Config{
		AllowedDomains: []string{"example.com"},
		Timeout:        5 * time.Second,
	}, log.NewNop())
	result, err := c.Collect(context.Background(), []string{srv.URL + "/"})
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if len(result.Documents) != 0 {
		t.Errorf("disallowed domain produced %d documents", len(result.Documents))
	}
}

func TestDomainAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		allowed  []string
		hostname string
		want     bool
	}{
		{"empty list allows all", nil, "anything.example.com", true},
		{"exact match", []string{"example.com"}, "example.com", true},
		{"subdomain suffix", []string{"example.com"}, "docs.example.com", true},
		{"different domain", []string{"example.com"}, "example.org", false},
		{"one of several", []string{"example.org", "example.com"}, "example.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := New(Config{AllowedDomains: tt.allowed}, log.NewNop())
			if got := c.domainAllowed(tt.hostname); got != tt.want {
				t.Errorf("domainAllowed(%q) = %v, want %v", tt.hostname, got, tt.want)
			}
		})
	}
}
