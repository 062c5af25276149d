// Package collector gathers web pages into documents for ingestion.
//
// Crawling is bounded by an allowed-domain suffix filter and a page
// budget. Page text is extracted with readability first, falling back to
// stripping boilerplate tags when an article cannot be isolated.
package collector

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/prvlabs/prva/internal/knowledge"
)

// Config bounds a crawl.
type Config struct {
	AllowedDomains []string      // Hostname suffixes; empty allows all
	MaxPages       int           // Hard page budget (default 100)
	Parallelism    int           // Concurrent fetches (default 2)
	Delay          time.Duration // Per-domain politeness delay
	Timeout        time.Duration // Per-request timeout
	ValveModel     string        // Optional tag for produced documents
}

// Result reports a finished crawl.
type Result struct {
	Documents []knowledge.Document
	Visited   []string
}

// Collector crawls seed URLs and converts each HTML page into a
// Document with source_type "web" and the URL as source ID.
type Collector struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Collector.
func New(cfg Config, logger *slog.Logger) *Collector {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{cfg: cfg, logger: logger}
}

// Collect crawls from the seeds and returns the collected documents.
// Fetch and parse failures skip the page; the crawl continues.
func (c *Collector) Collect(ctx context.Context, seeds []string) (Result, error) {
	if len(seeds) == 0 {
		return Result{}, fmt.Errorf("at least one seed URL is required")
	}

	crawler := colly.NewCollector(colly.Async(true))
	crawler.SetRequestTimeout(c.cfg.Timeout)
	if err := crawler.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.cfg.Parallelism,
		Delay:       c.cfg.Delay,
	}); err != nil {
		return Result{}, fmt.Errorf("configuring crawl limits: %w", err)
	}

	var (
		mu      sync.Mutex
		result  Result
		visited int
	)

	crawler.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if !c.domainAllowed(r.URL.Hostname()) {
			r.Abort()
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if visited >= c.cfg.MaxPages {
			r.Abort()
			return
		}
		visited++
	})

	crawler.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if !strings.Contains(contentType, "text/html") {
			return
		}
		text, err := extractText(r)
		if err != nil {
			c.logger.Warn("failed to extract page text", "url", r.Request.URL, "error", err)
			return
		}
		if strings.TrimSpace(text) == "" {
			return
		}

		url := r.Request.URL.String()
		doc := knowledge.Document{
			SourceType: knowledge.SourceTypeWeb,
			SourceID:   url,
			ValveModel: c.cfg.ValveModel,
			Timestamp:  time.Now().UTC(),
			RawText:    text,
			Metadata:   map[string]string{"url": url},
		}

		mu.Lock()
		result.Documents = append(result.Documents, doc)
		result.Visited = append(result.Visited, url)
		mu.Unlock()
	})

	crawler.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		// Visit filters duplicates; the request hook enforces the budget.
		_ = e.Request.Visit(link)
	})

	crawler.OnError(func(r *colly.Response, err error) {
		c.logger.Debug("fetch failed", "url", r.Request.URL, "error", err)
	})

	for _, seed := range seeds {
		if err := crawler.Visit(seed); err != nil {
			c.logger.Warn("seed rejected", "url", seed, "error", err)
		}
	}
	crawler.Wait()

	c.logger.Info("crawl finished", "pages", len(result.Documents), "seeds", len(seeds))
	return result, nil
}

func (c *Collector) domainAllowed(hostname string) bool {
	if len(c.cfg.AllowedDomains) == 0 {
		return true
	}
	for _, domain := range c.cfg.AllowedDomains {
		if strings.HasSuffix(hostname, domain) {
			return true
		}
	}
	return false
}

// extractText isolates the readable text of a fetched page, preferring
// readability's article extraction over raw tag stripping.
func extractText(r *colly.Response) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(r.Body), r.Request.URL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return article.TextContent, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	return doc.Find("body").Text(), nil
}
