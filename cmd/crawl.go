package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prvlabs/prva/internal/collector"
)

var (
	crawlAllowedDomains []string
	crawlMaxPages       int
	crawlValveModel     string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [urls...]",
	Short: "Crawl vendor documentation into the knowledge base",
	Long: `Crawl fetches the seed URLs, follows links within the allowed domains,
extracts readable page text and ingests each page as a document with the
URL as its source ID. Re-crawling a page replaces its previous chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCrawl,
}

func init() {
	crawlCmd.Flags().StringSliceVar(&crawlAllowedDomains, "allow", nil,
		"domain suffixes to stay within (default: unrestricted)")
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "page budget (default from config)")
	crawlCmd.Flags().StringVar(&crawlValveModel, "valve-model", "", "valve model tag for crawled pages")
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	cfg := a.crawlConfig()
	cfg.AllowedDomains = crawlAllowedDomains
	cfg.ValveModel = crawlValveModel
	if crawlMaxPages > 0 {
		cfg.MaxPages = crawlMaxPages
	}

	result, err := collector.New(cfg, a.Logger).Collect(ctx, args)
	if err != nil {
		return fmt.Errorf("crawling: %w", err)
	}

	fmt.Printf("collected %d pages\n", len(result.Documents))
	reports := a.System.Ingest(ctx, result.Documents)
	return printReports(reports)
}
