package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prvlabs/prva/internal/knowledge"
	"github.com/prvlabs/prva/internal/rag"
)

var (
	ingestSourceType string
	ingestValveModel string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest local files into the knowledge base",
	Long: `Ingest reads the given files, chunks and embeds them, and stores the
chunks in the configured vector store. Re-ingesting a file replaces its
previous chunks.

Supported formats: .txt, .md, .rst (verbatim), .csv and .json (rendered
one record per paragraph). Other extensions are treated as plain text.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSourceType, "source-type", knowledge.SourceTypeUpload,
		"source type tag (manual, repair_log, upload, web)")
	ingestCmd.Flags().StringVar(&ingestValveModel, "valve-model", "", "valve model tag for all files")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	reports := a.System.IngestFiles(ctx, args, rag.FileOptions{
		SourceType: ingestSourceType,
		ValveModel: ingestValveModel,
	})

	return printReports(reports)
}

// printReports summarizes ingestion outcomes and returns an error if
// any document failed.
func printReports(reports []rag.DocumentReport) error {
	var failed int
	for _, r := range reports {
		switch r.Status {
		case rag.StatusComplete:
			fmt.Printf("  ok      %s (%d chunks)\n", r.SourceID, r.Chunks)
		case rag.StatusSkipped:
			fmt.Printf("  skipped %s: %s\n", r.SourceID, r.Detail)
		default:
			failed++
			fmt.Printf("  failed  %s: %s\n", r.SourceID, r.Detail)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(reports))
	}
	return nil
}
