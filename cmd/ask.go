package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prvlabs/prva/internal/rag"
)

var (
	askTopK       int
	askValveModel string
	askSources    bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question against the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "k", "k", 0, "number of chunks to retrieve (default from config)")
	askCmd.Flags().StringVar(&askValveModel, "valve-model", "", "restrict retrieval to one valve model")
	askCmd.Flags().BoolVar(&askSources, "sources", false, "print the source documents used")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	question := strings.Join(args, " ")

	var opts []rag.QueryOption
	if askTopK > 0 {
		opts = append(opts, rag.WithTopK(askTopK))
	}
	if askValveModel != "" {
		opts = append(opts, rag.WithValveModel(askValveModel))
	}

	answer, err := a.System.Ask(ctx, question, opts...)
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(answer.Text)
	if askSources {
		printSources(answer)
	}
	return nil
}

// printSources lists the grounding documents below an answer.
func printSources(answer rag.Answer) {
	if len(answer.Sources) == 0 {
		fmt.Println("\n(no documents retrieved - answered from general knowledge)")
		return
	}
	fmt.Println("\nSources:")
	seen := make(map[string]struct{})
	for _, src := range answer.Sources {
		if _, ok := seen[src.SourceID]; ok {
			continue
		}
		seen[src.SourceID] = struct{}{}
		fmt.Printf("  - %s (distance %.3f)\n", src.SourceID, src.Distance)
	}
}
