package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prvlabs/prva/internal/rag"
)

var chatValveModel string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive question-and-answer session",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatValveModel, "valve-model", "", "restrict retrieval to one valve model")
	rootCmd.AddCommand(chatCmd)
}

func runChat(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	count, err := a.System.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading store stats: %w", err)
	}

	fmt.Printf("prva v%s - %d chunks indexed. Type /help for commands.\n", Version, count)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := handleChatCommand(ctx, a, line); done {
				return nil
			}
			continue
		}

		var opts []rag.QueryOption
		if chatValveModel != "" {
			opts = append(opts, rag.WithValveModel(chatValveModel))
		}

		answer, err := a.System.Ask(ctx, line, opts...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Println(answer.Text)
		printSources(answer)
		fmt.Println()
	}
}

// handleChatCommand runs a slash command. Returns true when the session
// should end.
func handleChatCommand(ctx context.Context, a *app, line string) bool {
	switch line {
	case "/exit", "/quit":
		return true
	case "/stats":
		count, err := a.System.Stats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return false
		}
		fmt.Printf("indexed chunks: %d (store: %s)\n", count, a.Config.StoreBackend)
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /stats        Show indexed chunk count")
		fmt.Println("  /help         Show this help")
		fmt.Println("  /exit, /quit  Leave the session")
	default:
		fmt.Printf("unknown command %q - try /help\n", line)
	}
	return false
}
