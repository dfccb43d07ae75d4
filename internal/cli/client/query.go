package client

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/deskrag/internal/api/handlers"
	"github.com/spf13/cobra"
)

// QueryCmd creates the query command.
func QueryCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "query <message>",
		Short: "Find the chunks most relevant to a customer message",
		Long: `Runs a similarity search over stored chunks. When the server has a chat
model configured, the reply also carries a drafted answer.

Examples:
  deskrag query "how long do refunds take?"
  deskrag query --top-k 3 "do you ship to Canada"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runQuery(cmd, NewAPIClientWithCmd(cmd), strings.Join(args, " "), topK, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to return (server default when 0)")

	return cmd
}

func runQuery(cmd *cobra.Command, client *APIClient, message string, topK int, outputJSON bool) error {
	req := handlers.QueryRequest{Message: message}
	if topK != 0 {
		req.TopK = &topK
	}

	var resp handlers.QueryResponse
	if err := client.Post("/query", req, &resp); err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, resp)
	}

	fmt.Fprintln(out, resp.Message)
	if resp.RetrievalUnavailable {
		fmt.Fprintln(out, "(retrieval unavailable: embedding provider failed)")
	}
	for i, src := range resp.Sources {
		fmt.Fprintf(out, "\n%d. %s #%d (%.3f)\n", i+1, src.Source, src.Chunk, src.Similarity)
		fmt.Fprintf(out, "   %s\n", strings.ReplaceAll(src.Preview, "\n", " "))
	}
	if resp.Answer != "" {
		fmt.Fprintf(out, "\nDraft answer:\n%s\n", resp.Answer)
	}
	return nil
}
