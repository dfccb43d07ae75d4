package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/cloo-solutions/deskrag/internal/api"
	"github.com/cloo-solutions/deskrag/internal/api/handlers"
	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(w, string(output))
	return nil
}

// UploadCmd creates the upload command.
func UploadCmd() *cobra.Command {
	var progress bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document",
		Long: `Uploads a .txt, .md, .json or .pdf file. The server chunks and embeds it
before replying, so large files can take a while.

Examples:
  deskrag upload ./faq.md
  deskrag upload --progress ./handbook.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runUpload(cmd, NewAPIClientWithCmd(cmd), args[0], progress, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&progress, "progress", false, "Report upload progress on stderr")

	return cmd
}

func runUpload(cmd *cobra.Command, client *APIClient, path string, progress, outputJSON bool) error {
	var onProgress ProgressFunc
	if progress {
		errOut := cmd.ErrOrStderr()
		onProgress = func(current, total int64) {
			fmt.Fprintf(errOut, "\rsent %d/%d bytes", current, total)
			if current == total {
				fmt.Fprintln(errOut)
			}
		}
	}

	var resp handlers.UploadResponse
	if err := client.UploadFile(path, onProgress, &resp); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, resp)
	}
	fmt.Fprintf(out, "Uploaded %s: %d chunks, %d characters\n", resp.Filename, resp.Chunks, resp.TotalChars)
	if resp.ArchiveKey != "" {
		fmt.Fprintf(out, "Archived as %s\n", resp.ArchiveKey)
	}
	if resp.ArchiveURL != "" {
		fmt.Fprintf(out, "Download: %s\n", resp.ArchiveURL)
	}
	return nil
}

// ListCmd creates the list command.
func ListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runList(cmd, NewAPIClientWithCmd(cmd), outputJSON)
		},
	}
}

func runList(cmd *cobra.Command, client *APIClient, outputJSON bool) error {
	var resp handlers.ListDocumentsResponse
	if err := client.Get("/documents", &resp); err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, resp)
	}

	fmt.Fprintf(out, "%d documents, %d chunks\n", resp.Stats.DocumentCount, resp.Stats.ChunkCount)
	for _, doc := range resp.Documents {
		fmt.Fprintf(out, "\n%s (%d chunks, %d characters, uploaded %s)\n", doc.Source, doc.ChunkCount, doc.TotalChars, doc.UploadedAt)
		for _, chunk := range doc.Chunks {
			fmt.Fprintf(out, "  %s  %s\n", chunk.ID, strings.ReplaceAll(chunk.Preview, "\n", " "))
		}
	}
	return nil
}

// DeleteCmd creates the delete command.
func DeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chunk-id>",
		Short: "Delete one chunk by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDelete(cmd, NewAPIClientWithCmd(cmd), args[0], outputJSON)
		},
	}
}

func runDelete(cmd *cobra.Command, client *APIClient, id string, outputJSON bool) error {
	var resp api.MessageResponse
	if err := client.Delete("/documents/"+url.PathEscape(id), &resp); err != nil {
		return fmt.Errorf("failed to delete chunk: %w", err)
	}

	if outputJSON {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
	return nil
}

// ClearCmd creates the clear command.
func ClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every stored chunk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the store without --yes")
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runClear(cmd, NewAPIClientWithCmd(cmd), outputJSON)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm removal of all documents")

	return cmd
}

func runClear(cmd *cobra.Command, client *APIClient, outputJSON bool) error {
	var resp api.MessageResponse
	if err := client.Post("/documents/clear", nil, &resp); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}

	if outputJSON {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
	return nil
}
