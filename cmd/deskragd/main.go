package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/deskrag/internal/cli"
	"github.com/cloo-solutions/deskrag/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "deskragd",
		Short: "deskrag document store server",
		Long: `deskragd serves the support assistant's document store: upload, chunk,
embed and search documents over HTTP. Configuration comes from DESKRAG_*
environment variables or a .env file.`,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
