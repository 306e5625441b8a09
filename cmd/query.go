package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pagestash/pagestash/internal/repl"
)

// newQueryCmd creates the 'query' subcommand, an interactive shell over the
// stored pages.
func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Open an interactive shell for querying stored pages",
		Long: `Starts a read-eval-print loop over the page store. Supports browsing
the latest pages, looking pages up by URL or ID, and searching titles and
summaries. Type 'help' inside the shell for the command list.`,

		RunE: runQueryCommand,
	}
	return cmd
}

func runQueryCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	shell := repl.New(appInstance.Store(), cmd.InOrStdin(), cmd.OutOrStdout())
	return shell.Run(cmd.Context())
}
