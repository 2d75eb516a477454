package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/chunkstore/internal/commands"
	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/ui"
)

var viewLimit int

// viewCmd prints the rows of a table.
var viewCmd = &cobra.Command{
	Use:   "view <table>",
	Short: "Print the rows of a table",
	Long: `Print up to --limit rows of a table, with a preview of each embedding.

Examples:
  chunkstore view notes
  chunkstore view notes --limit 0   # every row`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		cmds, err := openCommands(ctx, config.Get(), commands.WithOutput(cmd.OutOrStdout()))
		if err != nil {
			return err
		}
		defer cmds.Close()

		msg, err := cmds.ViewTable(ctx, args[0], viewLimit)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Dim.Render(msg))
		return nil
	},
}

func init() {
	viewCmd.Flags().IntVarP(&viewLimit, "limit", "m", 20, "maximum rows to print; 0 or less prints every row")
}
