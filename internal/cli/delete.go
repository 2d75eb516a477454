package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/ui"
)

// deleteCmd removes every chunk of one file from a table.
var deleteCmd = &cobra.Command{
	Use:   "delete <table> <file_path>",
	Short: "Delete all chunks of a file from a table",
	Long: `Delete every row whose file_path equals the given path exactly.

Example:
  chunkstore delete notes projects/alpha.md`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		cmds, err := openCommands(ctx, config.Get())
		if err != nil {
			return err
		}
		defer cmds.Close()

		msg, err := cmds.DeleteChunks(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render(msg))
		return nil
	},
}
