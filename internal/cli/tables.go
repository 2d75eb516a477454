package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/embeddings"
	"github.com/nickcecere/chunkstore/internal/ui"
)

var (
	tablesCreateDim int32
	tablesDropYes   bool
	tablesJSON      bool
)

// tablesCmd groups table management commands.
var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Manage tables",
	Long: `List, create, inspect and drop tables.

Examples:
  chunkstore tables list
  chunkstore tables create notes --dim 768
  chunkstore tables stats notes
  chunkstore tables drop notes`,
}

var tablesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		cmds, err := openCommands(ctx, config.Get())
		if err != nil {
			return err
		}
		defer cmds.Close()

		names, err := cmds.ListTables(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if tablesJSON {
			return json.NewEncoder(out).Encode(names)
		}
		if len(names) == 0 {
			fmt.Fprintln(out, "No tables found.")
			fmt.Fprintln(out, "\nRun 'chunkstore index [path]' or 'chunkstore tables create' to create one.")
			return nil
		}
		for _, name := range names {
			fmt.Fprintln(out, ui.TableName.Render(name))
		}
		return nil
	},
}

var tablesExistsCmd = &cobra.Command{
	Use:   "exists <table>",
	Short: "Report whether a table exists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		cmds, err := openCommands(ctx, config.Get())
		if err != nil {
			return err
		}
		defer cmds.Close()

		exists, err := cmds.TableExists(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), exists)
		return nil
	},
}

var tablesCreateCmd = &cobra.Command{
	Use:   "create <table>",
	Short: "Create an empty table",
	Long: `Create an empty table. Without --dim the embedding width is discovered by
embedding a probe string with the configured model.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		cfg := config.Get()
		cmds, err := openCommands(ctx, cfg)
		if err != nil {
			return err
		}
		defer cmds.Close()

		dim := tablesCreateDim
		if dim == 0 {
			emb, err := newEmbedder(cfg)
			if err != nil {
				return err
			}
			if dim, err = embeddings.Probe(ctx, emb); err != nil {
				return err
			}
		}

		msg, err := cmds.CreateEmptyTable(ctx, args[0], dim)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render(msg))
		return nil
	},
}

var tablesDropCmd = &cobra.Command{
	Use:   "drop <table>",
	Short: "Drop a table and all its rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		out := cmd.OutOrStdout()

		if !tablesDropYes {
			fmt.Fprintf(out, "Drop table '%s'? This removes all of its rows. [y/N]: ", name)
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if strings.ToLower(strings.TrimSpace(answer)) != "y" {
				fmt.Fprintln(out, "Cancelled.")
				return nil
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		cfg := config.Get()
		cmds, err := openCommands(ctx, cfg)
		if err != nil {
			return err
		}
		defer cmds.Close()

		msg, err := cmds.DropTable(ctx, name)
		if err != nil {
			return err
		}
		if err := removeManifest(cfg, name); err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success.Render(msg))
		return nil
	},
}

var tablesStatsCmd = &cobra.Command{
	Use:   "stats <table>",
	Short: "Show row and file counts for a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		cmds, err := openCommands(ctx, config.Get())
		if err != nil {
			return err
		}
		defer cmds.Close()

		stats, err := cmds.TableStats(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if tablesJSON {
			return json.NewEncoder(out).Encode(stats)
		}
		fmt.Fprintf(out, "%s %s\n", ui.Highlight.Render("Table:"), ui.Bold.Render(stats.Name))
		fmt.Fprintf(out, "  %s %d chunks from %d files\n", ui.Dim.Render("Rows:"), stats.RowCount, stats.FileCount)
		fmt.Fprintf(out, "  %s %d\n", ui.Dim.Render("Embedding width:"), stats.EmbedDim)
		fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("Text index:"), stats.TextIndex)
		fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("Created:"), formatTime(stats.CreatedAt))
		return nil
	},
}

func init() {
	tablesCmd.PersistentFlags().BoolVar(&tablesJSON, "json", false, "output as JSON")
	tablesCreateCmd.Flags().Int32Var(&tablesCreateDim, "dim", 0, "embedding width (default: probe the configured model)")
	tablesDropCmd.Flags().BoolVarP(&tablesDropYes, "yes", "y", false, "do not ask for confirmation")

	tablesCmd.AddCommand(tablesListCmd)
	tablesCmd.AddCommand(tablesExistsCmd)
	tablesCmd.AddCommand(tablesCreateCmd)
	tablesCmd.AddCommand(tablesDropCmd)
	tablesCmd.AddCommand(tablesStatsCmd)
}
