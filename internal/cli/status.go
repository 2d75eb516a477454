package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/indexer"
	"github.com/nickcecere/chunkstore/internal/store"
	"github.com/nickcecere/chunkstore/internal/ui"
)

var statusTable string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show table status and statistics",
	Long: `Display information about tables including:
- Number of chunks and files
- Embedding width and text index kind
- The vault a table was indexed from and when

Examples:
  # Show all tables
  chunkstore status

  # Show one table
  chunkstore status --table notes`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusTable, "table", "t", "", "specific table to show status for")
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()
	log.Debug("Showing status", "table", statusTable)

	ctx, cancel := signalContext()
	defer cancel()

	cmds, err := openCommands(ctx, cfg)
	if err != nil {
		return err
	}
	defer cmds.Close()

	names := []string{statusTable}
	if statusTable == "" {
		if names, err = cmds.ListTables(ctx); err != nil {
			return err
		}
	}

	if len(names) == 0 {
		fmt.Fprintln(out, "No tables found.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Run 'chunkstore index [path]' to create one.")
		return nil
	}

	fmt.Fprintln(out, ui.Header.Render("Table Status"))
	fmt.Fprintln(out)

	for i, name := range names {
		stats, err := cmds.TableStats(ctx, name)
		if err != nil {
			if statusTable != "" {
				return err
			}
			log.Warn("Failed to get stats", "table", name, "error", err)
			continue
		}

		fmt.Fprintf(out, "%s %s\n", ui.Highlight.Render("Table:"), ui.Bold.Render(stats.Name))

		manifest, err := indexer.LoadManifest(cfg.ManifestDir(), name)
		if err != nil {
			log.Warn("Failed to read manifest", "table", name, "error", err)
		}
		if manifest != nil && manifest.Root != "" {
			fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("Vault:"), manifest.Root)
			fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("Indexed:"), formatTime(manifest.UpdatedAt))
		}

		fmt.Fprintf(out, "  %s %d\n", ui.Dim.Render("Dimensions:"), stats.EmbedDim)
		fmt.Fprintf(out, "  %s %d files, %d chunks\n", ui.Dim.Render("Rows:"), stats.FileCount, stats.RowCount)
		fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("Text index:"), stats.TextIndex)
		fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("Created:"), formatTime(stats.CreatedAt))
		fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("Health:"), getHealthStatus(stats))

		if i < len(names)-1 {
			fmt.Fprintln(out)
		}
	}

	if len(names) > 1 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, ui.Dim.Render(fmt.Sprintf("Total: %d tables", len(names))))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.Dim.Render("Configuration:"))
	fmt.Fprintf(out, "  Tables: %s\n", cfg.DatabaseDir())
	fmt.Fprintf(out, "  Embedding Provider: %s\n", cfg.Embeddings.Provider)

	return nil
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	t = t.Local()

	// If today, show time only
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today at " + t.Format("15:04")
	}

	// If this year, omit year
	if t.Year() == now.Year() {
		return t.Format("Jan 2 at 15:04")
	}

	return t.Format("Jan 2, 2006 at 15:04")
}

// getHealthStatus returns a health indicator based on stats.
func getHealthStatus(stats *store.TableStats) string {
	if stats.RowCount == 0 {
		return ui.Warning.Render("empty (no rows)")
	}
	if stats.TextIndex == store.TextIndexNone {
		return ui.Warning.Render("no text index (keyword search disabled)")
	}
	return ui.Success.Render("healthy")
}
