package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `Display current configuration settings and config file locations.

Examples:
  # Show current configuration
  chunkstore config

  # Show config file paths
  chunkstore config --path`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()

	if configShowPath {
		active := config.ConfigFilePath()
		if active == "" {
			active = "(none, using defaults)"
		}
		fmt.Fprintln(out, ui.SectionTitle.Render("Configuration Paths"))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Global config: %s\n", config.GlobalConfigPath())
		fmt.Fprintf(out, "Local config:  %s (searched from cwd upward)\n", config.RCFileName)
		fmt.Fprintf(out, "Active config: %s\n", active)
		fmt.Fprintf(out, "Tables:        %s\n", cfg.DatabaseDir())
		fmt.Fprintf(out, "Manifests:     %s\n", cfg.ManifestDir())
		return nil
	}

	fmt.Fprintln(out, ui.SectionTitle.Render("Current Configuration"))
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Embeddings:"))
	fmt.Fprintf(out, "  Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Fprintf(out, "  Ollama URL: %s\n", cfg.Embeddings.Ollama.URL)
	fmt.Fprintf(out, "  Ollama Model: %s\n", cfg.Embeddings.Ollama.Model)
	fmt.Fprintf(out, "  OpenAI Model: %s\n", cfg.Embeddings.OpenAI.Model)
	if cfg.Embeddings.OpenAI.BaseURL != "" {
		fmt.Fprintf(out, "  OpenAI Base URL: %s\n", cfg.Embeddings.OpenAI.BaseURL)
	}
	if cfg.Embeddings.OpenAI.Dimensions > 0 {
		fmt.Fprintf(out, "  OpenAI Dimensions: %d\n", cfg.Embeddings.OpenAI.Dimensions)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Database:"))
	fmt.Fprintf(out, "  Data Dir: %s\n", cfg.Database.DataDir)
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Search:"))
	fmt.Fprintf(out, "  Default Limit: %d\n", cfg.Search.DefaultLimit)
	fmt.Fprintf(out, "  RRF k: %g\n", cfg.Search.RRFK)
	fmt.Fprintf(out, "  Candidate Factor: %d\n", cfg.Search.CandidateFactor)
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Indexing:"))
	fmt.Fprintf(out, "  Max File Size: %s\n", formatBytes(int64(cfg.Indexing.MaxFileSize)))
	fmt.Fprintf(out, "  Max File Count: %d\n", cfg.Indexing.MaxFileCount)
	fmt.Fprintf(out, "  Max Chunk Chars: %d\n", cfg.Indexing.MaxChunkChars)
	fmt.Fprintf(out, "  Batch Size: %d\n", cfg.Indexing.BatchSize)
	if cfg.Indexing.FilesPerSecond > 0 {
		fmt.Fprintf(out, "  Files Per Second: %g\n", cfg.Indexing.FilesPerSecond)
	} else {
		fmt.Fprintln(out, "  Files Per Second: unlimited")
	}
	fmt.Fprintf(out, "  Extensions: %s\n", strings.Join(cfg.Indexing.Extensions, ", "))
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Ignore Patterns:"))
	fmt.Fprintf(out, "  %d patterns configured\n", len(cfg.Ignore))

	return nil
}
