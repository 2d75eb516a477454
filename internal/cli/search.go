package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/search"
	"github.com/nickcecere/chunkstore/internal/ui"
)

var (
	searchTable    string
	searchVector   string
	searchLimit    int
	searchMinScore float32
	searchContent  bool
	searchJSON     bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid search by meaning and keyword",
	Long: `Search tables with a query. The query is embedded with the configured model
and matched against the stored embeddings while its words are matched against
the full text index; both rankings are fused into one list.

Without --table every table is searched. With --vector the query embedding is
given as a JSON array instead of being computed, and the raw JSON hits are printed.

Examples:
  # Search one table
  chunkstore search "garden plans" --table notes

  # Search everything, show the chunk text
  chunkstore search "bike repair" -c

  # Use a precomputed query embedding
  chunkstore search "bike repair" --table notes --vector '[0.1, 0.2, 0.3]'`,
	Args: cobra.ExactArgs(1),
	RunE: runSearchCmd,
}

func init() {
	searchCmd.Flags().StringVarP(&searchTable, "table", "t", "", "table to search (default: all tables)")
	searchCmd.Flags().StringVar(&searchVector, "vector", "", "query embedding as a JSON array (requires --table)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "m", 0, "maximum number of results (default from config)")
	searchCmd.Flags().Float32Var(&searchMinScore, "min-score", 0, "minimum fused score")
	searchCmd.Flags().BoolVarP(&searchContent, "content", "c", false, "show chunk text in results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
}

func runSearchCmd(cmd *cobra.Command, args []string) error {
	query := args[0]
	cfg := config.Get()
	out := cmd.OutOrStdout()

	log.Debug("Starting search", "query", query, "table", searchTable, "limit", searchLimit)

	ctx, cancel := signalContext()
	defer cancel()

	cmds, err := openCommands(ctx, cfg)
	if err != nil {
		return err
	}
	defer cmds.Close()

	if searchVector != "" {
		if searchTable == "" {
			return fmt.Errorf("--vector requires --table")
		}
		var vector []float32
		if err := json.Unmarshal([]byte(searchVector), &vector); err != nil {
			return fmt.Errorf("failed to parse --vector: %w", err)
		}

		var limit *int
		if cmd.Flags().Changed("limit") {
			limit = &searchLimit
		}
		raw, err := cmds.Search(ctx, searchTable, query, vector, limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, raw)
		return nil
	}

	st, err := cmds.Store(ctx)
	if err != nil {
		return err
	}
	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	opts := search.DefaultSearchOptions()
	opts.Table = searchTable
	opts.MinScore = searchMinScore
	if cfg.Search.DefaultLimit > 0 {
		opts.Limit = cfg.Search.DefaultLimit
	}
	if searchLimit > 0 {
		opts.Limit = searchLimit
	}

	var results []search.Result
	err = withSpinner("Searching", func() error {
		var err error
		results, err = search.New(st, emb).Search(ctx, query, opts)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputJSON(out, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	displayResults(out, results, searchContent)
	return nil
}

// displayResults formats and displays search results.
func displayResults(w io.Writer, results []search.Result, showContent bool) {
	fmt.Fprintf(w, "Found %d results:\n\n", len(results))

	for i, r := range results {
		var score float32
		if r.Score != nil {
			score = *r.Score
		}
		fmt.Fprintf(w, "%s %s %s %s\n",
			ui.Highlight.Render(fmt.Sprintf("[%d]", i+1)),
			ui.TableName.Render(r.Table),
			ui.FilePath.Render(r.FilePath),
			ui.FormatScore(score),
		)
		fmt.Fprintf(w, "    %s\n", ui.FormatBlockIDs(r.SourceBlockIDs))

		if showContent && r.Text != "" {
			rendered, err := renderMarkdown(r.Text)
			if err != nil {
				rendered = ui.ResultContent.Render(indent(r.Text, "    ")) + "\n"
			}
			fmt.Fprint(w, rendered)
			fmt.Fprintln(w, ui.HorizontalRule(60))
		}
		fmt.Fprintln(w)
	}
}

// jsonResult is a search hit as printed by --json.
type jsonResult struct {
	Table          string   `json:"table"`
	FilePath       string   `json:"file_path"`
	Text           string   `json:"text"`
	SourceBlockIDs []string `json:"source_block_ids"`
	Score          *float32 `json:"score"`
}

// outputJSON writes results as a JSON array, without embeddings.
func outputJSON(w io.Writer, results []search.Result) error {
	out := make([]jsonResult, 0, len(results))
	for _, r := range results {
		out = append(out, jsonResult{
			Table:          r.Table,
			FilePath:       r.FilePath,
			Text:           r.Text,
			SourceBlockIDs: r.SourceBlockIDs,
			Score:          r.Score,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// renderMarkdown renders markdown content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
