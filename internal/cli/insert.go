package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/store"
	"github.com/nickcecere/chunkstore/internal/ui"
)

var insertDim int32

// insertCmd appends precomputed chunks to a table.
var insertCmd = &cobra.Command{
	Use:   "insert <table> [file|-]",
	Short: "Insert chunks with precomputed embeddings",
	Long: `Insert a JSON array of chunks into a table, creating the table on first use.

Each chunk has the shape:
  {"file_path": "notes/a.md", "text": "...", "source_block_ids": ["..."], "embedding": [0.1, ...]}

The chunks are read from the named file, or from stdin when the file is "-" or omitted.

Examples:
  chunkstore insert notes chunks.json
  cat chunks.json | chunkstore insert notes --dim 768`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInsert,
}

func init() {
	insertCmd.Flags().Int32Var(&insertDim, "dim", 0, "embedding width (default: length of the first embedding)")
}

func runInsert(cmd *cobra.Command, args []string) error {
	table := args[0]

	var r io.Reader = cmd.InOrStdin()
	if len(args) > 1 && args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("failed to open chunks file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var chunks []store.Chunk
	if err := json.NewDecoder(r).Decode(&chunks); err != nil {
		return fmt.Errorf("failed to parse chunks: %w", err)
	}

	dim := insertDim
	if dim == 0 {
		if len(chunks) == 0 {
			return fmt.Errorf("no chunks to insert and no --dim given")
		}
		dim = int32(len(chunks[0].Embedding))
	}
	log.Debug("Inserting chunks", "table", table, "count", len(chunks), "embed_dim", dim)

	ctx, cancel := signalContext()
	defer cancel()

	cmds, err := openCommands(ctx, config.Get())
	if err != nil {
		return err
	}
	defer cmds.Close()

	msg, err := cmds.InsertChunks(ctx, table, chunks, dim)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render(msg))
	return nil
}
