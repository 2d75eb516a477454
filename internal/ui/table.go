package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/nickcecere/chunkstore/internal/store"
)

const (
	previewChars  = 80
	previewFloats = 3
	tableWordWrap = 120
)

// ChunkTableMarkdown lays out chunks as a markdown table, one row per chunk.
func ChunkTableMarkdown(name string, chunks []store.Chunk) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## %s\n\n", name)
	if len(chunks) == 0 {
		b.WriteString("_empty table_\n")
		return b.String()
	}

	b.WriteString("| # | file_path | source_block_ids | text | embedding |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
			i,
			escapeCell(c.FilePath),
			escapeCell(strings.Join(c.SourceBlockIDs, ", ")),
			escapeCell(preview(c.Text, previewChars)),
			embeddingPreview(c.Embedding),
		)
	}
	return b.String()
}

// RenderChunkTable renders chunks as a styled terminal table.
func RenderChunkTable(name string, chunks []store.Chunk) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(tableWordWrap),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	return renderer.Render(ChunkTableMarkdown(name, chunks))
}

func preview(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

func embeddingPreview(v []float32) string {
	n := len(v)
	if n > previewFloats {
		n = previewFloats
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%.3f", v[i])
	}
	if len(v) > previewFloats {
		parts = append(parts, "…")
	}
	return fmt.Sprintf("[%s] (%d)", strings.Join(parts, ", "), len(v))
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
