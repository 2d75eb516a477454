package fs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleNote = "# Title\n" +
	"\n" +
	"Intro line one\n" +
	"intro line two\n" +
	"\n" +
	"- item a\n" +
	"- item b\n" +
	"```go\n" +
	"code\n" +
	"\n" +
	"more code\n" +
	"```\n" +
	"## Sub\n" +
	"Tail\n"

func TestSplitBlocks(t *testing.T) {
	blocks := SplitBlocks("notes/a.md", sampleNote)
	require.Len(t, blocks, 6)

	kinds := make([]BlockKind, len(blocks))
	for i, b := range blocks {
		kinds[i] = b.Kind
		assert.Len(t, b.ID, 16)
	}
	assert.Equal(t, []BlockKind{BlockHeading, BlockParagraph, BlockList, BlockCode, BlockHeading, BlockParagraph}, kinds)

	assert.Equal(t, "Intro line one\nintro line two", blocks[1].Text)
	assert.Equal(t, 3, blocks[1].StartLine)
	assert.Equal(t, 4, blocks[1].EndLine)

	assert.Equal(t, "```go\ncode\n\nmore code\n```", blocks[3].Text)
	assert.Equal(t, 8, blocks[3].StartLine)
	assert.Equal(t, 12, blocks[3].EndLine)

	assert.Equal(t, 14, blocks[5].EndLine)
}

func TestSplitBlocksStableIDs(t *testing.T) {
	first := SplitBlocks("a.md", sampleNote)
	second := SplitBlocks("a.md", sampleNote)
	other := SplitBlocks("b.md", sampleNote)

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.NotEqual(t, first[i].ID, other[i].ID)
	}
}

func TestSplitBlocksUnterminatedFence(t *testing.T) {
	blocks := SplitBlocks("a.md", "para\n```\ncode\n\nstill code")
	require.Len(t, blocks, 2)
	assert.Equal(t, BlockCode, blocks[1].Kind)
	assert.Equal(t, "```\ncode\n\nstill code", blocks[1].Text)
}

func TestMarkdownChunkerByHeading(t *testing.T) {
	blocks := SplitBlocks("a.md", sampleNote)
	chunks := NewMarkdownChunker(DefaultChunkOptions()).ChunkBlocks(blocks)
	require.Len(t, chunks, 2)

	assert.Equal(t, "# Title\n\nIntro line one\nintro line two\n- item a\n- item b\n```go\ncode\nmore code\n```", chunks[0].Text)
	assert.Equal(t, "# Title", chunks[0].Heading)
	assert.Equal(t, []string{blocks[0].ID, blocks[1].ID, blocks[2].ID, blocks[3].ID}, chunks[0].BlockIDs)

	assert.Equal(t, "## Sub\n\nTail", chunks[1].Text)
	assert.Equal(t, []string{blocks[4].ID, blocks[5].ID}, chunks[1].BlockIDs)
	assert.Equal(t, 1, chunks[1].Index)
}

func TestMarkdownChunkerSplitsLongSections(t *testing.T) {
	content := "# H\n" +
		strings.Repeat("a", 10) + "\n" +
		strings.Repeat("b", 10) + "\n" +
		strings.Repeat("c", 10) + "\n"

	blocks := SplitBlocks("a.md", content)
	chunks := NewMarkdownChunker(ChunkOptions{MaxChars: 20}).ChunkBlocks(blocks)
	require.Len(t, chunks, 3)

	for i, letter := range []string{"a", "b", "c"} {
		assert.Equal(t, "# H\n\n"+strings.Repeat(letter, 10), chunks[i].Text)
		assert.Equal(t, []string{blocks[0].ID, blocks[1].ID}, chunks[i].BlockIDs)
		assert.Equal(t, i, chunks[i].Index)
	}
}

func TestMarkdownChunkerEdgeCases(t *testing.T) {
	chunker := NewMarkdownChunker(ChunkOptions{})

	t.Run("empty content", func(t *testing.T) {
		assert.Empty(t, chunker.Chunk("", "a.md"))
	})

	t.Run("heading-only sections are dropped", func(t *testing.T) {
		chunks := chunker.Chunk("# A\n# B\ntext", "a.md")
		require.Len(t, chunks, 1)
		assert.Equal(t, "# B\n\ntext", chunks[0].Text)
	})

	t.Run("text before the first heading", func(t *testing.T) {
		chunks := chunker.Chunk("preface\n# A\nbody", "a.md")
		require.Len(t, chunks, 2)
		assert.Equal(t, "preface", chunks[0].Text)
		assert.Empty(t, chunks[0].Heading)
		assert.Len(t, chunks[0].BlockIDs, 1)
		assert.Equal(t, "# A\n\nbody", chunks[1].Text)
	})

	t.Run("hashtags are not headings", func(t *testing.T) {
		chunks := chunker.Chunk("#tag line\nmore", "a.md")
		require.Len(t, chunks, 1)
		assert.Equal(t, "#tag line\nmore", chunks[0].Text)
	})

	t.Run("overlong lines are cut", func(t *testing.T) {
		chunks := NewMarkdownChunker(ChunkOptions{MaxChars: 10}).Chunk(strings.Repeat("x", 25), "a.md")
		require.Len(t, chunks, 3)
		assert.Equal(t, strings.Repeat("x", 9), chunks[0].Text)
		assert.Equal(t, strings.Repeat("x", 9), chunks[1].Text)
		assert.Equal(t, strings.Repeat("x", 7), chunks[2].Text)
	})
}

func TestSplitToFit(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitToFit("short", 10))
	assert.Equal(t, []string{"éé", "éé", "é"}, splitToFit("ééééé", 5))
}
