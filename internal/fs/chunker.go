package fs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

var (
	headingPattern  = regexp.MustCompile(`^(#+)\s(.*)`)
	listItemPattern = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s`)
)

// SplitBlocks splits markdown into blocks. Blank lines end paragraphs and list runs; a fenced
// code block is one block including its blank lines. Block ids are stable for the same path,
// position and content.
func SplitBlocks(relPath, content string) []Block {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	var (
		blocks []Block
		cur    []string
		kind   BlockKind
		start  int
		fence  string
	)
	flush := func(end int) {
		if len(cur) == 0 {
			return
		}
		text := strings.Join(cur, "\n")
		blocks = append(blocks, Block{
			ID:        blockID(relPath, len(blocks), text),
			Kind:      kind,
			Text:      text,
			StartLine: start,
			EndLine:   end,
		})
		cur = nil
	}
	begin := func(k BlockKind, line, n int) {
		kind, start = k, n
		cur = []string{lines[line]}
	}

	for i, line := range lines {
		n := i + 1
		trimmed := strings.TrimSpace(line)

		if fence != "" {
			cur = append(cur, line)
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
				flush(n)
			}
			continue
		}

		switch {
		case trimmed == "":
			flush(n - 1)
		case strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~"):
			flush(n - 1)
			fence = trimmed[:3]
			begin(BlockCode, i, n)
		case headingPattern.MatchString(line):
			flush(n - 1)
			begin(BlockHeading, i, n)
			flush(n)
		case listItemPattern.MatchString(line):
			if len(cur) > 0 && kind != BlockList {
				flush(n - 1)
			}
			if len(cur) == 0 {
				begin(BlockList, i, n)
			} else {
				cur = append(cur, line)
			}
		default:
			if len(cur) == 0 {
				begin(BlockParagraph, i, n)
			} else {
				cur = append(cur, line)
			}
		}
	}
	// an unterminated fence runs to the end of the file
	flush(len(lines))

	return blocks
}

func blockID(relPath string, index int, text string) string {
	d := xxhash.New()
	d.WriteString(relPath)
	d.WriteString("\x00")
	d.WriteString(strconv.Itoa(index))
	d.WriteString("\x00")
	d.WriteString(text)
	return fmt.Sprintf("%016x", d.Sum64())
}

// MarkdownChunker groups blocks into chunks by heading.
type MarkdownChunker struct {
	opts ChunkOptions
}

// NewMarkdownChunker creates a chunker; a non-positive MaxChars uses the default.
func NewMarkdownChunker(opts ChunkOptions) *MarkdownChunker {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultChunkOptions().MaxChars
	}
	return &MarkdownChunker{opts: opts}
}

var _ Chunker = (*MarkdownChunker)(nil)

// Chunk splits a file into chunks.
func (c *MarkdownChunker) Chunk(content, relPath string) []Chunk {
	return c.ChunkBlocks(SplitBlocks(relPath, content))
}

// ChunkBlocks groups blocks into chunks. Every heading starts a new chunk. A section that
// outgrows MaxChars is split at line boundaries and every part starts with the heading again.
// Empty lines are dropped and a chunk holding only its heading is not emitted.
func (c *MarkdownChunker) ChunkBlocks(blocks []Block) []Chunk {
	var (
		chunks    []Chunk
		heading   string // heading line plus a blank line, prefixed to every part
		headingID string
		buf       strings.Builder
		ids       []string
	)

	start := func() {
		buf.Reset()
		buf.WriteString(heading)
		ids = nil
		if headingID != "" {
			ids = append(ids, headingID)
		}
	}
	emit := func() {
		text := strings.TrimSpace(buf.String())
		if text == "" || text == strings.TrimSpace(heading) {
			return
		}
		chunks = append(chunks, Chunk{
			Text:     text,
			Heading:  strings.TrimSpace(heading),
			BlockIDs: ids,
			Index:    len(chunks),
		})
	}

	start()
	for _, blk := range blocks {
		if blk.Kind == BlockHeading {
			emit()
			heading, headingID = blk.Text+"\n\n", blk.ID
			start()
			continue
		}

		recorded := false
		for _, line := range strings.Split(blk.Text, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			for _, piece := range splitToFit(line, c.opts.MaxChars-len(heading)-1) {
				if buf.Len()+len(piece)+1 > c.opts.MaxChars && buf.Len() > len(heading) {
					emit()
					start()
					recorded = false
				}
				buf.WriteString(piece)
				buf.WriteByte('\n')
				if !recorded {
					ids = append(ids, blk.ID)
					recorded = true
				}
			}
		}
	}
	emit()

	return chunks
}

// splitToFit cuts s into pieces of at most max bytes, on rune boundaries.
func splitToFit(s string, max int) []string {
	if max < utf8.UTFMax {
		max = utf8.UTFMax
	}
	if len(s) <= max {
		return []string{s}
	}

	var pieces []string
	for len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		pieces = append(pieces, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		pieces = append(pieces, s)
	}
	return pieces
}
