// Package fs discovers note files in a vault and splits them into blocks and chunks.
package fs

import (
	"time"
)

// FileInfo represents metadata about a file.
type FileInfo struct {
	Path    string    // Absolute path to the file
	RelPath string    // Path relative to the root, slash separated
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
	Hash    string    // xxhash of file contents
	Content []byte    // file contents as read by the walker
}

// BlockKind classifies a markdown block.
type BlockKind string

const (
	BlockHeading   BlockKind = "heading"
	BlockParagraph BlockKind = "paragraph"
	BlockList      BlockKind = "list"
	BlockCode      BlockKind = "code"
)

// Block is the smallest addressable unit of a note: a heading, a paragraph, a run of list
// items or a fenced code block.
type Block struct {
	ID        string
	Kind      BlockKind
	Text      string
	StartLine int // 1-indexed
	EndLine   int
}

// Chunk is a heading-scoped group of blocks sized for embedding.
type Chunk struct {
	Text     string
	Heading  string   // the heading line this chunk sits under, empty before the first heading
	BlockIDs []string // ids of the blocks whose text the chunk contains, in order
	Index    int      // position of the chunk within its file
}

// WalkOptions configures the file walker.
type WalkOptions struct {
	// Root is the directory to start walking from.
	Root string

	// MaxFileSize is the maximum file size to process (in bytes).
	MaxFileSize int64

	// MaxFileCount is the maximum number of files to process.
	MaxFileCount int

	// IgnorePatterns are additional patterns to ignore (gitignore syntax).
	IgnorePatterns []string

	// IncludeHidden includes hidden files and directories.
	IncludeHidden bool

	// UseGitignore respects .gitignore files.
	UseGitignore bool

	// Extensions limits to specific file extensions (e.g., ".md").
	// Empty means all text files.
	Extensions []string
}

// ChunkOptions configures the chunker.
type ChunkOptions struct {
	// MaxChars caps the size of a chunk. Sections over the cap are split and each part
	// repeats the section heading.
	MaxChars int
}

// DefaultWalkOptions returns sensible defaults for walking.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		MaxFileSize:  1024 * 1024, // 1MB
		MaxFileCount: 10000,
		UseGitignore: true,
		Extensions:   []string{".md", ".markdown", ".txt"},
	}
}

// DefaultChunkOptions returns sensible defaults for chunking.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		MaxChars: 4096,
	}
}

// Walker walks a directory tree and yields files.
type Walker interface {
	// Walk walks the directory tree and calls fn for each file.
	// The walk stops if fn returns an error.
	Walk(fn func(FileInfo) error) error

	// Stats returns statistics about the walk.
	Stats() WalkStats
}

// WalkStats contains statistics from a directory walk.
type WalkStats struct {
	FilesFound   int   // Total files found
	FilesSkipped int   // Files skipped due to size/pattern/etc
	DirsSkipped  int   // Directories skipped
	TotalBytes   int64 // Total bytes of files found
	SkippedBytes int64 // Total bytes of skipped files
}

// Chunker splits file contents into chunks.
type Chunker interface {
	Chunk(content, relPath string) []Chunk
}
