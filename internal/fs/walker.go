package fs

import (
	"bytes"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// VaultIgnoreFile lists vault-local ignore patterns in gitignore syntax. It is honoured even
// when UseGitignore is off.
const VaultIgnoreFile = ".chunkstoreignore"

// sniffLen is how much of a file is inspected to tell notes from binaries.
const sniffLen = 8192

// ignoreList matches a path against every compiled pattern set.
type ignoreList []*gitignore.GitIgnore

func (l ignoreList) matches(relPath string) bool {
	for _, gi := range l {
		if gi.MatchesPath(relPath) {
			return true
		}
	}
	return false
}

// FileWalker finds the note files of a vault.
type FileWalker struct {
	opts   WalkOptions
	ignore ignoreList
	stats  WalkStats
	extSet map[string]bool
}

var _ Walker = (*FileWalker)(nil)

// NewFileWalker validates the root and compiles the ignore rules.
func NewFileWalker(opts WalkOptions) (*FileWalker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}
	opts.Root = root

	w := &FileWalker{opts: opts}
	if len(opts.Extensions) > 0 {
		w.extSet = make(map[string]bool, len(opts.Extensions))
		for _, ext := range opts.Extensions {
			w.extSet[normalizeExt(ext)] = true
		}
	}

	patterns := append(append([]string{}, opts.IgnorePatterns...), defaultIgnorePatterns...)
	w.ignore = ignoreList{gitignore.CompileIgnoreLines(patterns...)}

	files := []string{VaultIgnoreFile}
	if opts.UseGitignore {
		files = append(files, ".gitignore")
	}
	for _, name := range files {
		if gi := compileIgnoreFile(filepath.Join(root, name)); gi != nil {
			w.ignore = append(w.ignore, gi)
		}
	}

	return w, nil
}

func normalizeExt(ext string) string {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}

// compileIgnoreFile returns nil when the file is absent or unreadable.
func compileIgnoreFile(path string) *gitignore.GitIgnore {
	gi, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		if !errors.Is(err, iofs.ErrNotExist) {
			log.Warn("Failed to parse ignore file", "path", path, "error", err)
		}
		return nil
	}
	return gi
}

// Walk calls fn for every note under the root, in lexical order. Each FileInfo carries the
// file's content, read once. Unreadable entries are skipped.
func (w *FileWalker) Walk(fn func(FileInfo) error) error {
	w.stats = WalkStats{}

	return filepath.WalkDir(w.opts.Root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}
		if path == w.opts.Root {
			return nil
		}

		rel, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if w.skipDir(d.Name(), rel) {
				w.stats.DirsSkipped++
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if w.opts.MaxFileCount > 0 && w.stats.FilesFound >= w.opts.MaxFileCount {
			return filepath.SkipAll
		}

		fi, reason := w.load(path, rel, d)
		if reason != "" {
			w.stats.FilesSkipped++
			w.stats.SkippedBytes += fi.Size
			log.Debug("Skipping file", "path", rel, "reason", reason)
			return nil
		}

		w.stats.FilesFound++
		w.stats.TotalBytes += fi.Size
		return fn(fi)
	})
}

// load applies the file filters and reads the file. A non-empty reason means the file is
// not a note.
func (w *FileWalker) load(path, rel string, d iofs.DirEntry) (FileInfo, string) {
	fi := FileInfo{Path: path, RelPath: rel}

	if !w.opts.IncludeHidden && strings.HasPrefix(d.Name(), ".") {
		return fi, "hidden"
	}
	if w.ignore.matches(rel) {
		return fi, "ignored"
	}
	if w.extSet != nil && !w.extSet[strings.ToLower(filepath.Ext(rel))] {
		return fi, "extension"
	}

	info, err := d.Info()
	if err != nil {
		return fi, "stat failed"
	}
	fi.Size = info.Size()
	fi.ModTime = info.ModTime()
	if w.opts.MaxFileSize > 0 && fi.Size > w.opts.MaxFileSize {
		return fi, "too large"
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fi, "read failed"
	}
	if isBinaryContent(content[:min(len(content), sniffLen)]) {
		return fi, "binary"
	}

	fi.Content = content
	fi.Hash = HashContent(content)
	return fi, ""
}

// Stats returns the counters of the last walk.
func (w *FileWalker) Stats() WalkStats {
	return w.stats
}

func (w *FileWalker) skipDir(name, rel string) bool {
	if name == ".git" {
		return true
	}
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return w.ignore.matches(rel + "/")
}

// HashContent computes the xxhash of content bytes as 16 hex characters.
func HashContent(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

// isBinaryContent reports content with NUL bytes or mostly control characters.
func isBinaryContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	if bytes.IndexByte(content, 0) >= 0 {
		return true
	}

	control := 0
	for _, b := range content {
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}
	return control*10 > len(content)*3
}

// Patterns that are never notes.
var defaultIgnorePatterns = []string{
	// Vault tooling
	".obsidian/",
	".trash/",
	"node_modules/",

	// Editor leftovers
	"*.swp",
	"*.swo",
	"*~",
	".DS_Store",
	"Thumbs.db",

	// Attachments
	"*.png",
	"*.jpg",
	"*.jpeg",
	"*.gif",
	"*.webp",
	"*.svg",
	"*.pdf",
	"*.mp3",
	"*.mp4",
	"*.zip",

	// Databases, including our own
	"*.db",
	"*.db-wal",
	"*.db-shm",
	"*.sqlite",
}
