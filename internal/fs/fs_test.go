package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashContent(t *testing.T) {
	h := HashContent([]byte("hello world"))
	assert.Len(t, h, 16)
	assert.Equal(t, h, HashContent([]byte("hello world")))
	assert.NotEqual(t, h, HashContent([]byte("hello world!")))
}

func TestIsBinaryContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		binary  bool
	}{
		{"empty", "", false},
		{"prose", "Hello, World!\n", false},
		{"tabs and newlines", "line1\nline2\tindented\r\n", false},
		{"nul byte", "hello\x00world", true},
		{"control characters", "\x01\x02\x03\x04ab", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.binary, isBinaryContent([]byte(tt.content)))
		})
	}
}

// createVault lays out a vault covering every walker filter.
func createVault(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"daily.md":              "# Monday\n\nwrote things\n",
		"ideas.md":              "- one\n- two\n",
		"drafts/post.txt":       "draft post\n",
		"subdir/nested.md":      "nested note\n",
		"private/secret.md":     "keep out\n",
		".hidden":               "hidden file",
		".obsidian/config.md":   "# should be ignored",
		"attachments/photo.png": "\x89PNG\x00\x00",
		"scan.md":               "\x00\x01\x02binary",
		".gitignore":            "drafts/\n",
		VaultIgnoreFile:         "private/\n",
	}
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func walkPaths(t *testing.T, opts WalkOptions) []string {
	t.Helper()
	w, err := NewFileWalker(opts)
	require.NoError(t, err)

	var found []string
	require.NoError(t, w.Walk(func(fi FileInfo) error {
		found = append(found, fi.RelPath)
		return nil
	}))
	return found
}

func TestFileWalker(t *testing.T) {
	root := createVault(t)

	tests := []struct {
		name string
		opts WalkOptions
		want []string
	}{
		{
			name: "gitignore and vault ignore file",
			opts: WalkOptions{Root: root, UseGitignore: true},
			want: []string{"daily.md", "ideas.md", "subdir/nested.md"},
		},
		{
			name: "vault ignore file without gitignore",
			opts: WalkOptions{Root: root, Extensions: []string{"txt"}},
			want: []string{"drafts/post.txt"},
		},
		{
			name: "extension filter is case insensitive",
			opts: WalkOptions{Root: root, UseGitignore: true, Extensions: []string{".MD"}},
			want: []string{"daily.md", "ideas.md", "subdir/nested.md"},
		},
		{
			name: "extra ignore patterns",
			opts: WalkOptions{Root: root, UseGitignore: true, IgnorePatterns: []string{"subdir/"}},
			want: []string{"daily.md", "ideas.md"},
		},
		{
			name: "size cap",
			opts: WalkOptions{Root: root, UseGitignore: true, MaxFileSize: 12},
			want: []string{"ideas.md", "subdir/nested.md"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, walkPaths(t, tt.opts))
		})
	}

	t.Run("hidden files when configured", func(t *testing.T) {
		found := walkPaths(t, WalkOptions{Root: root, IncludeHidden: true})
		assert.Contains(t, found, ".hidden")
		assert.NotContains(t, found, ".obsidian/config.md")
	})

	t.Run("max file count", func(t *testing.T) {
		assert.Len(t, walkPaths(t, WalkOptions{Root: root, MaxFileCount: 2}), 2)
	})
}

func TestFileWalkerContentAndStats(t *testing.T) {
	root := createVault(t)

	w, err := NewFileWalker(WalkOptions{Root: root, UseGitignore: true})
	require.NoError(t, err)

	byPath := map[string]FileInfo{}
	require.NoError(t, w.Walk(func(fi FileInfo) error {
		byPath[fi.RelPath] = fi
		return nil
	}))

	daily := byPath["daily.md"]
	assert.Equal(t, "# Monday\n\nwrote things\n", string(daily.Content))
	assert.Equal(t, HashContent(daily.Content), daily.Hash)
	assert.Equal(t, int64(len(daily.Content)), daily.Size)
	assert.Equal(t, filepath.Join(root, "daily.md"), daily.Path)
	assert.False(t, daily.ModTime.IsZero())

	stats := w.Stats()
	assert.Equal(t, 3, stats.FilesFound)
	assert.Equal(t, int64(len("# Monday\n\nwrote things\n")+len("- one\n- two\n")+len("nested note\n")), stats.TotalBytes)
	assert.Positive(t, stats.FilesSkipped)
	assert.Positive(t, stats.DirsSkipped)
}

func TestFileWalkerErrors(t *testing.T) {
	_, err := NewFileWalker(WalkOptions{Root: "/nonexistent/path"})
	assert.ErrorContains(t, err, "does not exist")

	file := filepath.Join(t.TempDir(), "note.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = NewFileWalker(WalkOptions{Root: file})
	assert.ErrorContains(t, err, "not a directory")
}

func TestDefaultOptions(t *testing.T) {
	walkOpts := DefaultWalkOptions()
	assert.Equal(t, int64(1024*1024), walkOpts.MaxFileSize)
	assert.Equal(t, 10000, walkOpts.MaxFileCount)
	assert.True(t, walkOpts.UseGitignore)
	assert.Equal(t, []string{".md", ".markdown", ".txt"}, walkOpts.Extensions)

	assert.Equal(t, 4096, DefaultChunkOptions().MaxChars)
}
