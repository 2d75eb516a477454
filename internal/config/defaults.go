package config

import (
	"os"
	"path/filepath"
)

// Default configuration values
const (
	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "nomic-embed-text"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"

	// Search defaults
	DefaultSearchLimit     = 10
	DefaultRRFK            = 60.0
	DefaultCandidateFactor = 4

	// Indexing defaults
	DefaultMaxFileSize    = 1 << 20 // 1MB
	DefaultMaxFileCount   = 10000
	DefaultMaxChunkChars  = 4096
	DefaultBatchSize      = 32
	DefaultFilesPerSecond = 20.0

	// Layout under the data directory
	DatabaseDirName = "chunkdb"
	ManifestDirName = "manifests"

	RCFileName = ".chunkstorerc.yaml"
)

// DefaultExtensions returns the file extensions indexed by default.
func DefaultExtensions() []string {
	return []string{".md", ".markdown", ".txt"}
}

// DefaultIgnorePatterns returns the default list of file patterns to ignore.
func DefaultIgnorePatterns() []string {
	return []string{
		// Vault and editor state
		".obsidian/",
		".trash/",
		".idea/",
		".vscode/",
		"*.swp",
		"*~",

		// Version control
		".git/",
		".svn/",
		".hg/",

		// Dependencies and build output
		"node_modules/",
		"vendor/",
		"dist/",
		"build/",

		// Misc
		".DS_Store",
		"Thumbs.db",
		"*.log",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/chunkstore"
	}
	return filepath.Join(home, ".config", "chunkstore")
}

// DefaultDataDir returns the default application data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/chunkstore"
	}
	return filepath.Join(home, ".local", "share", "chunkstore")
}
