// Package config handles configuration loading and validation for chunkstore.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CHUNKSTORE_SEARCH_DEFAULT_LIMIT.
const EnvPrefix = "CHUNKSTORE"

// Config represents the complete chunkstore configuration.
type Config struct {
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Search     SearchConfig     `mapstructure:"search"`
	Indexing   IndexingConfig   `mapstructure:"indexing"`
	Ignore     []string         `mapstructure:"ignore"`
}

type EmbeddingsConfig struct {
	Provider string            `mapstructure:"provider"`
	Ollama   OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI   OpenAIEmbedConfig `mapstructure:"openai"`
}

type OllamaEmbedConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

type OpenAIEmbedConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	// Dimensions asks text-embedding-3 models for shortened vectors; 0 keeps the native width.
	Dimensions int `mapstructure:"dimensions"`
}

type DatabaseConfig struct {
	// DataDir is the application data directory. Tables live under DataDir/chunkdb.
	DataDir string `mapstructure:"data_dir"`
}

// SearchConfig tunes hybrid search.
type SearchConfig struct {
	DefaultLimit    int     `mapstructure:"default_limit"`
	RRFK            float64 `mapstructure:"rrf_k"`
	CandidateFactor int     `mapstructure:"candidate_factor"`
}

// IndexingConfig configures the ingestion pipeline.
type IndexingConfig struct {
	MaxFileSize    int      `mapstructure:"max_file_size"`
	MaxFileCount   int      `mapstructure:"max_file_count"`
	MaxChunkChars  int      `mapstructure:"max_chunk_chars"`
	BatchSize      int      `mapstructure:"batch_size"`
	FilesPerSecond float64  `mapstructure:"files_per_second"`
	Extensions     []string `mapstructure:"extensions"`
}

var (
	cfg *Config
	// source is the viper instance of the last successful Load.
	source *viper.Viper
)

// Get returns the loaded configuration, or the defaults before any Load.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Ollama:   OllamaEmbedConfig{URL: DefaultOllamaURL, Model: DefaultOllamaEmbedModel},
			OpenAI:   OpenAIEmbedConfig{Model: DefaultOpenAIEmbedModel},
		},
		Database: DatabaseConfig{DataDir: DefaultDataDir()},
		Search: SearchConfig{
			DefaultLimit:    DefaultSearchLimit,
			RRFK:            DefaultRRFK,
			CandidateFactor: DefaultCandidateFactor,
		},
		Indexing: IndexingConfig{
			MaxFileSize:    DefaultMaxFileSize,
			MaxFileCount:   DefaultMaxFileCount,
			MaxChunkChars:  DefaultMaxChunkChars,
			BatchSize:      DefaultBatchSize,
			FilesPerSecond: DefaultFilesPerSecond,
			Extensions:     DefaultExtensions(),
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// defaultKeys flattens DefaultConfig into viper keys. Every key must be registered for
// AutomaticEnv to see it.
func defaultKeys() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"embeddings.provider":          d.Embeddings.Provider,
		"embeddings.ollama.url":        d.Embeddings.Ollama.URL,
		"embeddings.ollama.model":      d.Embeddings.Ollama.Model,
		"embeddings.openai.model":      d.Embeddings.OpenAI.Model,
		"embeddings.openai.base_url":   "",
		"embeddings.openai.api_key":    "",
		"embeddings.openai.dimensions": 0,
		"database.data_dir":            d.Database.DataDir,
		"search.default_limit":         d.Search.DefaultLimit,
		"search.rrf_k":                 d.Search.RRFK,
		"search.candidate_factor":      d.Search.CandidateFactor,
		"indexing.max_file_size":       d.Indexing.MaxFileSize,
		"indexing.max_file_count":      d.Indexing.MaxFileCount,
		"indexing.max_chunk_chars":     d.Indexing.MaxChunkChars,
		"indexing.batch_size":          d.Indexing.BatchSize,
		"indexing.files_per_second":    d.Indexing.FilesPerSecond,
		"indexing.extensions":          d.Indexing.Extensions,
		"ignore":                       d.Ignore,
	}
}

// LoadOption adjusts how Load resolves values.
type LoadOption func(*viper.Viper) error

// WithFlag lets a command line flag override key when the flag is set.
func WithFlag(key string, flag *pflag.Flag) LoadOption {
	return func(v *viper.Viper) error {
		if flag == nil {
			return nil
		}
		return v.BindPFlag(key, flag)
	}
}

// Load resolves the configuration. Sources, strongest first: flags bound with WithFlag,
// CHUNKSTORE_* environment variables, the config file, defaults. Without configFile the
// nearest .chunkstorerc.yaml above the working directory is used, then the global config.
func Load(configFile string, opts ...LoadOption) error {
	v := viper.New()
	for key, val := range defaultKeys() {
		v.SetDefault(key, val)
	}

	switch rc := findRCFile(); {
	case configFile != "":
		v.SetConfigFile(configFile)
	case rc != "":
		v.SetConfigFile(rc)
	default:
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultConfigDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return fmt.Errorf("error binding flag: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config", "file", v.ConfigFileUsed())
	}

	loaded := &Config{}
	if err := v.Unmarshal(loaded); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	if loaded.Embeddings.OpenAI.APIKey == "" {
		loaded.Embeddings.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg, source = loaded, v
	return nil
}

// Validate checks values that would otherwise fail deep inside the store or indexer.
func (c *Config) Validate() error {
	switch c.Embeddings.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown embeddings provider %q (expected ollama or openai)", c.Embeddings.Provider)
	}
	if c.Database.DataDir == "" {
		return fmt.Errorf("database.data_dir must not be empty")
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.RRFK <= 0 {
		return fmt.Errorf("search.rrf_k must be positive, got %v", c.Search.RRFK)
	}
	if c.Indexing.MaxChunkChars <= 0 {
		return fmt.Errorf("indexing.max_chunk_chars must be positive, got %d", c.Indexing.MaxChunkChars)
	}
	return nil
}

// findRCFile returns the nearest .chunkstorerc.yaml at or above the working directory.
func findRCFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, RCFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ConfigFilePath returns the config file of the last Load, or "" if none was read.
func ConfigFilePath() string {
	if source == nil {
		return ""
	}
	return source.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DatabaseDir returns the directory holding the tables.
func (c *Config) DatabaseDir() string {
	return filepath.Join(c.Database.DataDir, DatabaseDirName)
}

// ManifestDir returns the directory holding the indexer manifests.
func (c *Config) ManifestDir() string {
	return filepath.Join(c.Database.DataDir, ManifestDirName)
}
