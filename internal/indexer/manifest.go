package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ManifestEntry records what was last indexed for a file.
type ManifestEntry struct {
	Hash    string    `json:"hash"`
	ModTime time.Time `json:"mod_time"`
	Chunks  int       `json:"chunks"`
}

// Manifest tracks the files indexed into one table, keyed by slash separated relative path.
type Manifest struct {
	Table     string                   `json:"table"`
	Root      string                   `json:"root"`
	UpdatedAt time.Time                `json:"updated_at"`
	Files     map[string]ManifestEntry `json:"files"`

	path string
}

func manifestPath(dir, table string) string {
	return filepath.Join(dir, table+".json")
}

// LoadManifest reads the manifest for a table. A missing manifest yields an empty one.
func LoadManifest(dir, table string) (*Manifest, error) {
	m := &Manifest{
		Table: table,
		Files: make(map[string]ManifestEntry),
		path:  manifestPath(dir, table),
	}

	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", m.path, err)
	}
	if m.Files == nil {
		m.Files = make(map[string]ManifestEntry)
	}
	return m, nil
}

// Save writes the manifest through a temporary file so readers never see a partial write.
func (m *Manifest) Save() error {
	m.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Remove deletes the manifest file.
func (m *Manifest) Remove() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}
	return nil
}

// Unchanged reports whether relPath was indexed with the given content hash.
func (m *Manifest) Unchanged(relPath, hash string) bool {
	e, ok := m.Files[relPath]
	return ok && e.Hash == hash
}
