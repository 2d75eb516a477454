package embeddings

import (
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// prefixes are prepended to inputs for models trained with task instructions.
type prefixes struct {
	document string
	query    string
}

var modelPrefixes = map[string]prefixes{
	"nomic-embed-text":  {document: "search_document: ", query: "search_query: "},
	"mxbai-embed-large": {query: "Represent this sentence for searching relevant passages: "},
}

// model is the state shared by every provider: the model name, its task prefixes and the
// vector width last seen in a response.
type model struct {
	name     string
	prefixes prefixes
	width    atomic.Int64
}

func newModel(name string, fallbackWidth int) *model {
	m := &model{name: name, prefixes: modelPrefixes[name]}

	width := GetModelDimensions(name)
	if width == 0 {
		width = fallbackWidth
		log.Debug("Unknown model dimensions, defaulting", "model", name, "dimensions", width)
	}
	m.width.Store(int64(width))
	return m
}

func (m *model) ModelName() string { return m.name }

func (m *model) Dimensions() int { return int(m.width.Load()) }

func (m *model) forDocument(text string) string { return m.prefixes.document + text }

func (m *model) forQuery(text string) string { return m.prefixes.query + text }

func (m *model) forDocuments(texts []string) []string {
	if m.prefixes.document == "" {
		return texts
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = m.forDocument(t)
	}
	return out
}

// observe records the width of a response.
func (m *model) observe(vecs [][]float32) {
	if len(vecs) > 0 && len(vecs[0]) > 0 {
		m.width.Store(int64(len(vecs[0])))
	}
}

// first unwraps a single-input response.
func first(vecs [][]float32, err error) ([]float32, error) {
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
