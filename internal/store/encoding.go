package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// serializeEmbedding converts a float32 slice to bytes for sqlite-vec.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding is the inverse of serializeEmbedding. The blob must hold exactly dim
// values.
func deserializeEmbedding(blob []byte, dim int) ([]float32, error) {
	if len(blob) != dim*4 {
		return nil, fmt.Errorf("embedding blob has %d bytes, expected %d", len(blob), dim*4)
	}
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out, nil
}

// encodeBlockIDs stores a block id list as a JSON array; nil encodes as [].
func encodeBlockIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeBlockIDs(raw string) ([]string, error) {
	ids := []string{}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode source_block_ids: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
