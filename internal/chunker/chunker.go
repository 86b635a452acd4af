// Package chunker splits normalized document text into overlapping
// word-window chunks for embedding and retrieval.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Chunk is one window of document text.
type Chunk struct {
	ChunkID   string `json:"chunkId"`
	Content   string `json:"content"`
	Index     int    `json:"index"`
	CharStart int    `json:"charStart"`
	CharEnd   int    `json:"charEnd"`
	Hash      string `json:"hash"`
}

// ChunkAdaptive chunks the text with the given window size and overlap
// (in words). If a long text collapses into a single chunk, the window is
// halved once and the text re-chunked.
func ChunkAdaptive(text string, chunkSize, overlap int) ([]Chunk, error) {
	chunks, err := chunkText(text, chunkSize, overlap)
	if err != nil {
		return nil, err
	}

	if len(chunks) == 1 && len(text) > 2000 {
		smaller := max(300, chunkSize/2)
		smallerOverlap := max(60, overlap/2)
		return chunkText(text, smaller, smallerOverlap)
	}
	return chunks, nil
}

func chunkText(text string, chunkSize, overlap int) ([]Chunk, error) {
	if chunkSize <= overlap {
		return nil, fmt.Errorf("chunk size (%d) must be greater than overlap (%d)", chunkSize, overlap)
	}

	words := strings.Fields(text)
	var chunks []Chunk

	start := 0
	index := 0
	cursor := 0

	for start < len(words) {
		end := min(start+chunkSize, len(words))
		slice := strings.TrimSpace(strings.Join(words[start:end], " "))

		if slice != "" {
			charStart := max(0, cursor)
			charEnd := charStart + len(slice)
			chunks = append(chunks, Chunk{
				ChunkID:   "c_" + uuid.NewString(),
				Content:   slice,
				Index:     index,
				CharStart: charStart,
				CharEnd:   charEnd,
				Hash:      hashContent(slice),
			})
			index++
			cursor = charEnd - overlap
		}

		if end == len(words) {
			break
		}
		start = max(0, end-overlap)
	}

	return chunks, nil
}

func hashContent(s string) string {
	sum := sha256.Sum256([]byte(s))
	return "h_" + hex.EncodeToString(sum[:8])
}
