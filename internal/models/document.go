package models

import "errors"

// ErrNoDocuments is returned when a run collects zero usable chunks.
var ErrNoDocuments = errors.New("no valid documents found")

// DocumentUnit is one chunk of a source file together with its identity and,
// once embedded, its vector.
type DocumentUnit struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Source     string    `json:"source"`
	ChunkIndex int       `json:"chunk_index"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// Record is the write shape handed to a vector store.
type Record struct {
	ID       string
	Values   []float32
	Metadata map[string]string
}

// Match is a single similarity search hit.
type Match struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score"`
}
