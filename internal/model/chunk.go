package model

// Chunk is a token-bounded slice of a document's extracted text. Chunks are
// not persisted relationally, they live only inside the vector index.
type Chunk struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// EmbeddedChunk pairs a chunk with its embedding vector for upsert.
type EmbeddedChunk struct {
	Chunk
	Vector []float32 `json:"vector"`
}

// ScoredChunk is one similarity-search hit.
type ScoredChunk struct {
	Content    string                 `json:"content"`
	DocumentID string                 `json:"document_id"`
	Score      float32                `json:"score"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// RAGChunk is a scored chunk resolved back to its source document name.
type RAGChunk struct {
	Content      string                 `json:"content"`
	DocumentID   string                 `json:"document_id"`
	DocumentName string                 `json:"document_name"`
	Score        float32                `json:"score"`
	Metadata     map[string]interface{} `json:"metadata"`
}
