package chunker

import (
	"github.com/CalilDrissi/virtus/internal/model"
	"github.com/CalilDrissi/virtus/internal/tokenizer"
)

// charsPerToken is the documented approximation used when no tokenizer is
// available. It has no correctness guarantee across languages or scripts.
const charsPerToken = 4

type Chunker struct {
	tok     tokenizer.Tokenizer
	size    int
	overlap int
}

// New builds a chunker with the given window size and overlap in tokens.
// A nil tokenizer selects the character-based fallback.
func New(tok tokenizer.Tokenizer, size, overlap int) *Chunker {
	if size <= 0 {
		size = 512
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Chunker{tok: tok, size: size, overlap: overlap}
}

// Chunk slides a token window across text and emits one chunk per window.
// Each chunk after the first starts overlap tokens before the previous end.
// Empty input yields an empty slice.
func (c *Chunker) Chunk(text string, baseMeta map[string]interface{}) []model.Chunk {
	if text == "" {
		return nil
	}
	if c.tok == nil {
		return c.chunkByChars(text, baseMeta)
	}

	tokens := c.tok.Encode(text)
	var chunks []model.Chunk
	start := 0
	index := 0
	for start < len(tokens) {
		end := start + c.size
		if end > len(tokens) {
			end = len(tokens)
		}
		span := tokens[start:end]
		meta := mergeMeta(baseMeta, map[string]interface{}{
			"chunk_index": index,
			"token_count": len(span),
		})
		chunks = append(chunks, model.Chunk{
			Content:  c.tok.Decode(span),
			Metadata: meta,
		})
		if end >= len(tokens) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
		index++
	}
	return chunks
}

func (c *Chunker) chunkByChars(text string, baseMeta map[string]interface{}) []model.Chunk {
	size := c.size * charsPerToken
	overlap := c.overlap * charsPerToken
	runes := []rune(text)

	var chunks []model.Chunk
	start := 0
	index := 0
	for start < len(runes) {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		span := runes[start:end]
		meta := mergeMeta(baseMeta, map[string]interface{}{
			"chunk_index": index,
			"char_count":  len(span),
		})
		chunks = append(chunks, model.Chunk{
			Content:  string(span),
			Metadata: meta,
		})
		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
		index++
	}
	return chunks
}

func mergeMeta(base, extra map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
