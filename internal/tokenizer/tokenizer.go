package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Tokenizer is the subword encoder used for chunking and token counting.
// Implementations must be deterministic: encoding the same text always yields
// the same token sequence.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// New loads the cl100k_base encoding. Loading may fail when the BPE ranks are
// not reachable (offline deployments); callers treat that as "tokenizer
// unavailable" and fall back to character-based windows.
func New() (Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", defaultEncoding, err)
	}
	return &tiktokenTokenizer{enc: enc}, nil
}

// ForModel returns the model-specific encoding, falling back to cl100k_base
// for models tiktoken does not know about.
func ForModel(model string) (Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return New()
	}
	return &tiktokenTokenizer{enc: enc}, nil
}

func (t *tiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *tiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
