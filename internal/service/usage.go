package service

import "context"

// Usage is the normalized token-count shape forwarded to the external usage
// ledger after every completion. Counts are always non-negative.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Ledger is the external usage bookkeeping collaborator. The core only emits;
// billing decisions live elsewhere.
type Ledger interface {
	Record(ctx context.Context, modelID string, usage Usage) error
}

type nopLedger struct{}

func (nopLedger) Record(context.Context, string, Usage) error { return nil }

// NopLedger discards usage records; useful for tooling and tests.
func NopLedger() Ledger {
	return nopLedger{}
}

func clampUsage(u Usage) Usage {
	if u.InputTokens < 0 {
		u.InputTokens = 0
	}
	if u.OutputTokens < 0 {
		u.OutputTokens = 0
	}
	return u
}
