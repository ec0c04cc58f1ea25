package model

type SourceType string

const (
	SourceTypeDocument SourceType = "document"
	SourceTypeDatabase SourceType = "database"
	SourceTypeEmail    SourceType = "email"
	SourceTypeAPI      SourceType = "api"
	SourceTypeWebsite  SourceType = "website"
)

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusReady      ProcessingStatus = "ready"
	StatusError      ProcessingStatus = "error"
)

// DataSource is a named container of documents scoped to exactly one model.
// SubscriptionID is set only for subscription-private sources; an empty value
// means the source is a model default visible to every subscriber. Retrieval
// filters by data-source ids only, never by subscription id - callers that
// need to hide subscription-private sources must narrow the id list they pass.
type DataSource struct {
	ID             string           `json:"id"`
	ModelID        string           `json:"model_id"`
	SubscriptionID string           `json:"subscription_id,omitempty"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	SourceType     SourceType       `json:"source_type"`
	Config         string           `json:"config"`
	Status         ProcessingStatus `json:"status"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	LastSyncedAt   int64            `json:"last_synced_at"`
	CreatedAt      int64            `json:"created_at"`
}
