package model

// Document is one uploaded file inside a data source. ChunkCount is
// authoritative only once Status is ready.
type Document struct {
	ID               string           `json:"id"`
	DataSourceID     string           `json:"data_source_id"`
	Filename         string           `json:"filename"`
	OriginalFilename string           `json:"original_filename"`
	ContentType      string           `json:"content_type"`
	FileSize         int64            `json:"file_size"`
	StoragePath      string           `json:"storage_path"`
	ChunkCount       int              `json:"chunk_count"`
	Status           ProcessingStatus `json:"status"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	Metadata         string           `json:"metadata,omitempty"`
	CreatedAt        int64            `json:"created_at"`
}
