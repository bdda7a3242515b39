package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Document is the unit of ingestion. Content holds the normalized text handed
// over by the upstream parser; chunks are derived from it during processing and
// are owned by the document (deleting the document cascades to its chunks).
type Document struct {
	ID           string           `json:"id"`
	CollectionID string           `json:"collection_id"`
	Filename     string           `json:"filename,omitempty"`
	MimeType     string           `json:"mime_type"`
	Content      string           `json:"-"`
	Strategy     ChunkingStrategy `json:"strategy"`
	Status       DocumentStatus   `json:"status"`
	Error        string           `json:"error,omitempty"`
	ErrorCode    string           `json:"error_code,omitempty"`
	ChunksTotal  int              `json:"chunks_total"`
	ChunksDone   int              `json:"chunks_done"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Progress is observational only; a partially embedded document is still
// "processing".
type Progress struct {
	ChunksTotal int `json:"chunks_total"`
	ChunksDone  int `json:"chunks_done"`
}

type DocumentState struct {
	ID        string         `json:"id"`
	Status    DocumentStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
	Progress  Progress       `json:"progress"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CollectionStats is a point-in-time count of indexed vectors in a logical
// collection.
type CollectionStats struct {
	CollectionID string `json:"collection_id"`
	Points       int    `json:"points"`
}

func (d *Document) State() DocumentState {
	return DocumentState{
		ID:        d.ID,
		Status:    d.Status,
		Error:     d.Error,
		ErrorCode: d.ErrorCode,
		Progress: Progress{
			ChunksTotal: d.ChunksTotal,
			ChunksDone:  d.ChunksDone,
		},
		UpdatedAt: d.UpdatedAt,
	}
}
