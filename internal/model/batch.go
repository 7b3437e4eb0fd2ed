package model

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus describes where a batch is in its lifecycle.
type BatchStatus string

const (
	StatusPending    BatchStatus = "pending"
	StatusProcessing BatchStatus = "processing"
	StatusDone       BatchStatus = "done"
	StatusFailed     BatchStatus = "failed"
)

// Outcome is the per-image result recorded in the report.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Batch represents one processing run over an ordered set of uploaded images.
type Batch struct {
	ID          uuid.UUID     `json:"id"`
	Status      BatchStatus   `json:"status"`
	Options     Options       `json:"options"`
	Sources     []SourceRef   `json:"sources"`
	Report      []ReportEntry `json:"report,omitempty"`
	ArchivePath string        `json:"archive_path,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// SourceRef points at an uploaded original held in object storage.
type SourceRef struct {
	Filename string `json:"filename"`
	Format   Format `json:"format"`
	Key      string `json:"key"` // object storage key
}

// ReportEntry describes what happened to a single input image.
// Entries are emitted in input order, one per source image.
type ReportEntry struct {
	Original         string   `json:"original"`
	Name             string   `json:"name,omitempty"`
	RemovedTags      []string `json:"removed_tags,omitempty"`
	OriginalWidth    int      `json:"original_width,omitempty"`
	OriginalHeight   int      `json:"original_height,omitempty"`
	Width            int      `json:"width,omitempty"`
	Height           int      `json:"height,omitempty"`
	MetadataEmbedded bool     `json:"metadata_embedded"`
	Outcome          Outcome  `json:"outcome"`
	Error            string   `json:"error,omitempty"`
}

// Job is the queue message that triggers processing of an uploaded batch.
type Job struct {
	BatchID uuid.UUID `json:"batch_id"`
}
