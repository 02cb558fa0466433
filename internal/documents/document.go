// Package documents implements the document collaborator for Arbiter.
// The workflow engine consumes read-only document snapshots: metadata plus
// processing results. Upload, content storage, and extraction live in a
// separate ingestion service; this package only resolves what the engine
// needs to evaluate automatic triggers.
package documents

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Document represents registered document metadata.
type Document struct {
	ID          uuid.UUID         `json:"id"`
	Filename    string            `json:"filename"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ProcessingResult is one analysis outcome produced for a document
// (classification, extraction, etc.) with its confidence score.
type ProcessingResult struct {
	DocumentID uuid.UUID `json:"document_id"`
	Kind       string    `json:"kind"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Snapshot is the engine-facing view of a document at a point in time:
// its metadata and all processing results recorded so far.
type Snapshot struct {
	Document
	Results []ProcessingResult `json:"results,omitempty"`
}

// StatusCompleted is the processing status set on documents that have
// completed analysis.
const StatusCompleted = "Completed"

// Classified reports whether document processing has completed.
func (s *Snapshot) Classified() bool {
	return s.Status == StatusCompleted
}

// HighConfidence reports whether any processing result exceeds the threshold.
func (s *Snapshot) HighConfidence(threshold float64) bool {
	for _, r := range s.Results {
		if r.Confidence > threshold {
			return true
		}
	}
	return false
}

// Provider resolves document snapshots for the workflow engine.
// Implementations return ErrNotFound for unknown document ids.
type Provider interface {
	Snapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error)
}
