package documents

import (
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/arbiter/pkg/query"
	"github.com/JaimeStill/arbiter/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "documents", "d").
	Project("id", "ID").
	Project("filename", "Filename").
	Project("content_type", "ContentType").
	Project("size_bytes", "SizeBytes").
	Project("status", "Status").
	Project("metadata", "Metadata").
	Project("uploaded_at", "UploadedAt").
	Project("updated_at", "UpdatedAt")

var resultProjection = query.
	NewProjectionMap("public", "processing_results", "r").
	Project("document_id", "DocumentID").
	Project("kind", "Kind").
	Project("confidence", "Confidence").
	Project("created_at", "CreatedAt")

var defaultSort = query.SortField{
	Field:      "UploadedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for document queries.
// Nil fields are ignored. Status and ContentType use exact matching;
// Filename uses case-insensitive contains matching.
type Filters struct {
	Status      *string `json:"status,omitempty"`
	Filename    *string `json:"filename,omitempty"`
	ContentType *string `json:"content_type,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereContains("Filename", f.Filename).
		WhereEquals("ContentType", f.ContentType)
}

func scanDocument(s repository.Scanner) (Document, error) {
	var (
		d    Document
		meta []byte
	)

	err := s.Scan(
		&d.ID,
		&d.Filename,
		&d.ContentType,
		&d.SizeBytes,
		&d.Status,
		&meta,
		&d.UploadedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return d, err
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &d.Metadata); err != nil {
			return d, fmt.Errorf("decode document metadata: %w", err)
		}
	}

	return d, nil
}

func scanResult(s repository.Scanner) (ProcessingResult, error) {
	var r ProcessingResult
	err := s.Scan(
		&r.DocumentID,
		&r.Kind,
		&r.Confidence,
		&r.CreatedAt,
	)
	return r, err
}
