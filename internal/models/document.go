package models

import (
	"fmt"
	"io"
	"math"
)

// EmbeddingStatus is the processing state reported by the backend for an uploaded document.
type EmbeddingStatus string

const (
	EmbeddingPending    EmbeddingStatus = "pending"
	EmbeddingProcessing EmbeddingStatus = "processing"
	EmbeddingCompleted  EmbeddingStatus = "completed"
	EmbeddingFailed     EmbeddingStatus = "failed"
)

// Document is a document record as returned by the backend.
type Document struct {
	ID               ID              `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	DocumentType     string          `json:"document_type"`
	OriginalFilename string          `json:"original_filename"`
	ContentType      string          `json:"content_type"`
	SizeBytes        *int64          `json:"size_bytes"`
	EmbeddingStatus  EmbeddingStatus `json:"embedding_status"`
	EnqueueError     string          `json:"enqueue_error"`
	EmbeddingError   string          `json:"embedding_error"`
}

// CanRetry reports whether the document may be sent back to the embedding queue.
func (d Document) CanRetry() bool {
	return d.EmbeddingStatus == EmbeddingFailed
}

// DocumentPage is one page of the document listing.
type DocumentPage struct {
	Records     []Document `json:"records"`
	TotalPages  int        `json:"total_pages"`
	CurrentPage int        `json:"current_page"`
}

// DocumentListParams filters the document listing. Zero values are omitted from the query string.
type DocumentListParams struct {
	Page  int
	Query string
}

// DocumentForm holds the fields of a document create or update. File is required on create only.
type DocumentForm struct {
	Name         string `validate:"required"`
	Description  string
	DocumentType string
	FileName     string
	File         io.Reader
}

// PasswordChange is the body of a user password update.
type PasswordChange struct {
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders a byte size the way the document tables show it. A nil size renders as "-".
func FormatBytes(size *int64) string {
	if size == nil || *size < 0 {
		return "-"
	}
	if *size == 0 {
		return "0 B"
	}

	v := float64(*size)
	idx := int(math.Floor(math.Log(v) / math.Log(1024)))
	idx = min(idx, len(byteUnits)-1)
	scaled := v / math.Pow(1024, float64(idx))

	if scaled >= 10 || idx == 0 {
		return fmt.Sprintf("%.0f %s", scaled, byteUnits[idx])
	}
	return fmt.Sprintf("%.1f %s", scaled, byteUnits[idx])
}
