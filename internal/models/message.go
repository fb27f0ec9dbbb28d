package models

import (
	"iter"
	"time"
)

// Message is one turn of an inquiry conversation. The assistant message is created empty and its
// content grows while the answer streams in.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser is the message holding the submitted query.
	RoleUser Role = "user"
	// RoleAssistant is the message holding the streamed answer.
	RoleAssistant Role = "assistant"
)

// InquiryRequest is the body sent to the inquire endpoint. K is a result-count hint; zero leaves
// the choice to the backend.
type InquiryRequest struct {
	Query         string   `json:"query" validate:"required"`
	DocumentTypes []string `json:"document_types" validate:"min=1,dive,required"`
	K             int      `json:"k,omitempty" validate:"gte=0"`
}

// InquiryResponse is what a transport hands back for an accepted inquiry.
//
// Chunks yields raw body chunks in arrival order. When the transport has no incremental reader,
// Chunks is nil and Body holds the complete answer.
type InquiryResponse struct {
	Chunks iter.Seq2[[]byte, error]
	Body   []byte
}
