package models

import (
	"fmt"
	"strings"
	"time"
)

// DocumentStatus is the review state of an uploaded document.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentApproved DocumentStatus = "approved"
	DocumentRejected DocumentStatus = "rejected"
)

var validDocumentStatuses = map[DocumentStatus]struct{}{
	DocumentPending:  {},
	DocumentApproved: {},
	DocumentRejected: {},
}

// Document is the descriptive record owning exactly one blob file.
type Document struct {
	ID           string    `json:"id" yaml:"id"`
	UserID       string    `json:"user_id" yaml:"user_id"`
	OriginalName string    `json:"original_name" yaml:"original_name"`
	DocumentType string    `json:"document_type" yaml:"document_type"`
	Country      string    `json:"country" yaml:"country"`
	Status       string    `json:"status" yaml:"status"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	FileID       string    `json:"file_id" yaml:"file_id"`
	UploadedAt   time.Time `json:"uploaded_at" yaml:"uploaded_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// DocumentAttrs are the caller-supplied attributes of a new document.
type DocumentAttrs struct {
	OriginalName string
	DocumentType string
	Country      string
	Description  string
	Status       string
}

func IsValidDocumentStatus(status DocumentStatus) bool {
	_, ok := validDocumentStatuses[status]
	return ok
}

func ParseDocumentStatus(raw string) (DocumentStatus, error) {
	value := DocumentStatus(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("document status is required")
	}
	if !IsValidDocumentStatus(value) {
		return "", fmt.Errorf("invalid document status: %s", value)
	}
	return value, nil
}
