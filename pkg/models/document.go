package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Document represents a fetched web page before processing.
type Document struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	ContentType string    `json:"content_type"` // HTTP Content-Type header
	FetchedAt   time.Time `json:"fetched_at"`
	FromCache   bool      `json:"from_cache,omitempty"`
}

// GenerateDocumentID creates a deterministic ID from URL.
// The ID is a SHA-256 hash (first 16 chars) of the URL.
func GenerateDocumentID(url string) string {
	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:])[:16]
}
