package models

import "time"

// Blob is an immutable stored content object in the content-addressed tree,
// referenced by assets through its SHA256 digest.
type Blob struct {
	SHA256    string    `json:"sha256"`
	SizeBytes int64     `json:"size_bytes"`
	BlobKey   string    `json:"blob_key"`
	CreatedAt time.Time `json:"created_at"`
}
