package models

import "time"

// UploadSession tracks one in-progress chunked write. It is created by begin,
// mutated only by put-chunk, and removed by commit, cancel, or the expiry
// sweep. Sessions are persisted so an upload can resume across a restart.
type UploadSession struct {
	ID             string    `json:"id"`
	MemoryID       string    `json:"memory_id"`
	OwnerSubject   string    `json:"owner_subject"`
	Variant        string    `json:"variant"`
	ContentType    string    `json:"content_type"`
	ExpectedSHA256 string    `json:"expected_sha256"`
	ChunkCount     int       `json:"chunk_count"`
	TotalSize      int64     `json:"total_size"`
	Bitmap         []byte    `json:"-"`
	BytesReceived  int64     `json:"bytes_received"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewChunkBitmap allocates a receipt bitmap sized for chunkCount chunks.
func NewChunkBitmap(chunkCount int) []byte {
	return make([]byte, (chunkCount+7)/8)
}

// ChunkReceived reports whether the chunk at index has been received.
func (s *UploadSession) ChunkReceived(index int) bool {
	if s == nil || index < 0 || index >= s.ChunkCount || index/8 >= len(s.Bitmap) {
		return false
	}
	return s.Bitmap[index/8]&(1<<(index%8)) != 0
}

// MarkChunkReceived sets the receipt bit for index.
func (s *UploadSession) MarkChunkReceived(index int) {
	if s == nil || index < 0 || index >= s.ChunkCount || index/8 >= len(s.Bitmap) {
		return
	}
	s.Bitmap[index/8] |= 1 << (index % 8)
}

// ReceivedCount returns how many declared chunks have been received.
func (s *UploadSession) ReceivedCount() int {
	if s == nil {
		return 0
	}
	count := 0
	for i := 0; i < s.ChunkCount; i++ {
		if s.ChunkReceived(i) {
			count++
		}
	}
	return count
}

// Complete reports whether every declared chunk index has been received.
func (s *UploadSession) Complete() bool {
	return s != nil && s.ReceivedCount() == s.ChunkCount
}

// ExpiresAt returns the absolute deadline given the session timeout.
func (s *UploadSession) ExpiresAt(timeout time.Duration) time.Time {
	return s.CreatedAt.Add(timeout)
}

// Expired reports whether the session age exceeds timeout at now. Expiry is
// evaluated lazily on touch, never enforced exactly at the boundary.
func (s *UploadSession) Expired(now time.Time, timeout time.Duration) bool {
	return s != nil && now.After(s.ExpiresAt(timeout))
}
