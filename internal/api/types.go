// Package api defines the wire types shared by the capsd server and its
// HTTP client.
package api

import "time"

// ErrorResponse is the JSON error envelope returned by all endpoints.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// Capsule mirrors one storage container.
type Capsule struct {
	ID           string    `json:"id"`
	OwnerSubject string    `json:"owner_subject"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EnsureCapsuleResponse reports the caller's capsule and whether this call
// created it.
type EnsureCapsuleResponse struct {
	Capsule Capsule `json:"capsule"`
	Created bool    `json:"created"`
}

// CreateMemoryRequest creates one memory in the caller's capsule.
type CreateMemoryRequest struct {
	Kind        string         `json:"kind"`
	Title       string         `json:"title,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Custom      map[string]any `json:"custom,omitempty"`
}

// Memory mirrors one record.
type Memory struct {
	ID          string         `json:"id"`
	CapsuleID   string         `json:"capsule_id"`
	Kind        string         `json:"kind"`
	Title       string         `json:"title,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	SizeBytes   int64          `json:"size_bytes"`
	Tags        []string       `json:"tags,omitempty"`
	Custom      map[string]any `json:"custom,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// MemoryListResponse is one page of memories plus the cursor for the next.
type MemoryListResponse struct {
	Memories   []Memory `json:"memories"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// Asset mirrors one asset's metadata. Payload bytes are only ever served by
// the gateway endpoint, never embedded here.
type Asset struct {
	ID          string    `json:"id"`
	MemoryID    string    `json:"memory_id"`
	Variant     string    `json:"variant"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
	Inline      bool      `json:"inline"`
	CreatedAt   time.Time `json:"created_at"`
}

// BeginUploadRequest opens a chunked upload session.
type BeginUploadRequest struct {
	MemoryID       string `json:"memory_id"`
	Variant        string `json:"variant"`
	ContentType    string `json:"content_type,omitempty"`
	ExpectedSHA256 string `json:"expected_sha256"`
	ChunkCount     int    `json:"chunk_count"`
	TotalSize      int64  `json:"total_size"`
}

// BeginUploadResponse carries either a fresh session or, when the asset
// already exists verified-present, its identity with AlreadyExists set.
type BeginUploadResponse struct {
	SessionID     string    `json:"session_id,omitempty"`
	AlreadyExists bool      `json:"already_exists,omitempty"`
	AssetID       string    `json:"asset_id,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
}

// PutChunkResponse acknowledges one received chunk with progress.
type PutChunkResponse struct {
	SessionID      string `json:"session_id"`
	ReceivedChunks int    `json:"received_chunks"`
	ChunkCount     int    `json:"chunk_count"`
	BytesReceived  int64  `json:"bytes_received"`
}

// CommitUploadRequest finalizes a session.
type CommitUploadRequest struct {
	FinalSHA256 string `json:"final_sha256"`
}

// CommitUploadResponse identifies the materialized asset.
type CommitUploadResponse struct {
	Asset      Asset `json:"asset"`
	TotalBytes int64 `json:"total_bytes"`
}

// MintTokenRequest asks for a capability token scoped to one memory.
type MintTokenRequest struct {
	MemoryID   string   `json:"memory_id"`
	Variants   []string `json:"variants"`
	AssetIDs   []string `json:"asset_ids,omitempty"`
	TTLSeconds int      `json:"ttl_seconds,omitempty"`
}

// MintTokenResponse carries one minted token.
type MintTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MintTokensBulkRequest asks for tokens over several memories at once.
type MintTokensBulkRequest struct {
	MemoryIDs  []string `json:"memory_ids"`
	Variants   []string `json:"variants"`
	AssetIDs   []string `json:"asset_ids,omitempty"`
	TTLSeconds int      `json:"ttl_seconds,omitempty"`
}

// BulkTokenGrant pairs one authorized memory id with its token.
type BulkTokenGrant struct {
	MemoryID string `json:"memory_id"`
	Token    string `json:"token"`
}

// MintTokensBulkResponse lists tokens for the ids the caller was authorized
// on. Ids that failed authorization are simply absent; partial success is
// the documented outcome, not an error.
type MintTokensBulkResponse struct {
	Tokens    []BulkTokenGrant `json:"tokens"`
	ExpiresAt time.Time        `json:"expires_at,omitempty"`
}

// GrantRequest adds or removes a delegated-share edge on a capsule.
type GrantRequest struct {
	Subject string `json:"subject"`
}

// GrantList lists a capsule's delegated-share subjects.
type GrantList struct {
	CapsuleID string   `json:"capsule_id"`
	Subjects  []string `json:"subjects"`
}

// QuotaResponse reports a subject's consumption against its limits.
type QuotaResponse struct {
	Subject        string `json:"subject"`
	ActiveSessions int    `json:"active_sessions"`
	CommitsToday   int    `json:"commits_today"`
	StoredBytes    int64  `json:"stored_bytes"`

	MaxSessions    int   `json:"max_sessions"`
	MaxCommitsDay  int   `json:"max_commits_per_day"`
	MaxStoredBytes int64 `json:"max_stored_bytes"`
}

// SweepResponse reports one expiry sweep run.
type SweepResponse struct {
	SessionsRemoved  int `json:"sessions_removed"`
	TempFilesRemoved int `json:"temp_files_removed"`
}

// GCResponse reports one blob garbage collection run.
type GCResponse struct {
	BlobsRemoved int   `json:"blobs_removed"`
	BytesFreed   int64 `json:"bytes_freed"`
}

// AdminUser mirrors one local admin account.
type AdminUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateAdminUserRequest creates one local admin account.
type CreateAdminUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SetUserDisabledRequest toggles one local admin account.
type SetUserDisabledRequest struct {
	Disabled *bool `json:"disabled"`
}

// AdminUserList lists local admin accounts.
type AdminUserList struct {
	Users []AdminUser `json:"users"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status string `json:"status"`
}

// InfoResponse describes the running server.
type InfoResponse struct {
	Version        string `json:"version"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`
	ChunkSizeBytes int64  `json:"chunk_size_bytes"`
	SessionTimeout int    `json:"session_timeout_seconds"`
}
