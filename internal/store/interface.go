package store

import (
	"context"
	"time"

	"capsd/internal/models"
)

// CapsuleStore is the persistence surface for capsules and delegated grants.
type CapsuleStore interface {
	EnsureCapsule(ctx context.Context, subject string, now time.Time) (*models.Capsule, bool, error)
	GetCapsule(ctx context.Context, id string) (*models.Capsule, error)
	GetCapsuleBySubject(ctx context.Context, subject string) (*models.Capsule, error)
	AddGrant(ctx context.Context, capsuleID, subject string, now time.Time) error
	RemoveGrant(ctx context.Context, capsuleID, subject string) error
	HasGrant(ctx context.Context, capsuleID, subject string) (bool, error)
	ListGrants(ctx context.Context, capsuleID string) ([]models.CapsuleGrant, error)
}

// MemoryStore is the persistence surface for memory records.
type MemoryStore interface {
	CreateMemory(ctx context.Context, memory *models.Memory) error
	GetMemory(ctx context.Context, id string) (*models.Memory, error)
	MemoryExists(ctx context.Context, id string) (bool, error)
	DeleteMemory(ctx context.Context, id string) (bool, error)
	ListMemoriesByCapsule(ctx context.Context, capsuleID string, filter MemoryListFilter) ([]models.Memory, error)
}

// AssetStore is the read surface for committed assets and blob metadata.
type AssetStore interface {
	GetAsset(ctx context.Context, memoryID, assetID string) (*models.Asset, error)
	ListAssetsByMemory(ctx context.Context, memoryID string) ([]models.Asset, error)
	ListAssetsByVariant(ctx context.Context, memoryID, variant string) ([]models.Asset, error)
	FindAssetByHash(ctx context.Context, memoryID, variant, sha string) (*models.Asset, error)
	GetBlobBySHA256(ctx context.Context, sha string) (*models.Blob, error)
	ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error)
	DeleteBlob(ctx context.Context, sha string) error
}

// UploadStore is the persistence surface for upload sessions, chunk buffers,
// quota counters, and the commit transition.
type UploadStore interface {
	CreateUploadSession(ctx context.Context, session *models.UploadSession, limits QuotaLimits, now time.Time) error
	GetUploadSession(ctx context.Context, id string) (*models.UploadSession, error)
	PutChunk(ctx context.Context, sessionID string, index int, data []byte) (*models.UploadSession, error)
	ForEachChunk(ctx context.Context, sessionID string, fn func(index int, data []byte) error) error
	DeleteUploadSession(ctx context.Context, id string) (bool, error)
	MaterializeAsset(ctx context.Context, asset *models.Asset, blob *models.Blob, sessionID, subject string, now time.Time) error
	ListExpiredSessions(ctx context.Context, cutoff time.Time) ([]models.UploadSession, error)
	SweepExpiredSessions(ctx context.Context, cutoff time.Time) (int, error)
	CountActiveSessions(ctx context.Context, subject string) (int, error)
	QuotaUsage(ctx context.Context, subject string, now time.Time) (*models.QuotaUsage, error)
	ReleaseStoredBytes(ctx context.Context, subject string, bytes int64) error
}

var (
	_ CapsuleStore = (*Store)(nil)
	_ MemoryStore  = (*Store)(nil)
	_ AssetStore   = (*Store)(nil)
	_ UploadStore  = (*Store)(nil)
)
