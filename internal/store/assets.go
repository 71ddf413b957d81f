package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"capsd/internal/models"
)

const assetColumns = "id, memory_id, variant, content_type, size_bytes, sha256, inline_data, blob_key, created_at"
const blobColumns = "sha256, size_bytes, blob_key, created_at"

// GetAsset returns one asset of a memory by asset id, or nil when absent.
func (s *Store) GetAsset(ctx context.Context, memoryID, assetID string) (*models.Asset, error) {
	if !ValidID(memoryID) || !ValidID(assetID) {
		return nil, fmt.Errorf("invalid asset identity")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE memory_id = ? AND id = ?`, memoryID, assetID)
	return scanAsset(row)
}

// ListAssetsByMemory lists all assets of one memory, oldest first.
func (s *Store) ListAssetsByMemory(ctx context.Context, memoryID string) ([]models.Asset, error) {
	if !ValidID(memoryID) {
		return nil, fmt.Errorf("invalid memory id")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE memory_id = ? ORDER BY created_at ASC, id ASC`, memoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := []models.Asset{}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		if asset != nil {
			assets = append(assets, *asset)
		}
	}
	return assets, rows.Err()
}

// ListAssetsByVariant lists assets of one memory matching variant, newest
// first.
func (s *Store) ListAssetsByVariant(ctx context.Context, memoryID, variant string) ([]models.Asset, error) {
	if !ValidID(memoryID) {
		return nil, fmt.Errorf("invalid memory id")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE memory_id = ? AND variant = ? ORDER BY created_at DESC, id DESC`, memoryID, variant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := []models.Asset{}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		if asset != nil {
			assets = append(assets, *asset)
		}
	}
	return assets, rows.Err()
}

// FindAssetByHash looks up an asset by its idempotency triple
// (memory, variant, content hash).
func (s *Store) FindAssetByHash(ctx context.Context, memoryID, variant, sha string) (*models.Asset, error) {
	if !ValidID(memoryID) {
		return nil, fmt.Errorf("invalid memory id")
	}
	sha = strings.ToLower(strings.TrimSpace(sha))
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE memory_id = ? AND variant = ? AND sha256 = ?`, memoryID, variant, sha)
	return scanAsset(row)
}

// GetBlobBySHA256 returns blob metadata by digest, or nil.
func (s *Store) GetBlobBySHA256(ctx context.Context, sha string) (*models.Blob, error) {
	sha = strings.ToLower(strings.TrimSpace(sha))
	if sha == "" {
		return nil, fmt.Errorf("sha256 is required")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE sha256 = ?`, sha)
	return scanBlob(row)
}

// ListUnreferencedBlobs returns blob rows no asset points at, oldest first.
// These are GC candidates left behind by deleted memories.
func (s *Store) ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error) {
	query := `
		SELECT b.sha256, b.size_bytes, b.blob_key, b.created_at
		FROM blobs b
		LEFT JOIN assets a ON a.sha256 = b.sha256 AND a.blob_key != ''
		WHERE a.id IS NULL
		ORDER BY b.created_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			blobs = append(blobs, *blob)
		}
	}
	return blobs, rows.Err()
}

// DeleteBlob deletes one blob row by digest.
func (s *Store) DeleteBlob(ctx context.Context, sha string) error {
	sha = strings.ToLower(strings.TrimSpace(sha))
	if sha == "" {
		return fmt.Errorf("sha256 is required")
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE sha256 = ?", sha)
	return err
}

func insertAssetTx(ctx context.Context, tx *sql.Tx, asset *models.Asset) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO assets (id, memory_id, variant, content_type, size_bytes, sha256, inline_data, blob_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		asset.ID,
		asset.MemoryID,
		asset.Variant,
		asset.ContentType,
		asset.SizeBytes,
		asset.SHA256,
		asset.Inline,
		asset.BlobKey,
		formatTime(asset.CreatedAt),
	)
	return err
}

func upsertBlobTx(ctx context.Context, tx *sql.Tx, blob *models.Blob) error {
	if blob == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO blobs (sha256, size_bytes, blob_key, created_at)
		VALUES (?, ?, ?, ?)
	`, blob.SHA256, blob.SizeBytes, blob.BlobKey, formatTime(blob.CreatedAt))
	return err
}

func scanAsset(scanner interface {
	Scan(dest ...any) error
}) (*models.Asset, error) {
	asset := models.Asset{}
	var inline []byte
	var blobKey sql.NullString
	var createdAt string

	err := scanner.Scan(
		&asset.ID,
		&asset.MemoryID,
		&asset.Variant,
		&asset.ContentType,
		&asset.SizeBytes,
		&asset.SHA256,
		&inline,
		&blobKey,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	asset.Inline = inline
	asset.BlobKey = blobKey.String

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	asset.CreatedAt = parsedCreated

	return &asset, nil
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.Blob, error) {
	blob := models.Blob{}
	var createdAt string

	err := scanner.Scan(&blob.SHA256, &blob.SizeBytes, &blob.BlobKey, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsedCreated

	return &blob, nil
}
