package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"capsd/internal/models"
)

const uploadSessionColumns = "id, memory_id, owner_subject, variant, content_type, expected_sha256, chunk_count, total_size, bitmap, bytes_received, created_at"

// Quota sentinel errors let the service layer map each limit to a distinct
// caller-visible failure instead of a generic rejection.
var (
	ErrQuotaSessions     = errors.New("too many concurrent upload sessions for subject")
	ErrQuotaDailyUploads = errors.New("daily upload limit reached for subject")
	ErrQuotaStoredBytes  = errors.New("stored bytes limit reached for subject")

	ErrSessionNotFound      = errors.New("upload session not found")
	ErrChunkOutOfRange      = errors.New("chunk index out of declared range")
	ErrChunkAlreadyReceived = errors.New("chunk already received")
)

// QuotaLimits carries the per-subject ceilings enforced at session begin and
// commit time. Zero values disable the corresponding check.
type QuotaLimits struct {
	MaxSessionsPerSubject int
	MaxCommitsPerDay      int
	MaxStoredBytes        int64
}

// CreateUploadSession inserts a session after reserving quota headroom for
// its subject. Quota checks and the insert share one transaction, so two
// interleaved begin calls can never both slip under a limit.
func (s *Store) CreateUploadSession(ctx context.Context, session *models.UploadSession, limits QuotaLimits, now time.Time) (err error) {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	if !ValidID(session.ID) {
		return fmt.Errorf("invalid session id")
	}
	if !ValidID(session.MemoryID) {
		return fmt.Errorf("invalid memory id")
	}
	subject := strings.TrimSpace(session.OwnerSubject)
	if subject == "" {
		return fmt.Errorf("owner subject is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if limits.MaxSessionsPerSubject > 0 {
		var active int
		if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_sessions WHERE owner_subject = ?`, subject).Scan(&active); err != nil {
			return err
		}
		if active >= limits.MaxSessionsPerSubject {
			return ErrQuotaSessions
		}
	}

	usage, err := quotaRowTx(ctx, tx, subject, now)
	if err != nil {
		return err
	}
	if limits.MaxCommitsPerDay > 0 && usage.CommitsToday >= limits.MaxCommitsPerDay {
		return ErrQuotaDailyUploads
	}
	if limits.MaxStoredBytes > 0 {
		// Declared sizes of the subject's in-flight sessions count against
		// the cap too; otherwise two sessions that each fit could both
		// begin and both commit past it.
		var pending int64
		if err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(total_size), 0) FROM upload_sessions WHERE owner_subject = ?
		`, subject).Scan(&pending); err != nil {
			return err
		}
		if usage.StoredBytes+pending+session.TotalSize > limits.MaxStoredBytes {
			return ErrQuotaStoredBytes
		}
	}

	if session.CreatedAt.IsZero() {
		session.CreatedAt = now.UTC()
	}
	if len(session.Bitmap) == 0 {
		session.Bitmap = models.NewChunkBitmap(session.ChunkCount)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO upload_sessions (id, memory_id, owner_subject, variant, content_type, expected_sha256, chunk_count, total_size, bitmap, bytes_received, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.MemoryID,
		subject,
		session.Variant,
		nullIfEmpty(strings.TrimSpace(session.ContentType)),
		session.ExpectedSHA256,
		session.ChunkCount,
		session.TotalSize,
		session.Bitmap,
		session.BytesReceived,
		formatTime(session.CreatedAt),
	); err != nil {
		return err
	}

	return tx.Commit()
}

// GetUploadSession returns one session by id, or nil when absent.
func (s *Store) GetUploadSession(ctx context.Context, id string) (*models.UploadSession, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("invalid session id")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+uploadSessionColumns+` FROM upload_sessions WHERE id = ?`, id)
	return scanUploadSession(row)
}

// PutChunk stores one chunk and marks its receipt bit in a single
// transaction. A chunk index that was already received is rejected rather
// than silently overwritten, so the byte count can never drift.
func (s *Store) PutChunk(ctx context.Context, sessionID string, index int, data []byte) (_ *models.UploadSession, err error) {
	if !ValidID(sessionID) {
		return nil, ErrSessionNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	session, err := scanUploadSession(tx.QueryRowContext(ctx, `SELECT `+uploadSessionColumns+` FROM upload_sessions WHERE id = ?`, sessionID))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if index < 0 || index >= session.ChunkCount {
		return nil, ErrChunkOutOfRange
	}
	if session.ChunkReceived(index) {
		return nil, ErrChunkAlreadyReceived
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO upload_chunks (session_id, chunk_index, data) VALUES (?, ?, ?)
	`, sessionID, index, data); err != nil {
		return nil, err
	}

	session.MarkChunkReceived(index)
	session.BytesReceived += int64(len(data))
	if _, err = tx.ExecContext(ctx, `
		UPDATE upload_sessions SET bitmap = ?, bytes_received = ? WHERE id = ?
	`, session.Bitmap, session.BytesReceived, sessionID); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return session, nil
}

// ForEachChunk streams chunk payloads in index order.
func (s *Store) ForEachChunk(ctx context.Context, sessionID string, fn func(index int, data []byte) error) error {
	if !ValidID(sessionID) {
		return ErrSessionNotFound
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_index, data FROM upload_chunks WHERE session_id = ? ORDER BY chunk_index ASC
	`, sessionID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var index int
		var data []byte
		if err := rows.Scan(&index, &data); err != nil {
			return err
		}
		if err := fn(index, data); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DeleteUploadSession removes a session and its chunk buffers. Deleting a
// missing session reports false without error, which is what makes cancel
// safe to retry blindly.
func (s *Store) DeleteUploadSession(ctx context.Context, id string) (bool, error) {
	if !ValidID(id) {
		return false, nil
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM upload_sessions WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MaterializeAsset is the single commit transition: it inserts the verified
// asset (and blob metadata for non-inline payloads), removes the session and
// its chunks, bumps the subject's daily and stored-bytes counters, and rolls
// the memory's cumulative size, all in one transaction. A crash anywhere
// before the commit leaves only transient session state behind.
func (s *Store) MaterializeAsset(ctx context.Context, asset *models.Asset, blob *models.Blob, sessionID, subject string, now time.Time) (err error) {
	if asset == nil {
		return fmt.Errorf("asset is required")
	}
	if !ValidID(asset.ID) || !ValidID(asset.MemoryID) {
		return fmt.Errorf("invalid asset identity")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("owner subject is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now.UTC()
	}
	if err = insertAssetTx(ctx, tx, asset); err != nil {
		return err
	}
	if err = upsertBlobTx(ctx, tx, blob); err != nil {
		return err
	}

	if sessionID != "" {
		if _, err = tx.ExecContext(ctx, "DELETE FROM upload_sessions WHERE id = ?", sessionID); err != nil {
			return err
		}
	}

	usage, err := quotaRowTx(ctx, tx, subject, now)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE quotas SET day = ?, commits_today = ?, stored_bytes = ? WHERE subject = ?
	`, dayKey(now), usage.CommitsToday+1, usage.StoredBytes+asset.SizeBytes, subject); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE memories SET size_bytes = size_bytes + ?, updated_at = ? WHERE id = ?
	`, asset.SizeBytes, formatTime(now), asset.MemoryID); err != nil {
		return err
	}

	return tx.Commit()
}

// ListExpiredSessions returns sessions created before cutoff.
func (s *Store) ListExpiredSessions(ctx context.Context, cutoff time.Time) ([]models.UploadSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+uploadSessionColumns+` FROM upload_sessions WHERE created_at < ? ORDER BY created_at ASC
	`, formatTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.UploadSession{}
	for rows.Next() {
		session, err := scanUploadSession(rows)
		if err != nil {
			return nil, err
		}
		if session != nil {
			sessions = append(sessions, *session)
		}
	}
	return sessions, rows.Err()
}

// SweepExpiredSessions deletes sessions past cutoff plus any orphaned chunk
// rows whose session is gone. Returns how many sessions were removed.
func (s *Store) SweepExpiredSessions(ctx context.Context, cutoff time.Time) (_ int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, "DELETE FROM upload_sessions WHERE created_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	// Cascade handles chunks of deleted sessions; this catches buffers
	// orphaned by interrupted cancels or crashes mid-delete.
	if _, err = tx.ExecContext(ctx, `
		DELETE FROM upload_chunks
		WHERE session_id NOT IN (SELECT id FROM upload_sessions)
	`); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return int(affected), nil
}

// CountActiveSessions returns how many sessions a subject currently holds.
func (s *Store) CountActiveSessions(ctx context.Context, subject string) (int, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return 0, fmt.Errorf("subject is required")
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_sessions WHERE owner_subject = ?`, subject).Scan(&count)
	return count, err
}

func scanUploadSession(scanner interface {
	Scan(dest ...any) error
}) (*models.UploadSession, error) {
	session := models.UploadSession{}
	var contentType sql.NullString
	var createdAt string

	err := scanner.Scan(
		&session.ID,
		&session.MemoryID,
		&session.OwnerSubject,
		&session.Variant,
		&contentType,
		&session.ExpectedSHA256,
		&session.ChunkCount,
		&session.TotalSize,
		&session.Bitmap,
		&session.BytesReceived,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	session.ContentType = contentType.String

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	session.CreatedAt = parsedCreated

	return &session, nil
}
