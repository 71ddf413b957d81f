package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"capsd/internal/models"
)

// QuotaUsage reports one subject's current consumption. The daily counter
// rolls over lazily: a row from a previous UTC day reads as zero commits.
func (s *Store) QuotaUsage(ctx context.Context, subject string, now time.Time) (*models.QuotaUsage, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}

	usage := &models.QuotaUsage{Subject: subject}

	var day string
	err := s.db.QueryRowContext(ctx, `
		SELECT day, commits_today, stored_bytes FROM quotas WHERE subject = ?
	`, subject).Scan(&day, &usage.CommitsToday, &usage.StoredBytes)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if day != dayKey(now) {
		usage.CommitsToday = 0
	}

	active, err := s.CountActiveSessions(ctx, subject)
	if err != nil {
		return nil, err
	}
	usage.ActiveSessions = active

	return usage, nil
}

// quotaRowTx reads (creating if absent) the subject's quota row inside tx,
// applying the daily rollover so callers always see current-day counts.
func quotaRowTx(ctx context.Context, tx *sql.Tx, subject string, now time.Time) (*models.QuotaUsage, error) {
	usage := &models.QuotaUsage{Subject: subject}
	today := dayKey(now)

	var day string
	err := tx.QueryRowContext(ctx, `
		SELECT day, commits_today, stored_bytes FROM quotas WHERE subject = ?
	`, subject).Scan(&day, &usage.CommitsToday, &usage.StoredBytes)
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quotas (subject, day, commits_today, stored_bytes) VALUES (?, ?, 0, 0)
		`, subject, today); err != nil {
			return nil, err
		}
		return usage, nil
	}
	if err != nil {
		return nil, err
	}

	if day != today {
		usage.CommitsToday = 0
		if _, err := tx.ExecContext(ctx, `
			UPDATE quotas SET day = ?, commits_today = 0 WHERE subject = ?
		`, today, subject); err != nil {
			return nil, err
		}
	}

	return usage, nil
}

// ReleaseStoredBytes returns reclaimed capacity to a subject after blob GC
// or memory deletion.
func (s *Store) ReleaseStoredBytes(ctx context.Context, subject string, bytes int64) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("subject is required")
	}
	if bytes <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE quotas SET stored_bytes = MAX(0, stored_bytes - ?) WHERE subject = ?
	`, bytes, subject)
	return err
}
