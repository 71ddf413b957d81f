package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"capsd/internal/models"
)

// AddGrant records a delegated-share edge. Adding an existing grant is a
// no-op. The capsule must exist.
func (s *Store) AddGrant(ctx context.Context, capsuleID, subject string, now time.Time) error {
	if !ValidID(capsuleID) {
		return fmt.Errorf("invalid capsule id")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("subject is required")
	}

	capsule, err := s.GetCapsule(ctx, capsuleID)
	if err != nil {
		return err
	}
	if capsule == nil {
		return fmt.Errorf("capsule not found")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO capsule_grants (capsule_id, subject, created_at)
		VALUES (?, ?, ?)
	`, capsuleID, subject, formatTime(now))
	return err
}

// RemoveGrant deletes a delegated-share edge. Removing a missing grant is a
// no-op; outstanding tokens stay valid until their TTL regardless.
func (s *Store) RemoveGrant(ctx context.Context, capsuleID, subject string) error {
	if !ValidID(capsuleID) {
		return fmt.Errorf("invalid capsule id")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("subject is required")
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM capsule_grants WHERE capsule_id = ? AND subject = ?
	`, capsuleID, subject)
	return err
}

// HasGrant reports whether subject holds a delegated-share grant on capsule.
func (s *Store) HasGrant(ctx context.Context, capsuleID, subject string) (bool, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || !ValidID(capsuleID) {
		return false, nil
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM capsule_grants WHERE capsule_id = ? AND subject = ? LIMIT 1
	`, capsuleID, subject).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListGrants lists all grants on one capsule ordered by subject.
func (s *Store) ListGrants(ctx context.Context, capsuleID string) ([]models.CapsuleGrant, error) {
	if !ValidID(capsuleID) {
		return nil, fmt.Errorf("invalid capsule id")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT capsule_id, subject, created_at
		FROM capsule_grants
		WHERE capsule_id = ?
		ORDER BY subject ASC
	`, capsuleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grants := []models.CapsuleGrant{}
	for rows.Next() {
		var grant models.CapsuleGrant
		var createdAt string
		if err := rows.Scan(&grant.CapsuleID, &grant.Subject, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		grant.CreatedAt = parsed
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}
