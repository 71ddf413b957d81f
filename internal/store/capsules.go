package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"capsd/internal/models"
)

const capsuleColumns = "id, owner_subject, created_at, updated_at"

// EnsureCapsule returns the capsule owned by subject, creating it on first
// use. The create is idempotent: a second call for the same subject returns
// the existing capsule and reports created=false. The owner_subject unique
// index guarantees at most one capsule per subject even across interleaved
// callers.
func (s *Store) EnsureCapsule(ctx context.Context, subject string, now time.Time) (_ *models.Capsule, created bool, err error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, false, fmt.Errorf("owner subject is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := scanCapsule(tx.QueryRowContext(ctx, `SELECT `+capsuleColumns+` FROM capsules WHERE owner_subject = ?`, subject))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, tx.Commit()
	}

	capsule := &models.Capsule{
		ID:           NewID(),
		OwnerSubject: subject,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO capsules (id, owner_subject, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, capsule.ID, capsule.OwnerSubject, formatTime(capsule.CreatedAt), formatTime(capsule.UpdatedAt)); err != nil {
		return nil, false, err
	}

	return capsule, true, tx.Commit()
}

// GetCapsule returns one capsule by id, or nil when absent. An empty or
// non-canonical id is a hard precondition failure: looking it up would
// otherwise mask a corrupted subject index.
func (s *Store) GetCapsule(ctx context.Context, id string) (*models.Capsule, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("invalid capsule id")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+capsuleColumns+` FROM capsules WHERE id = ?`, id)
	return scanCapsule(row)
}

// GetCapsuleBySubject returns the capsule owned by subject, or nil.
func (s *Store) GetCapsuleBySubject(ctx context.Context, subject string) (*models.Capsule, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("owner subject is required")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+capsuleColumns+` FROM capsules WHERE owner_subject = ?`, subject)
	return scanCapsule(row)
}

// TouchCapsule bumps the capsule updated_at timestamp.
func (s *Store) TouchCapsule(ctx context.Context, id string, now time.Time) error {
	if !ValidID(id) {
		return fmt.Errorf("invalid capsule id")
	}
	_, err := s.db.ExecContext(ctx, `UPDATE capsules SET updated_at = ? WHERE id = ?`, formatTime(now), id)
	return err
}

func scanCapsule(scanner interface {
	Scan(dest ...any) error
}) (*models.Capsule, error) {
	capsule := models.Capsule{}
	var createdAt, updatedAt string

	err := scanner.Scan(&capsule.ID, &capsule.OwnerSubject, &createdAt, &updatedAt)
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
	parsedUpdated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	capsule.CreatedAt = parsedCreated
	capsule.UpdatedAt = parsedUpdated

	return &capsule, nil
}
