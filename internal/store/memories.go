package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"capsd/internal/models"
)

const memoryColumns = "id, capsule_id, kind, title, content_type, size_bytes, tags, custom, created_at, updated_at"

// MemoryListFilter narrows and paginates memory listings.
type MemoryListFilter struct {
	Kind   string
	Tag    string
	Cursor string
	Limit  int
}

// CreateMemory inserts one memory row. The id must already be a canonical
// UUID; empty or malformed ids fail before any SQL runs.
func (s *Store) CreateMemory(ctx context.Context, memory *models.Memory) error {
	if memory == nil {
		return fmt.Errorf("memory is required")
	}
	if !ValidID(memory.ID) {
		return fmt.Errorf("invalid memory id")
	}
	if !ValidID(memory.CapsuleID) {
		return fmt.Errorf("invalid capsule id")
	}

	now := time.Now().UTC()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	if memory.UpdatedAt.IsZero() {
		memory.UpdatedAt = memory.CreatedAt
	}
	memory.Tags = normalizeTags(memory.Tags)

	tagsJSON, err := stringsToJSON(memory.Tags)
	if err != nil {
		return err
	}
	customJSON, err := mapToJSON(memory.Custom)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, capsule_id, kind, title, content_type, size_bytes, tags, custom, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		memory.ID,
		memory.CapsuleID,
		memory.Kind,
		nullIfEmpty(strings.TrimSpace(memory.Title)),
		nullIfEmpty(strings.TrimSpace(memory.ContentType)),
		memory.SizeBytes,
		tagsJSON,
		customJSON,
		formatTime(memory.CreatedAt),
		formatTime(memory.UpdatedAt),
	)
	return err
}

// GetMemory returns one memory by id, or nil when absent.
func (s *Store) GetMemory(ctx context.Context, id string) (*models.Memory, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("invalid memory id")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	return scanMemory(row)
}

// MemoryExists checks whether a memory exists by id.
func (s *Store) MemoryExists(ctx context.Context, id string) (bool, error) {
	if !ValidID(id) {
		return false, nil
	}
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM memories WHERE id = ? LIMIT 1", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateMemorySize records the cumulative asset byte size on the memory row.
func (s *Store) UpdateMemorySize(ctx context.Context, id string, sizeBytes int64, now time.Time) error {
	if !ValidID(id) {
		return fmt.Errorf("invalid memory id")
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE memories SET size_bytes = size_bytes + ?, updated_at = ? WHERE id = ?
	`, sizeBytes, formatTime(now), id)
	return err
}

// DeleteMemory deletes one memory row; assets and sessions cascade.
func (s *Store) DeleteMemory(ctx context.Context, id string) (bool, error) {
	if !ValidID(id) {
		return false, fmt.Errorf("invalid memory id")
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListMemoriesByCapsule lists memories newest-first with keyset pagination.
// The cursor is the id of the last memory on the previous page.
func (s *Store) ListMemoriesByCapsule(ctx context.Context, capsuleID string, filter MemoryListFilter) ([]models.Memory, error) {
	if !ValidID(capsuleID) {
		return nil, fmt.Errorf("invalid capsule id")
	}
	if filter.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE capsule_id = ?`
	args := []any{capsuleID}

	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filter.Kind)
	}
	if filter.Tag != "" {
		// Tags are stored as a sorted JSON array of normalized strings, so
		// a quoted substring match is exact.
		query += " AND tags LIKE ?"
		args = append(args, `%"`+strings.ToLower(strings.TrimSpace(filter.Tag))+`"%`)
	}
	if filter.Cursor != "" {
		if !ValidID(filter.Cursor) {
			return nil, fmt.Errorf("invalid cursor")
		}
		anchor, err := s.GetMemory(ctx, filter.Cursor)
		if err != nil {
			return nil, err
		}
		if anchor == nil {
			return nil, fmt.Errorf("unknown cursor")
		}
		query += " AND (created_at < ? OR (created_at = ? AND id < ?))"
		anchorTime := formatTime(anchor.CreatedAt)
		args = append(args, anchorTime, anchorTime, anchor.ID)
	}

	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	memories := []models.Memory{}
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		if memory != nil {
			memories = append(memories, *memory)
		}
	}
	return memories, rows.Err()
}

func scanMemory(scanner interface {
	Scan(dest ...any) error
}) (*models.Memory, error) {
	memory := models.Memory{}
	var title, contentType, tagsJSON, customJSON sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&memory.ID,
		&memory.CapsuleID,
		&memory.Kind,
		&title,
		&contentType,
		&memory.SizeBytes,
		&tagsJSON,
		&customJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	memory.Title = title.String
	memory.ContentType = contentType.String

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	parsedUpdated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	memory.CreatedAt = parsedCreated
	memory.UpdatedAt = parsedUpdated

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &memory.Tags); err != nil {
			return nil, fmt.Errorf("parse memory tags: %w", err)
		}
	}
	if customJSON.Valid && customJSON.String != "" {
		if err := json.Unmarshal([]byte(customJSON.String), &memory.Custom); err != nil {
			return nil, fmt.Errorf("parse memory custom: %w", err)
		}
	}

	return &memory, nil
}

func stringsToJSON(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	return string(data), nil
}

func mapToJSON(values map[string]any) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal custom fields: %w", err)
	}
	return string(data), nil
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	return out
}
