package models

import (
	"fmt"
	"strings"
	"time"
)

// MemoryKind describes the declared payload category of a memory.
type MemoryKind string

const (
	MemoryKindImage    MemoryKind = "image"
	MemoryKindVideo    MemoryKind = "video"
	MemoryKindAudio    MemoryKind = "audio"
	MemoryKindDocument MemoryKind = "document"
	MemoryKindNote     MemoryKind = "note"
)

var validMemoryKinds = map[MemoryKind]struct{}{
	MemoryKindImage:    {},
	MemoryKindVideo:    {},
	MemoryKindAudio:    {},
	MemoryKindDocument: {},
	MemoryKindNote:     {},
}

// Memory is a logical item owned by a capsule, composed of one or more assets.
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

func ParseMemoryKind(raw string) (MemoryKind, error) {
	value := MemoryKind(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("memory kind is required")
	}
	if _, ok := validMemoryKinds[value]; !ok {
		return "", fmt.Errorf("invalid memory kind: %s", value)
	}
	return value, nil
}
