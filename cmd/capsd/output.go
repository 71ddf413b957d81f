package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"capsd/internal/api"
	"capsd/internal/format"
)

var outputFormatter format.Formatter = format.JSONFormatter{Indent: "  "}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeMemoryList(memories []api.Memory) error {
	for _, memory := range memories {
		if err := writePlain("%s\n", formatMemoryLine(memory)); err != nil {
			return err
		}
	}
	return nil
}

func writeMemoryDetail(memory api.Memory) error {
	lines := []string{
		fmt.Sprintf("id: %s", memory.ID),
		fmt.Sprintf("capsule_id: %s", memory.CapsuleID),
		fmt.Sprintf("kind: %s", memory.Kind),
		fmt.Sprintf("size_bytes: %d", memory.SizeBytes),
		fmt.Sprintf("created_at: %s", formatTime(memory.CreatedAt)),
		fmt.Sprintf("updated_at: %s", formatTime(memory.UpdatedAt)),
	}

	if memory.Title != "" {
		lines = append(lines, fmt.Sprintf("title: %s", memory.Title))
	}
	if memory.ContentType != "" {
		lines = append(lines, fmt.Sprintf("content_type: %s", memory.ContentType))
	}
	if len(memory.Tags) > 0 {
		lines = append(lines, fmt.Sprintf("tags: %s", strings.Join(memory.Tags, ", ")))
	}

	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeAssetList(assets []api.Asset) error {
	for _, asset := range assets {
		storage := "blob"
		if asset.Inline {
			storage = "inline"
		}
		if err := writePlain("%s [%s] %s %d bytes sha256:%s\n", asset.ID, asset.Variant, storage, asset.SizeBytes, asset.SHA256); err != nil {
			return err
		}
	}
	return nil
}

func writeCapsuleDetail(capsule api.Capsule) error {
	lines := []string{
		fmt.Sprintf("id: %s", capsule.ID),
		fmt.Sprintf("owner_subject: %s", capsule.OwnerSubject),
		fmt.Sprintf("created_at: %s", formatTime(capsule.CreatedAt)),
		fmt.Sprintf("updated_at: %s", formatTime(capsule.UpdatedAt)),
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatMemoryLine(memory api.Memory) string {
	title := memory.Title
	if title == "" {
		title = "(untitled)"
	}
	return fmt.Sprintf("%s [%s] %s", memory.ID, memory.Kind, title)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
