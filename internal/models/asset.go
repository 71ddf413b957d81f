package models

import (
	"fmt"
	"strings"
	"time"
)

// AssetVariant names the role an asset plays for its memory. The gateway
// resolves abstract variant names to concrete assets at read time.
type AssetVariant string

const (
	VariantOriginal  AssetVariant = "original"
	VariantThumbnail AssetVariant = "thumbnail"
	VariantPreview   AssetVariant = "preview"
)

var validAssetVariants = map[AssetVariant]struct{}{
	VariantOriginal:  {},
	VariantThumbnail: {},
	VariantPreview:   {},
}

// Asset is one concrete binary payload attached to a memory. Small payloads
// are stored inline next to their metadata; large payloads live in the
// content-addressed blob tree and are referenced by BlobKey.
//
// An asset is never visible to readers unless its recorded SHA256 matched the
// hash of the materialized bytes at commit time.
type Asset struct {
	ID          string    `json:"id"`
	MemoryID    string    `json:"memory_id"`
	Variant     string    `json:"variant"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
	Inline      []byte    `json:"-"`
	BlobKey     string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsInline reports whether the asset bytes are stored in the metadata row.
func (a *Asset) IsInline() bool {
	return a != nil && a.BlobKey == ""
}

func ParseAssetVariant(raw string) (AssetVariant, error) {
	value := AssetVariant(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("asset variant is required")
	}
	if _, ok := validAssetVariants[value]; !ok {
		return "", fmt.Errorf("invalid asset variant: %s", value)
	}
	return value, nil
}
