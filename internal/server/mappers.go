package server

import (
	"capsd/internal/api"
	"capsd/internal/models"
	"capsd/internal/store"
)

func capsuleToAPI(capsule *models.Capsule) api.Capsule {
	return api.Capsule{
		ID:           capsule.ID,
		OwnerSubject: capsule.OwnerSubject,
		CreatedAt:    capsule.CreatedAt,
		UpdatedAt:    capsule.UpdatedAt,
	}
}

func memoryToAPI(memory *models.Memory) api.Memory {
	return api.Memory{
		ID:          memory.ID,
		CapsuleID:   memory.CapsuleID,
		Kind:        memory.Kind,
		Title:       memory.Title,
		ContentType: memory.ContentType,
		SizeBytes:   memory.SizeBytes,
		Tags:        memory.Tags,
		Custom:      memory.Custom,
		CreatedAt:   memory.CreatedAt,
		UpdatedAt:   memory.UpdatedAt,
	}
}

func assetToAPI(asset *models.Asset) api.Asset {
	return api.Asset{
		ID:          asset.ID,
		MemoryID:    asset.MemoryID,
		Variant:     asset.Variant,
		ContentType: asset.ContentType,
		SizeBytes:   asset.SizeBytes,
		SHA256:      asset.SHA256,
		Inline:      asset.IsInline(),
		CreatedAt:   asset.CreatedAt,
	}
}

func userToAPI(user *store.AdminUser) api.AdminUser {
	return api.AdminUser{
		ID:        user.ID,
		Username:  user.Username,
		Disabled:  user.Disabled,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
