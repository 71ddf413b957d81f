package server

import (
	"fmt"
	"strings"

	"capsd/internal/models"
	"capsd/internal/store"
)

const sha256HexLength = 64

func validateID(id string) bool {
	return store.ValidID(id)
}

func validateHexSHA256(value string) error {
	value = strings.TrimSpace(value)
	if len(value) != sha256HexLength {
		return badRequestCode(fmt.Errorf("hash must be %d hex characters", sha256HexLength), ErrCodeInvalidHash)
	}
	for _, c := range value {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			// Uppercase hex is rejected, not normalized, matching the
			// canonical-identifier rule for UUIDs.
			return badRequestCode(fmt.Errorf("hash must be lowercase hex"), ErrCodeInvalidHash)
		}
	}
	return nil
}

func parseVariantParam(raw string) (models.AssetVariant, error) {
	variant, err := models.ParseAssetVariant(raw)
	if err != nil {
		return "", badRequestCode(err, ErrCodeInvalidVariant)
	}
	return variant, nil
}

func parseVariantList(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, badRequestCode(fmt.Errorf("at least one variant is required"), ErrCodeInvalidVariant)
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(raw))
	for _, value := range raw {
		variant, err := models.ParseAssetVariant(value)
		if err != nil {
			return nil, badRequestCode(err, ErrCodeInvalidVariant)
		}
		if _, ok := seen[string(variant)]; ok {
			continue
		}
		seen[string(variant)] = struct{}{}
		out = append(out, string(variant))
	}
	return out, nil
}

func validateAssetIDList(ids []string) error {
	for _, id := range ids {
		if !validateID(id) {
			return badRequestCode(fmt.Errorf("invalid asset id"), ErrCodeInvalidID)
		}
	}
	return nil
}
