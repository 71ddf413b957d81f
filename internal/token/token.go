// Package token mints and validates signed capability tokens for asset
// reads. Tokens are stateless: the server keeps no registry, so validation
// is a pure function of the token bytes and the signing keys.
package token

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const claimsVersion = 1

var (
	ErrExpired      = errors.New("token expired")
	ErrInvalid      = errors.New("token invalid")
	ErrUnknownKeyID = errors.New("unknown signing key id")
)

// Scope is the capability a token grants: read access to one memory,
// restricted to a variant set and optionally to specific asset ids.
type Scope struct {
	MemoryID string
	Variants []string
	AssetIDs []string
	Subject  string
}

// AllowsVariant reports whether the scope permits the named variant.
func (s *Scope) AllowsVariant(variant string) bool {
	for _, v := range s.Variants {
		if v == variant {
			return true
		}
	}
	return false
}

// AllowsAsset reports whether the scope permits the given asset id. An
// empty asset list means any asset of the memory is in scope.
func (s *Scope) AllowsAsset(assetID string) bool {
	if len(s.AssetIDs) == 0 {
		return true
	}
	for _, id := range s.AssetIDs {
		if id == assetID {
			return true
		}
	}
	return false
}

type scopeClaims struct {
	Version  int      `json:"ver"`
	MemoryID string   `json:"mem"`
	Variants []string `json:"var"`
	AssetIDs []string `json:"ast,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies capability tokens with HMAC-SHA256. It holds a
// keyring keyed by key id so secrets can rotate: new tokens are signed with
// the active key while tokens signed by any retained key still validate.
type Service struct {
	keys      map[string][]byte
	activeKID string
	issuer    string
	maxTTL    time.Duration
}

// NewService builds a token service. keys maps key id to secret; activeKID
// selects the signing key and must be present in keys.
func NewService(keys map[string]string, activeKID, issuer string, maxTTL time.Duration) (*Service, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one signing key is required")
	}
	material := make(map[string][]byte, len(keys))
	for kid, secret := range keys {
		kid = strings.TrimSpace(kid)
		if kid == "" {
			return nil, fmt.Errorf("signing key id must not be empty")
		}
		if len(secret) < 32 {
			return nil, fmt.Errorf("signing key %q is shorter than 32 bytes", kid)
		}
		material[kid] = []byte(secret)
	}
	if _, ok := material[activeKID]; !ok {
		return nil, fmt.Errorf("active key id %q not present in keyring", activeKID)
	}
	if maxTTL <= 0 {
		return nil, fmt.Errorf("max token ttl must be positive")
	}
	return &Service{keys: material, activeKID: activeKID, issuer: issuer, maxTTL: maxTTL}, nil
}

// Mint signs a token for scope with the active key. The TTL is clamped to
// the service ceiling; non-positive TTLs are rejected.
func (s *Service) Mint(scope Scope, ttl time.Duration) (string, error) {
	if strings.TrimSpace(scope.MemoryID) == "" {
		return "", fmt.Errorf("scope memory id is required")
	}
	if len(scope.Variants) == 0 {
		return "", fmt.Errorf("scope requires at least one variant")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}
	if ttl > s.maxTTL {
		ttl = s.maxTTL
	}

	now := time.Now().UTC()
	variants := append([]string(nil), scope.Variants...)
	sort.Strings(variants)

	claims := scopeClaims{
		Version:  claimsVersion,
		MemoryID: scope.MemoryID,
		Variants: variants,
		AssetIDs: append([]string(nil), scope.AssetIDs...),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   scope.Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = s.activeKID
	return t.SignedString(s.keys[s.activeKID])
}

// Validate verifies the signature and expiry of raw and returns its scope.
// The key is selected by the token's kid header, so tokens signed before a
// rotation keep working as long as the old key stays in the ring.
func (s *Service) Validate(raw string) (*Scope, error) {
	var claims scopeClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		secret, ok := s.keys[kid]
		if !ok {
			return nil, ErrUnknownKeyID
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, ErrUnknownKeyID):
			return nil, ErrUnknownKeyID
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.Version != claimsVersion {
		return nil, fmt.Errorf("%w: unsupported claims version %d", ErrInvalid, claims.Version)
	}
	if strings.TrimSpace(claims.MemoryID) == "" || len(claims.Variants) == 0 {
		return nil, fmt.Errorf("%w: empty scope", ErrInvalid)
	}

	return &Scope{
		MemoryID: claims.MemoryID,
		Variants: claims.Variants,
		AssetIDs: claims.AssetIDs,
		Subject:  claims.Subject,
	}, nil
}
