package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(map[string]string{"k1": testSecret}, "k1", "capsd-test", time.Hour)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestMintValidateRoundTrip(t *testing.T) {
	svc := testService(t)

	raw, err := svc.Mint(Scope{
		MemoryID: "11111111-1111-4111-8111-111111111111",
		Variants: []string{"thumbnail", "original"},
		Subject:  "alice",
	}, 10*time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	scope, err := svc.Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if scope.MemoryID != "11111111-1111-4111-8111-111111111111" {
		t.Fatalf("memory id = %s", scope.MemoryID)
	}
	if scope.Subject != "alice" {
		t.Fatalf("subject = %s", scope.Subject)
	}
	if !scope.AllowsVariant("thumbnail") || !scope.AllowsVariant("original") {
		t.Fatal("variants lost in round trip")
	}
	if scope.AllowsVariant("preview") {
		t.Fatal("unscoped variant must not be allowed")
	}
	if !scope.AllowsAsset("any-asset") {
		t.Fatal("empty asset list means any asset")
	}
}

func TestScopeAssetNarrowing(t *testing.T) {
	svc := testService(t)

	raw, err := svc.Mint(Scope{
		MemoryID: "11111111-1111-4111-8111-111111111111",
		Variants: []string{"original"},
		AssetIDs: []string{"22222222-2222-4222-8222-222222222222"},
	}, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	scope, err := svc.Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !scope.AllowsAsset("22222222-2222-4222-8222-222222222222") {
		t.Fatal("listed asset must be allowed")
	}
	if scope.AllowsAsset("33333333-3333-4333-8333-333333333333") {
		t.Fatal("unlisted asset must be rejected")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := testService(t)

	raw, err := svc.Mint(Scope{
		MemoryID: "11111111-1111-4111-8111-111111111111",
		Variants: []string{"original"},
	}, time.Millisecond)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if _, err := svc.Validate(raw); !errors.Is(err, ErrExpired) {
		t.Fatalf("expired token: got %v", err)
	}
}

func TestValidateRejectsTampering(t *testing.T) {
	svc := testService(t)

	raw, err := svc.Mint(Scope{
		MemoryID: "11111111-1111-4111-8111-111111111111",
		Variants: []string{"original"},
	}, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d parts", len(parts))
	}
	// Flip a payload character; the signature no longer covers the claims.
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := svc.Validate(tampered); !errors.Is(err, ErrInvalid) {
		t.Fatalf("tampered token: got %v", err)
	}
}

func TestValidateRejectsUnknownKeyID(t *testing.T) {
	minter, err := NewService(map[string]string{"rotated-out": testSecret}, "rotated-out", "capsd-test", time.Hour)
	if err != nil {
		t.Fatalf("new minter: %v", err)
	}
	raw, err := minter.Mint(Scope{
		MemoryID: "11111111-1111-4111-8111-111111111111",
		Variants: []string{"original"},
	}, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	validator := testService(t)
	if _, err := validator.Validate(raw); !errors.Is(err, ErrUnknownKeyID) {
		t.Fatalf("unknown kid: got %v", err)
	}
}

func TestKeyRotationKeepsOldTokensValid(t *testing.T) {
	old, err := NewService(map[string]string{"k1": testSecret}, "k1", "capsd-test", time.Hour)
	if err != nil {
		t.Fatalf("old service: %v", err)
	}
	raw, err := old.Mint(Scope{
		MemoryID: "11111111-1111-4111-8111-111111111111",
		Variants: []string{"original"},
	}, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	rotated, err := NewService(map[string]string{
		"k1": testSecret,
		"k2": "fedcba9876543210fedcba9876543210",
	}, "k2", "capsd-test", time.Hour)
	if err != nil {
		t.Fatalf("rotated service: %v", err)
	}
	if _, err := rotated.Validate(raw); err != nil {
		t.Fatalf("token signed with retained key must validate: %v", err)
	}
}

func TestMintClampsTTL(t *testing.T) {
	svc, err := NewService(map[string]string{"k1": testSecret}, "k1", "capsd-test", time.Second)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	raw, err := svc.Mint(Scope{
		MemoryID: "11111111-1111-4111-8111-111111111111",
		Variants: []string{"original"},
	}, 24*time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)
	if _, err := svc.Validate(raw); !errors.Is(err, ErrExpired) {
		t.Fatalf("ttl must be clamped to ceiling: got %v", err)
	}
}

func TestNewServiceRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		keys   map[string]string
		active string
	}{
		{"no keys", nil, "k1"},
		{"short secret", map[string]string{"k1": "short"}, "k1"},
		{"active missing", map[string]string{"k1": testSecret}, "k2"},
		{"blank kid", map[string]string{" ": testSecret}, " "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewService(tc.keys, tc.active, "capsd-test", time.Hour); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}
