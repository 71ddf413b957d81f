package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"capsd/internal/blobstore"
	"capsd/internal/models"
	"capsd/internal/store"
	"capsd/internal/token"
)

type gatewayFixture struct {
	gateway *AssetGateway
	tokens  *token.Service
	store   *store.Store
	cas     *blobstore.LocalCAS
	memory  *models.Memory
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cas, err := blobstore.NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new cas: %v", err)
	}

	tokens, err := token.NewService(map[string]string{
		"k1": strings.Repeat("s", 32),
	}, "k1", "capsd-test", time.Hour)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}

	ctx := context.Background()
	capsule, _, err := st.EnsureCapsule(ctx, "alice", time.Now())
	if err != nil {
		t.Fatalf("ensure capsule: %v", err)
	}
	memory := &models.Memory{
		ID:        store.NewID(),
		CapsuleID: capsule.ID,
		Kind:      string(models.MemoryKindImage),
	}
	if err := st.CreateMemory(ctx, memory); err != nil {
		t.Fatalf("create memory: %v", err)
	}

	return &gatewayFixture{
		gateway: NewAssetGateway(st, cas, tokens),
		tokens:  tokens,
		store:   st,
		cas:     cas,
		memory:  memory,
	}
}

// addInlineAsset materializes an inline asset directly, skipping the upload
// pipeline the uploads tests already cover.
func (f *gatewayFixture) addInlineAsset(t *testing.T, variant, contentType string, payload []byte, createdAt time.Time) *models.Asset {
	t.Helper()
	sum := sha256.Sum256(payload)
	asset := &models.Asset{
		ID:          store.NewID(),
		MemoryID:    f.memory.ID,
		Variant:     variant,
		ContentType: contentType,
		SizeBytes:   int64(len(payload)),
		SHA256:      hex.EncodeToString(sum[:]),
		Inline:      payload,
		CreatedAt:   createdAt,
	}
	if err := f.store.MaterializeAsset(context.Background(), asset, nil, "", "alice", time.Now()); err != nil {
		t.Fatalf("materialize asset: %v", err)
	}
	return asset
}

func (f *gatewayFixture) mint(t *testing.T, scope token.Scope) string {
	t.Helper()
	raw, err := f.tokens.Mint(scope, 10*time.Minute)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return raw
}

func readResolved(t *testing.T, resolved *ResolvedAsset) []byte {
	t.Helper()
	defer resolved.Reader.Close()
	data, err := io.ReadAll(resolved.Reader)
	if err != nil {
		t.Fatalf("read resolved asset: %v", err)
	}
	return data
}

func TestGatewayServesInlineAsset(t *testing.T) {
	f := newGatewayFixture(t)
	payload := []byte("inline bytes")
	f.addInlineAsset(t, "original", "image/png", payload, time.Now())

	raw := f.mint(t, token.Scope{MemoryID: f.memory.ID, Variants: []string{"original"}, Subject: "alice"})
	resolved, err := f.gateway.Resolve(context.Background(), raw, f.memory.ID, "original", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ContentType != "image/png" {
		t.Fatalf("content type = %q", resolved.ContentType)
	}
	if got := readResolved(t, resolved); string(got) != string(payload) {
		t.Fatalf("served bytes = %q", got)
	}
}

func TestGatewayServesBlobAsset(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	payload := []byte("blob-backed asset payload")

	put, err := f.cas.Put(ctx, strings.NewReader(string(payload)))
	if err != nil {
		t.Fatalf("cas put: %v", err)
	}
	asset := &models.Asset{
		ID:        store.NewID(),
		MemoryID:  f.memory.ID,
		Variant:   "original",
		SizeBytes: put.SizeBytes,
		SHA256:    put.SHA256,
		BlobKey:   put.BlobKey,
	}
	blob := &models.Blob{SHA256: put.SHA256, SizeBytes: put.SizeBytes, BlobKey: put.BlobKey, CreatedAt: time.Now()}
	if err := f.store.MaterializeAsset(ctx, asset, blob, "", "alice", time.Now()); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	raw := f.mint(t, token.Scope{MemoryID: f.memory.ID, Variants: []string{"original"}})
	resolved, err := f.gateway.Resolve(ctx, raw, f.memory.ID, "original", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Missing content type falls back to the generic octet stream.
	if resolved.ContentType != defaultServedContentType {
		t.Fatalf("content type = %q", resolved.ContentType)
	}
	if got := readResolved(t, resolved); string(got) != string(payload) {
		t.Fatalf("served bytes = %q", got)
	}
}

func TestGatewayRejectsBadTokens(t *testing.T) {
	f := newGatewayFixture(t)
	f.addInlineAsset(t, "original", "", []byte("x"), time.Now())
	ctx := context.Background()

	assertStatus := func(t *testing.T, err error, status, code int) {
		t.Helper()
		if httpStatusFromError(err) != status {
			t.Fatalf("status = %d, want %d (%v)", httpStatusFromError(err), status, err)
		}
		var apiErr apiError
		if !errors.As(err, &apiErr) || apiErr.errCode != code {
			t.Fatalf("error code = %v, want %d", err, code)
		}
	}

	t.Run("garbage", func(t *testing.T) {
		_, err := f.gateway.Resolve(ctx, "not-a-token", f.memory.ID, "original", "")
		assertStatus(t, err, http.StatusUnauthorized, ErrCodeTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		raw, err := f.tokens.Mint(token.Scope{MemoryID: f.memory.ID, Variants: []string{"original"}}, time.Millisecond)
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
		_, err = f.gateway.Resolve(ctx, raw, f.memory.ID, "original", "")
		assertStatus(t, err, http.StatusUnauthorized, ErrCodeTokenExpired)
	})

	t.Run("wrong memory", func(t *testing.T) {
		raw := f.mint(t, token.Scope{MemoryID: store.NewID(), Variants: []string{"original"}})
		_, err := f.gateway.Resolve(ctx, raw, f.memory.ID, "original", "")
		assertStatus(t, err, http.StatusForbidden, ErrCodeForbidden)
	})

	t.Run("variant outside scope", func(t *testing.T) {
		raw := f.mint(t, token.Scope{MemoryID: f.memory.ID, Variants: []string{"thumbnail"}})
		_, err := f.gateway.Resolve(ctx, raw, f.memory.ID, "original", "")
		assertStatus(t, err, http.StatusForbidden, ErrCodeForbidden)
	})

	t.Run("no asset for variant", func(t *testing.T) {
		raw := f.mint(t, token.Scope{MemoryID: f.memory.ID, Variants: []string{"thumbnail"}})
		_, err := f.gateway.Resolve(ctx, raw, f.memory.ID, "thumbnail", "")
		assertStatus(t, err, http.StatusNotFound, ErrCodeAssetNotFound)
	})
}

func TestGatewayAssetIDNarrowing(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	allowed := f.addInlineAsset(t, "original", "", []byte("allowed"), time.Now())
	other := f.addInlineAsset(t, "thumbnail", "", []byte("other"), time.Now())

	raw := f.mint(t, token.Scope{
		MemoryID: f.memory.ID,
		Variants: []string{"original", "thumbnail"},
		AssetIDs: []string{allowed.ID},
	})

	resolved, err := f.gateway.Resolve(ctx, raw, f.memory.ID, "", allowed.ID)
	if err != nil {
		t.Fatalf("resolve allowed asset: %v", err)
	}
	if got := readResolved(t, resolved); string(got) != "allowed" {
		t.Fatalf("served bytes = %q", got)
	}

	// The other asset has an in-scope variant but is not in the id list.
	_, err = f.gateway.Resolve(ctx, raw, f.memory.ID, "", other.ID)
	if httpStatusFromError(err) != http.StatusForbidden {
		t.Fatalf("out-of-list asset: %v", err)
	}

	// Variant resolution narrows to the listed ids as well.
	_, err = f.gateway.Resolve(ctx, raw, f.memory.ID, "thumbnail", "")
	if httpStatusFromError(err) != http.StatusNotFound {
		t.Fatalf("narrowed variant lookup: %v", err)
	}
}

func TestGatewayServesNewestAssetForVariant(t *testing.T) {
	f := newGatewayFixture(t)
	old := time.Now().Add(-time.Hour)
	f.addInlineAsset(t, "original", "", []byte("superseded"), old)
	f.addInlineAsset(t, "original", "", []byte("current"), time.Now())

	raw := f.mint(t, token.Scope{MemoryID: f.memory.ID, Variants: []string{"original"}})
	resolved, err := f.gateway.Resolve(context.Background(), raw, f.memory.ID, "original", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := readResolved(t, resolved); string(got) != "current" {
		t.Fatalf("served %q, want the replacement upload", got)
	}
}
