package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"capsd/internal/models"
)

// testStore creates a temporary store for testing.
func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func mustCapsule(t *testing.T, st *Store, subject string) *models.Capsule {
	t.Helper()
	capsule, _, err := st.EnsureCapsule(context.Background(), subject, time.Now())
	if err != nil {
		t.Fatalf("ensure capsule: %v", err)
	}
	return capsule
}

func mustMemory(t *testing.T, st *Store, capsuleID string) *models.Memory {
	t.Helper()
	memory := &models.Memory{
		ID:        NewID(),
		CapsuleID: capsuleID,
		Kind:      string(models.MemoryKindImage),
		Title:     "holiday",
	}
	if err := st.CreateMemory(context.Background(), memory); err != nil {
		t.Fatalf("create memory: %v", err)
	}
	return memory
}

func TestEnsureCapsuleIdempotent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, created, err := st.EnsureCapsule(ctx, "subject-1", now)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !created {
		t.Fatal("first ensure must create")
	}

	second, created, err := st.EnsureCapsule(ctx, "subject-1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if created {
		t.Fatal("second ensure must not create")
	}
	if second.ID != first.ID {
		t.Fatalf("capsule id changed: %s != %s", second.ID, first.ID)
	}
}

func TestEnsureCapsuleRejectsEmptySubject(t *testing.T) {
	st := testStore(t)
	if _, _, err := st.EnsureCapsule(context.Background(), "  ", time.Now()); err == nil {
		t.Fatal("expected error for blank subject")
	}
}

func TestGetCapsuleRejectsInvalidID(t *testing.T) {
	st := testStore(t)
	for _, id := range []string{"", "not-a-uuid", "D58F0C3B-0E2C-4A3A-9B53-4A1022CB6A71"} {
		if _, err := st.GetCapsule(context.Background(), id); err == nil {
			t.Fatalf("expected invalid id error for %q", id)
		}
	}
}

func TestValidID(t *testing.T) {
	canonical := NewID()
	if !ValidID(canonical) {
		t.Fatalf("generated id %q must be canonical", canonical)
	}

	invalid := []string{
		"",
		"d58f0c3b0e2c4a3a9b534a1022cb6a71",                // no hyphens
		"D58F0C3B-0E2C-4A3A-9B53-4A1022CB6A71",            // uppercase
		"urn:uuid:d58f0c3b-0e2c-4a3a-9b53-4a1022cb6a71",   // urn form
		"{d58f0c3b-0e2c-4a3a-9b53-4a1022cb6a71}",          // braces
		"d58f0c3b-0e2c-1a3a-9b53-4a1022cb6a71",            // v1, not v4
	}
	for _, id := range invalid {
		if ValidID(id) {
			t.Fatalf("id %q must be rejected", id)
		}
	}
}

func TestCreateMemoryRejectsEmptyID(t *testing.T) {
	st := testStore(t)
	capsule := mustCapsule(t, st, "subject-2")

	memory := &models.Memory{ID: "", CapsuleID: capsule.ID, Kind: "image"}
	if err := st.CreateMemory(context.Background(), memory); err == nil {
		t.Fatal("expected error for empty memory id")
	}
}

func TestListMemoriesPagination(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	capsule := mustCapsule(t, st, "subject-3")

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		memory := &models.Memory{
			ID:        NewID(),
			CapsuleID: capsule.ID,
			Kind:      string(models.MemoryKindNote),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := st.CreateMemory(ctx, memory); err != nil {
			t.Fatalf("create memory %d: %v", i, err)
		}
		ids = append(ids, memory.ID)
	}

	page, err := st.ListMemoriesByCapsule(ctx, capsule.ID, MemoryListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page 1 size = %d, want 2", len(page))
	}
	if page[0].ID != ids[4] || page[1].ID != ids[3] {
		t.Fatal("page 1 must be newest-first")
	}

	page2, err := st.ListMemoriesByCapsule(ctx, capsule.ID, MemoryListFilter{Limit: 2, Cursor: page[1].ID})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2) != 2 || page2[0].ID != ids[2] || page2[1].ID != ids[1] {
		t.Fatal("page 2 must continue after the cursor")
	}
}

func TestListMemoriesTagFilter(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	capsule := mustCapsule(t, st, "subject-4")

	tagged := &models.Memory{ID: NewID(), CapsuleID: capsule.ID, Kind: "image", Tags: []string{"Beach", "summer"}}
	plain := &models.Memory{ID: NewID(), CapsuleID: capsule.ID, Kind: "image"}
	if err := st.CreateMemory(ctx, tagged); err != nil {
		t.Fatalf("create tagged: %v", err)
	}
	if err := st.CreateMemory(ctx, plain); err != nil {
		t.Fatalf("create plain: %v", err)
	}

	got, err := st.ListMemoriesByCapsule(ctx, capsule.ID, MemoryListFilter{Limit: 10, Tag: "beach"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != tagged.ID {
		t.Fatalf("tag filter returned %d memories", len(got))
	}
}

func TestGrants(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	capsule := mustCapsule(t, st, "owner-1")

	ok, err := st.HasGrant(ctx, capsule.ID, "friend-1")
	if err != nil || ok {
		t.Fatalf("unexpected grant before add (ok=%v err=%v)", ok, err)
	}

	if err := st.AddGrant(ctx, capsule.ID, "friend-1", time.Now()); err != nil {
		t.Fatalf("add grant: %v", err)
	}
	// Repeat add is a no-op.
	if err := st.AddGrant(ctx, capsule.ID, "friend-1", time.Now()); err != nil {
		t.Fatalf("re-add grant: %v", err)
	}

	ok, err = st.HasGrant(ctx, capsule.ID, "friend-1")
	if err != nil || !ok {
		t.Fatalf("grant missing after add (ok=%v err=%v)", ok, err)
	}

	if err := st.RemoveGrant(ctx, capsule.ID, "friend-1"); err != nil {
		t.Fatalf("remove grant: %v", err)
	}
	ok, _ = st.HasGrant(ctx, capsule.ID, "friend-1")
	if ok {
		t.Fatal("grant must be gone after remove")
	}
}

func TestUploadSessionLifecycle(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	capsule := mustCapsule(t, st, "uploader-1")
	memory := mustMemory(t, st, capsule.ID)

	session := &models.UploadSession{
		ID:             NewID(),
		MemoryID:       memory.ID,
		OwnerSubject:   "uploader-1",
		Variant:        "original",
		ExpectedSHA256: "deadbeef",
		ChunkCount:     3,
		TotalSize:      12,
	}
	if err := st.CreateUploadSession(ctx, session, QuotaLimits{}, time.Now()); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := st.PutChunk(ctx, session.ID, 5, []byte("x")); !errors.Is(err, ErrChunkOutOfRange) {
		t.Fatalf("out-of-range index: got %v", err)
	}

	updated, err := st.PutChunk(ctx, session.ID, 1, []byte("bbbb"))
	if err != nil {
		t.Fatalf("put chunk 1: %v", err)
	}
	if updated.BytesReceived != 4 || !updated.ChunkReceived(1) {
		t.Fatalf("chunk accounting wrong: %+v", updated)
	}

	if _, err := st.PutChunk(ctx, session.ID, 1, []byte("bbbb")); !errors.Is(err, ErrChunkAlreadyReceived) {
		t.Fatalf("duplicate chunk: got %v", err)
	}

	if _, err := st.PutChunk(ctx, session.ID, 0, []byte("aaaa")); err != nil {
		t.Fatalf("put chunk 0: %v", err)
	}
	if _, err := st.PutChunk(ctx, session.ID, 2, []byte("cccc")); err != nil {
		t.Fatalf("put chunk 2: %v", err)
	}

	var got []byte
	err = st.ForEachChunk(ctx, session.ID, func(index int, data []byte) error {
		got = append(got, data...)
		return nil
	})
	if err != nil {
		t.Fatalf("iterate chunks: %v", err)
	}
	if string(got) != "aaaabbbbcccc" {
		t.Fatalf("chunks out of order: %q", got)
	}

	deleted, err := st.DeleteUploadSession(ctx, session.ID)
	if err != nil || !deleted {
		t.Fatalf("delete session: deleted=%v err=%v", deleted, err)
	}
	// Deleting again is a silent no-op.
	deleted, err = st.DeleteUploadSession(ctx, session.ID)
	if err != nil || deleted {
		t.Fatalf("re-delete session: deleted=%v err=%v", deleted, err)
	}
}

func TestCreateUploadSessionQuotaLimits(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	capsule := mustCapsule(t, st, "uploader-2")
	memory := mustMemory(t, st, capsule.ID)

	limits := QuotaLimits{MaxSessionsPerSubject: 1, MaxStoredBytes: 100}

	first := &models.UploadSession{
		ID: NewID(), MemoryID: memory.ID, OwnerSubject: "uploader-2",
		Variant: "original", ExpectedSHA256: "aa", ChunkCount: 1, TotalSize: 10,
	}
	if err := st.CreateUploadSession(ctx, first, limits, time.Now()); err != nil {
		t.Fatalf("first session: %v", err)
	}

	second := &models.UploadSession{
		ID: NewID(), MemoryID: memory.ID, OwnerSubject: "uploader-2",
		Variant: "original", ExpectedSHA256: "bb", ChunkCount: 1, TotalSize: 10,
	}
	if err := st.CreateUploadSession(ctx, second, limits, time.Now()); !errors.Is(err, ErrQuotaSessions) {
		t.Fatalf("session quota: got %v", err)
	}

	// Free the slot, then trip the stored-bytes ceiling.
	if _, err := st.DeleteUploadSession(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	big := &models.UploadSession{
		ID: NewID(), MemoryID: memory.ID, OwnerSubject: "uploader-2",
		Variant: "original", ExpectedSHA256: "cc", ChunkCount: 1, TotalSize: 1000,
	}
	if err := st.CreateUploadSession(ctx, big, limits, time.Now()); !errors.Is(err, ErrQuotaStoredBytes) {
		t.Fatalf("stored bytes quota: got %v", err)
	}
}

func TestStoredBytesQuotaCountsInFlightSessions(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	capsule := mustCapsule(t, st, "uploader-5")
	memory := mustMemory(t, st, capsule.ID)

	// Each session fits the cap on its own; together they would blow past
	// it, so the second begin must be rejected while the first is in flight.
	limits := QuotaLimits{MaxSessionsPerSubject: 5, MaxStoredBytes: 10}

	first := &models.UploadSession{
		ID: NewID(), MemoryID: memory.ID, OwnerSubject: "uploader-5",
		Variant: "original", ExpectedSHA256: "aa", ChunkCount: 1, TotalSize: 8,
	}
	if err := st.CreateUploadSession(ctx, first, limits, time.Now()); err != nil {
		t.Fatalf("first session: %v", err)
	}

	second := &models.UploadSession{
		ID: NewID(), MemoryID: memory.ID, OwnerSubject: "uploader-5",
		Variant: "thumbnail", ExpectedSHA256: "bb", ChunkCount: 1, TotalSize: 8,
	}
	if err := st.CreateUploadSession(ctx, second, limits, time.Now()); !errors.Is(err, ErrQuotaStoredBytes) {
		t.Fatalf("overlapping sessions must trip the stored bytes quota, got %v", err)
	}

	// Cancelling the first releases its reservation.
	if _, err := st.DeleteUploadSession(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.CreateUploadSession(ctx, second, limits, time.Now()); err != nil {
		t.Fatalf("second session after cancel: %v", err)
	}
}

func TestMaterializeAssetCommitsAtomically(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	capsule := mustCapsule(t, st, "uploader-3")
	memory := mustMemory(t, st, capsule.ID)

	session := &models.UploadSession{
		ID: NewID(), MemoryID: memory.ID, OwnerSubject: "uploader-3",
		Variant: "original", ExpectedSHA256: "ff", ChunkCount: 1, TotalSize: 5,
	}
	if err := st.CreateUploadSession(ctx, session, QuotaLimits{}, time.Now()); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := st.PutChunk(ctx, session.ID, 0, []byte("hello")); err != nil {
		t.Fatalf("put chunk: %v", err)
	}

	asset := &models.Asset{
		ID:          NewID(),
		MemoryID:    memory.ID,
		Variant:     "original",
		ContentType: "text/plain",
		SizeBytes:   5,
		SHA256:      "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		Inline:      []byte("hello"),
	}
	if err := st.MaterializeAsset(ctx, asset, nil, session.ID, "uploader-3", time.Now()); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	// Session and chunks are gone.
	gotSession, err := st.GetUploadSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if gotSession != nil {
		t.Fatal("session must be removed by commit")
	}

	// Asset is visible under its idempotency triple.
	found, err := st.FindAssetByHash(ctx, memory.ID, "original", asset.SHA256)
	if err != nil {
		t.Fatalf("find by hash: %v", err)
	}
	if found == nil || found.ID != asset.ID {
		t.Fatal("asset not found by idempotency triple")
	}
	if string(found.Inline) != "hello" {
		t.Fatalf("inline bytes = %q", found.Inline)
	}

	// Quota counters moved with the commit.
	usage, err := st.QuotaUsage(ctx, "uploader-3", time.Now())
	if err != nil {
		t.Fatalf("quota usage: %v", err)
	}
	if usage.CommitsToday != 1 || usage.StoredBytes != 5 {
		t.Fatalf("usage = %+v", usage)
	}

	// Memory cumulative size rolled.
	gotMemory, err := st.GetMemory(ctx, memory.ID)
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if gotMemory.SizeBytes != 5 {
		t.Fatalf("memory size = %d", gotMemory.SizeBytes)
	}

	// Replaying the same triple violates the unique index.
	dup := *asset
	dup.ID = NewID()
	if err := st.MaterializeAsset(ctx, &dup, nil, "", "uploader-3", time.Now()); err == nil {
		t.Fatal("expected unique constraint error for replayed triple")
	}
}

func TestSweepExpiredSessions(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	capsule := mustCapsule(t, st, "uploader-4")
	memory := mustMemory(t, st, capsule.ID)

	old := &models.UploadSession{
		ID: NewID(), MemoryID: memory.ID, OwnerSubject: "uploader-4",
		Variant: "original", ExpectedSHA256: "aa", ChunkCount: 1, TotalSize: 1,
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	fresh := &models.UploadSession{
		ID: NewID(), MemoryID: memory.ID, OwnerSubject: "uploader-4",
		Variant: "thumbnail", ExpectedSHA256: "bb", ChunkCount: 1, TotalSize: 1,
	}
	if err := st.CreateUploadSession(ctx, old, QuotaLimits{}, time.Now()); err != nil {
		t.Fatalf("create old: %v", err)
	}
	if err := st.CreateUploadSession(ctx, fresh, QuotaLimits{}, time.Now()); err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	removed, err := st.SweepExpiredSessions(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	remaining, err := st.GetUploadSession(ctx, fresh.ID)
	if err != nil || remaining == nil {
		t.Fatalf("fresh session must survive sweep (err=%v)", err)
	}
}

func TestQuotaDailyRollover(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	capsule := mustCapsule(t, st, "uploader-5")
	memory := mustMemory(t, st, capsule.ID)

	yesterday := time.Date(2025, 5, 1, 23, 0, 0, 0, time.UTC)
	asset := &models.Asset{
		ID: NewID(), MemoryID: memory.ID, Variant: "original",
		ContentType: "text/plain", SizeBytes: 3, SHA256: "abc", Inline: []byte("abc"),
	}
	if err := st.MaterializeAsset(ctx, asset, nil, "", "uploader-5", yesterday); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	usage, err := st.QuotaUsage(ctx, "uploader-5", yesterday)
	if err != nil {
		t.Fatalf("usage same day: %v", err)
	}
	if usage.CommitsToday != 1 {
		t.Fatalf("commits same day = %d", usage.CommitsToday)
	}

	usage, err = st.QuotaUsage(ctx, "uploader-5", yesterday.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("usage next day: %v", err)
	}
	if usage.CommitsToday != 0 {
		t.Fatalf("daily counter must roll over, got %d", usage.CommitsToday)
	}
	if usage.StoredBytes != 3 {
		t.Fatalf("stored bytes must persist across days, got %d", usage.StoredBytes)
	}
}

func TestUnreferencedBlobs(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	capsule := mustCapsule(t, st, "uploader-6")
	memory := mustMemory(t, st, capsule.ID)

	referenced := &models.Blob{SHA256: "ref001", SizeBytes: 10, BlobKey: "sha256/re/f0/ref001", CreatedAt: time.Now()}
	orphan := &models.Blob{SHA256: "orp001", SizeBytes: 20, BlobKey: "sha256/or/p0/orp001", CreatedAt: time.Now()}

	asset := &models.Asset{
		ID: NewID(), MemoryID: memory.ID, Variant: "original",
		ContentType: "image/png", SizeBytes: 10, SHA256: "ref001", BlobKey: referenced.BlobKey,
	}
	if err := st.MaterializeAsset(ctx, asset, referenced, "", "uploader-6", time.Now()); err != nil {
		t.Fatalf("materialize referenced: %v", err)
	}

	orphanAsset := &models.Asset{
		ID: NewID(), MemoryID: memory.ID, Variant: "thumbnail",
		ContentType: "image/png", SizeBytes: 20, SHA256: "orp001", BlobKey: orphan.BlobKey,
	}
	if err := st.MaterializeAsset(ctx, orphanAsset, orphan, "", "uploader-6", time.Now()); err != nil {
		t.Fatalf("materialize orphan: %v", err)
	}
	if _, err := st.DeleteMemory(ctx, memory.ID); err != nil {
		t.Fatalf("delete memory: %v", err)
	}

	blobs, err := st.ListUnreferencedBlobs(ctx, 0)
	if err != nil {
		t.Fatalf("list unreferenced: %v", err)
	}
	if len(blobs) != 2 {
		t.Fatalf("unreferenced count = %d, want 2 after memory delete", len(blobs))
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "durable.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()

	capsule, _, err := st.EnsureCapsule(ctx, "durable-subject", time.Now())
	if err != nil {
		t.Fatalf("ensure capsule: %v", err)
	}
	memory := &models.Memory{ID: NewID(), CapsuleID: capsule.ID, Kind: "document", Title: "will"}
	if err := st.CreateMemory(ctx, memory); err != nil {
		t.Fatalf("create memory: %v", err)
	}
	session := &models.UploadSession{
		ID: NewID(), MemoryID: memory.ID, OwnerSubject: "durable-subject",
		Variant: "original", ExpectedSHA256: "aa", ChunkCount: 2, TotalSize: 8,
	}
	if err := st.CreateUploadSession(ctx, session, QuotaLimits{}, time.Now()); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := st.PutChunk(ctx, session.ID, 0, []byte("half")); err != nil {
		t.Fatalf("put chunk: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	gotCapsule, err := reopened.GetCapsuleBySubject(ctx, "durable-subject")
	if err != nil || gotCapsule == nil || gotCapsule.ID != capsule.ID {
		t.Fatalf("capsule lost across restart (err=%v)", err)
	}
	gotMemory, err := reopened.GetMemory(ctx, memory.ID)
	if err != nil || gotMemory == nil {
		t.Fatalf("memory lost across restart (err=%v)", err)
	}
	gotSession, err := reopened.GetUploadSession(ctx, session.ID)
	if err != nil || gotSession == nil {
		t.Fatalf("upload session lost across restart (err=%v)", err)
	}
	if !gotSession.ChunkReceived(0) || gotSession.BytesReceived != 4 {
		t.Fatalf("chunk receipt state lost: %+v", gotSession)
	}
}
