package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"capsd/internal/api"
	"capsd/internal/blobstore"
	"capsd/internal/config"
	"capsd/internal/models"
	"capsd/internal/store"
)

// UploadService drives the chunked upload lifecycle: begin, put-chunk,
// commit, cancel, and the expiry sweep. Commit is the only transition that
// materializes a durable asset; everything before it is transient state
// that a crash or the sweep can discard without corrupting any memory.
type UploadService struct {
	store   *store.Store
	blobs   blobstore.BlobStore
	acl     *ACLEvaluator
	uploads config.UploadConfig
	quotas  config.QuotaConfig
	now     func() time.Time
}

// NewUploadService wires the upload pipeline.
func NewUploadService(st *store.Store, blobs blobstore.BlobStore, acl *ACLEvaluator, uploads config.UploadConfig, quotas config.QuotaConfig) *UploadService {
	return &UploadService{
		store:   st,
		blobs:   blobs,
		acl:     acl,
		uploads: uploads,
		quotas:  quotas,
		now:     time.Now,
	}
}

func (u *UploadService) quotaLimits() store.QuotaLimits {
	return store.QuotaLimits{
		MaxSessionsPerSubject: u.quotas.MaxSessionsPerSubject,
		MaxCommitsPerDay:      u.quotas.MaxUploadsPerDay,
		MaxStoredBytes:        u.quotas.MaxStoredBytes,
	}
}

// Begin validates the declared upload shape and opens a session. If a
// verified asset with the expected hash already exists for this memory and
// variant, it short-circuits with AlreadyExists instead of opening a new
// session.
func (u *UploadService) Begin(ctx context.Context, subject string, req api.BeginUploadRequest) (api.BeginUploadResponse, error) {
	var zero api.BeginUploadResponse

	if !validateID(req.MemoryID) {
		return zero, badRequestCode(fmt.Errorf("invalid memory id"), ErrCodeInvalidID)
	}
	variant, err := parseVariantParam(req.Variant)
	if err != nil {
		return zero, err
	}
	if err := validateHexSHA256(req.ExpectedSHA256); err != nil {
		return zero, err
	}
	if req.TotalSize <= 0 {
		return zero, badRequest(fmt.Errorf("total_size must be positive"))
	}
	if req.TotalSize > u.uploads.MaxUploadBytes {
		return zero, badRequest(fmt.Errorf("total_size exceeds the %d byte upload limit", u.uploads.MaxUploadBytes))
	}
	if req.ChunkCount <= 0 {
		return zero, badRequestCode(fmt.Errorf("chunk_count must be positive"), ErrCodeInvalidChunk)
	}
	// Every chunk carries at least one byte and at most the chunk ceiling,
	// so the declared count must bracket the declared size.
	if req.TotalSize > int64(req.ChunkCount)*u.uploads.ChunkSizeBytes {
		return zero, badRequestCode(fmt.Errorf("chunk_count too small for total_size at %d byte chunks", u.uploads.ChunkSizeBytes), ErrCodeInvalidChunk)
	}
	if int64(req.ChunkCount) > req.TotalSize {
		return zero, badRequestCode(fmt.Errorf("chunk_count exceeds total_size"), ErrCodeInvalidChunk)
	}

	memory, ok, err := u.acl.CanWriteMemory(ctx, subject, req.MemoryID)
	if err != nil {
		return zero, storeFailure(err)
	}
	if !ok {
		return zero, notFoundCode(fmt.Errorf("memory not found"), ErrCodeMemoryNotFound)
	}

	existing, err := u.store.FindAssetByHash(ctx, memory.ID, string(variant), req.ExpectedSHA256)
	if err != nil {
		return zero, storeFailure(err)
	}
	if existing != nil {
		return api.BeginUploadResponse{AlreadyExists: true, AssetID: existing.ID}, nil
	}

	session := &models.UploadSession{
		ID:             store.NewID(),
		MemoryID:       memory.ID,
		OwnerSubject:   subject,
		Variant:        string(variant),
		ContentType:    strings.TrimSpace(req.ContentType),
		ExpectedSHA256: req.ExpectedSHA256,
		ChunkCount:     req.ChunkCount,
		TotalSize:      req.TotalSize,
	}
	if err := u.store.CreateUploadSession(ctx, session, u.quotaLimits(), u.now()); err != nil {
		return zero, u.classifyQuotaError(err)
	}

	return api.BeginUploadResponse{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt(u.uploads.SessionTimeout()),
	}, nil
}

// PutChunk stores one chunk. Duplicate indices are rejected outright rather
// than accepted idempotently: a well-behaved client never resends a chunk
// it was acked for, and rejecting keeps the byte count trustworthy.
func (u *UploadService) PutChunk(ctx context.Context, subject, sessionID string, index int, data []byte) (api.PutChunkResponse, error) {
	var zero api.PutChunkResponse

	session, err := u.loadOwnedSession(ctx, subject, sessionID)
	if err != nil {
		return zero, err
	}
	if len(data) == 0 {
		return zero, badRequestCode(fmt.Errorf("chunk must not be empty"), ErrCodeInvalidChunk)
	}
	if int64(len(data)) > u.uploads.ChunkSizeBytes {
		return zero, badRequestCode(fmt.Errorf("chunk exceeds the %d byte ceiling", u.uploads.ChunkSizeBytes), ErrCodeInvalidChunk)
	}
	if session.BytesReceived+int64(len(data)) > session.TotalSize {
		return zero, badRequestCode(fmt.Errorf("chunk overflows declared total_size"), ErrCodeInvalidChunk)
	}

	updated, err := u.store.PutChunk(ctx, sessionID, index, data)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSessionNotFound):
			return zero, notFoundCode(fmt.Errorf("upload session not found"), ErrCodeSessionNotFound)
		case errors.Is(err, store.ErrChunkOutOfRange):
			return zero, badRequestCode(fmt.Errorf("chunk index %d out of range", index), ErrCodeInvalidChunk)
		case errors.Is(err, store.ErrChunkAlreadyReceived):
			return zero, conflictCode(fmt.Errorf("chunk %d already received", index), ErrCodeChunkReceived)
		default:
			return zero, storeFailure(err)
		}
	}

	return api.PutChunkResponse{
		SessionID:      updated.ID,
		ReceivedChunks: updated.ReceivedCount(),
		ChunkCount:     updated.ChunkCount,
		BytesReceived:  updated.BytesReceived,
	}, nil
}

// Commit reassembles the chunks in index order, verifies the content hash
// against both the declared and the caller-supplied value, and materializes
// the asset in one store transaction.
func (u *UploadService) Commit(ctx context.Context, subject, sessionID, finalHash string) (api.CommitUploadResponse, error) {
	var zero api.CommitUploadResponse

	if err := validateHexSHA256(finalHash); err != nil {
		return zero, err
	}
	session, err := u.loadOwnedSession(ctx, subject, sessionID)
	if err != nil {
		return zero, err
	}
	if !session.Complete() {
		return zero, badRequestCode(
			fmt.Errorf("received %d of %d chunks", session.ReceivedCount(), session.ChunkCount),
			ErrCodeInvalidChunk)
	}

	digest, totalBytes, err := u.hashChunks(ctx, session.ID)
	if err != nil {
		return zero, storeFailure(err)
	}
	if totalBytes != session.TotalSize {
		return zero, badRequestCode(
			fmt.Errorf("assembled %d bytes, declared %d", totalBytes, session.TotalSize),
			ErrCodeHashMismatch)
	}
	// The double check catches both a corrupt upload and a caller that
	// changed its mind mid-session.
	if digest != session.ExpectedSHA256 || digest != finalHash {
		return zero, badRequestCode(fmt.Errorf("content hash mismatch"), ErrCodeHashMismatch)
	}

	asset := &models.Asset{
		ID:          store.NewID(),
		MemoryID:    session.MemoryID,
		Variant:     session.Variant,
		ContentType: session.ContentType,
		SizeBytes:   totalBytes,
		SHA256:      digest,
	}

	var blob *models.Blob
	if totalBytes <= u.uploads.InlineThresholdBytes {
		inline, err := u.assembleInline(ctx, session.ID, totalBytes)
		if err != nil {
			return zero, storeFailure(err)
		}
		asset.Inline = inline
	} else {
		result, err := u.streamToBlobStore(ctx, session.ID)
		if err != nil {
			return zero, blobFailure(err)
		}
		if result.SHA256 != digest {
			return zero, internalError(fmt.Errorf("blob store digest disagrees with assembled digest"))
		}
		asset.BlobKey = result.BlobKey
		blob = &models.Blob{
			SHA256:    result.SHA256,
			SizeBytes: result.SizeBytes,
			BlobKey:   result.BlobKey,
			CreatedAt: u.now(),
		}
	}

	if err := u.store.MaterializeAsset(ctx, asset, blob, session.ID, subject, u.now()); err != nil {
		// A replay of the same (memory, variant, hash) triple trips the
		// unique index; report the existing asset as success.
		existing, findErr := u.store.FindAssetByHash(ctx, session.MemoryID, session.Variant, digest)
		if findErr == nil && existing != nil {
			_, _ = u.store.DeleteUploadSession(ctx, session.ID)
			return commitResponse(existing), nil
		}
		return zero, storeFailure(err)
	}

	return commitResponse(asset), nil
}

// Cancel removes a session and its buffered chunks. It is safe to retry
// blindly: cancelling an unknown or already-removed session succeeds.
func (u *UploadService) Cancel(ctx context.Context, subject, sessionID string) error {
	if !validateID(sessionID) {
		return nil
	}
	session, err := u.store.GetUploadSession(ctx, sessionID)
	if err != nil {
		return storeFailure(err)
	}
	if session == nil || session.OwnerSubject != subject {
		return nil
	}
	if _, err := u.store.DeleteUploadSession(ctx, sessionID); err != nil {
		return storeFailure(err)
	}
	return nil
}

// Sweep reclaims sessions past the timeout, orphaned chunk buffers, and
// stale blob temp files.
func (u *UploadService) Sweep(ctx context.Context) (sessions, tempFiles int, err error) {
	cutoff := u.now().Add(-u.uploads.SessionTimeout())
	sessions, err = u.store.SweepExpiredSessions(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}

	if sweeper, ok := u.blobs.(interface {
		SweepTemp(context.Context, time.Duration) (int, error)
	}); ok {
		tempFiles, err = sweeper.SweepTemp(ctx, u.uploads.SessionTimeout())
		if err != nil {
			return sessions, 0, err
		}
	}
	return sessions, tempFiles, nil
}

func (u *UploadService) loadOwnedSession(ctx context.Context, subject, sessionID string) (*models.UploadSession, error) {
	if !validateID(sessionID) {
		return nil, badRequestCode(fmt.Errorf("invalid session id"), ErrCodeInvalidID)
	}
	session, err := u.store.GetUploadSession(ctx, sessionID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if session == nil || session.OwnerSubject != subject {
		return nil, notFoundCode(fmt.Errorf("upload session not found"), ErrCodeSessionNotFound)
	}
	// Expiry is lazy: the first touch past the deadline reports the session
	// dead and removes the row, releasing its quota reservation right away.
	// The sweep remains the safety net for sessions nobody touches again.
	if session.Expired(u.now(), u.uploads.SessionTimeout()) {
		if _, delErr := u.store.DeleteUploadSession(ctx, session.ID); delErr != nil {
			return nil, storeFailure(delErr)
		}
		return nil, gone(fmt.Errorf("upload session expired"))
	}
	return session, nil
}

func (u *UploadService) hashChunks(ctx context.Context, sessionID string) (string, int64, error) {
	h := sha256.New()
	var total int64
	err := u.store.ForEachChunk(ctx, sessionID, func(_ int, data []byte) error {
		h.Write(data)
		total += int64(len(data))
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), total, nil
}

func (u *UploadService) assembleInline(ctx context.Context, sessionID string, size int64) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, size))
	err := u.store.ForEachChunk(ctx, sessionID, func(_ int, data []byte) error {
		_, writeErr := buf.Write(data)
		return writeErr
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (u *UploadService) streamToBlobStore(ctx context.Context, sessionID string) (blobstore.PutResult, error) {
	pr, pw := io.Pipe()
	go func() {
		err := u.store.ForEachChunk(ctx, sessionID, func(_ int, data []byte) error {
			_, writeErr := pw.Write(data)
			return writeErr
		})
		pw.CloseWithError(err)
	}()
	return u.blobs.Put(ctx, pr)
}

func (u *UploadService) classifyQuotaError(err error) error {
	switch {
	case errors.Is(err, store.ErrQuotaSessions):
		return quotaExceeded(err, ErrCodeQuotaSessions)
	case errors.Is(err, store.ErrQuotaDailyUploads):
		return quotaExceeded(err, ErrCodeQuotaDaily)
	case errors.Is(err, store.ErrQuotaStoredBytes):
		return quotaExceeded(err, ErrCodeQuotaStoredBytes)
	default:
		return storeFailure(err)
	}
}

func commitResponse(asset *models.Asset) api.CommitUploadResponse {
	return api.CommitUploadResponse{
		Asset:      assetToAPI(asset),
		TotalBytes: asset.SizeBytes,
	}
}
