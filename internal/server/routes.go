package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and info.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/info", s.handleInfo)

	// Capsules and grants.
	mux.HandleFunc("POST /v1/capsules", s.requireSubject(s.handleEnsureCapsule))
	mux.HandleFunc("GET /v1/capsules/self", s.requireSubject(s.handleGetOwnCapsule))
	mux.HandleFunc("GET /v1/capsules/{id}/grants", s.requireSubject(s.handleListGrants))
	mux.HandleFunc("POST /v1/capsules/{id}/grants", s.requireSubject(s.handleAddGrant))
	mux.HandleFunc("DELETE /v1/capsules/{id}/grants", s.requireSubject(s.handleRemoveGrant))

	// Memories.
	mux.HandleFunc("POST /v1/memories", s.requireSubject(s.handleCreateMemory))
	mux.HandleFunc("GET /v1/memories", s.requireSubject(s.handleListMemories))
	mux.HandleFunc("GET /v1/memories/{id}", s.requireSubject(s.handleGetMemory))
	mux.HandleFunc("DELETE /v1/memories/{id}", s.requireSubject(s.handleDeleteMemory))
	mux.HandleFunc("GET /v1/memories/{id}/assets", s.requireSubject(s.handleListAssets))

	// Chunked uploads.
	mux.HandleFunc("POST /v1/uploads", s.requireSubject(s.handleBeginUpload))
	mux.HandleFunc("PUT /v1/uploads/{id}/chunks/{index}", s.requireSubject(s.handlePutChunk))
	mux.HandleFunc("POST /v1/uploads/{id}/commit", s.requireSubject(s.handleCommitUpload))
	mux.HandleFunc("DELETE /v1/uploads/{id}", s.requireSubject(s.handleCancelUpload))

	// Capability tokens.
	mux.HandleFunc("POST /v1/tokens", s.requireSubject(s.handleMintToken))
	mux.HandleFunc("POST /v1/tokens/bulk", s.requireSubject(s.handleMintTokensBulk))

	// Asset gateway. Authorization comes from the token, not the subject
	// header, so delegates can fetch without passing the identity layer.
	mux.HandleFunc("GET /v1/assets/{memoryID}", s.handleFetchAsset)

	// Per-subject quota usage.
	mux.HandleFunc("GET /v1/quota", s.requireSubject(s.handleGetQuota))

	// Admin.
	mux.HandleFunc("POST /v1/admin/sweep", s.requireAdmin(s.handleAdminSweep))
	mux.HandleFunc("POST /v1/admin/gc", s.requireAdmin(s.handleAdminGC))
	mux.HandleFunc("POST /v1/admin/users", s.requireAdmin(s.handleAdminCreateUser))
	mux.HandleFunc("GET /v1/admin/users", s.requireAdmin(s.handleAdminListUsers))
	mux.HandleFunc("PATCH /v1/admin/users/{username}", s.requireAdmin(s.handleAdminSetUserDisabled))
	mux.HandleFunc("DELETE /v1/admin/users/{username}", s.requireAdmin(s.handleAdminDeleteUser))

	return mux
}
