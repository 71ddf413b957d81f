package server

import (
	"fmt"
	"net/http"
	"time"

	"capsd/internal/api"
	"capsd/internal/token"
)

func (s *Server) tokenTTL(ttlSeconds int) (time.Duration, error) {
	if ttlSeconds == 0 {
		return s.cfg.Tokens.DefaultTTL(), nil
	}
	if ttlSeconds < 0 {
		return 0, badRequestCode(fmt.Errorf("ttl_seconds must be positive"), ErrCodeInvalidTTL)
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl > s.cfg.Tokens.MaxTTL() {
		ttl = s.cfg.Tokens.MaxTTL()
	}
	return ttl, nil
}

func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())

	var req api.MintTokenRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if !validateID(req.MemoryID) {
		s.writeErrorReq(w, r, http.StatusBadRequest,
			badRequestCode(fmt.Errorf("invalid memory id"), ErrCodeInvalidID))
		return
	}
	variants, err := parseVariantList(req.Variants)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	if err := validateAssetIDList(req.AssetIDs); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	ttl, err := s.tokenTTL(req.TTLSeconds)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	_, allowed, err := s.acl.CanMint(r.Context(), subject, req.MemoryID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if !allowed {
		s.writeErrorReq(w, r, http.StatusUnauthorized,
			unauthorized(fmt.Errorf("not authorized to mint for this memory")))
		return
	}

	raw, err := s.tokens.Mint(token.Scope{
		MemoryID: req.MemoryID,
		Variants: variants,
		AssetIDs: req.AssetIDs,
		Subject:  subject,
	}, ttl)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusInternalServerError, internalError(err))
		return
	}

	s.writeJSON(w, http.StatusOK, api.MintTokenResponse{
		Token:     raw,
		ExpiresAt: time.Now().UTC().Add(ttl),
	})
}

// handleMintTokensBulk processes each memory id independently: ids the
// caller is not authorized on are silently omitted from the response.
// Partial success is the documented outcome, never an error.
func (s *Server) handleMintTokensBulk(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())

	var req api.MintTokensBulkRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if len(req.MemoryIDs) == 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest,
			badRequestCode(fmt.Errorf("memory_ids are required"), ErrCodeMissingRequired))
		return
	}
	variants, err := parseVariantList(req.Variants)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	if err := validateAssetIDList(req.AssetIDs); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	ttl, err := s.tokenTTL(req.TTLSeconds)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	resp := api.MintTokensBulkResponse{
		Tokens:    []api.BulkTokenGrant{},
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	for _, memoryID := range req.MemoryIDs {
		if !validateID(memoryID) {
			continue
		}
		_, allowed, err := s.acl.CanMint(r.Context(), subject, memoryID)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		if !allowed {
			continue
		}
		raw, err := s.tokens.Mint(token.Scope{
			MemoryID: memoryID,
			Variants: variants,
			AssetIDs: req.AssetIDs,
			Subject:  subject,
		}, ttl)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusInternalServerError, internalError(err))
			return
		}
		resp.Tokens = append(resp.Tokens, api.BulkTokenGrant{MemoryID: memoryID, Token: raw})
	}

	s.writeJSON(w, http.StatusOK, resp)
}
