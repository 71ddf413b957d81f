package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"capsd/internal/api"
	"capsd/internal/models"
	"capsd/internal/store"
)

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())

	var req api.CreateMemoryRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	kind, err := models.ParseMemoryKind(req.Kind)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidKind))
		return
	}

	// Creating a memory implicitly creates the subject's capsule on first
	// use.
	capsule, _, err := s.store.EnsureCapsule(r.Context(), subject, time.Now())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	memory := &models.Memory{
		ID:          store.NewID(),
		CapsuleID:   capsule.ID,
		Kind:        string(kind),
		Title:       strings.TrimSpace(req.Title),
		ContentType: strings.TrimSpace(req.ContentType),
		Tags:        req.Tags,
		Custom:      req.Custom,
	}
	if err := s.store.CreateMemory(r.Context(), memory); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, memoryToAPI(memory))
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())
	memoryID, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	memory, readable, err := s.acl.CanReadMemory(r.Context(), subject, memoryID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if !readable {
		s.writeErrorReq(w, r, http.StatusNotFound,
			notFoundCode(fmt.Errorf("memory not found"), ErrCodeMemoryNotFound))
		return
	}
	s.writeJSON(w, http.StatusOK, memoryToAPI(memory))
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())
	memoryID, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	memory, owned, err := s.acl.CanWriteMemory(r.Context(), subject, memoryID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if !owned {
		s.writeErrorReq(w, r, http.StatusNotFound,
			notFoundCode(fmt.Errorf("memory not found"), ErrCodeMemoryNotFound))
		return
	}

	if _, err := s.store.DeleteMemory(r.Context(), memoryID); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	// Return the quota headroom the memory's assets held. Shared blob
	// bytes on disk are reclaimed separately by the admin GC once
	// unreferenced.
	if memory.SizeBytes > 0 {
		if err := s.store.ReleaseStoredBytes(r.Context(), subject, memory.SizeBytes); err != nil {
			s.log().Error("release stored bytes", "subject", subject, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())

	capsule, err := s.store.GetCapsuleBySubject(r.Context(), subject)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if capsule == nil {
		s.writeJSON(w, http.StatusOK, api.MemoryListResponse{Memories: []api.Memory{}})
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	cursor, err := queryCursor(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	filter := store.MemoryListFilter{
		Cursor: cursor,
		Limit:  limit,
		Tag:    strings.TrimSpace(r.URL.Query().Get("tag")),
	}
	if rawKind := strings.TrimSpace(r.URL.Query().Get("kind")); rawKind != "" {
		kind, err := models.ParseMemoryKind(rawKind)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidKind))
			return
		}
		filter.Kind = string(kind)
	}

	memories, err := s.store.ListMemoriesByCapsule(r.Context(), capsule.ID, filter)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	resp := api.MemoryListResponse{Memories: make([]api.Memory, 0, len(memories))}
	for i := range memories {
		resp.Memories = append(resp.Memories, memoryToAPI(&memories[i]))
	}
	if len(memories) == limit {
		resp.NextCursor = memories[len(memories)-1].ID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())
	memoryID, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	_, readable, err := s.acl.CanReadMemory(r.Context(), subject, memoryID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if !readable {
		s.writeErrorReq(w, r, http.StatusNotFound,
			notFoundCode(fmt.Errorf("memory not found"), ErrCodeMemoryNotFound))
		return
	}

	assets, err := s.store.ListAssetsByMemory(r.Context(), memoryID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	out := make([]api.Asset, 0, len(assets))
	for i := range assets {
		out = append(out, assetToAPI(&assets[i]))
	}
	s.writeJSON(w, http.StatusOK, out)
}
