package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"capsd/internal/api"
	"capsd/internal/auth"
)

func (s *Server) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())

	usage, err := s.store.QuotaUsage(r.Context(), subject, time.Now())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	active, err := s.store.CountActiveSessions(r.Context(), subject)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.QuotaResponse{
		Subject:        subject,
		ActiveSessions: active,
		CommitsToday:   usage.CommitsToday,
		StoredBytes:    usage.StoredBytes,
		MaxSessions:    s.cfg.Quotas.MaxSessionsPerSubject,
		MaxCommitsDay:  s.cfg.Quotas.MaxUploadsPerDay,
		MaxStoredBytes: s.cfg.Quotas.MaxStoredBytes,
	})
}

func (s *Server) handleAdminSweep(w http.ResponseWriter, r *http.Request) {
	sessions, tempFiles, err := s.uploads.Sweep(r.Context())
	if err != nil {
		s.writeErrorReq(w, r, http.StatusInternalServerError, internalError(err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.SweepResponse{
		SessionsRemoved:  sessions,
		TempFilesRemoved: tempFiles,
	})
}

// handleAdminGC deletes blob objects no asset references anymore, in
// batches. Blob rows and files go together; a file that fails to delete
// keeps its row so the next run retries it.
func (s *Server) handleAdminGC(w http.ResponseWriter, r *http.Request) {
	blobs, err := s.store.ListUnreferencedBlobs(r.Context(), s.cfg.Blobs.GCBatchSize)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	resp := api.GCResponse{}
	for _, blob := range blobs {
		if err := s.blobs.Delete(r.Context(), blob.BlobKey); err != nil {
			s.log().Error("gc blob delete", "blob_key", blob.BlobKey, "error", err)
			continue
		}
		if err := s.store.DeleteBlob(r.Context(), blob.SHA256); err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		resp.BlobsRemoved++
		resp.BytesFreed += blob.SizeBytes
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req api.CreateAdminUserRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	username, err := auth.NormalizeUsername(req.Username)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(err))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(err))
		return
	}

	user, err := s.store.CreateAdminUser(r.Context(), username, hash, time.Now())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			s.writeErrorReq(w, r, http.StatusConflict,
				conflictCode(fmt.Errorf("username already exists"), ErrCodeConflict))
			return
		}
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, userToAPI(user))
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	resp := api.AdminUserList{Users: make([]api.AdminUser, 0, len(users))}
	for i := range users {
		resp.Users = append(resp.Users, userToAPI(&users[i]))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminSetUserDisabled(w http.ResponseWriter, r *http.Request) {
	username, err := auth.NormalizeUsername(r.PathValue("username"))
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(err))
		return
	}

	var req struct {
		Disabled *bool `json:"disabled"`
	}
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if req.Disabled == nil {
		s.writeErrorReq(w, r, http.StatusBadRequest,
			badRequestCode(fmt.Errorf("disabled is required"), ErrCodeMissingRequired))
		return
	}

	user, err := s.store.SetUserDisabled(r.Context(), username, *req.Disabled, time.Now())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if user == nil {
		s.writeErrorReq(w, r, http.StatusNotFound,
			notFoundCode(fmt.Errorf("user not found"), ErrCodeUserNotFound))
		return
	}
	s.writeJSON(w, http.StatusOK, userToAPI(user))
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	username, err := auth.NormalizeUsername(r.PathValue("username"))
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(err))
		return
	}

	deleted, err := s.store.DeleteUser(r.Context(), username)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if !deleted {
		s.writeErrorReq(w, r, http.StatusNotFound,
			notFoundCode(fmt.Errorf("user not found"), ErrCodeUserNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
