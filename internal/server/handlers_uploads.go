package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"capsd/internal/api"
)

func (s *Server) handleBeginUpload(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())

	var req api.BeginUploadRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	resp, err := s.uploads.Begin(r.Context(), subject, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if resp.AlreadyExists {
		status = http.StatusOK
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handlePutChunk(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())

	sessionID, err := requirePathID(r, "id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	index, err := strconv.Atoi(strings.TrimSpace(r.PathValue("index")))
	if err != nil || index < 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest,
			badRequestCode(fmt.Errorf("invalid chunk index"), ErrCodeInvalidChunk))
		return
	}

	// One byte past the ceiling trips MaxBytesReader, which is reported
	// as an oversized chunk rather than a generic body error.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Uploads.ChunkSizeBytes+1)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest,
			badRequestCode(fmt.Errorf("chunk exceeds the %d byte ceiling", s.cfg.Uploads.ChunkSizeBytes), ErrCodeInvalidChunk))
		return
	}

	resp, err := s.uploads.PutChunk(r.Context(), subject, sessionID, index, data)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCommitUpload(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())

	sessionID, err := requirePathID(r, "id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	var req api.CommitUploadRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	resp, err := s.uploads.Commit(r.Context(), subject, sessionID, strings.TrimSpace(req.FinalSHA256))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelUpload(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())

	// Cancel takes the raw path value: a malformed session id still
	// cancels successfully, because cancel must be blind-retry safe.
	sessionID := strings.TrimSpace(r.PathValue("id"))
	if err := s.uploads.Cancel(r.Context(), subject, sessionID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
