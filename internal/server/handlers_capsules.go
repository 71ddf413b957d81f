package server

import (
	"fmt"
	"net/http"
	"time"

	"capsd/internal/api"
	"capsd/internal/auth"
)

func (s *Server) handleEnsureCapsule(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())

	capsule, created, err := s.store.EnsureCapsule(r.Context(), subject, time.Now())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, api.EnsureCapsuleResponse{Capsule: capsuleToAPI(capsule), Created: created})
}

func (s *Server) handleGetOwnCapsule(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())

	capsule, err := s.store.GetCapsuleBySubject(r.Context(), subject)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if capsule == nil {
		s.writeErrorReq(w, r, http.StatusNotFound,
			notFoundCode(fmt.Errorf("no capsule for subject"), ErrCodeCapsuleNotFound))
		return
	}
	s.writeJSON(w, http.StatusOK, capsuleToAPI(capsule))
}

// ownedCapsule loads the capsule in the path and verifies the caller owns
// it. Grant management is an owner-only operation.
func (s *Server) ownedCapsule(w http.ResponseWriter, r *http.Request) (string, bool) {
	subject, _ := subjectFromContext(r.Context())
	capsuleID, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return "", false
	}

	capsule, err := s.store.GetCapsule(r.Context(), capsuleID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return "", false
	}
	if capsule == nil || capsule.OwnerSubject != subject {
		s.writeErrorReq(w, r, http.StatusNotFound,
			notFoundCode(fmt.Errorf("capsule not found"), ErrCodeCapsuleNotFound))
		return "", false
	}
	return capsuleID, true
}

func (s *Server) decodeGrantSubject(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req api.GrantRequest
	if !s.decodeJSONReq(w, r, &req) {
		return "", false
	}
	grantee, err := auth.NormalizeSubject(req.Subject)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidSubject))
		return "", false
	}
	return grantee, true
}

func (s *Server) handleAddGrant(w http.ResponseWriter, r *http.Request) {
	capsuleID, ok := s.ownedCapsule(w, r)
	if !ok {
		return
	}
	grantee, ok := s.decodeGrantSubject(w, r)
	if !ok {
		return
	}

	if err := s.store.AddGrant(r.Context(), capsuleID, grantee, time.Now()); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveGrant(w http.ResponseWriter, r *http.Request) {
	capsuleID, ok := s.ownedCapsule(w, r)
	if !ok {
		return
	}
	grantee, ok := s.decodeGrantSubject(w, r)
	if !ok {
		return
	}

	if err := s.store.RemoveGrant(r.Context(), capsuleID, grantee); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	capsuleID, ok := s.ownedCapsule(w, r)
	if !ok {
		return
	}

	grants, err := s.store.ListGrants(r.Context(), capsuleID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	subjects := make([]string, 0, len(grants))
	for _, grant := range grants {
		subjects = append(subjects, grant.Subject)
	}
	s.writeJSON(w, http.StatusOK, api.GrantList{CapsuleID: capsuleID, Subjects: subjects})
}
