package server

import (
	"context"
	"fmt"
	"net/http"

	"capsd/internal/api"
	"capsd/internal/auth"
)

type subjectContextKey struct{}

func contextWithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

func subjectFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	subject, ok := ctx.Value(subjectContextKey{}).(string)
	return subject, ok && subject != ""
}

// requireSubject wraps handlers that act on behalf of an authenticated
// principal. The identity layer in front of capsd authenticates the caller
// and asserts the subject header; an absent or malformed subject is a 401.
func (s *Server) requireSubject(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject, err := auth.NormalizeSubject(r.Header.Get(api.SubjectHeader))
		if err != nil {
			s.writeErrorReq(w, r, http.StatusUnauthorized,
				unauthorizedCode(fmt.Errorf("missing or invalid subject"), ErrCodeInvalidSubject))
			return
		}
		next(w, r.WithContext(contextWithSubject(r.Context(), subject)))
	}
}

// requireAdmin gates admin endpoints. A static admin token satisfies it;
// otherwise HTTP basic credentials are checked against the local admin
// accounts.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken != "" && r.Header.Get(api.AdminTokenHeader) == s.adminToken {
			next(w, r)
			return
		}

		username, password, ok := r.BasicAuth()
		if ok {
			normalized, err := auth.NormalizeUsername(username)
			if err == nil {
				user, lookupErr := s.store.GetUserByUsername(r.Context(), normalized)
				if lookupErr != nil {
					s.writeStoreError(w, r, lookupErr)
					return
				}
				if user != nil && !user.Disabled && auth.VerifyPassword(user.PasswordHash, password) {
					next(w, r)
					return
				}
			}
		}

		s.writeErrorReq(w, r, http.StatusUnauthorized,
			unauthorized(fmt.Errorf("admin credentials required")))
	}
}
