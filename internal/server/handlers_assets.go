package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// handleFetchAsset is the gateway endpoint. The capability token is the
// only credential; responses are marked private and non-cacheable because
// tokens are per-subject and TTL-bounded.
func (s *Server) handleFetchAsset(w http.ResponseWriter, r *http.Request) {
	memoryID, err := requirePathID(r, "memoryID")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	rawToken := bearerToken(r)
	if rawToken == "" {
		s.writeErrorReq(w, r, http.StatusUnauthorized,
			unauthorizedCode(fmt.Errorf("capability token required"), ErrCodeTokenInvalid))
		return
	}

	resolved, err := s.gateway.Resolve(r.Context(), rawToken, memoryID,
		strings.TrimSpace(r.URL.Query().Get("variant")),
		strings.TrimSpace(r.URL.Query().Get("asset_id")))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer resolved.Reader.Close()

	w.Header().Set("Content-Type", resolved.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(resolved.Asset.SizeBytes, 10))
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("ETag", `"`+resolved.Asset.SHA256+`"`)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, resolved.Reader); err != nil {
		s.log().Error("stream asset", "asset_id", resolved.Asset.ID, "error", err)
	}
}

// bearerToken extracts the token from the Authorization header or, for
// clients that cannot set headers (media elements), the token query param.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, value, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
