package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

const adminTokenHeader = "X-Admin-Token"

// withAuth enforces the bearer token on every route but /health, and the
// admin token on /api/v1/admin/ routes.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		if s.apiToken != "" && !tokenMatches(bearerToken(r), s.apiToken) {
			s.writeErrorReq(w, r, http.StatusUnauthorized, apiError{
				status:  http.StatusUnauthorized,
				code:    "unauthorized",
				errCode: ErrCodeUnauthorized,
				err:     fmt.Errorf("missing or invalid bearer token"),
			})
			return
		}

		if isAdminPath(r.URL.Path) && s.adminToken != "" &&
			!tokenMatches(strings.TrimSpace(r.Header.Get(adminTokenHeader)), s.adminToken) {
			s.writeErrorReq(w, r, http.StatusForbidden, forbiddenCode(fmt.Errorf("admin token required"), ErrCodeForbidden))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func tokenMatches(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func isAdminPath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/admin/")
}
