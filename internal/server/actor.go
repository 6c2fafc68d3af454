package server

import (
	"net"
	"net/http"
	"strings"

	"evidencevault/internal/api"
	"evidencevault/internal/evidence"
	"evidencevault/internal/models"
)

// actorDefaults is the identity used when a request carries none. Deletes
// get no default role, so an anonymous delete is denied as UNKNOWN_ROLE.
type actorDefaults struct {
	id   string
	role models.Role
}

var (
	uploadActor   = actorDefaults{id: "SYSTEM_UPLOAD", role: models.RoleUploader}
	downloadActor = actorDefaults{id: "SYSTEM_DOWNLOAD", role: models.RoleViewer}
	deleteActor   = actorDefaults{id: "SYSTEM_DELETE"}
	updateActor   = actorDefaults{id: "SYSTEM_UPDATE", role: models.RoleService}
)

// requestActor resolves the caller from identity headers, then the
// userId/userRole query parameters, then the route defaults.
func requestActor(r *http.Request, def actorDefaults) evidence.Actor {
	query := r.URL.Query()
	return evidence.Actor{
		ID:     firstNonEmpty(r.Header.Get(api.ActorIDHeader), query.Get("userId"), def.id),
		Role:   firstNonEmpty(r.Header.Get(api.ActorRoleHeader), query.Get("userRole"), string(def.role)),
		Origin: requestOrigin(r),
	}
}

func requestOrigin(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return requestClientIP(r)
}

func requestClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remote)
	if err == nil {
		return strings.TrimSpace(host)
	}
	return remote
}
