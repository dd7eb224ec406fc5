package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/quickbite/delivery-core/internal/domain/auth"
	"github.com/quickbite/delivery-core/internal/domain/user"
)

// actorKey is the context key for the authenticated actor.
type actorKey struct{}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (user.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(user.Actor)
	return a, ok
}

// APIKeyAuth authenticates requests via an API key in the Authorization
// bearer token or the api_key header. The presented key is HMAC-SHA256 hashed
// under the pepper, looked up, and compared in constant time; the resolved
// actor is stored in the request context.
func APIKeyAuth(keys auth.Repository, pepper []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := bearerToken(r)
			if key == "" {
				key = r.Header.Get("api_key")
			}
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}

			hash := auth.HashKey(pepper, key)
			info, err := keys.FindByHash(r.Context(), hash)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			// Constant-time comparison guards against a repository returning
			// a stale or wrong row.
			stored, err := hex.DecodeString(info.KeyHash)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			presented, _ := hex.DecodeString(hash)
			if subtle.ConstantTimeCompare(presented, stored) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			actor := user.Actor{UserID: info.UserID, Role: info.Role}
			ctx := context.WithValue(r.Context(), actorKey{}, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireRole aborts with 403 unless the actor holds one of the given roles.
// It returns the actor for convenience.
func requireRole(w http.ResponseWriter, r *http.Request, roles ...user.Role) (user.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return actor, false
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden")
	return actor, false
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
