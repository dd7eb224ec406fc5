// Package auth authenticates API callers via HMAC-SHA256 hashed API keys.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/quickbite/delivery-core/internal/domain/user"
)

// ErrUnknownKey is returned for keys that do not resolve to a user.
var ErrUnknownKey = fmt.Errorf("unknown api key")

// Key is a stored credential bound to a user and their role.
type Key struct {
	ID      string
	KeyHash string
	UserID  string
	Role    user.Role
}

// Repository provides lookup of API keys by their HMAC-SHA256 hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*Key, error)
}

// HashKey computes the hex HMAC-SHA256 of an API key under the given pepper.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}
