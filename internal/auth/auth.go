// Package auth checks bearer API keys against configured SHA-256 hashes.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// Key is a configured API key. Only the hash is kept.
type Key struct {
	KeyHash     string
	Description string
}

// Authenticator validates API keys
type Authenticator struct {
	keys map[string]Key // keyhash -> key
}

// NewAuthenticator creates an authenticator for the given keys. Hashes are
// matched case-insensitively.
func NewAuthenticator(keys []Key) *Authenticator {
	auth := &Authenticator{
		keys: make(map[string]Key, len(keys)),
	}
	for _, k := range keys {
		k.KeyHash = strings.ToLower(k.KeyHash)
		auth.keys[k.KeyHash] = k
	}
	return auth
}

// ValidateAPIKey returns the configured key matching apiKey.
func (a *Authenticator) ValidateAPIKey(apiKey string) (Key, error) {
	keyHash := HashAPIKey(apiKey)

	k, ok := a.keys[keyHash]
	if !ok {
		return Key{}, fmt.Errorf("invalid API key")
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(keyHash), []byte(k.KeyHash)) != 1 {
		return Key{}, fmt.Errorf("invalid API key")
	}
	return k, nil
}

// ExtractAPIKey extracts the API key from the Authorization header
func ExtractAPIKey(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	// Support "Bearer <key>" format
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("unsupported authorization scheme")
	}

	return strings.TrimSpace(parts[1]), nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
