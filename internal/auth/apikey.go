// ABOUTME: Tenant delivery credentials: generation, hashing and request extraction
// ABOUTME: Only the SHA-256 hash is ever stored; the plaintext is shown once at creation

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// APIKeyHeader carries a tenant's delivery credential
const APIKeyHeader = "X-Api-Key"

// apiKeyPrefix makes relay credentials recognizable in logs and secret scanners
const apiKeyPrefix = "rk_"

// GenerateAPIKey returns a new random delivery credential
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashAPIKey returns the hex SHA-256 of a credential, as stored on the tenant
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ExtractAPIKey reads the credential from the X-Api-Key header, falling back
// to an Authorization bearer value. Returns "" when neither is present.
func ExtractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg != "" {
		return ""
	}
	return token
}
