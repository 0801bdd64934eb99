// Package auth provides API key authentication for the analyst service.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// Principal identifies an authenticated caller.
type Principal struct {
	Name string `json:"name"`
}

type apiKey struct {
	name string
	sum  [sha256.Size]byte
}

// KeyValidator checks presented tokens against a static key set.
type KeyValidator struct {
	keys []apiKey
}

// NewKeyValidator builds a validator from configured keys. An entry is
// either "name=key" or a bare key, whose principal is named after a
// digest prefix of the key.
func NewKeyValidator(entries []string) (*KeyValidator, error) {
	kv := &KeyValidator{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		name, key, named := strings.Cut(e, "=")
		if !named {
			key = e
		}
		if key == "" {
			return nil, fmt.Errorf("api key entry %q has an empty key", e)
		}
		sum := sha256.Sum256([]byte(key))
		if !named || name == "" {
			name = "key-" + hex.EncodeToString(sum[:4])
		}
		kv.keys = append(kv.keys, apiKey{name: name, sum: sum})
	}
	if len(kv.keys) == 0 {
		return nil, fmt.Errorf("no api keys configured")
	}
	return kv, nil
}

// Validate returns the principal owning token.
func (kv *KeyValidator) Validate(token string) (*Principal, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token")
	}
	sum := sha256.Sum256([]byte(token))
	for _, k := range kv.keys {
		if subtle.ConstantTimeCompare(sum[:], k.sum[:]) == 1 {
			return &Principal{Name: k.name}, nil
		}
	}
	return nil, fmt.Errorf("invalid token")
}

// ExtractToken extracts the token from an HTTP request.
func ExtractToken(r *http.Request) string {
	// Check Authorization header
	auth := r.Header.Get("Authorization")
	if auth != "" {
		// Handle "Bearer " prefix if present
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
		return auth
	}

	if token := r.Header.Get("X-API-Key"); token != "" {
		return token
	}

	// Check query parameter
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return ""
}

// ContextKey is the type for context keys.
type ContextKey string

// PrincipalContextKey is the context key for the authenticated principal.
const PrincipalContextKey ContextKey = "principal"

// GetPrincipalFromContext retrieves the principal from context.
func GetPrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(PrincipalContextKey).(*Principal); ok {
		return p
	}
	return nil
}

// SetPrincipalInContext stores the principal in context.
func SetPrincipalInContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// ServiceAuth attaches a fixed API key to outgoing requests.
type ServiceAuth struct {
	key string
}

// NewServiceAuth creates a new service authenticator.
func NewServiceAuth(key string) *ServiceAuth {
	return &ServiceAuth{key: key}
}

// AddAuthHeader adds the key to an HTTP request. An empty key adds nothing.
func (sa *ServiceAuth) AddAuthHeader(req *http.Request) {
	if sa == nil || sa.key == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+sa.key)
}
