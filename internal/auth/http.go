// ABOUTME: HTTP middleware for operator JWT authentication and role checks
// ABOUTME: Extracts JWT from Authorization header and adds the operator to context

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/2389/relay-gateway/internal/store"
)

// OperatorStore is the subset of the store the middleware needs
type OperatorStore interface {
	GetOperator(ctx context.Context, id string) (*store.Operator, error)
	ListRoles(ctx context.Context, operatorID string) ([]store.RoleName, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// checkOperatorStatus returns an error message (empty if allowed).
func checkOperatorStatus(status store.OperatorStatus) string {
	switch status {
	case store.OperatorActive:
		return ""
	case store.OperatorDisabled:
		return "operator is disabled"
	default:
		return "unknown operator status"
	}
}

// writeError writes the same {"error":{"kind","message"}} body the API handlers use
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"kind": kind, "message": msg},
	})
}

// resolveOperator verifies the bearer token and loads the operator with roles.
// The returned status and kind are set when resolution failed.
func resolveOperator(r *http.Request, operators OperatorStore, verifier TokenVerifier) (*OperatorContext, int, string, string) {
	token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg != "" {
		return nil, http.StatusUnauthorized, "AuthenticationMissing", errMsg
	}

	operatorID, err := verifier.Verify(token)
	if err != nil {
		return nil, http.StatusUnauthorized, "AuthenticationInvalid", "invalid token"
	}

	op, err := operators.GetOperator(r.Context(), operatorID)
	if err != nil {
		return nil, http.StatusUnauthorized, "AuthenticationInvalid", "operator not found"
	}

	if errMsg = checkOperatorStatus(op.Status); errMsg != "" {
		return nil, http.StatusForbidden, "PermissionDenied", errMsg
	}

	roles, err := operators.ListRoles(r.Context(), operatorID)
	if err != nil {
		return nil, http.StatusInternalServerError, "StorageUnavailable", "failed to load roles"
	}

	return &OperatorContext{
		OperatorID:  op.ID,
		DisplayName: op.DisplayName,
		Roles:       roles,
	}, 0, "", ""
}

// OperatorAuthMiddleware creates an HTTP middleware that requires a valid
// operator JWT and adds the OperatorContext to the request context.
func OperatorAuthMiddleware(operators OperatorStore, verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, status, kind, msg := resolveOperator(r, operators, verifier)
			if op == nil {
				writeError(w, status, kind, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
		})
	}
}

// OptionalOperatorMiddleware attaches the operator when a valid token is
// present and otherwise continues anonymously. A bearer value that is not an
// operator token (a tenant credential, say) is ignored.
func OptionalOperatorMiddleware(operators OperatorStore, verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r)
				return
			}
			op, _, _, _ := resolveOperator(r, operators, verifier)
			if op == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
		})
	}
}

// RequireRole creates an HTTP middleware that requires one of roles.
// Must be used after OperatorAuthMiddleware.
func RequireRole(roles ...store.RoleName) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := FromContext(r.Context())
			if op == nil {
				writeError(w, http.StatusUnauthorized, "AuthenticationMissing", "not authenticated")
				return
			}

			if !op.HasAnyRole(roles...) {
				writeError(w, http.StatusForbidden, "PermissionDenied", "insufficient role")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
