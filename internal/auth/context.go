// ABOUTME: Operator context for tracking identity through request handlers
// ABOUTME: Provides WithOperator/FromContext for propagating auth info via context

package auth

import (
	"context"
	"slices"

	"github.com/2389/relay-gateway/internal/store"
)

// OperatorContext holds the authenticated operator extracted from a request.
// This is populated by the HTTP middleware and can be retrieved from context in handlers.
type OperatorContext struct {
	OperatorID  string
	DisplayName string
	Roles       []store.RoleName
}

// HasAnyRole reports whether the operator holds at least one of roles.
// Owner satisfies every role check.
func (o *OperatorContext) HasAnyRole(roles ...store.RoleName) bool {
	if slices.Contains(o.Roles, store.RoleOwner) {
		return true
	}
	for _, r := range roles {
		if slices.Contains(o.Roles, r) {
			return true
		}
	}
	return false
}

// IsAdmin returns true if the operator has admin or owner role.
func (o *OperatorContext) IsAdmin() bool {
	return o.HasAnyRole(store.RoleAdmin)
}

type operatorContextKey struct{}

// WithOperator returns a new context with the OperatorContext attached.
func WithOperator(ctx context.Context, op *OperatorContext) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, op)
}

// FromContext retrieves the OperatorContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *OperatorContext {
	op, _ := ctx.Value(operatorContextKey{}).(*OperatorContext)
	return op
}
