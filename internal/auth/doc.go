// Package auth provides authentication and authorization for relay-gateway.
//
// # Tenant Credentials
//
// Workers and control-plane callers identify their tenant with an API key:
//
//	key, err := GenerateAPIKey()   // shown once to the operator
//	hash := HashAPIKey(key)        // stored on the tenant row
//
// The key travels in the X-Api-Key header. Poll also accepts it as an
// Authorization bearer value; see ExtractAPIKey.
//
// # Operator Tokens
//
// Operators authenticate with HS256 JWTs whose "sub" claim is the operator
// ID. Tokens are minted by `relay-gateway bootstrap` and `relay-admin
// operator token`.
//
//	verifier, err := NewJWTVerifier(secret)
//	token, err := verifier.Generate(operatorID, 30*24*time.Hour)
//
// # Roles
//
// Operators hold any of owner, admin or moderator. Owner satisfies every
// check. Middleware:
//
//	OperatorAuthMiddleware(store, verifier)     // requires a token
//	OptionalOperatorMiddleware(store, verifier) // attaches one if present
//	RequireRole(store.RoleAdmin, ...)           // after OperatorAuthMiddleware
package auth
