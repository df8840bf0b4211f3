package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// GetRouterClaims extracts the AuthClaims from the router context
func GetRouterClaims(ctx router.Context, key string) (AuthClaims, bool) {
	if key == "" {
		key = "user" // Default key used by JWT middleware
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AuthClaims)
	return claims, ok
}

// PrincipalFromContext returns the caller stored in ctx, anonymous when
// no claims are present.
func PrincipalFromContext(ctx context.Context) Principal {
	claims, ok := GetClaims(ctx)
	if !ok {
		return AnonymousPrincipal()
	}
	return PrincipalFromClaims(claims)
}

// Can reports whether the caller in ctx holds permission
func Can(ctx context.Context, permission string) bool {
	claims, ok := GetClaims(ctx)
	if !ok {
		return false
	}
	return claims.HasPermission(permission)
}
