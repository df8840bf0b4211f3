package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouteAuthenticator(t *testing.T) (*RouteAuthenticator, *TokenServiceImpl) {
	t.Helper()

	ts, err := NewTokenService([]byte("route-test-key"), 15, "market-auth", jwt.ClaimStrings{"market-web"})
	require.NoError(t, err)

	registry := NewStaticPolicyRegistry().
		Register("AdminOnly", RoleRequirement{Roles: []string{RoleAdmin}})

	authorizer := NewAuthorizer(NewPermissionPolicyResolver(registry), nil).WithLogger(defLogger{})

	cfg := EnvConfig{
		ContextKey:  "user",
		TokenLookup: "header:Authorization",
		AuthScheme:  "Bearer",
	}

	ra, err := NewHTTPAuthenticator(ts, authorizer, cfg)
	require.NoError(t, err)
	return ra.WithLogger(defLogger{}), ts
}

func signSeller(t *testing.T, ts *TokenServiceImpl) string {
	t.Helper()
	token, err := ts.SignClaims(ts.NewClaims(NewClaimSet(
		NewClaim(ClaimSubject, "seller-1"),
		NewClaim(ClaimRole, RoleSeller),
		PermissionClaim("products.create"),
	)))
	require.NoError(t, err)
	return token
}

func serve(t *testing.T, mw router.MiddlewareFunc, ctx *routeCtx) bool {
	t.Helper()
	called := false
	err := mw(func(c router.Context) error {
		called = true
		return nil
	})(ctx)
	require.NoError(t, err)
	return called
}

func TestNewHTTPAuthenticator_RequiresValidator(t *testing.T) {
	ra, err := NewHTTPAuthenticator(nil, nil, EnvConfig{})
	assert.Nil(t, ra)
	assert.Error(t, err)
}

func TestRouteAuthenticator_ProtectedRoute(t *testing.T) {
	ra, ts := newTestRouteAuthenticator(t)

	t.Run("valid token", func(t *testing.T) {
		ctx := newRouteCtx()
		ctx.headers["Authorization"] = "Bearer " + signSeller(t, ts)

		assert.True(t, serve(t, ra.ProtectedRoute(), ctx))

		claims, ok := GetRouterClaims(ctx, "user")
		require.True(t, ok)
		assert.Equal(t, "seller-1", claims.Subject())

		assert.True(t, Can(ctx.Context(), "products.create"))
	})

	t.Run("forged token", func(t *testing.T) {
		ctx := newRouteCtx()
		ctx.headers["Authorization"] = "Bearer " + signSeller(t, ts) + "x"

		assert.False(t, serve(t, ra.ProtectedRoute(), ctx))
		assert.Equal(t, router.StatusUnauthorized, ctx.status)
	})

	t.Run("missing token", func(t *testing.T) {
		ctx := newRouteCtx()

		assert.False(t, serve(t, ra.ProtectedRoute(), ctx))
		assert.Equal(t, router.StatusUnauthorized, ctx.status)
	})
}

func TestRouteAuthenticator_RequirePolicy(t *testing.T) {
	ra, ts := newTestRouteAuthenticator(t)

	cases := []struct {
		name    string
		token   bool
		mw      router.MiddlewareFunc
		allowed bool
		status  int
	}{
		{name: "permission held", token: true, mw: ra.RequirePermission("products.create"), allowed: true},
		{name: "permission missing", token: true, mw: ra.RequirePermission("users.manage"), status: router.StatusForbidden},
		{name: "role policy denied", token: true, mw: ra.RequirePolicy("AdminOnly"), status: router.StatusForbidden},
		{name: "anonymous", token: false, mw: ra.RequirePermission("products.create"), status: router.StatusUnauthorized},
		{name: "unknown policy", token: true, mw: ra.RequirePolicy("Nope"), status: router.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := newRouteCtx()
			if tc.token {
				ctx.headers["Authorization"] = "Bearer " + signSeller(t, ts)
				require.True(t, serve(t, ra.ProtectedRoute(), ctx))
			}

			called := serve(t, tc.mw, ctx)
			assert.Equal(t, tc.allowed, called)
			if !tc.allowed {
				assert.Equal(t, tc.status, ctx.status)
			}
		})
	}
}
