package jwtware_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-market-auth/middleware/jwtware"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClaims struct {
	subject     string
	roles       []string
	permissions []string
}

func (c stubClaims) Subject() string { return c.subject }
func (c stubClaims) UserID() string  { return c.subject }

func (c stubClaims) HasRole(role string) bool {
	for _, r := range c.roles {
		if r == role {
			return true
		}
	}
	return false
}

func (c stubClaims) HasPermission(permission string) bool {
	for _, p := range c.permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// stubValidator accepts a single token
type stubValidator struct {
	token  string
	claims jwtware.AuthClaims
}

func (v stubValidator) Validate(token string) (jwtware.AuthClaims, error) {
	if token != v.token {
		return nil, errors.New("token is invalid")
	}
	return v.claims, nil
}

// requestMock serves headers from HeadersM and records locals and
// responses. Query and cookie lookups fall through to MockContext.
type requestMock struct {
	*router.MockContext
	path   string
	locals map[any]any
	ctx    context.Context
	status int
	body   string
}

func newRequestMock() *requestMock {
	return &requestMock{
		MockContext: router.NewMockContext(),
		locals:      map[any]any{},
		ctx:         context.Background(),
	}
}

func (m *requestMock) Path() string { return m.path }

func (m *requestMock) GetString(key string, def string) string {
	if v, ok := m.HeadersM[key]; ok {
		return v
	}
	return def
}

func (m *requestMock) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.locals[key] = value[0]
		return value[0]
	}
	return m.locals[key]
}

func (m *requestMock) Context() context.Context { return m.ctx }

func (m *requestMock) SetContext(ctx context.Context) { m.ctx = ctx }

func (m *requestMock) Status(code int) router.Context {
	m.status = code
	return m
}

func (m *requestMock) SendString(body string) error {
	m.body = body
	return nil
}

type enrichedKey struct{}

func seller() stubClaims {
	return stubClaims{
		subject:     "user-1",
		roles:       []string{"Seller"},
		permissions: []string{"products.create"},
	}
}

func run(t *testing.T, cfg jwtware.Config, ctx *requestMock) bool {
	t.Helper()
	called := false
	handler := jwtware.New(cfg)(func(c router.Context) error {
		called = true
		return nil
	})
	require.NoError(t, handler(ctx))
	return called
}

func TestJWTWare_HeaderExtraction(t *testing.T) {
	cfg := jwtware.Config{TokenValidator: stubValidator{token: "good", claims: seller()}}

	ctx := newRequestMock()
	ctx.HeadersM[router.HeaderAuthorization] = "Bearer good"
	assert.True(t, run(t, cfg, ctx))
	assert.Equal(t, seller(), ctx.locals["user"])

	ctx = newRequestMock()
	ctx.HeadersM[router.HeaderAuthorization] = "bearer good"
	assert.True(t, run(t, cfg, ctx), "scheme match is case-insensitive")
}

func TestJWTWare_MissingToken(t *testing.T) {
	cfg := jwtware.Config{TokenValidator: stubValidator{token: "good", claims: seller()}}

	ctx := newRequestMock()
	assert.False(t, run(t, cfg, ctx))
	assert.Equal(t, router.StatusBadRequest, ctx.status)

	ctx = newRequestMock()
	ctx.HeadersM[router.HeaderAuthorization] = "Basic good"
	assert.False(t, run(t, cfg, ctx))
	assert.Equal(t, router.StatusBadRequest, ctx.status)
}

func TestJWTWare_InvalidToken(t *testing.T) {
	cfg := jwtware.Config{TokenValidator: stubValidator{token: "good", claims: seller()}}

	ctx := newRequestMock()
	ctx.HeadersM[router.HeaderAuthorization] = "Bearer forged"
	assert.False(t, run(t, cfg, ctx))
	assert.Equal(t, router.StatusUnauthorized, ctx.status)
	assert.Nil(t, ctx.locals["user"])
}

func TestJWTWare_QueryAndCookieLookup(t *testing.T) {
	cfg := jwtware.Config{
		TokenValidator: stubValidator{token: "good", claims: seller()},
		TokenLookup:    "header:Authorization, query:access_token, cookie:jwt",
	}

	ctx := newRequestMock()
	ctx.QueriesM["access_token"] = "good"
	assert.True(t, run(t, cfg, ctx))

	ctx = newRequestMock()
	ctx.CookiesM["jwt"] = "good"
	assert.True(t, run(t, cfg, ctx))
}

func TestJWTWare_Filter(t *testing.T) {
	cfg := jwtware.Config{
		TokenValidator: stubValidator{token: "good", claims: seller()},
		Filter: func(ctx router.Context) bool {
			return ctx.Path() == "/public"
		},
	}

	ctx := newRequestMock()
	ctx.path = "/public"
	assert.True(t, run(t, cfg, ctx))
	assert.Nil(t, ctx.locals["user"])
}

func TestJWTWare_RequiredRoleAndPermission(t *testing.T) {
	cases := []struct {
		name    string
		cfg     jwtware.Config
		allowed bool
	}{
		{name: "role held", cfg: jwtware.Config{RequiredRole: "Seller"}, allowed: true},
		{name: "role missing", cfg: jwtware.Config{RequiredRole: "Admin"}, allowed: false},
		{name: "permission held", cfg: jwtware.Config{RequiredPermission: "products.create"}, allowed: true},
		{name: "permission missing", cfg: jwtware.Config{RequiredPermission: "users.manage"}, allowed: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			cfg.TokenValidator = stubValidator{token: "good", claims: seller()}

			ctx := newRequestMock()
			ctx.HeadersM[router.HeaderAuthorization] = "Bearer good"

			assert.Equal(t, tc.allowed, run(t, cfg, ctx))
			if !tc.allowed {
				assert.Equal(t, router.StatusForbidden, ctx.status)
			}
		})
	}
}

func TestJWTWare_ContextEnricherAndListeners(t *testing.T) {
	var listened jwtware.AuthClaims
	cfg := jwtware.Config{
		TokenValidator: stubValidator{token: "good", claims: seller()},
		ContextKey:     "claims",
		ContextEnricher: func(c context.Context, claims jwtware.AuthClaims) context.Context {
			return context.WithValue(c, enrichedKey{}, claims.Subject())
		},
		ValidationListeners: []jwtware.ValidationListener{
			nil,
			func(ctx router.Context, claims jwtware.AuthClaims) error {
				listened = claims
				return nil
			},
		},
	}

	ctx := newRequestMock()
	ctx.HeadersM[router.HeaderAuthorization] = "Bearer good"
	assert.True(t, run(t, cfg, ctx))

	assert.Equal(t, seller(), ctx.locals["claims"])
	assert.Equal(t, "user-1", ctx.ctx.Value(enrichedKey{}))
	assert.Equal(t, seller(), listened)
}

func TestJWTWare_ListenerRejects(t *testing.T) {
	cfg := jwtware.Config{
		TokenValidator: stubValidator{token: "good", claims: seller()},
		ValidationListeners: []jwtware.ValidationListener{
			func(ctx router.Context, claims jwtware.AuthClaims) error {
				return errors.New("account suspended")
			},
		},
	}

	ctx := newRequestMock()
	ctx.HeadersM[router.HeaderAuthorization] = "Bearer good"
	assert.False(t, run(t, cfg, ctx))
	assert.Equal(t, router.StatusUnauthorized, ctx.status)
}

func TestGetDefaultConfig_RequiresValidator(t *testing.T) {
	assert.Panics(t, func() { jwtware.GetDefaultConfig() })

	cfg := jwtware.GetDefaultConfig(jwtware.Config{TokenValidator: stubValidator{}})
	assert.Equal(t, "user", cfg.ContextKey)
	assert.Equal(t, "Bearer", cfg.AuthScheme)
	assert.Equal(t, "header:"+router.HeaderAuthorization, cfg.TokenLookup)
}
