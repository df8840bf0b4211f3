package auth_test

import (
	"context"
	"testing"

	auth "github.com/goliatone/go-market-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func principalWith(claims ...auth.Claim) auth.Principal {
	return auth.Principal{
		Authenticated: true,
		Subject:       "user-1",
		Claims:        auth.NewClaimSet(claims...),
	}
}

func sellerPrincipal() auth.Principal {
	return principalWith(
		auth.NewClaim(auth.ClaimRole, auth.RoleSeller),
		auth.PermissionClaim("products.create"),
		auth.PermissionClaim("products.update"),
		auth.PermissionClaim("stores.manage"),
	)
}

func TestPermissionPolicyResolver(t *testing.T) {
	resolver := auth.NewPermissionPolicyResolver(nil)

	cases := []struct {
		name       string
		policy     string
		permission string
		found      bool
	}{
		{name: "canonical prefix", policy: "Permission:products.create", permission: "products.create", found: true},
		{name: "lower case prefix", policy: "permission:products.create", permission: "products.create", found: true},
		{name: "upper case prefix", policy: "PERMISSION:Products.Create", permission: "Products.Create", found: true},
		{name: "remainder kept verbatim", policy: "Permission: spaced ", permission: " spaced ", found: true},
		{name: "empty remainder", policy: "Permission:", permission: "", found: true},
		{name: "no prefix", policy: "products.create", found: false},
		{name: "short name", policy: "Perm", found: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy, ok := resolver.Resolve(tc.policy)
			require.Equal(t, tc.found, ok)
			if !tc.found {
				assert.Nil(t, policy)
				return
			}
			assert.Equal(t, tc.policy, policy.Name)
			assert.Equal(t, []auth.Requirement{auth.PermissionRequirement{Permission: tc.permission}}, policy.Requirements)
		})
	}
}

func TestPermissionPolicyResolver_IsStable(t *testing.T) {
	resolver := auth.NewPermissionPolicyResolver(nil)

	first, ok := resolver.Resolve(auth.PermissionPolicy("orders.create"))
	require.True(t, ok)
	second, ok := resolver.Resolve(auth.PermissionPolicy("orders.create"))
	require.True(t, ok)

	assert.Equal(t, first, second)
}

func TestPermissionPolicyResolver_Fallback(t *testing.T) {
	registry := auth.NewStaticPolicyRegistry().
		Register("AdminOnly", auth.RoleRequirement{Roles: []string{auth.RoleAdmin}})

	resolver := auth.NewPermissionPolicyResolver(registry)

	policy, ok := resolver.Resolve("AdminOnly")
	require.True(t, ok)
	assert.Equal(t, "AdminOnly", policy.Name)

	_, ok = resolver.Resolve("Unknown")
	assert.False(t, ok)
}

func TestPermissionHandler_Evaluate(t *testing.T) {
	ctx := context.Background()
	handler := auth.NewPermissionHandler().WithLogger(nopLogger{})

	seller := sellerPrincipal()

	assert.Equal(t, auth.OutcomeSucceed, handler.Evaluate(ctx, auth.PermissionRequirement{Permission: "products.create"}, seller))
	assert.Equal(t, auth.OutcomeNoOp, handler.Evaluate(ctx, auth.PermissionRequirement{Permission: "products.delete"}, seller))

	// values compare case-sensitively
	assert.Equal(t, auth.OutcomeNoOp, handler.Evaluate(ctx, auth.PermissionRequirement{Permission: "Products.Create"}, seller))

	// claim types compare case-insensitively
	mixed := principalWith(auth.NewClaim("PERMISSION", "orders.create"))
	assert.Equal(t, auth.OutcomeSucceed, handler.Evaluate(ctx, auth.PermissionRequirement{Permission: "orders.create"}, mixed))

	assert.Equal(t, auth.OutcomeSucceed, handler.Evaluate(ctx, auth.RoleRequirement{Roles: []string{auth.RoleAdmin, auth.RoleSeller}}, seller))
	assert.Equal(t, auth.OutcomeNoOp, handler.Evaluate(ctx, auth.RoleRequirement{Roles: []string{auth.RoleAdmin}}, seller))
	assert.Equal(t, auth.OutcomeSucceed, handler.Evaluate(ctx, auth.AuthenticatedRequirement{}, seller))

	anonymous := auth.AnonymousPrincipal()
	assert.Equal(t, auth.OutcomeNoOp, handler.Evaluate(ctx, auth.PermissionRequirement{Permission: "products.create"}, anonymous))
	assert.Equal(t, auth.OutcomeNoOp, handler.Evaluate(ctx, auth.AuthenticatedRequirement{}, anonymous))
}

func TestPermissionHandler_RecordsActivity(t *testing.T) {
	sink := &capturingSink{}
	handler := auth.NewPermissionHandler().WithLogger(nopLogger{}).WithActivitySink(sink)

	handler.Evaluate(context.Background(), auth.PermissionRequirement{Permission: "products.create"}, sellerPrincipal())
	handler.Evaluate(context.Background(), auth.PermissionRequirement{Permission: "users.manage"}, sellerPrincipal())

	assert.Equal(t, []auth.ActivityEventType{
		auth.ActivityEventPermissionGranted,
		auth.ActivityEventPermissionDenied,
	}, sink.Types())
	assert.Equal(t, "users.manage", sink.events[1].Metadata["permission"])
	assert.Equal(t, "user-1", sink.events[1].UserID)
}

func TestAuthorizer_Authorize(t *testing.T) {
	ctx := context.Background()
	registry := auth.NewStaticPolicyRegistry().
		Register("Empty").
		Register("SellerStores",
			auth.RoleRequirement{Roles: []string{auth.RoleSeller}},
			auth.PermissionRequirement{Permission: "stores.manage"},
		).
		Register("SellerCatalogAdmin",
			auth.RoleRequirement{Roles: []string{auth.RoleSeller}},
			auth.PermissionRequirement{Permission: "categories.manage"},
		)

	authorizer := auth.NewAuthorizer(auth.NewPermissionPolicyResolver(registry), nil).WithLogger(nopLogger{})

	cases := []struct {
		name      string
		principal auth.Principal
		policy    string
		expected  auth.Decision
	}{
		{name: "seller creates products", principal: sellerPrincipal(), policy: "Permission:products.create", expected: auth.DecisionAllow},
		{name: "seller cannot delete products", principal: sellerPrincipal(), policy: "Permission:products.delete", expected: auth.DecisionDeny},
		{name: "prefix is case-insensitive", principal: sellerPrincipal(), policy: "permission:products.create", expected: auth.DecisionAllow},
		{name: "anonymous denied", principal: auth.AnonymousPrincipal(), policy: "Permission:products.create", expected: auth.DecisionDeny},
		{name: "every requirement met", principal: sellerPrincipal(), policy: "SellerStores", expected: auth.DecisionAllow},
		{name: "one requirement unmet", principal: sellerPrincipal(), policy: "SellerCatalogAdmin", expected: auth.DecisionDeny},
		{name: "no requirements", principal: sellerPrincipal(), policy: "Empty", expected: auth.DecisionDeny},
		{name: "empty permission", principal: sellerPrincipal(), policy: "Permission:", expected: auth.DecisionDeny},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := authorizer.Authorize(ctx, tc.principal, tc.policy)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, decision)
		})
	}
}

func TestAuthorizer_UnknownPolicy(t *testing.T) {
	authorizer := auth.NewAuthorizer(auth.NewPermissionPolicyResolver(nil), nil).WithLogger(nopLogger{})

	decision, err := authorizer.Authorize(context.Background(), sellerPrincipal(), "DoesNotExist")
	assert.Equal(t, auth.DecisionDeny, decision)
	assert.ErrorIs(t, err, auth.ErrPolicyNotFound)
}

func TestAuthorizationError(t *testing.T) {
	assert.NoError(t, auth.AuthorizationError(sellerPrincipal(), auth.DecisionAllow))
	assert.ErrorIs(t, auth.AuthorizationError(auth.AnonymousPrincipal(), auth.DecisionDeny), auth.ErrUnauthenticated)
	assert.ErrorIs(t, auth.AuthorizationError(sellerPrincipal(), auth.DecisionDeny), auth.ErrPermissionDenied)
}

func TestAuthorizer_WithIssuedTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "seller@example.com", "seller-password", auth.RoleSeller)

	pair, err := f.auther.Login(ctx, "seller@example.com", "seller-password")
	require.NoError(t, err)

	claims, err := f.auther.TokenService().Validate(pair.AccessToken)
	require.NoError(t, err)

	authorizer := auth.NewAuthorizer(nil, nil).WithLogger(nopLogger{})
	principal := auth.PrincipalFromClaims(claims)

	decision, err := authorizer.Authorize(ctx, principal, auth.PermissionPolicy("products.create"))
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionAllow, decision)

	decision, err = authorizer.Authorize(ctx, principal, auth.PermissionPolicy("products.delete"))
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionDeny, decision)
}
