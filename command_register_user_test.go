package auth_test

import (
	"context"
	"net/http"
	"testing"

	auth "github.com/goliatone/go-market-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUserHandler_DefaultRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handler := auth.NewRegisterUserHandler(f.repo, auth.RoleCustomer).
		WithLogger(nopLogger{}).
		WithActivitySink(f.sink)

	user, err := handler.Register(ctx, auth.RegisterUserMessage{
		Email:     "Shopper@Example.com",
		Password:  "shopper-password",
		FirstName: " Shay ",
	})
	require.NoError(t, err)

	assert.Equal(t, "shopper@example.com", user.Email)
	assert.Equal(t, "Shopper", user.Username)
	assert.NotEqual(t, "shopper-password", user.PasswordHash)

	grants, err := f.repo.Roles().FindUserRoles(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, auth.RoleCustomer, grants[0].Name)

	profile, err := f.repo.Profiles().FindProfile(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Shay", profile.FirstName)

	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventRegistered}, f.sink.Types())
}

func TestRegisterUserHandler_ExplicitRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.register(t, "both@example.com", "both-password", auth.RoleSeller, auth.RoleCustomer)

	grants, err := f.repo.Roles().FindUserRoles(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, auth.RoleCustomer, grants[0].Name)
	assert.Equal(t, auth.RoleSeller, grants[1].Name)
}

func TestRegisterUserHandler_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "taken@example.com", "taken-password")

	err := auth.NewRegisterUserHandler(f.repo, auth.RoleCustomer).Execute(context.Background(), auth.RegisterUserMessage{
		Email:    "TAKEN@example.com",
		Password: "other-password",
	})
	assert.ErrorIs(t, err, auth.ErrEmailAlreadyInUse)
}

func TestRegisterUserHandler_DerivedUsernameCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.register(t, "bob@one.example", "bob-password")
	second := f.register(t, "bob@two.example", "bob-password")
	third := f.register(t, "bob@three.example", "bob-password")

	assert.Equal(t, "bob", first.Username)
	assert.Equal(t, "bob2", second.Username)
	assert.Equal(t, "bob3", third.Username)

	found, err := f.repo.Users().GetByEmail(ctx, "bob@two.example")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)
}

func TestRegisterUserHandler_ExplicitUsernameTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	handler := auth.NewRegisterUserHandler(f.repo, auth.RoleCustomer).WithLogger(nopLogger{})

	_, err := handler.Register(ctx, auth.RegisterUserMessage{
		Email:    "first@example.com",
		Username: "market-fan",
		Password: "first-password",
	})
	require.NoError(t, err)

	_, err = handler.Register(ctx, auth.RegisterUserMessage{
		Email:    "second@example.com",
		Username: "market-fan",
		Password: "second-password",
	})
	require.ErrorIs(t, err, auth.ErrUsernameAlreadyInUse)
	assert.Equal(t, http.StatusConflict, auth.StatusCode(err))

	_, err = f.repo.Users().GetByEmail(ctx, "second@example.com")
	assert.Error(t, err)
}

func TestRegisterUserHandler_UnknownRoleRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := auth.NewRegisterUserHandler(f.repo, auth.RoleCustomer).Register(ctx, auth.RegisterUserMessage{
		Email:    "ghost@example.com",
		Password: "ghost-password",
		Roles:    []string{"Ghost"},
	})
	require.Error(t, err)

	_, err = f.repo.Users().GetByEmail(ctx, "ghost@example.com")
	assert.Error(t, err)
}

func TestRegisterUserHandler_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := auth.NewRegisterUserHandler(f.repo, auth.RoleCustomer).Register(ctx, auth.RegisterUserMessage{
		Email:    "late@example.com",
		Password: "late-password",
	})
	assert.Error(t, err)
}
