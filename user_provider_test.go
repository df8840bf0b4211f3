package auth_test

import (
	"context"
	"errors"
	"testing"

	auth "github.com/goliatone/go-market-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockUserFinder struct {
	mock.Mock
}

func (m *MockUserFinder) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func TestUserProvider_VerifyPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "buyer@example.com", "buyer-password")

	provider := auth.NewUserProvider(f.repo.Users()).WithLogger(nopLogger{})

	ok, err := provider.VerifyPassword(ctx, "buyer@example.com", "buyer-password")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = provider.VerifyPassword(ctx, "BUYER@example.com", "buyer-password")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = provider.VerifyPassword(ctx, "buyer@example.com", "wrong-password")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = provider.VerifyPassword(ctx, "nobody@example.com", "buyer-password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserProvider_FindByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registered := f.register(t, "find@example.com", "find-password")

	provider := auth.NewUserProvider(f.repo.Users())

	user, err := provider.FindByEmail(ctx, "find@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, registered.ID, user.ID)

	user, err = provider.FindByEmail(ctx, "missing@example.com")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUserProvider_VerifyUserPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "loaded@example.com", "loaded-password")

	provider := auth.NewUserProvider(f.repo.Users()).WithLogger(nopLogger{})
	user, err := provider.FindByEmail(ctx, "loaded@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)

	ok, err := provider.VerifyUserPassword(user, "loaded-password")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = provider.VerifyUserPassword(user, "wrong-password")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = provider.VerifyUserPassword(nil, "loaded-password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserProvider_StoreFailure(t *testing.T) {
	ctx := context.Background()
	finder := new(MockUserFinder)
	finder.On("GetByEmail", ctx, "user@example.com").Return(nil, errors.New("connection refused"))

	provider := auth.NewUserProvider(finder).WithLogger(nopLogger{})

	ok, err := provider.VerifyPassword(ctx, "user@example.com", "password")
	assert.False(t, ok)
	assert.Error(t, err)
	finder.AssertExpectations(t)
}

func TestUserProvider_CustomValidator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "locked@example.com", "locked-password")

	provider := auth.NewUserProvider(f.repo.Users()).WithLogger(nopLogger{})
	provider.Validator = func(*auth.User) error { return errors.New("account locked") }

	ok, err := provider.VerifyPassword(ctx, "locked@example.com", "locked-password")
	require.NoError(t, err)
	assert.False(t, ok)
}
