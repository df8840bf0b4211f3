package auth

import (
	"context"

	"github.com/goliatone/go-errors"
)

// UserFinder is the store the provider reads credentials from
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// UserProvider is the default CredentialStore, backed by the users
// repository and bcrypt hashes.
type UserProvider struct {
	store     UserFinder
	Validator func(*User) error
	logger    Logger
}

var _ CredentialStore = (*UserProvider)(nil)

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserFinder) *UserProvider {
	return &UserProvider{
		store:     store,
		logger:    defLogger{},
		Validator: defaultValidator,
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.logger = normalizeLogger(l)
	return u
}

func (u *UserProvider) validate(user *User) error {
	if u.Validator != nil {
		return u.Validator(user)
	}
	return defaultValidator(user)
}

// FindByEmail returns nil, nil for unknown emails.
func (u *UserProvider) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, err := u.store.GetByEmail(ctx, email)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user")
	}
	return user, nil
}

// VerifyPassword reports whether password matches the hash stored for
// email. Unknown emails report false after a comparison of equal cost.
func (u *UserProvider) VerifyPassword(ctx context.Context, email, password string) (bool, error) {
	user, err := u.FindByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return u.VerifyUserPassword(user, password)
}

// VerifyUserPassword compares password against a user already loaded by
// FindByEmail. A nil user reports false after a dummy comparison.
func (u *UserProvider) VerifyUserPassword(user *User, password string) (bool, error) {
	if user == nil || user.PasswordHash == "" {
		compareDummyHash(password)
		return false, nil
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			u.logger.Debug("password mismatch", "user_id", user.ID.String())
			return false, nil
		}
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to compare password hash")
	}

	if err := u.validate(user); err != nil {
		u.logger.Warn("user failed validation", "user_id", user.ID.String(), "error", err)
		return false, nil
	}

	return true, nil
}

func defaultValidator(u *User) error {
	if u == nil {
		return ErrIdentityNotFound
	}
	if u.Email == "" {
		return errors.New("user has no email", errors.CategoryAuth).
			WithTextCode("INVALID_USER").
			WithMetadata(map[string]any{"user_id": u.ID.String()})
	}
	return nil
}
