package auth

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the identity repository. It also owns the per-user refresh
// token column.
type Users interface {
	repository.Repository[*User]
	RefreshTokenStore

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	FindByRefreshTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error)
	SetRefreshTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, token string, expiry time.Time) error
	RotateRefreshTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, current, next string, expiry time.Time) error
}

type users struct {
	repository.Repository[*User]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

// WithUsersClock sets the clock used for updated_at
func WithUsersClock(now func() time.Time) UsersOption {
	return func(u *users) {
		if now != nil {
			u.now = now
		}
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)

	if _, err := a.GetByEmailTx(ctx, tx, user.Email); err == nil {
		return nil, ErrEmailAlreadyInUse
	} else if !isRecordNotFound(err) {
		return nil, err
	}

	if _, err := a.GetByUsernameTx(ctx, tx, user.Username); err == nil {
		return nil, ErrUsernameAlreadyInUse
	} else if !isRecordNotFound(err) {
		return nil, err
	}

	created, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		// a concurrent registration can still win the insert
		switch {
		case isUniqueViolation(err, "email"):
			return nil, ErrEmailAlreadyInUse
		case isUniqueViolation(err, "username"):
			return nil, ErrUsernameAlreadyInUse
		}
		return nil, err
	}
	return created, nil
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

// GetByUsernameTx matches usernames exactly, after trimming
func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.username = ?", username).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"username": username,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) FindByRefreshToken(ctx context.Context, token string) (*User, error) {
	return a.FindByRefreshTokenTx(ctx, a.db, token)
}

func (a *users) FindByRefreshTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error) {
	if token == "" {
		return nil, nil
	}

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.refresh_token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	return record, nil
}

func (a *users) SetRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiry time.Time) error {
	return a.SetRefreshTokenTx(ctx, a.db, userID, token, expiry)
}

// SetRefreshTokenTx overwrites the stored token in a single statement.
func (a *users) SetRefreshTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, token string, expiry time.Time) error {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("refresh_token = ?", token).
		Set("refresh_token_expiry = ?", expiry.UTC()).
		Set("updated_at = ?", a.now().UTC()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}

	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": userID.String(),
			})
	}

	return nil
}

func (a *users) RotateRefreshToken(ctx context.Context, userID uuid.UUID, current, next string, expiry time.Time) error {
	return a.RotateRefreshTokenTx(ctx, a.db, userID, current, next, expiry)
}

// RotateRefreshTokenTx is a compare-and-swap on the token column: the row
// only changes while it still holds current.
func (a *users) RotateRefreshTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, current, next string, expiry time.Time) error {
	if current == "" || next == "" {
		return ErrRefreshTokenRejected
	}

	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("refresh_token = ?", next).
		Set("refresh_token_expiry = ?", expiry.UTC()).
		Set("updated_at = ?", a.now().UTC()).
		Where("id = ?", userID).
		Where("refresh_token = ?", current).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "refresh token rotation failed").
			WithMetadata(map[string]any{
				"id": userID.String(),
			})
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "refresh token rotation failed")
	}

	if affected != 1 {
		return ErrRefreshTokenRejected
	}

	return nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = normalizeEmail(record.Email)
	record.Username = strings.TrimSpace(record.Username)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

// isRecordNotFound also matches raw sql.ErrNoRows from direct bun scans
func isRecordNotFound(err error) bool {
	return repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation matches sqlite and postgres unique constraint errors
// on a users column
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed: users."+column) ||
		(strings.Contains(msg, "duplicate key value") && strings.Contains(msg, "users_"+column+"_key"))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
