package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger takes a message followed by key/value pairs
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Username() string
	Email() string
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	// GetTokenExpiration is the access token lifetime in minutes
	GetTokenExpiration() int
	GetRefreshTokenExpiration() time.Duration
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetDefaultRole() string
}

// CredentialStore owns identities and password verification.
// VerifyPassword must report false, not an error, for unknown emails.
// VerifyUserPassword checks an already loaded user and must treat a nil
// user the same way.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	VerifyPassword(ctx context.Context, email, password string) (bool, error)
	VerifyUserPassword(user *User, password string) (bool, error)
}

// ProfileStore returns nil, nil when the user has no profile yet.
type ProfileStore interface {
	FindProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
}

// ClaimStore returns stored per-user claims and role memberships with
// their permission claims.
type ClaimStore interface {
	FindUserClaims(ctx context.Context, userID uuid.UUID) ([]Claim, error)
	FindUserRoles(ctx context.Context, userID uuid.UUID) ([]RoleGrant, error)
}

// RefreshTokenStore persists the single refresh token held by each user.
type RefreshTokenStore interface {
	// FindByRefreshToken returns nil, nil when no user holds token.
	FindByRefreshToken(ctx context.Context, token string) (*User, error)
	// SetRefreshToken overwrites whatever token the user holds.
	SetRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiry time.Time) error
	// RotateRefreshToken replaces current with next only if current is
	// still the stored value, returning ErrRefreshTokenRejected otherwise.
	RotateRefreshToken(ctx context.Context, userID uuid.UUID, current, next string, expiry time.Time) error
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] AUTH " + formatLog(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] AUTH " + formatLog(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] AUTH " + formatLog(msg, args...))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] AUTH " + formatLog(msg, args...))
}

// formatLog renders msg followed by " key=value" pairs
func formatLog(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return newline(b.String())
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
