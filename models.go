package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// RoleAdmin manages users and the whole catalog
	RoleAdmin = "Admin"
	// RoleSeller manages their own store and products
	RoleSeller = "Seller"
	// RoleCustomer browses and orders
	RoleCustomer = "Customer"
)

// User is the identity record. RefreshToken holds at most one live token,
// it is overwritten on every issue and rotation.
type User struct {
	bun.BaseModel      `bun:"table:users,alias:usr"`
	ID                 uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Email              string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Username           string     `bun:"username,notnull,unique" json:"username,omitempty"`
	PasswordHash       string     `bun:"password_hash" json:"-"`
	RefreshToken       string     `bun:"refresh_token,nullzero" json:"-"`
	RefreshTokenExpiry *time.Time `bun:"refresh_token_expiry,nullzero" json:"-"`
	CreatedAt          *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// RefreshTokenExpired reports whether the stored refresh token is unusable
// at now. The expiry instant itself counts as expired.
func (u *User) RefreshTokenExpired(now time.Time) bool {
	if u == nil || u.RefreshToken == "" || u.RefreshTokenExpiry == nil {
		return true
	}
	return !now.Before(*u.RefreshTokenExpiry)
}

// Profile holds display attributes, one-to-one with User.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	UserID        uuid.UUID  `bun:"user_id,pk,type:uuid" json:"user_id"`
	FirstName     string     `bun:"first_name" json:"first_name,omitempty"`
	LastName      string     `bun:"last_name" json:"last_name,omitempty"`
	AvatarRef     string     `bun:"avatar_ref" json:"avatar_ref,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Role is a named group of permission claims
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rl"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name          string    `bun:"name,notnull,unique" json:"name"`
}

// RoleClaim attaches a claim, usually a permission, to a role
type RoleClaim struct {
	bun.BaseModel `bun:"table:role_claims,alias:rc"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	RoleID        uuid.UUID `bun:"role_id,notnull,type:uuid" json:"role_id"`
	ClaimType     string    `bun:"claim_type,notnull" json:"claim_type"`
	ClaimValue    string    `bun:"claim_value,notnull" json:"claim_value"`
}

// UserClaim is a claim stored directly against a user
type UserClaim struct {
	bun.BaseModel `bun:"table:user_claims,alias:uc"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id"`
	ClaimType     string    `bun:"claim_type,notnull" json:"claim_type"`
	ClaimValue    string    `bun:"claim_value,notnull" json:"claim_value"`
}

// UserRoleMembership links users to roles
type UserRoleMembership struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid" json:"user_id"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid" json:"role_id"`
}

// RoleGrant is a role membership resolved with the role's claims
type RoleGrant struct {
	Name   string
	Claims []Claim
}

// TokenPair is what login, registration and refresh hand back
type TokenPair struct {
	AccessToken           string    `json:"accessToken"`
	RefreshToken          string    `json:"refreshToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

type authIdentity struct {
	id       string
	username string
	email    string
}

func (a authIdentity) ID() string {
	return a.id
}

func (a authIdentity) Username() string {
	return a.username
}

func (a authIdentity) Email() string {
	return a.email
}

var _ Identity = authIdentity{}

// IdentityFromUser adapts a stored user to the Identity interface
func IdentityFromUser(u *User) Identity {
	if u == nil {
		return nil
	}
	return authIdentity{
		id:       u.ID.String(),
		username: u.Username,
		email:    u.Email,
	}
}
