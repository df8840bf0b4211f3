package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-market-auth/middleware/jwtware"
)

const (
	TextCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	TextCodeTokenInvalid          = "TOKEN_INVALID"
	TextCodeRefreshRejected       = "REFRESH_REJECTED"
	TextCodePermissionDenied      = "PERMISSION_DENIED"
	TextCodeUnauthenticated       = "UNAUTHENTICATED"
	TextCodePolicyNotFound        = "POLICY_NOT_FOUND"
	TextCodeMissingSigningKey     = "MISSING_SIGNING_KEY"
	TextCodeInvalidConfig         = "INVALID_CONFIG"
	TextCodeImmutableClaim        = "IMMUTABLE_CLAIM_MUTATION"
	TextCodeEmailAlreadyInUse     = "EMAIL_IN_USE"
	TextCodeUsernameAlreadyInUse  = "USERNAME_IN_USE"
	TextCodeIdentityNotFound      = "IDENTITY_NOT_FOUND"
	TextCodeEmptyPassword         = "EMPTY_PASSWORD"
	TextCodeUnableToDecodeSession = "UNABLE_TO_DECODE_SESSION"
	TextCodePasswordMismatch      = "PASSWORD_MISMATCH"
)

// ErrInvalidCredentials is returned for any failed login. Unknown emails
// and wrong passwords are not distinguished.
var ErrInvalidCredentials = errors.New("Invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrTokenInvalid covers malformed, wrongly signed, foreign and expired
// access tokens alike.
var ErrTokenInvalid = errors.New("invalid or expired token", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrRefreshTokenRejected covers unknown, superseded and expired refresh tokens.
var ErrRefreshTokenRejected = errors.New("refresh token rejected", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshRejected).
	WithCode(errors.CodeUnauthorized)

// ErrUnauthenticated is returned by policy guards when no caller claims are present.
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrPermissionDenied is returned when an authenticated caller fails a policy.
var ErrPermissionDenied = errors.New("permission denied", errors.CategoryAuthz).
	WithTextCode(TextCodePermissionDenied).
	WithCode(errors.CodeForbidden)

// ErrPolicyNotFound means a route references a policy nobody registered.
var ErrPolicyNotFound = errors.New("authorization policy not found", errors.CategoryInternal).
	WithTextCode(TextCodePolicyNotFound).
	WithCode(errors.CodeInternal)

// ErrMissingSigningKey is fatal at startup.
var ErrMissingSigningKey = errors.New("token signing key is not configured", errors.CategoryValidation).
	WithTextCode(TextCodeMissingSigningKey)

// ErrInvalidConfig is fatal at startup.
var ErrInvalidConfig = errors.New("invalid auth configuration", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidConfig)

// ErrImmutableClaimMutation is returned when a claims decorator touches
// registered claims.
var ErrImmutableClaimMutation = errors.New("immutable claim mutated", errors.CategoryInternal).
	WithTextCode(TextCodeImmutableClaim)

// ErrEmailAlreadyInUse is returned by registration
var ErrEmailAlreadyInUse = errors.New("email already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailAlreadyInUse).
	WithCode(errors.CodeConflict)

// ErrUsernameAlreadyInUse is returned by registration when an explicit
// username is taken
var ErrUsernameAlreadyInUse = errors.New("username already registered", errors.CategoryConflict).
	WithTextCode(TextCodeUsernameAlreadyInUse).
	WithCode(errors.CodeConflict)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeNotFound)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryBadInput).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned when a password does not match its hash
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToDecodeSession unable to read claims from the request
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithTextCode(TextCodeUnableToDecodeSession).
	WithCode(errors.CodeUnauthorized)

// IsTokenExpiredError reports whether err comes from an expired token
func IsTokenExpiredError(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

// IsMalformedError reports whether err comes from a token that could not
// be parsed or was missing from the request
func IsMalformedError(err error) bool {
	return errors.Is(err, jwt.ErrTokenMalformed) ||
		errors.Is(err, jwtware.ErrJWTMissingOrMalformed)
}

// StatusCode resolves the HTTP status carried by a rich error, falling
// back to 500.
func StatusCode(err error) int {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Code > 0 {
		return richErr.Code
	}
	return errors.CodeInternal
}
