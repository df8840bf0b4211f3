package auth

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/goliatone/go-errors"
)

// refreshTokenBytes is the entropy of an opaque refresh token
const refreshTokenBytes = 32

// GenerateRefreshToken returns 32 random bytes encoded as unpadded base64url.
func GenerateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate refresh token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
