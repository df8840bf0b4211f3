package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenService signs and validates access tokens. It holds no mutable
// state after construction and is safe for concurrent use.
type TokenService interface {
	TokenValidator
	SignClaims(claims *JWTClaims) (string, error)
	NewClaims(set *ClaimSet) *JWTClaims
	ValidateAccessToken(tokenString string) bool
	DecodeExpiredToken(tokenString string) *JWTClaims
	TokenTTL() time.Duration
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	tokenTTL   time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
	logger     Logger
}

// TokenServiceOption configures a TokenServiceImpl
type TokenServiceOption func(*TokenServiceImpl)

// WithTokenClock overrides the clock used for iat/exp and validation
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithTokenLogger sets the service logger
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.logger = normalizeLogger(logger)
	}
}

// NewTokenService creates a new TokenService. tokenExpiration is in
// minutes. An empty signing key is a configuration error.
func NewTokenService(signingKey []byte, tokenExpiration int, issuer string, audience jwt.ClaimStrings, opts ...TokenServiceOption) (*TokenServiceImpl, error) {
	if len(signingKey) == 0 {
		return nil, ErrMissingSigningKey
	}

	if tokenExpiration <= 0 {
		return nil, errors.New("access token lifetime must be positive", errors.CategoryValidation).
			WithTextCode(TextCodeInvalidConfig).
			WithMetadata(map[string]any{"token_expiration": tokenExpiration})
	}

	ts := &TokenServiceImpl{
		signingKey: signingKey,
		tokenTTL:   time.Duration(tokenExpiration) * time.Minute,
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts, nil
}

// NewTokenServiceFromConfig builds the service from Config
func NewTokenServiceFromConfig(cfg Config, opts ...TokenServiceOption) (*TokenServiceImpl, error) {
	return NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetTokenExpiration(),
		cfg.GetIssuer(),
		cfg.GetAudience(),
		opts...,
	)
}

// TokenTTL returns the access token lifetime
func (ts *TokenServiceImpl) TokenTTL() time.Duration {
	return ts.tokenTTL
}

// NewClaims wraps an aggregated set with registered claims: sub and jti
// come from the set, iss/aud/iat/exp from the service.
func (ts *TokenServiceImpl) NewClaims(set *ClaimSet) *JWTClaims {
	if set == nil {
		set = &ClaimSet{}
	}

	now := ts.now()

	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	subject, _ := set.First(ClaimSubject)
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   subject,
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.tokenTTL)),
		},
		Set: set,
	}

	ensureTokenID(claims)

	return claims
}

// SignClaims signs claims with HS256 using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	ensureTokenID(claims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate checks signature, algorithm, issuer, audience and expiry with
// no leeway. Every failure is reported as ErrTokenInvalid.
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	claims, err := ts.parse(tokenString, ts.validationOptions()...)
	if err == nil {
		err = ts.checkAudience(claims)
	}
	if err != nil {
		ts.logger.Debug("TokenService validate rejected token",
			"error", err,
			"expired", IsTokenExpiredError(err),
			"malformed", IsMalformedError(err),
		)
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// checkAudience accepts a token whose aud names any configured audience.
// jwt.WithAudience only keeps the last value it was given, so the match
// is done here.
func (ts *TokenServiceImpl) checkAudience(claims *JWTClaims) error {
	if len(ts.audience) == 0 {
		return nil
	}
	for _, want := range ts.audience {
		for _, got := range claims.RegisteredClaims.Audience {
			if want == got {
				return nil
			}
		}
	}
	return jwt.ErrTokenInvalidAudience
}

// ValidateAccessToken is the boolean form of Validate
func (ts *TokenServiceImpl) ValidateAccessToken(tokenString string) bool {
	_, err := ts.Validate(tokenString)
	return err == nil
}

// DecodeExpiredToken verifies the signature only, ignoring lifetime,
// issuer and audience. Returns nil when the signature does not verify.
func (ts *TokenServiceImpl) DecodeExpiredToken(tokenString string) *JWTClaims {
	claims, err := ts.parse(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		ts.logger.Debug("TokenService decode expired token failed", "error", err)
		return nil
	}
	return claims
}

func (ts *TokenServiceImpl) validationOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}
	return opts
}

func (ts *TokenServiceImpl) parse(tokenString string, opts ...jwt.ParserOption) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		return ts.signingKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrUnableToDecodeSession
	}

	return claims, nil
}

// ensureTokenID keeps RegisteredClaims.ID and the jti claim in the set
// in agreement, generating one when neither is present.
func ensureTokenID(claims *JWTClaims) {
	set := claims.ClaimSet()
	if claims.RegisteredClaims.ID == "" {
		if jti, ok := set.First(ClaimTokenID); ok {
			claims.RegisteredClaims.ID = jti
		} else {
			claims.RegisteredClaims.ID = newTokenID()
		}
	}
	if !set.Has(ClaimTokenID, claims.RegisteredClaims.ID) && !set.HasType(ClaimTokenID) {
		set.Add(NewClaim(ClaimTokenID, claims.RegisteredClaims.ID))
	}
}
