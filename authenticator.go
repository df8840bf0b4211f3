package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ClaimsSource builds the claim set for an identity
type ClaimsSource interface {
	Aggregate(ctx context.Context, identity Identity) (*ClaimSet, error)
}

// Auther issues token pairs for verified identities and rotates refresh
// tokens. It holds no per-request state.
type Auther struct {
	cfg             Config
	credentials     CredentialStore
	refreshTokens   RefreshTokenStore
	claims          ClaimsSource
	tokenService    TokenService
	refreshTTL      time.Duration
	now             func() time.Time
	logger          Logger
	activitySink    ActivitySink
	claimsDecorator ClaimsDecorator
}

// NewAuthenticator returns a new Authenticator. It fails on configuration
// errors only, such as a missing signing key.
func NewAuthenticator(credentials CredentialStore, refreshTokens RefreshTokenStore, claims ClaimsSource, opts Config) (*Auther, error) {
	tokenService, err := NewTokenServiceFromConfig(opts)
	if err != nil {
		return nil, err
	}

	refreshTTL := opts.GetRefreshTokenExpiration()
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}

	return &Auther{
		cfg:             opts,
		credentials:     credentials,
		refreshTokens:   refreshTokens,
		claims:          claims,
		tokenService:    tokenService,
		refreshTTL:      refreshTTL,
		now:             time.Now,
		logger:          defLogger{},
		activitySink:    noopActivitySink{},
		claimsDecorator: noopClaimsDecorator{},
	}, nil
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	s.rebuildTokenService()
	return s
}

// WithClock sets the clock used for token lifetimes and expiry checks
func (s *Auther) WithClock(now func() time.Time) *Auther {
	if now == nil {
		return s
	}
	s.now = now
	s.rebuildTokenService()
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithClaimsDecorator configures a ClaimsDecorator for enriching JWTs.
func (s *Auther) WithClaimsDecorator(decorator ClaimsDecorator) *Auther {
	s.claimsDecorator = normalizeClaimsDecorator(decorator)
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

func (s *Auther) rebuildTokenService() {
	ts, err := NewTokenServiceFromConfig(s.cfg, WithTokenClock(s.now), WithTokenLogger(s.logger))
	if err != nil {
		// configuration was already accepted by NewAuthenticator
		s.logger.Error("rebuild token service", "error", err)
		return
	}
	s.tokenService = ts
}

// Login verifies credentials and issues a token pair. Unknown emails and
// wrong passwords both yield ErrInvalidCredentials.
func (s *Auther) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.credentials.FindByEmail(ctx, email)
	if err == nil {
		var ok bool
		if ok, err = s.credentials.VerifyUserPassword(user, password); err == nil && !ok {
			user = nil
		}
	}
	if err != nil {
		s.logger.Error("Login verify password error", "error", err)
		s.emit(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to verify credentials")
	}

	if user == nil {
		s.emit(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": email,
			"error": ErrInvalidCredentials.Error(),
		})
		return nil, ErrInvalidCredentials
	}

	identity := IdentityFromUser(user)

	pair, err := s.IssueTokenPair(ctx, identity)
	if err != nil {
		s.emit(ctx, ActivityEventLoginFailure, actorFromIdentity(identity), identity.ID(), map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return nil, err
	}

	s.emit(ctx, ActivityEventLoginSuccess, actorFromIdentity(identity), identity.ID(), map[string]any{
		"email": email,
	})

	return pair, nil
}

// IssueAccessToken aggregates claims for identity and signs them.
func (s *Auther) IssueAccessToken(ctx context.Context, identity Identity) (string, time.Time, error) {
	set, err := s.claims.Aggregate(ctx, identity)
	if err != nil {
		s.logger.Error("IssueAccessToken aggregate claims failed", "error", err)
		return "", time.Time{}, err
	}

	claims := s.tokenService.NewClaims(set)
	snapshot := captureImmutableClaims(claims)

	if err := normalizeClaimsDecorator(s.claimsDecorator).Decorate(ctx, identity, claims); err != nil {
		s.logger.Error("claims decorator failed", "error", err)
		return "", time.Time{}, err
	}

	if err := snapshot.validate(claims); err != nil {
		s.logger.Error("claims decorator mutated immutable claims", "error", err)
		return "", time.Time{}, err
	}

	token, err := s.tokenService.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return token, claims.Expires(), nil
}

// IssueRefreshToken generates a new refresh token and overwrites the one
// stored for identity.
func (s *Auther) IssueRefreshToken(ctx context.Context, identity Identity) (string, time.Time, error) {
	userID, err := identityUUID(identity)
	if err != nil {
		return "", time.Time{}, err
	}

	token, err := GenerateRefreshToken()
	if err != nil {
		return "", time.Time{}, err
	}

	expiry := s.now().Add(s.refreshTTL)
	if err := s.refreshTokens.SetRefreshToken(ctx, userID, token, expiry); err != nil {
		s.logger.Error("IssueRefreshToken persist failed", "error", err)
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to store refresh token")
	}

	return token, expiry, nil
}

// IssueTokenPair issues an access token and a fresh refresh token.
func (s *Auther) IssueTokenPair(ctx context.Context, identity Identity) (*TokenPair, error) {
	if identity == nil {
		return nil, ErrIdentityNotFound
	}

	access, accessExp, err := s.IssueAccessToken(ctx, identity)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := s.IssueRefreshToken(ctx, identity)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:           access,
		RefreshToken:          refresh,
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

// Refresh exchanges a live refresh token for a new pair. The presented
// token is superseded by a conditional update, so of two concurrent calls
// with the same token at most one succeeds. An accompanying access token,
// expired or not, must carry a valid signature and the same subject.
func (s *Auther) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, s.rejectRefresh(ctx, "", "missing refresh token")
	}

	user, err := s.refreshTokens.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		s.logger.Error("Refresh lookup failed", "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up refresh token")
	}

	if user == nil {
		return nil, s.rejectRefresh(ctx, "", "unknown refresh token")
	}

	userID := user.ID.String()
	now := s.now()

	if user.RefreshTokenExpired(now) {
		return nil, s.rejectRefresh(ctx, userID, "refresh token expired")
	}

	if accessToken != "" {
		claims := s.tokenService.DecodeExpiredToken(accessToken)
		if claims == nil {
			return nil, s.rejectRefresh(ctx, userID, "access token signature invalid")
		}
		if claims.Subject() != userID {
			return nil, s.rejectRefresh(ctx, userID, "access token subject mismatch")
		}
	}

	identity := IdentityFromUser(user)

	access, accessExp, err := s.IssueAccessToken(ctx, identity)
	if err != nil {
		return nil, err
	}

	next, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	expiry := now.Add(s.refreshTTL)
	if err := s.refreshTokens.RotateRefreshToken(ctx, user.ID, refreshToken, next, expiry); err != nil {
		if errors.Is(err, ErrRefreshTokenRejected) {
			return nil, s.rejectRefresh(ctx, userID, "refresh token already rotated")
		}
		s.logger.Error("Refresh rotate failed", "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to rotate refresh token")
	}

	s.emit(ctx, ActivityEventTokenRefreshed, actorFromIdentity(identity), userID, nil)

	return &TokenPair{
		AccessToken:           access,
		RefreshToken:          next,
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: expiry,
	}, nil
}

func (s *Auther) rejectRefresh(ctx context.Context, userID, reason string) error {
	s.logger.Debug("Refresh rejected", "user_id", userID, "reason", reason)
	actor := ActorRef{Type: "unknown"}
	if userID != "" {
		actor = ActorRef{ID: userID, Type: "user"}
	}
	s.emit(ctx, ActivityEventRefreshRejected, actor, userID, map[string]any{
		"reason": reason,
	})
	return ErrRefreshTokenRejected
}

func (s *Auther) emit(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	recordActivity(ctx, s.activitySink, s.logger, s.now(), ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	})
}

func identityUUID(identity Identity) (uuid.UUID, error) {
	if identity == nil {
		return uuid.Nil, ErrIdentityNotFound
	}
	id, err := uuid.Parse(identity.ID())
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.CategoryBadInput, "identity id is not a valid uuid").
			WithMetadata(map[string]any{"identity_id": identity.ID()})
	}
	return id, nil
}
