package auth

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ClaimsAggregator builds the claim set carried by an access token from
// the identity, its profile, stored user claims and role memberships.
// Snapshots are fetched on every call, nothing is cached, so role changes
// show up on the next issuance.
type ClaimsAggregator struct {
	profiles   ProfileStore
	claims     ClaimStore
	newTokenID func() string
	logger     Logger
}

// NewClaimsAggregator returns an aggregator. Either store may be nil.
func NewClaimsAggregator(profiles ProfileStore, claims ClaimStore) *ClaimsAggregator {
	return &ClaimsAggregator{
		profiles:   profiles,
		claims:     claims,
		newTokenID: newTokenID,
		logger:     defLogger{},
	}
}

func (a *ClaimsAggregator) WithLogger(logger Logger) *ClaimsAggregator {
	a.logger = normalizeLogger(logger)
	return a
}

// WithTokenIDGenerator overrides the jti generator
func (a *ClaimsAggregator) WithTokenIDGenerator(fn func() string) *ClaimsAggregator {
	if fn != nil {
		a.newTokenID = fn
	}
	return a
}

// Aggregate fetches the backing snapshots and returns the merged set.
func (a *ClaimsAggregator) Aggregate(ctx context.Context, identity Identity) (*ClaimSet, error) {
	if identity == nil {
		return nil, ErrIdentityNotFound
	}

	userID, err := uuid.Parse(identity.ID())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "identity id is not a valid uuid").
			WithMetadata(map[string]any{"identity_id": identity.ID()})
	}

	var profile *Profile
	if a.profiles != nil {
		if profile, err = a.profiles.FindProfile(ctx, userID); err != nil {
			a.logger.Error("claims aggregation profile lookup failed", "user_id", identity.ID(), "error", err)
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load profile claims")
		}
	}

	var userClaims []Claim
	var roles []RoleGrant
	if a.claims != nil {
		if userClaims, err = a.claims.FindUserClaims(ctx, userID); err != nil {
			a.logger.Error("claims aggregation user claims lookup failed", "user_id", identity.ID(), "error", err)
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user claims")
		}

		if roles, err = a.claims.FindUserRoles(ctx, userID); err != nil {
			a.logger.Error("claims aggregation roles lookup failed", "user_id", identity.ID(), "error", err)
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load role claims")
		}
	}

	set := AggregateClaims(identity, profile, userClaims, roles, a.newTokenID)

	a.logger.Debug("aggregated claims", "user_id", identity.ID(), "count", set.Len())

	return set, nil
}

// AggregateClaims merges the snapshots into one de-duplicated set. Given
// the same inputs and generator it always yields the same set.
func AggregateClaims(identity Identity, profile *Profile, userClaims []Claim, roles []RoleGrant, tokenID func() string) *ClaimSet {
	set := &ClaimSet{}

	set.Add(NewClaim(ClaimSubject, identity.ID()))
	if email := identity.Email(); email != "" {
		set.Add(NewClaim(ClaimEmail, email))
	}

	if profile != nil {
		if profile.FirstName != "" {
			set.Add(NewClaim(ClaimGivenName, profile.FirstName))
		}
		if profile.LastName != "" {
			set.Add(NewClaim(ClaimFamilyName, profile.LastName))
		}
		if profile.AvatarRef != "" {
			set.Add(NewClaim(ClaimPicture, profile.AvatarRef))
		}
	}

	set.Add(userClaims...)

	for _, role := range roles {
		set.Add(NewClaim(ClaimRole, role.Name))
		set.Add(role.Claims...)
	}

	if !set.HasType(ClaimTokenID) {
		if tokenID == nil {
			tokenID = newTokenID
		}
		set.Add(NewClaim(ClaimTokenID, tokenID()))
	}

	return set
}

func newTokenID() string {
	return uuid.NewString()
}
