package auth

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim types emitted in access tokens
const (
	ClaimSubject    = "sub"
	ClaimTokenID    = "jti"
	ClaimEmail      = "email"
	ClaimRole       = "role"
	ClaimPermission = "permission"
	ClaimGivenName  = "givenName"
	ClaimFamilyName = "familyName"
	ClaimPicture    = "picture"
)

// registered JWT names are owned by jwt.RegisteredClaims when encoding
var registeredClaimNames = map[string]bool{
	"iss": true,
	"sub": true,
	"aud": true,
	"exp": true,
	"nbf": true,
	"iat": true,
	"jti": true,
}

// multiValuedClaimTypes always encode as JSON arrays
var multiValuedClaimTypes = map[string]bool{
	ClaimRole:       true,
	ClaimPermission: true,
}

// Claim is a (type, value) pair
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// NewClaim returns a claim
func NewClaim(claimType, value string) Claim {
	return Claim{Type: claimType, Value: value}
}

// PermissionClaim returns a permission claim for name
func PermissionClaim(name string) Claim {
	return Claim{Type: ClaimPermission, Value: name}
}

// ClaimSet keeps claims in insertion order and never holds the same
// (type, value) pair twice. The zero value is ready to use.
type ClaimSet struct {
	claims []Claim
	index  map[Claim]struct{}
}

// NewClaimSet returns a set holding claims
func NewClaimSet(claims ...Claim) *ClaimSet {
	s := &ClaimSet{}
	s.Add(claims...)
	return s
}

// Add appends claims not already present and reports how many were added.
func (s *ClaimSet) Add(claims ...Claim) int {
	if s.index == nil {
		s.index = make(map[Claim]struct{}, len(claims))
	}

	added := 0
	for _, c := range claims {
		if c.Type == "" {
			continue
		}
		if _, ok := s.index[c]; ok {
			continue
		}
		s.index[c] = struct{}{}
		s.claims = append(s.claims, c)
		added++
	}
	return added
}

// Has reports whether the exact pair is present
func (s *ClaimSet) Has(claimType, value string) bool {
	if s == nil || s.index == nil {
		return false
	}
	_, ok := s.index[Claim{Type: claimType, Value: value}]
	return ok
}

// HasType reports whether any claim of claimType is present
func (s *ClaimSet) HasType(claimType string) bool {
	return len(s.Values(claimType)) > 0
}

// Values returns every value stored for claimType, in insertion order.
func (s *ClaimSet) Values(claimType string) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, c := range s.claims {
		if c.Type == claimType {
			out = append(out, c.Value)
		}
	}
	return out
}

// ValuesFold is Values with a case-insensitive type match
func (s *ClaimSet) ValuesFold(claimType string) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, c := range s.claims {
		if strings.EqualFold(c.Type, claimType) {
			out = append(out, c.Value)
		}
	}
	return out
}

// First returns the first value stored for claimType
func (s *ClaimSet) First(claimType string) (string, bool) {
	values := s.Values(claimType)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Claims returns a copy of the claims
func (s *ClaimSet) Claims() []Claim {
	if s == nil {
		return nil
	}
	out := make([]Claim, len(s.claims))
	copy(out, s.claims)
	return out
}

// Len returns the number of claims
func (s *ClaimSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.claims)
}

// Clone returns an independent copy
func (s *ClaimSet) Clone() *ClaimSet {
	return NewClaimSet(s.Claims()...)
}

// AuthClaims is what request handlers see of a validated token
type AuthClaims interface {
	Subject() string
	UserID() string
	Roles() []string
	Permissions() []string
	HasRole(role string) bool
	HasPermission(permission string) bool
	ClaimSet() *ClaimSet
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the access token payload: registered claims plus the
// aggregated claim set.
type JWTClaims struct {
	jwt.RegisteredClaims
	Set *ClaimSet `json:"-"`
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)
var _ jwt.Claims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	return c.Subject()
}

// TokenID returns the jti claim
func (c *JWTClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Roles returns every role claim
func (c *JWTClaims) Roles() []string {
	return c.Set.Values(ClaimRole)
}

// Permissions returns every permission claim
func (c *JWTClaims) Permissions() []string {
	return c.Set.Values(ClaimPermission)
}

// HasRole checks if the user holds role
func (c *JWTClaims) HasRole(role string) bool {
	return c.Set.Has(ClaimRole, role)
}

// HasPermission checks if the user holds permission
func (c *JWTClaims) HasPermission(permission string) bool {
	return c.Set.Has(ClaimPermission, permission)
}

// ClaimSet returns the aggregated claims
func (c *JWTClaims) ClaimSet() *ClaimSet {
	if c.Set == nil {
		c.Set = &ClaimSet{}
	}
	return c.Set
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// MarshalJSON flattens the claim set next to the registered claims.
// role and permission are always arrays, other types are arrays only
// when they hold more than one value.
func (c JWTClaims) MarshalJSON() ([]byte, error) {
	out := map[string]any{}

	if c.Set != nil {
		grouped := map[string][]string{}
		order := []string{}
		for _, claim := range c.Set.claims {
			if registeredClaimNames[claim.Type] {
				continue
			}
			if _, seen := grouped[claim.Type]; !seen {
				order = append(order, claim.Type)
			}
			grouped[claim.Type] = append(grouped[claim.Type], claim.Value)
		}

		for _, claimType := range order {
			values := grouped[claimType]
			if len(values) == 1 && !multiValuedClaimTypes[claimType] {
				out[claimType] = values[0]
				continue
			}
			out[claimType] = values
		}
	}

	registered, err := json.Marshal(c.RegisteredClaims)
	if err != nil {
		return nil, err
	}

	reg := map[string]any{}
	if err := json.Unmarshal(registered, &reg); err != nil {
		return nil, err
	}

	for k, v := range reg {
		out[k] = v
	}

	return json.Marshal(out)
}

// UnmarshalJSON restores registered claims and rebuilds the claim set,
// including sub and jti.
func (c *JWTClaims) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &c.RegisteredClaims); err != nil {
		return err
	}

	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	set := &ClaimSet{}
	if c.RegisteredClaims.Subject != "" {
		set.Add(NewClaim(ClaimSubject, c.RegisteredClaims.Subject))
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		if registeredClaimNames[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			set.Add(NewClaim(k, v))
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					set.Add(NewClaim(k, s))
				}
			}
		}
	}

	if c.RegisteredClaims.ID != "" {
		set.Add(NewClaim(ClaimTokenID, c.RegisteredClaims.ID))
	}

	c.Set = set
	return nil
}
