package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// PermissionPolicyPrefix marks policy names resolved into a single
// permission requirement. Matched case-insensitively.
const PermissionPolicyPrefix = "Permission:"

// Requirement is one condition of a policy. The concrete types form a
// closed set: PermissionRequirement, RoleRequirement and
// AuthenticatedRequirement.
type Requirement interface {
	requirement()
}

// PermissionRequirement is met by a permission claim equal to Permission
type PermissionRequirement struct {
	Permission string
}

// RoleRequirement is met by any of Roles
type RoleRequirement struct {
	Roles []string
}

// AuthenticatedRequirement is met by any authenticated caller
type AuthenticatedRequirement struct{}

func (PermissionRequirement) requirement()    {}
func (RoleRequirement) requirement()          {}
func (AuthenticatedRequirement) requirement() {}

// Policy is a named set of requirements, all of which must be met
type Policy struct {
	Name         string
	Requirements []Requirement
}

// PolicyProvider looks up policies by name
type PolicyProvider interface {
	Resolve(name string) (*Policy, bool)
}

// StaticPolicyRegistry holds policies registered up front
type StaticPolicyRegistry struct {
	mu       sync.RWMutex
	policies map[string]*Policy
}

// NewStaticPolicyRegistry returns an empty registry
func NewStaticPolicyRegistry() *StaticPolicyRegistry {
	return &StaticPolicyRegistry{policies: map[string]*Policy{}}
}

// Register adds or replaces the policy stored under name
func (r *StaticPolicyRegistry) Register(name string, requirements ...Requirement) *StaticPolicyRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.policies == nil {
		r.policies = map[string]*Policy{}
	}
	r.policies[name] = &Policy{Name: name, Requirements: requirements}
	return r
}

// Resolve implements PolicyProvider
func (r *StaticPolicyRegistry) Resolve(name string) (*Policy, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[name]
	return p, ok
}

// PermissionPolicyResolver builds "Permission:<name>" policies on demand
// and defers every other name to a fallback provider. Nothing is cached,
// the same name always yields an equal policy.
type PermissionPolicyResolver struct {
	fallback PolicyProvider
}

// NewPermissionPolicyResolver returns a resolver. fallback may be nil.
func NewPermissionPolicyResolver(fallback PolicyProvider) *PermissionPolicyResolver {
	return &PermissionPolicyResolver{fallback: fallback}
}

// Resolve implements PolicyProvider
func (r *PermissionPolicyResolver) Resolve(name string) (*Policy, bool) {
	if permission, ok := permissionFromPolicyName(name); ok {
		return &Policy{
			Name:         name,
			Requirements: []Requirement{PermissionRequirement{Permission: permission}},
		}, true
	}

	if r.fallback == nil {
		return nil, false
	}
	return r.fallback.Resolve(name)
}

// PermissionPolicy returns the policy name for permission
func PermissionPolicy(permission string) string {
	return PermissionPolicyPrefix + permission
}

// permissionFromPolicyName strips the prefix and keeps the rest verbatim
func permissionFromPolicyName(name string) (string, bool) {
	if len(name) < len(PermissionPolicyPrefix) {
		return "", false
	}
	if !strings.EqualFold(name[:len(PermissionPolicyPrefix)], PermissionPolicyPrefix) {
		return "", false
	}
	return name[len(PermissionPolicyPrefix):], true
}

// Principal is the caller being authorized
type Principal struct {
	Authenticated bool
	Subject       string
	Claims        *ClaimSet
}

// AnonymousPrincipal is an unauthenticated caller
func AnonymousPrincipal() Principal {
	return Principal{}
}

// PrincipalFromClaims wraps validated token claims. nil claims produce an
// anonymous principal.
func PrincipalFromClaims(claims AuthClaims) Principal {
	if claims == nil {
		return AnonymousPrincipal()
	}
	return Principal{
		Authenticated: true,
		Subject:       claims.Subject(),
		Claims:        claims.ClaimSet(),
	}
}

// Outcome is the result of evaluating one requirement. Handlers never
// fail a requirement explicitly, absence of success denies.
type Outcome int

const (
	OutcomeNoOp Outcome = iota
	OutcomeSucceed
)

func (o Outcome) String() string {
	if o == OutcomeSucceed {
		return "succeed"
	}
	return "noop"
}

// RequirementHandler evaluates a requirement for a principal
type RequirementHandler interface {
	Evaluate(ctx context.Context, requirement Requirement, principal Principal) Outcome
}

// PermissionHandler evaluates requirements against the caller's claims.
// Claim types compare case-insensitively, values case-sensitively.
type PermissionHandler struct {
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

var _ RequirementHandler = (*PermissionHandler)(nil)

func NewPermissionHandler() *PermissionHandler {
	return &PermissionHandler{
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (h *PermissionHandler) WithLogger(logger Logger) *PermissionHandler {
	h.logger = normalizeLogger(logger)
	return h
}

// WithActivitySink records permission granted and denied events
func (h *PermissionHandler) WithActivitySink(sink ActivitySink) *PermissionHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

// Evaluate implements RequirementHandler
func (h *PermissionHandler) Evaluate(ctx context.Context, requirement Requirement, principal Principal) Outcome {
	if !principal.Authenticated {
		return OutcomeNoOp
	}

	switch req := requirement.(type) {
	case PermissionRequirement:
		return h.evaluatePermission(ctx, req, principal)
	case RoleRequirement:
		for _, role := range req.Roles {
			if containsValue(principal.Claims.ValuesFold(ClaimRole), role) {
				return OutcomeSucceed
			}
		}
		return OutcomeNoOp
	case AuthenticatedRequirement:
		return OutcomeSucceed
	default:
		return OutcomeNoOp
	}
}

func (h *PermissionHandler) evaluatePermission(ctx context.Context, req PermissionRequirement, principal Principal) Outcome {
	outcome := OutcomeNoOp
	if containsValue(principal.Claims.ValuesFold(ClaimPermission), req.Permission) {
		outcome = OutcomeSucceed
	}

	event := ActivityEventPermissionDenied
	if outcome == OutcomeSucceed {
		event = ActivityEventPermissionGranted
	}

	h.logger.Debug("permission evaluated", "user_id", principal.Subject, "permission", req.Permission, "outcome", outcome.String())

	recordActivity(ctx, h.activitySink, h.logger, h.now(), ActivityEvent{
		EventType: event,
		Actor:     ActorRef{ID: principal.Subject, Type: "user"},
		UserID:    principal.Subject,
		Metadata: map[string]any{
			"permission": req.Permission,
		},
	})

	return outcome
}

func containsValue(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
