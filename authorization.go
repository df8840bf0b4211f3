package auth

import (
	"context"
)

// Decision is the result of authorizing a principal against a policy
type Decision int

const (
	DecisionDeny Decision = iota
	DecisionAllow
)

func (d Decision) String() string {
	if d == DecisionAllow {
		return "allow"
	}
	return "deny"
}

// Authorizer resolves policies and evaluates them. Every decision starts
// as deny and only becomes allow when each requirement succeeds.
type Authorizer struct {
	policies PolicyProvider
	handler  RequirementHandler
	logger   Logger
}

// NewAuthorizer returns an Authorizer. A nil handler evaluates with a
// default PermissionHandler.
func NewAuthorizer(policies PolicyProvider, handler RequirementHandler) *Authorizer {
	if handler == nil {
		handler = NewPermissionHandler()
	}
	if policies == nil {
		policies = NewPermissionPolicyResolver(nil)
	}
	return &Authorizer{
		policies: policies,
		handler:  handler,
		logger:   defLogger{},
	}
}

func (a *Authorizer) WithLogger(logger Logger) *Authorizer {
	a.logger = normalizeLogger(logger)
	return a
}

// Authorize evaluates policyName for principal. An unknown policy name is
// a configuration error reported as ErrPolicyNotFound, with a deny.
func (a *Authorizer) Authorize(ctx context.Context, principal Principal, policyName string) (Decision, error) {
	policy, ok := a.policies.Resolve(policyName)
	if !ok || policy == nil {
		a.logger.Error("authorization policy not found", "policy", policyName)
		return DecisionDeny, ErrPolicyNotFound
	}

	if len(policy.Requirements) == 0 {
		return DecisionDeny, nil
	}

	for _, req := range policy.Requirements {
		if a.handler.Evaluate(ctx, req, principal) != OutcomeSucceed {
			return DecisionDeny, nil
		}
	}

	return DecisionAllow, nil
}

// AuthorizationError maps a decision to the boundary error: nil on allow,
// ErrUnauthenticated for anonymous callers, ErrPermissionDenied otherwise.
func AuthorizationError(principal Principal, decision Decision) error {
	if decision == DecisionAllow {
		return nil
	}
	if !principal.Authenticated {
		return ErrUnauthenticated
	}
	return ErrPermissionDenied
}
