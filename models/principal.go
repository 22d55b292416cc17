package models

import "slices"

// Principal is an authenticated identity plus the roles it held at verification time.
// Fields are unexported so a principal cannot change after construction.
type Principal struct {
	login string
	roles []string
}

// NewPrincipal creates a Principal. The role slice is copied.
func NewPrincipal(login string, roles []string) *Principal {
	return &Principal{
		login: login,
		roles: slices.Clone(roles),
	}
}

// Login returns the login identifier
func (p *Principal) Login() string {
	return p.login
}

// Roles returns a copy of the role identifiers
func (p *Principal) Roles() []string {
	return slices.Clone(p.roles)
}

// HasRole checks if the principal holds a specific role
func (p *Principal) HasRole(role string) bool {
	return slices.Contains(p.roles, role)
}

// GateDecision is the per-request outcome of the request gate
type GateDecision string

const (
	DecisionBypassed                   GateDecision = "BYPASSED"
	DecisionAuthenticatedAndAuthorized GateDecision = "AUTHENTICATED_AND_AUTHORIZED"
	DecisionAuthenticationFailed       GateDecision = "AUTHENTICATION_FAILED"
	DecisionAuthorizationFailed        GateDecision = "AUTHORIZATION_FAILED"
)

// Forwards reports whether a request with this decision reaches the downstream handler
func (d GateDecision) Forwards() bool {
	return d == DecisionBypassed || d == DecisionAuthenticatedAndAuthorized
}
