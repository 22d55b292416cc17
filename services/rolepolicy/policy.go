// Package rolepolicy decides whether an authenticated principal may reach secured routes.
package rolepolicy

import (
	"errors"
	"fmt"
	"slices"

	"github.com/upb/report-gate/config"
	"github.com/upb/report-gate/models"
)

// Verdict is the outcome of an authorization decision
type Verdict string

const (
	VerdictAllowed  Verdict = "ALLOWED"
	VerdictDenied   Verdict = "DENIED"
	VerdictBypassed Verdict = "BYPASSED"
)

// ErrNoPrincipal is returned when Authorize is called without a principal
var ErrNoPrincipal = errors.New("no authenticated principal")

// Policy holds the role allow-list and the bypass decision. It never changes after
// construction, so one value is shared by all requests without locking.
type Policy struct {
	allowed      map[string]struct{}
	allowedList  []string
	bypass       bool
	bypassReason string
}

// New creates a Policy. Bypass is active when bypassProfile is among activeProfiles.
func New(allowedRoles, activeProfiles []string, bypassProfile string) *Policy {
	allowed := make(map[string]struct{}, len(allowedRoles))
	list := make([]string, 0, len(allowedRoles))
	for _, role := range allowedRoles {
		if role == "" {
			continue
		}
		if _, dup := allowed[role]; dup {
			continue
		}
		allowed[role] = struct{}{}
		list = append(list, role)
	}

	p := &Policy{allowed: allowed, allowedList: list}
	if bypassProfile != "" && slices.Contains(activeProfiles, bypassProfile) {
		p.bypass = true
		p.bypassReason = fmt.Sprintf("profile %s is active", bypassProfile)
	}
	return p
}

// FromConfig creates a Policy from the gate configuration
func FromConfig(cfg config.AuthConfig) *Policy {
	return New(cfg.AllowedRoles, cfg.ActiveProfiles, cfg.BypassProfile)
}

// Authorize reports whether the principal may proceed. It allows when at least one
// of the principal's roles is in the allow-list. An empty allow-list denies everyone.
func (p *Policy) Authorize(principal *models.Principal) (Verdict, error) {
	if p.bypass {
		return VerdictBypassed, nil
	}
	if principal == nil {
		return "", ErrNoPrincipal
	}
	if len(p.MatchedRoles(principal)) > 0 {
		return VerdictAllowed, nil
	}
	return VerdictDenied, nil
}

// MatchedRoles returns the principal's roles that are in the allow-list
func (p *Policy) MatchedRoles(principal *models.Principal) []string {
	if principal == nil {
		return nil
	}
	var matched []string
	for _, role := range principal.Roles() {
		if _, ok := p.allowed[role]; ok {
			matched = append(matched, role)
		}
	}
	return matched
}

// AllowedRoles returns a copy of the allow-list in configuration order
func (p *Policy) AllowedRoles() []string {
	return slices.Clone(p.allowedList)
}

// BypassActive reports whether authorization is skipped for every principal
func (p *Policy) BypassActive() bool {
	return p.bypass
}

// BypassReason describes why the bypass is active, empty otherwise
func (p *Policy) BypassReason() string {
	return p.bypassReason
}

// DenialReason is the caller-visible detail for a denied principal
func DenialReason(principal *models.Principal) string {
	login := ""
	if principal != nil {
		login = principal.Login()
	}
	return fmt.Sprintf("user %s lacks required roles", login)
}
