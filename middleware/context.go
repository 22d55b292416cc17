package middleware

import (
	"context"

	"github.com/upb/report-gate/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// PrincipalKey is the context key for the authenticated principal
	PrincipalKey contextKey = "principal"

	// DecisionKey is the context key for the gate decision
	DecisionKey contextKey = "gate_decision"
)

// PrincipalFromContext retrieves the authenticated principal from context
func PrincipalFromContext(ctx context.Context) *models.Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if principal, ok := val.(*models.Principal); ok {
			return principal
		}
	}
	return nil
}

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal *models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// DecisionFromContext retrieves the gate decision from context
func DecisionFromContext(ctx context.Context) models.GateDecision {
	if val := ctx.Value(DecisionKey); val != nil {
		if decision, ok := val.(models.GateDecision); ok {
			return decision
		}
	}
	return ""
}

// WithDecision adds the gate decision to the context
func WithDecision(ctx context.Context, decision models.GateDecision) context.Context {
	return context.WithValue(ctx, DecisionKey, decision)
}
