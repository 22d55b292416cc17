package credentials

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/upb/report-gate/models"
	"github.com/upb/report-gate/repositories"
)

// RoleResolver turns validated claims into a principal
type RoleResolver interface {
	Resolve(ctx context.Context, claims *Claims) (*models.Principal, error)
}

// StoreResolver reads the current roles from the identity store on every call
type StoreResolver struct {
	identities repositories.IdentityRepository
	logger     *zap.Logger
}

// NewStoreResolver creates a resolver backed by the identity store
func NewStoreResolver(identities repositories.IdentityRepository, logger *zap.Logger) *StoreResolver {
	return &StoreResolver{identities: identities, logger: logger}
}

// Resolve looks up the login of the token. Store failures fail closed.
func (r *StoreResolver) Resolve(ctx context.Context, claims *Claims) (*models.Principal, error) {
	user, err := r.identities.GetByLogin(ctx, claims.Login)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newAuthError(ErrUnknownIdentity, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, newAuthError(ErrVerificationTimeout, err)
		}
		r.logger.Error("identity store lookup failed",
			zap.String("login", claims.Login),
			zap.Error(err))
		return nil, newAuthError(ErrIdentityUnavailable, err)
	}

	if !user.Active {
		return nil, newAuthError(ErrIdentityDisabled, nil)
	}
	return user.ToPrincipal(), nil
}

// ClaimsResolver takes roles straight from the token
type ClaimsResolver struct{}

// NewClaimsResolver creates a resolver that trusts the token's role claim
func NewClaimsResolver() *ClaimsResolver {
	return &ClaimsResolver{}
}

// Resolve builds the principal from the claims
func (ClaimsResolver) Resolve(_ context.Context, claims *Claims) (*models.Principal, error) {
	if claims.Login == "" {
		return nil, newAuthError(ErrInvalidToken, ErrMissingClaim)
	}
	return models.NewPrincipal(claims.Login, claims.Roles), nil
}
