package credentials

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/report-gate/config"
	"github.com/upb/report-gate/repositories"
)

// NewTokenValidator builds the validator selected by AUTH_TOKEN_MODE
func NewTokenValidator(ctx context.Context, cfg config.AuthConfig) (TokenValidator, error) {
	mapping := ClaimMapping{LoginClaim: cfg.LoginClaim, RolesClaim: cfg.RolesClaim}

	switch cfg.TokenMode {
	case config.TokenModeHS256:
		v, err := NewHS256Validator(cfg.JWTSecret, cfg.Issuer, cfg.Audience, mapping)
		if err != nil {
			return nil, err
		}
		return v, nil
	case config.TokenModeJWKS:
		return NewJWKSValidator(JWKSConfig{
			JWKSURL:     cfg.JWKSURL,
			Issuer:      cfg.Issuer,
			Audience:    cfg.Audience,
			Mapping:     mapping,
			HTTPTimeout: cfg.VerifyTimeout,
		}), nil
	case config.TokenModeOIDC:
		if cfg.JWKSURL != "" {
			return NewOIDCValidatorFromJWKS(ctx, cfg.JWKSURL, cfg.Issuer, cfg.Audience, mapping), nil
		}
		v, err := NewOIDCValidator(ctx, cfg.Issuer, cfg.Audience, mapping)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported token mode %q", cfg.TokenMode)
	}
}

// NewRoleResolver builds the resolver selected by AUTH_ROLE_SOURCE
func NewRoleResolver(cfg config.AuthConfig, identities repositories.IdentityRepository, logger *zap.Logger) (RoleResolver, error) {
	switch cfg.RoleSource {
	case config.RoleSourceStore:
		if identities == nil {
			return nil, fmt.Errorf("role source %q requires an identity store", cfg.RoleSource)
		}
		return NewStoreResolver(identities, logger), nil
	case config.RoleSourceClaims:
		return NewClaimsResolver(), nil
	default:
		return nil, fmt.Errorf("unsupported role source %q", cfg.RoleSource)
	}
}
