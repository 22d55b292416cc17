package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCValidator validates JWTs using OIDC discovery and the provider's JWKS
type OIDCValidator struct {
	verifier *oidc.IDTokenVerifier
	mapping  ClaimMapping
}

// NewOIDCValidator creates a validator from an OIDC issuer URL.
// Discovery runs once, at construction.
func NewOIDCValidator(ctx context.Context, issuerURL, audience string, mapping ClaimMapping) (*OIDCValidator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider discovery: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{
		ClientID: audience,
	})
	return &OIDCValidator{verifier: verifier, mapping: mapping}, nil
}

// NewOIDCValidatorFromJWKS creates a validator from a JWKS URL (no OIDC discovery)
func NewOIDCValidatorFromJWKS(ctx context.Context, jwksURL, issuerURL, audience string, mapping ClaimMapping) *OIDCValidator {
	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
	verifier := oidc.NewVerifier(issuerURL, keySet, &oidc.Config{
		ClientID: audience,
	})
	return &OIDCValidator{verifier: verifier, mapping: mapping}
}

// ValidateToken verifies the JWT using the OIDC provider's JWKS
func (v *OIDCValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, tokenString)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var raw map[string]interface{}
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("%w: parse claims: %v", ErrInvalidToken, err)
	}

	claims, err := ParseClaims(raw, v.mapping)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims.Subject = idToken.Subject
	claims.Issuer = idToken.Issuer
	claims.Audience = idToken.Audience
	claims.ExpiresAt = idToken.Expiry
	return claims, nil
}
