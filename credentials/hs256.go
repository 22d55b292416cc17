package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator validates a raw token and returns its claims.
// Errors wrap ErrTokenExpired for expired tokens and ErrInvalidToken otherwise.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// HS256Validator validates JWTs signed with a shared HS256 secret
type HS256Validator struct {
	secret   []byte
	issuer   string
	audience string
	mapping  ClaimMapping
}

// NewHS256Validator creates a validator for local and service-to-service HS256 tokens.
// Issuer and audience are checked only when non-empty.
func NewHS256Validator(secret, issuer, audience string, mapping ClaimMapping) (*HS256Validator, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &HS256Validator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		mapping:  mapping,
	}, nil
}

// ValidateToken verifies a JWT signed with HS256 and extracts claims
func (v *HS256Validator) ValidateToken(_ context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	tok, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	raw, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}

	claims, err := ParseClaims(raw, v.mapping)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// classifyJWTError maps golang-jwt errors onto ErrTokenExpired / ErrInvalidToken
func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %w", ErrInvalidToken, ErrInvalidIssuer)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %w", ErrInvalidToken, ErrInvalidAudience)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}
