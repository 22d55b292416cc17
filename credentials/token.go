package credentials

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IssueOptions describes an HS256 token minted for local use and tests
type IssueOptions struct {
	Login    string
	Roles    []string
	Issuer   string
	Audience string
	TTL      time.Duration
	Mapping  ClaimMapping
}

// IssueToken signs an HS256 token carrying the login and roles under the configured claim names
func IssueToken(secret string, opts IssueOptions) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("JWT secret is required")
	}
	if opts.Login == "" {
		return "", fmt.Errorf("login is required")
	}
	if opts.TTL == 0 {
		opts.TTL = time.Hour
	}
	mapping := opts.Mapping
	if mapping.LoginClaim == "" {
		mapping.LoginClaim = DefaultClaimMapping.LoginClaim
	}
	if mapping.RolesClaim == "" {
		mapping.RolesClaim = DefaultClaimMapping.RolesClaim
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": opts.Login,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(opts.TTL)),
	}
	claims[mapping.LoginClaim] = opts.Login
	roles := opts.Roles
	if roles == nil {
		roles = []string{}
	}
	claims[mapping.RolesClaim] = roles
	if opts.Issuer != "" {
		claims["iss"] = opts.Issuer
	}
	if opts.Audience != "" {
		claims["aud"] = opts.Audience
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
