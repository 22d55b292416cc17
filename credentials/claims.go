package credentials

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents parsed and validated token claims
type Claims struct {
	Subject   string
	Login     string
	Roles     []string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Raw       map[string]interface{}
}

// ClaimMapping names the claims carrying the login and the roles. Dotted names
// address nested objects, e.g. "realm_access.roles".
type ClaimMapping struct {
	LoginClaim string
	RolesClaim string
}

// DefaultClaimMapping matches the configuration defaults
var DefaultClaimMapping = ClaimMapping{
	LoginClaim: "preferred_username",
	RolesClaim: "roles",
}

// ParseClaims builds Claims from a raw claim set. The login falls back to "sub".
func ParseClaims(raw map[string]interface{}, mapping ClaimMapping) (*Claims, error) {
	claims := &Claims{Raw: raw}

	if sub, ok := raw["sub"].(string); ok {
		claims.Subject = sub
	}
	if iss, ok := raw["iss"].(string); ok {
		claims.Issuer = iss
	}
	claims.Audience = stringList(raw["aud"])

	if exp, err := jwt.MapClaims(raw).GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	if login, ok := lookup(raw, mapping.LoginClaim).(string); ok {
		claims.Login = login
	}
	if claims.Login == "" {
		claims.Login = claims.Subject
	}
	if claims.Login == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingClaim, mapping.LoginClaim)
	}

	claims.Roles = stringList(lookup(raw, mapping.RolesClaim))
	return claims, nil
}

// lookup resolves a possibly dotted claim name
func lookup(raw map[string]interface{}, name string) interface{} {
	if name == "" {
		return nil
	}
	if v, ok := raw[name]; ok {
		return v
	}
	parts := strings.Split(name, ".")
	var cur interface{} = raw
	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// stringList accepts a JSON array of strings or a single comma/space separated string
func stringList(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return strings.FieldsFunc(val, func(r rune) bool { return r == ',' || r == ' ' })
	case []string:
		return append([]string(nil), val...)
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
