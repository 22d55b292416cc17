package credentials

import (
	"net/http"
	"strings"
)

const bearerScheme = "Bearer"

// ExtractBearer returns the token of an "Authorization: Bearer <token>" header value.
// The scheme is matched case-insensitively.
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", newAuthError(ErrMissingCredential, nil)
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", newAuthError(ErrMalformedCredential, nil)
	}

	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", newAuthError(ErrMalformedCredential, nil)
	}
	return token, nil
}

// TokenFromRequest extracts the bearer token of a request
func TokenFromRequest(r *http.Request) (string, error) {
	return ExtractBearer(r.Header.Get("Authorization"))
}
