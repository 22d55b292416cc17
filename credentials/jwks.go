package credentials

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSConfig holds configuration for JWKSValidator
type JWKSConfig struct {
	JWKSURL     string
	Issuer      string
	Audience    string
	Mapping     ClaimMapping
	CacheTTL    time.Duration
	HTTPTimeout time.Duration
	HTTPClient  *http.Client
}

// JWKSValidator validates RS256 tokens against a remote JWKS with a key cache
type JWKSValidator struct {
	jwksURL    string
	issuer     string
	audience   string
	mapping    ClaimMapping
	httpClient *http.Client

	// Cache for JWKS
	jwksCache    *JWKS
	jwksCacheExp time.Time
	jwksCacheTTL time.Duration
	cacheMu      sync.RWMutex

	// Cache for parsed public keys
	keyCache   map[string]*rsa.PublicKey
	keyCacheMu sync.RWMutex
}

// NewJWKSValidator creates a new JWKS-backed validator
func NewJWKSValidator(cfg JWKSConfig) *JWKSValidator {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 1 * time.Hour
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	return &JWKSValidator{
		jwksURL:      cfg.JWKSURL,
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		mapping:      cfg.Mapping,
		jwksCacheTTL: cfg.CacheTTL,
		httpClient:   client,
		keyCache:     make(map[string]*rsa.PublicKey),
	}
}

// ValidateToken validates a JWT token and returns parsed claims
func (v *JWKSValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Get the kid from token header
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid header not found")
		}

		publicKey, err := v.getPublicKey(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("failed to get public key: %w", err)
		}
		return publicKey, nil
	}, opts...)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	raw, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, err := ParseClaims(raw, v.mapping)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// FetchJWKS fetches the JWKS, serving from cache while it is fresh
func (v *JWKSValidator) FetchJWKS(ctx context.Context) (*JWKS, error) {
	v.cacheMu.RLock()
	if v.jwksCache != nil && time.Now().Before(v.jwksCacheExp) {
		defer v.cacheMu.RUnlock()
		return v.jwksCache, nil
	}
	v.cacheMu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	v.cacheMu.Lock()
	v.jwksCache = &jwks
	v.jwksCacheExp = time.Now().Add(v.jwksCacheTTL)
	v.cacheMu.Unlock()

	return &jwks, nil
}

// getPublicKey retrieves the public key for a given kid. An unknown kid forces one
// JWKS refresh to pick up rotated keys.
func (v *JWKSValidator) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.keyCacheMu.RLock()
	if key, exists := v.keyCache[kid]; exists {
		v.keyCacheMu.RUnlock()
		return key, nil
	}
	v.keyCacheMu.RUnlock()

	jwks, err := v.FetchJWKS(ctx)
	if err != nil {
		return nil, err
	}

	jwk := findKey(jwks, kid)
	if jwk == nil {
		v.InvalidateCache()
		if jwks, err = v.FetchJWKS(ctx); err != nil {
			return nil, err
		}
		if jwk = findKey(jwks, kid); jwk == nil {
			return nil, fmt.Errorf("key with kid %s not found in JWKS", kid)
		}
	}

	publicKey, err := jwkToRSAPublicKey(jwk)
	if err != nil {
		return nil, fmt.Errorf("failed to convert JWK to RSA public key: %w", err)
	}

	v.keyCacheMu.Lock()
	v.keyCache[kid] = publicKey
	v.keyCacheMu.Unlock()

	return publicKey, nil
}

func findKey(jwks *JWKS, kid string) *JWK {
	for i := range jwks.Keys {
		if jwks.Keys[i].Kid == kid {
			return &jwks.Keys[i]
		}
	}
	return nil
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	if jwk.Kty != "" && jwk.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", jwk.Kty)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var e int
	for _, b := range eBytes {
		e = e*256 + int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

// InvalidateCache invalidates the JWKS and key caches
func (v *JWKSValidator) InvalidateCache() {
	v.cacheMu.Lock()
	v.jwksCache = nil
	v.jwksCacheExp = time.Time{}
	v.cacheMu.Unlock()

	v.keyCacheMu.Lock()
	v.keyCache = make(map[string]*rsa.PublicKey)
	v.keyCacheMu.Unlock()
}

// GetCacheStats returns cache statistics
func (v *JWKSValidator) GetCacheStats() map[string]interface{} {
	v.cacheMu.RLock()
	defer v.cacheMu.RUnlock()

	v.keyCacheMu.RLock()
	defer v.keyCacheMu.RUnlock()

	stats := map[string]interface{}{
		"jwks_cached":       v.jwksCache != nil,
		"jwks_expires_at":   v.jwksCacheExp,
		"cached_keys_count": len(v.keyCache),
	}
	if v.jwksCache != nil {
		stats["jwks_keys_count"] = len(v.jwksCache.Keys)
	}
	return stats
}
