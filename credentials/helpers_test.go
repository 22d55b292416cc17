package credentials

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/upb/report-gate/models"
)

const testKid = "test-key-1"

// keyServer serves a JWKS and an OIDC discovery document for a generated RSA key
type keyServer struct {
	*httptest.Server
	key      *rsa.PrivateKey
	kid      string
	jwksHits atomic.Int32
	failJWKS atomic.Bool
}

func newKeyServer(t *testing.T) *keyServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ks := &keyServer{key: key, kid: testKid}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		ks.jwksHits.Add(1)
		if ks.failJWKS.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(JWKS{Keys: []JWK{{
			Kid: ks.kid,
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                                ks.URL,
			"jwks_uri":                              ks.URL + "/.well-known/jwks.json",
			"authorization_endpoint":                ks.URL + "/authorize",
			"token_endpoint":                        ks.URL + "/token",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	ks.Server = httptest.NewServer(mux)
	t.Cleanup(ks.Close)
	return ks
}

func (ks *keyServer) jwksURL() string {
	return ks.URL + "/.well-known/jwks.json"
}

// sign issues an RS256 token with the server key
func (ks *keyServer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = ks.kid
	signed, err := token.SignedString(ks.key)
	require.NoError(t, err)
	return signed
}

func rsClaims(issuer, audience, login string, roles []string, ttl time.Duration) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":                issuer,
		"aud":                audience,
		"sub":                "sub-" + login,
		"preferred_username": login,
		"roles":              roles,
		"iat":                now.Unix(),
		"exp":                now.Add(ttl).Unix(),
	}
}

// MockTokenValidator is a mock implementation of TokenValidator
type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Claims), args.Error(1)
}

// MockIdentityRepository is a mock implementation of repositories.IdentityRepository
type MockIdentityRepository struct {
	mock.Mock
}

func (m *MockIdentityRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	args := m.Called(ctx, login)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockIdentityRepository) Upsert(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockIdentityRepository) SetActive(ctx context.Context, login string, active bool) error {
	return m.Called(ctx, login, active).Error(0)
}

func (m *MockIdentityRepository) GrantRole(ctx context.Context, login, role string) error {
	return m.Called(ctx, login, role).Error(0)
}

func (m *MockIdentityRepository) RevokeRole(ctx context.Context, login, role string) error {
	return m.Called(ctx, login, role).Error(0)
}

func (m *MockIdentityRepository) ReplaceRoles(ctx context.Context, login string, roles []string) error {
	return m.Called(ctx, login, roles).Error(0)
}

func (m *MockIdentityRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}
