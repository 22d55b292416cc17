package credentials

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/report-gate/models"
)

// blockingValidator ignores cancellation and never returns before release is closed
type blockingValidator struct {
	release chan struct{}
}

func (b *blockingValidator) ValidateToken(context.Context, string) (*Claims, error) {
	<-b.release
	return &Claims{Login: "late"}, nil
}

type panickingResolver struct{}

func (panickingResolver) Resolve(context.Context, *Claims) (*models.Principal, error) {
	panic("resolver exploded")
}

func TestVerifier_Verify(t *testing.T) {
	hs, err := NewHS256Validator("secret", "", "", DefaultClaimMapping)
	require.NoError(t, err)
	verifier := NewVerifier(hs, NewClaimsResolver(), time.Second, zap.NewNop())

	t.Run("valid bearer", func(t *testing.T) {
		token, err := IssueToken("secret", IssueOptions{Login: "jdoe", Roles: []string{"ADMIN"}})
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/api/v1/reports", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		p, err := verifier.Verify(req.Context(), req)
		require.NoError(t, err)
		assert.Equal(t, "jdoe", p.Login())
		assert.Equal(t, []string{"ADMIN"}, p.Roles())
	})

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{name: "missing header", header: "", want: ErrMissingCredential},
		{name: "wrong scheme", header: "Token abc", want: ErrMalformedCredential},
		{name: "garbage token", header: "Bearer abc", want: ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/reports", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			p, err := verifier.Verify(req.Context(), req)
			assert.Nil(t, p)
			var authErr *AuthError
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, tt.want, authErr.Kind)
		})
	}

	t.Run("expired token", func(t *testing.T) {
		token, err := IssueToken("secret", IssueOptions{Login: "jdoe", TTL: -time.Second})
		require.NoError(t, err)

		_, err = verifier.VerifyToken(context.Background(), token)
		var authErr *AuthError
		require.True(t, errors.As(err, &authErr))
		assert.Equal(t, ErrTokenExpired, authErr.Kind)
		assert.Equal(t, "token expired", authErr.PublicReason())
	})
}

func TestVerifier_ResolverErrorsPassThrough(t *testing.T) {
	validator := new(MockTokenValidator)
	validator.On("ValidateToken", mock.Anything, "tok").Return(&Claims{Login: "jdoe"}, nil)

	repo := new(MockIdentityRepository)
	user := models.NewUser("jdoe", "")
	user.Active = false
	repo.On("GetByLogin", mock.Anything, "jdoe").Return(user, nil)

	verifier := NewVerifier(validator, NewStoreResolver(repo, zap.NewNop()), time.Second, zap.NewNop())
	_, err := verifier.VerifyToken(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrIdentityDisabled)
	validator.AssertExpectations(t)
}

func TestVerifier_TimeoutHoldsWhenCollaboratorIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	verifier := NewVerifier(&blockingValidator{release: release}, NewClaimsResolver(), 50*time.Millisecond, zap.NewNop())

	start := time.Now()
	p, err := verifier.VerifyToken(context.Background(), "tok")
	elapsed := time.Since(start)

	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrVerificationTimeout)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestVerifier_CanceledRequest(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verifier := NewVerifier(&blockingValidator{release: release}, NewClaimsResolver(), time.Second, zap.NewNop())
	_, err := verifier.VerifyToken(ctx, "tok")
	assert.ErrorIs(t, err, ErrRequestCanceled)
}

func TestVerifier_PanicBecomesAuthenticationFailure(t *testing.T) {
	validator := new(MockTokenValidator)
	validator.On("ValidateToken", mock.Anything, "tok").Return(&Claims{Login: "jdoe"}, nil)

	verifier := NewVerifier(validator, panickingResolver{}, time.Second, zap.NewNop())
	p, err := verifier.VerifyToken(context.Background(), "tok")
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewVerifier_DefaultTimeout(t *testing.T) {
	v := NewVerifier(nil, nil, 0, zap.NewNop())
	assert.Equal(t, DefaultVerifyTimeout, v.timeout)
}
