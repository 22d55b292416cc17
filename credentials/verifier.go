package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/report-gate/models"
)

// DefaultVerifyTimeout bounds a single verification when none is configured
const DefaultVerifyTimeout = 5 * time.Second

// Verifier authenticates a request: bearer extraction, token validation, role resolution.
// It holds no per-request state and is safe for concurrent use.
type Verifier struct {
	validator TokenValidator
	resolver  RoleResolver
	timeout   time.Duration
	logger    *zap.Logger
}

// NewVerifier creates a Verifier
func NewVerifier(validator TokenValidator, resolver RoleResolver, timeout time.Duration, logger *zap.Logger) *Verifier {
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	return &Verifier{
		validator: validator,
		resolver:  resolver,
		timeout:   timeout,
		logger:    logger,
	}
}

// Verify authenticates the request. Every error is an *AuthError.
func (v *Verifier) Verify(ctx context.Context, r *http.Request) (*models.Principal, error) {
	token, err := TokenFromRequest(r)
	if err != nil {
		return nil, err
	}
	return v.VerifyToken(ctx, token)
}

type verifyResult struct {
	principal *models.Principal
	err       error
}

// VerifyToken validates a raw token and resolves its principal within the configured
// timeout. The bound holds even when a collaborator ignores cancellation.
func (v *Verifier) VerifyToken(ctx context.Context, token string) (*models.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	done := make(chan verifyResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				v.logger.Error("panic during credential verification", zap.Any("panic", rec))
				done <- verifyResult{err: newAuthError(ErrInvalidToken, fmt.Errorf("panic: %v", rec))}
			}
		}()
		p, err := v.verify(ctx, token)
		done <- verifyResult{principal: p, err: err}
	}()

	select {
	case res := <-done:
		return res.principal, res.err
	case <-ctx.Done():
		return nil, contextError(ctx.Err())
	}
}

func (v *Verifier) verify(ctx context.Context, token string) (*models.Principal, error) {
	claims, err := v.validator.ValidateToken(ctx, token)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrTokenExpired) {
			return nil, contextError(ctx.Err())
		}
		return nil, AsAuthError(err)
	}

	principal, err := v.resolver.Resolve(ctx, claims)
	if err != nil {
		return nil, AsAuthError(err)
	}
	return principal, nil
}

func contextError(err error) *AuthError {
	if errors.Is(err, context.Canceled) {
		return newAuthError(ErrRequestCanceled, err)
	}
	return newAuthError(ErrVerificationTimeout, err)
}
