package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/upb/report-gate/config"
	"github.com/upb/report-gate/credentials"
	"github.com/upb/report-gate/models"
	"github.com/upb/report-gate/observability"
	"github.com/upb/report-gate/services/audit"
	"github.com/upb/report-gate/services/rolepolicy"
	"github.com/upb/report-gate/utils"
)

const (
	authenticationErrorPrefix = "Authentication error"
	authorizationErrorPrefix  = "Authorization error"

	// authorizationServiceFailure is the public detail of an authorization-service error
	authorizationServiceFailure = "authorization service failure"
)

// Authenticator verifies the credential carried by a request
type Authenticator interface {
	Verify(ctx context.Context, r *http.Request) (*models.Principal, error)
}

// Authorizer decides whether a principal may proceed
type Authorizer interface {
	Authorize(principal *models.Principal) (rolepolicy.Verdict, error)
}

// AuditEmitter receives gate audit events
type AuditEmitter interface {
	Emit(event *models.AuditEvent) error
}

// Interceptor is the request lifecycle the gate runs on every inbound call
type Interceptor interface {
	// ShouldIntercept reports whether the request path requires verification
	ShouldIntercept(r *http.Request) bool

	// Authenticate verifies the request credential
	Authenticate(r *http.Request) Outcome

	// OnSuccess audits the sign-in and authorizes the principal
	OnSuccess(r *http.Request, principal *models.Principal) Outcome
}

// OutcomeKind tags the result of a gate step
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeAuthFailed
	OutcomeAuthzDenied
	OutcomeAuthzServiceError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeAuthFailed:
		return "auth_failed"
	case OutcomeAuthzDenied:
		return "authz_denied"
	case OutcomeAuthzServiceError:
		return "authz_service_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of Authenticate or OnSuccess
type Outcome struct {
	Kind      OutcomeKind
	Principal *models.Principal
	Verdict   rolepolicy.Verdict
	Reason    string // public detail, empty for OutcomeOK
	Err       error  // internal cause, never shown to callers
}

// Decision maps the outcome onto the gate decision
func (o Outcome) Decision() models.GateDecision {
	switch o.Kind {
	case OutcomeOK:
		return models.DecisionAuthenticatedAndAuthorized
	case OutcomeAuthFailed:
		return models.DecisionAuthenticationFailed
	case OutcomeAuthzDenied, OutcomeAuthzServiceError:
		return models.DecisionAuthorizationFailed
	default:
		return models.DecisionAuthorizationFailed
	}
}

// GateConfig holds the immutable gate settings
type GateConfig struct {
	SecuredPath string
	Realm       string
}

// GateConfigFrom builds a GateConfig from the auth settings
func GateConfigFrom(cfg config.AuthConfig) GateConfig {
	return GateConfig{SecuredPath: cfg.SecuredPath, Realm: cfg.Realm}
}

// Gate authenticates, authorizes and audits every request under the secured path
type Gate struct {
	securedPath   string
	realm         string
	authenticator Authenticator
	authorizer    Authorizer
	auditor       AuditEmitter
	logger        *zap.Logger
}

var _ Interceptor = (*Gate)(nil)

// NewGate creates a new Gate
func NewGate(cfg GateConfig, authenticator Authenticator, authorizer Authorizer, auditor AuditEmitter, logger *zap.Logger) *Gate {
	realm := cfg.Realm
	if realm == "" {
		realm = "report-gate"
	}
	return &Gate{
		securedPath:   config.NormalizeSecuredPath(cfg.SecuredPath),
		realm:         realm,
		authenticator: authenticator,
		authorizer:    authorizer,
		auditor:       auditor,
		logger:        logger,
	}
}

// Handler returns the gate as chi-compatible middleware
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.ShouldIntercept(r) {
			next.ServeHTTP(w, r.WithContext(WithDecision(r.Context(), models.DecisionBypassed)))
			return
		}

		outcome := g.Authenticate(r)
		if outcome.Kind == OutcomeOK {
			outcome = g.OnSuccess(r, outcome.Principal)
		}

		logger := observability.WithRequest(r.Context(), g.logger)

		switch outcome.Kind {
		case OutcomeOK:
			decision := outcome.Decision()
			logger.Debug("request authorized",
				zap.String("decision", string(decision)),
				zap.String("login", outcome.Principal.Login()),
				zap.String("verdict", string(outcome.Verdict)))

			ctx := WithPrincipal(r.Context(), outcome.Principal)
			ctx = WithDecision(ctx, decision)
			next.ServeHTTP(w, r.WithContext(ctx))

		case OutcomeAuthFailed:
			logger.Warn("authentication failed",
				zap.String("reason", outcome.Reason),
				zap.String("path", r.URL.Path),
				zap.Error(outcome.Err))
			g.reject(w, r, outcome, authenticationErrorPrefix)

		case OutcomeAuthzDenied:
			logger.Warn("authorization denied",
				zap.String("login", outcome.Principal.Login()),
				zap.Strings("roles", outcome.Principal.Roles()),
				zap.String("path", r.URL.Path))
			g.reject(w, r, outcome, authorizationErrorPrefix)

		case OutcomeAuthzServiceError:
			logger.Error("authorization service error",
				zap.String("path", r.URL.Path),
				zap.Error(outcome.Err))
			g.reject(w, r, outcome, authorizationErrorPrefix)

		default:
			logger.Error("unknown gate outcome", zap.Stringer("kind", outcome.Kind))
			g.reject(w, r, Outcome{Kind: OutcomeAuthzServiceError, Reason: authorizationServiceFailure}, authorizationErrorPrefix)
		}
	})
}

// ShouldIntercept reports whether the request path equals the secured path or lies below it.
// The raw, escaped and cleaned forms are all checked so dot segments cannot step a routed
// path out of the secured prefix.
func (g *Gate) ShouldIntercept(r *http.Request) bool {
	if g.securedPath == "/" {
		return true
	}

	p := r.URL.Path
	if p == "" {
		p = "/"
	}
	for _, candidate := range []string{p, r.URL.EscapedPath(), path.Clean("/" + p)} {
		if g.underSecuredPath(candidate) {
			return true
		}
	}
	return false
}

func (g *Gate) underSecuredPath(p string) bool {
	return p == g.securedPath || strings.HasPrefix(p, g.securedPath+"/")
}

// Authenticate verifies the request credential. A panic is an authentication failure.
func (g *Gate) Authenticate(r *http.Request) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = Outcome{
				Kind:   OutcomeAuthFailed,
				Reason: credentials.ErrInvalidToken.Error(),
				Err:    fmt.Errorf("panic during authentication: %v", rec),
			}
		}
	}()

	principal, err := g.authenticator.Verify(r.Context(), r)
	if err == nil && principal == nil {
		err = fmt.Errorf("verifier returned no principal")
	}
	if err != nil {
		authErr := credentials.AsAuthError(err)
		return Outcome{Kind: OutcomeAuthFailed, Reason: authErr.PublicReason(), Err: err}
	}
	return Outcome{Kind: OutcomeOK, Principal: principal}
}

// OnSuccess audits the sign-in and then asks the role policy
func (g *Gate) OnSuccess(r *http.Request, principal *models.Principal) (outcome Outcome) {
	g.emit(r, audit.SignInEvent(principal.Login()))

	defer func() {
		if rec := recover(); rec != nil {
			outcome = Outcome{
				Kind:      OutcomeAuthzServiceError,
				Principal: principal,
				Reason:    authorizationServiceFailure,
				Err:       fmt.Errorf("panic during authorization: %v", rec),
			}
		}
	}()

	verdict, err := g.authorizer.Authorize(principal)
	if err != nil {
		return Outcome{Kind: OutcomeAuthzServiceError, Principal: principal, Reason: authorizationServiceFailure, Err: err}
	}

	switch verdict {
	case rolepolicy.VerdictAllowed, rolepolicy.VerdictBypassed:
		return Outcome{Kind: OutcomeOK, Principal: principal, Verdict: verdict}
	case rolepolicy.VerdictDenied:
		return Outcome{Kind: OutcomeAuthzDenied, Principal: principal, Verdict: verdict, Reason: rolepolicy.DenialReason(principal)}
	default:
		return Outcome{
			Kind:      OutcomeAuthzServiceError,
			Principal: principal,
			Reason:    authorizationServiceFailure,
			Err:       fmt.Errorf("unknown verdict %q", verdict),
		}
	}
}

// reject audits the failure, runs the authentication hook where it applies, and writes the 403 body
func (g *Gate) reject(w http.ResponseWriter, r *http.Request, outcome Outcome, prefix string) {
	var event *models.AuditEvent
	if outcome.Kind == OutcomeAuthFailed {
		event = audit.AuthenticationFailedEvent(outcome.Reason)
	} else {
		login := ""
		if outcome.Principal != nil {
			login = outcome.Principal.Login()
		}
		event = audit.AuthorizationFailedEvent(login, outcome.Reason)
	}
	g.emit(r, event)

	// Identity store failures are not a credential problem; no challenge is sent.
	if outcome.Kind == OutcomeAuthFailed && !errors.Is(outcome.Err, credentials.ErrIdentityUnavailable) {
		g.unsuccessfulAuthentication(w)
	}

	if err := utils.WriteForbidden(w, audit.FailureMessage(prefix, outcome.Reason)); err != nil {
		g.logger.Error("failed to write rejection", zap.Error(err))
	}
}

func (g *Gate) unsuccessfulAuthentication(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm=%q, error="invalid_token"`, g.realm))
}

// emit hands the event to the auditor. Audit failures never change the decision.
func (g *Gate) emit(r *http.Request, event *models.AuditEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("panic while emitting audit event", zap.Any("panic", rec))
		}
	}()

	event.WithRequest(chimiddleware.GetReqID(r.Context()), r.Method, r.URL.Path, r.RemoteAddr, r.UserAgent())
	if err := g.auditor.Emit(event); err != nil {
		observability.WithRequest(r.Context(), g.logger).Warn("audit event not delivered",
			zap.String("event_sub_type", string(event.SubType)),
			zap.Error(err))
	}
}
