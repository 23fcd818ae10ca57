package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"warden/pkg/domain"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
)

// TokenVerifier validates a raw bearer token and returns the principal it names.
// Expired tokens must wrap sentinel.ErrExpired.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// Gate authenticates inbound requests before they reach any handler.
// It holds no per-request state and is safe for concurrent use.
type Gate struct {
	verifier TokenVerifier
	exempt   *PathMatcher
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures a Gate.
type Option func(*Gate)

// WithExemptPaths sets the paths that bypass authentication.
func WithExemptPaths(patterns []string) Option {
	return func(g *Gate) {
		g.exempt = NewPathMatcher(patterns)
	}
}

// WithLogger sets the logger for rejected requests.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithMetrics sets the decision counter.
func WithMetrics(m *Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

func NewGate(verifier TokenVerifier, opts ...Option) *Gate {
	g := &Gate{
		verifier: verifier,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize decides whether r may proceed.
// Exempt paths return (nil, nil). Otherwise it returns the verified Identity
// or an *AuthError describing why the request is unauthenticated.
func (g *Gate) Authorize(r *http.Request) (*domain.Identity, error) {
	if g.exempt.Matches(r.URL.Path) {
		return nil, nil
	}

	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, &AuthError{Kind: KindMissing}
	}

	identity, err := g.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, sentinel.ErrExpired) {
			return nil, &AuthError{Kind: KindExpired, Err: err}
		}
		return nil, &AuthError{Kind: KindInvalid, Err: err}
	}
	if identity.IsZero() {
		return nil, &AuthError{Kind: KindInvalid, Err: errors.New("token has no subject")}
	}
	return &identity, nil
}

// Middleware rejects unauthenticated requests with 401 and attaches the
// Identity to the context of authenticated ones.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity, err := g.Authorize(r)
		if err != nil {
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				authErr = &AuthError{Kind: KindInvalid, Err: err}
			}
			g.metrics.observe(authErr.Kind.String())
			g.logger.WarnContext(ctx, "unauthorized access - "+authErr.Kind.String()+" token",
				"error", authErr.Err,
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(ctx),
			)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", authErr.description())
			return
		}

		if identity == nil {
			g.metrics.observe(outcomeExempt)
			next.ServeHTTP(w, r)
			return
		}

		g.metrics.observe(outcomeAuthenticated)
		ctx = requestcontext.WithIdentity(ctx, *identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth is the chi-style constructor for the gate middleware.
func RequireAuth(verifier TokenVerifier, logger *slog.Logger, opts ...Option) func(http.Handler) http.Handler {
	opts = append([]Option{WithLogger(logger)}, opts...)
	return NewGate(verifier, opts...).Middleware
}

// bearerToken extracts the credential from "Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="warden"`)
	}
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}
