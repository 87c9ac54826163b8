package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"consent-bridge/internal/domain"
	"consent-bridge/internal/logger"
	tokenrepo "consent-bridge/internal/repository/token"
	"go.uber.org/zap"
)

const (
	msgMissingParams    = "Missing code or hmac in query parameters."
	msgInvalidSignature = "Invalid hmac for OAuth callback."
	msgExchangeFailed   = "Failed to retrieve access token."
)

// OAuthFlow is the upstream half of the authorization-code flow.
type OAuthFlow interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (accessToken, scope string, err error)
	VerifyCallback(query url.Values) bool
}

// Options tunes the flow.
type Options struct {
	// VerifyHMAC rejects callbacks whose hmac does not match the client secret.
	VerifyHMAC bool
}

// Service runs the OAuth flow and guards routes that need a token.
type Service struct {
	oauth  OAuthFlow
	tokens tokenrepo.Repository
	opts   Options
	logger *zap.Logger
}

// New creates a Service storing exchanged tokens in tokens.
func New(oauth OAuthFlow, tokens tokenrepo.Repository, opts Options, l *zap.Logger) *Service {
	return &Service{
		oauth:  oauth,
		tokens: tokens,
		opts:   opts,
		logger: logger.OrNop(l).Named("auth"),
	}
}

// Callback carries the query parameters of the OAuth redirect.
type Callback struct {
	Code  string
	HMAC  string
	State string
	Query url.Values
}

// AuthorizationURL builds the upstream authorization URL. nextPath travels in
// state so the caller lands back where they started.
func (s *Service) AuthorizationURL(nextPath string) string {
	if nextPath == "" {
		nextPath = "/"
	}
	return s.oauth.AuthCodeURL(nextPath)
}

// Exchange trades the callback code for an access token, stores it and
// returns the local path to redirect to.
func (s *Service) Exchange(ctx context.Context, in Callback) (string, error) {
	if in.Code == "" || in.HMAC == "" {
		return "", domain.NewError(domain.ErrMissingParameter, msgMissingParams, nil)
	}
	if s.opts.VerifyHMAC && !s.oauth.VerifyCallback(in.Query) {
		s.logger.Warn("rejected oauth callback with bad hmac")
		return "", domain.NewError(domain.ErrInvalidSignature, msgInvalidSignature, nil)
	}

	accessToken, scope, err := s.oauth.Exchange(ctx, in.Code)
	if err != nil {
		s.logger.Error("exchange code for access token", zap.Error(err))
		return "", domain.NewError(domain.ErrUpstreamAuth, msgExchangeFailed, err)
	}
	if accessToken == "" {
		return "", domain.NewError(domain.ErrUpstreamAuth, msgExchangeFailed, errors.New("empty access token in response"))
	}

	if err := s.tokens.Set(ctx, tokenrepo.Token{Value: accessToken, Scope: scope, ObtainedAt: time.Now().UTC()}); err != nil {
		return "", domain.NewError(domain.ErrUpstreamAuth, msgExchangeFailed, err)
	}
	s.logger.Info("stored new access token", zap.String("scope", scope))

	return SafeReturnPath(in.State), nil
}

// NeedsAuthorization is the outcome of the guard when no token is held.
type NeedsAuthorization struct {
	ReturnPath string
}

// RedirectURL is the local entry point of the flow carrying the return path.
func (n NeedsAuthorization) RedirectURL() string {
	return "/auth?next=" + url.QueryEscape(n.ReturnPath)
}

// RequireAuthorization returns nil when a token is held, otherwise the
// outcome the HTTP layer turns into a redirect.
func (s *Service) RequireAuthorization(ctx context.Context, returnPath string) *NeedsAuthorization {
	if _, err := s.tokens.Get(ctx); err == nil {
		return nil
	}
	s.logger.Debug("no access token, redirecting to authorization", zap.String("return_path", returnPath))
	return &NeedsAuthorization{ReturnPath: returnPath}
}

// SafeReturnPath keeps post-login redirects on this host.
func SafeReturnPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, `/\`) {
		return "/"
	}
	return p
}
