package customer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"consent-bridge/internal/domain"
	"consent-bridge/internal/logger"
	tokenrepo "consent-bridge/internal/repository/token"
	"consent-bridge/internal/shopify"
	"go.uber.org/zap"
)

const (
	msgMissingCredential = "Access token is missing. Please authenticate using /auth and /token routes."
	msgSearchFailed      = "Failed to fetch customers."
	msgListFailed        = "Failed to fetch customer data."
	msgUpdateFailed      = "Failed to update marketing consent."
)

// Upstream is the slice of the Shopify client the service needs.
type Upstream interface {
	SearchCustomersByEmail(ctx context.Context, token, email string) (*shopify.SearchResult, error)
	ListCustomers(ctx context.Context, token string) (json.RawMessage, error)
	UpdateEmailMarketingConsent(ctx context.Context, token string, customerID int64, consent domain.EmailMarketingConsent) (*domain.Customer, error)
}

// Service resolves customers by email and updates their consent upstream.
// Every call reads the current token, so a re-authorization takes effect on
// the next call.
type Service struct {
	upstream Upstream
	tokens   tokenrepo.Repository
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Service.
func New(upstream Upstream, tokens tokenrepo.Repository, l *zap.Logger) *Service {
	return &Service{
		upstream: upstream,
		tokens:   tokens,
		logger:   logger.OrNop(l).Named("customer"),
		now:      time.Now,
	}
}

// ResolveByEmail returns the id of the first customer matching email.
func (s *Service) ResolveByEmail(ctx context.Context, email string) (int64, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return 0, err
	}

	s.logger.Info("fetching customer by email", zap.String("email", email))
	res, err := s.upstream.SearchCustomersByEmail(ctx, token, email)
	if err != nil {
		return 0, domain.NewError(domain.ErrUpstream, msgSearchFailed, err)
	}
	if len(res.Customers) == 0 {
		return 0, domain.NewError(domain.ErrCustomerNotFound, fmt.Sprintf("No customer found with email: %s", email), nil)
	}
	if len(res.Customers) > 1 {
		s.logger.Debug("multiple customers match email, using first",
			zap.String("email", email),
			zap.Int("matches", len(res.Customers)),
		)
	}
	return res.Customers[0].ID, nil
}

// Search returns the raw upstream search response for email.
func (s *Service) Search(ctx context.Context, email string) (json.RawMessage, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.upstream.SearchCustomersByEmail(ctx, token, email)
	if err != nil {
		s.logger.Error("search customers", zap.Error(err))
		return nil, domain.NewError(domain.ErrUpstream, msgSearchFailed, err)
	}
	return res.Raw, nil
}

// List returns the raw GraphQL listing of the first 50 customers.
func (s *Service) List(ctx context.Context) (json.RawMessage, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := s.upstream.ListCustomers(ctx, token)
	if err != nil {
		s.logger.Error("list customers", zap.Error(err))
		return nil, domain.NewError(domain.ErrUpstream, msgListFailed, err)
	}
	return raw, nil
}

// UpdateConsent sets the customer's email marketing consent. Only the consent
// object is sent; other customer fields are left alone.
func (s *Service) UpdateConsent(ctx context.Context, customerID int64, subscribe bool) (*domain.Customer, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	consent := domain.NewEmailMarketingConsent(subscribe, s.now())
	updated, err := s.upstream.UpdateEmailMarketingConsent(ctx, token, customerID, consent)
	if err != nil {
		return nil, domain.NewError(domain.ErrUpstreamUpdate, msgUpdateFailed, err)
	}
	s.logger.Info("customer consent updated",
		zap.Int64("customer_id", customerID),
		zap.String("state", string(consent.State)),
	)
	return updated, nil
}

func (s *Service) accessToken(ctx context.Context) (string, error) {
	tok, err := s.tokens.Get(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.NewError(domain.ErrMissingCredential, msgMissingCredential, nil)
		}
		return "", err
	}
	if strings.TrimSpace(tok.Value) == "" {
		return "", domain.NewError(domain.ErrMissingCredential, msgMissingCredential, nil)
	}
	return tok.Value, nil
}
