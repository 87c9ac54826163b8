package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"consent-bridge/internal/domain"
	"go.uber.org/zap"
)

const listCustomersQuery = `{
  customers(first: 50) {
    edges {
      node {
        id
        firstName
        lastName
        email
      }
    }
  }
}`

// SearchResult is a customers/search.json response. Raw keeps the upstream
// body untouched for callers that pass it through.
type SearchResult struct {
	Customers []domain.Customer
	Raw       json.RawMessage
}

// SearchCustomersByEmail runs the REST customer search filtered by email.
func (c *Client) SearchCustomersByEmail(ctx context.Context, token, email string) (*SearchResult, error) {
	q := url.Values{}
	q.Set("query", "email:"+email)
	endpoint := c.adminPath("customers/search.json") + "?" + q.Encode()

	c.logger.Debug("searching customer by email", zap.String("email", email))
	raw, err := c.do(ctx, "search_customers", http.MethodGet, endpoint, token, nil)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Customers []domain.Customer `json:"customers"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("shopify: decode search response: %w", err)
	}
	return &SearchResult{Customers: decoded.Customers, Raw: raw}, nil
}

// ListCustomers returns the raw GraphQL response for the first 50 customers.
func (c *Client) ListCustomers(ctx context.Context, token string) (json.RawMessage, error) {
	payload := map[string]string{"query": listCustomersQuery}
	raw, err := c.do(ctx, "list_customers", http.MethodPost, c.adminPath("graphql.json"), token, payload)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

type consentUpdateRequest struct {
	Customer consentUpdateCustomer `json:"customer"`
}

type consentUpdateCustomer struct {
	ID                    int64                        `json:"id"`
	EmailMarketingConsent domain.EmailMarketingConsent `json:"email_marketing_consent"`
}

// UpdateEmailMarketingConsent PUTs only the consent object for one customer.
func (c *Client) UpdateEmailMarketingConsent(ctx context.Context, token string, customerID int64, consent domain.EmailMarketingConsent) (*domain.Customer, error) {
	payload := consentUpdateRequest{
		Customer: consentUpdateCustomer{ID: customerID, EmailMarketingConsent: consent},
	}
	endpoint := c.adminPath("customers/" + strconv.FormatInt(customerID, 10) + ".json")

	c.logger.Debug("updating email marketing consent",
		zap.Int64("customer_id", customerID),
		zap.String("state", string(consent.State)),
	)
	raw, err := c.do(ctx, "update_customer", http.MethodPut, endpoint, token, payload)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Customer domain.Customer `json:"customer"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("shopify: decode update response: %w", err)
	}
	return &decoded.Customer, nil
}
