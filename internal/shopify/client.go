package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"consent-bridge/internal/logger"
	"go.uber.org/zap"
)

// maxResponseSize caps how much of an upstream body is read (10MB).
const maxResponseSize = 10 * 1024 * 1024

const accessTokenHeader = "X-Shopify-Access-Token"

// maxErrorDetail caps the upstream body echoed back in error messages.
const maxErrorDetail = 512

// Observer receives one callback per upstream request.
type Observer interface {
	ObserveUpstream(operation string, statusCode int, elapsed time.Duration)
}

// Config describes how to reach the store's Admin API.
type Config struct {
	Shop       string
	StoreURL   string
	APIVersion string
	Timeout    time.Duration
}

// Client talks to the Shopify Admin REST and GraphQL APIs. It holds no
// credentials; every call takes the access token explicitly.
type Client struct {
	storeURL   string
	apiVersion string
	httpClient *http.Client
	logger     *zap.Logger
	observer   Observer
}

// New builds a Client. A zero Timeout leaves the transport default in place.
func New(cfg Config, l *zap.Logger, observer Observer) *Client {
	version := cfg.APIVersion
	if version == "" {
		version = "2025-01"
	}
	return &Client{
		storeURL:   StoreURL(cfg.Shop, cfg.StoreURL),
		apiVersion: version,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.OrNop(l).Named("shopify"),
		observer:   observer,
	}
}

// StoreURL resolves the store origin, preferring an explicit override.
func StoreURL(shop, override string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	return fmt.Sprintf("https://%s.myshopify.com", shop)
}

// HTTPClient exposes the underlying client so the OAuth exchange shares its transport.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// APIError is a non-2xx answer from the Admin API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("request failed with status code %d", e.StatusCode)
	if detail := errorDetail(e.Body); detail != "" {
		msg += ": " + detail
	}
	return msg
}

// errorDetail pulls the "errors" member out of an upstream body, falling back
// to a truncated copy of the body.
func errorDetail(body string) string {
	var parsed struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil && len(parsed.Errors) > 0 {
		var s string
		if json.Unmarshal(parsed.Errors, &s) == nil {
			return s
		}
		return string(parsed.Errors)
	}
	body = strings.TrimSpace(body)
	if len(body) > maxErrorDetail {
		cut := maxErrorDetail
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	return body
}

func (c *Client) adminPath(resource string) string {
	return fmt.Sprintf("%s/admin/api/%s/%s", c.storeURL, c.apiVersion, strings.TrimLeft(resource, "/"))
}

// do performs one Admin API request and returns the raw response body.
func (c *Client) do(ctx context.Context, operation, method, url, token string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("shopify: encode %s payload: %w", operation, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("shopify: build %s request: %w", operation, err)
	}
	req.Header.Set(accessTokenHeader, token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(operation, 0, time.Since(start))
		return nil, fmt.Errorf("shopify: %s: %w", operation, err)
	}
	defer resp.Body.Close()
	c.observe(operation, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("shopify: read %s response: %w", operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("upstream request failed",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func (c *Client) observe(operation string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveUpstream(operation, status, elapsed)
	}
}
