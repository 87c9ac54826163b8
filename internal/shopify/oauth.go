package shopify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/oauth2"
)

// OAuthConfig describes the app registered with the store.
type OAuthConfig struct {
	Shop         string
	StoreURL     string
	ClientID     string
	ClientSecret string
	Scopes       string
	RedirectURL  string
}

// OAuth wraps the authorization-code flow against /admin/oauth.
type OAuth struct {
	cfg        oauth2.Config
	secret     string
	httpClient *http.Client
}

// NewOAuth builds the flow. httpClient may be nil.
func NewOAuth(cfg OAuthConfig, httpClient *http.Client) *OAuth {
	store := StoreURL(cfg.Shop, cfg.StoreURL)
	var scopes []string
	if cfg.Scopes != "" {
		// Shopify expects one comma separated scope parameter.
		scopes = []string{cfg.Scopes}
	}
	return &OAuth{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   store + "/admin/oauth/authorize",
				TokenURL:  store + "/admin/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		secret:     cfg.ClientSecret,
		httpClient: httpClient,
	}
}

// AuthCodeURL returns the authorization endpoint URL carrying state.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token.
func (o *OAuth) Exchange(ctx context.Context, code string) (accessToken, scope string, err error) {
	if o.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	}
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return "", "", fmt.Errorf("shopify: exchange code: %w", err)
	}
	if s, ok := tok.Extra("scope").(string); ok {
		scope = s
	}
	return tok.AccessToken, scope, nil
}

// VerifyCallback checks the hmac query parameter Shopify attaches to the
// OAuth callback: hex(HMAC-SHA256(secret, sorted "k=v" pairs joined by "&")).
func (o *OAuth) VerifyCallback(query url.Values) bool {
	return VerifyHMAC(query, o.secret)
}

// VerifyHMAC validates a Shopify-signed query string against secret.
func VerifyHMAC(query url.Values, secret string) bool {
	given := query.Get("hmac")
	if given == "" || secret == "" {
		return false
	}
	expected, err := hex.DecodeString(given)
	if err != nil {
		return false
	}
	return hmac.Equal(sign(query, secret), expected)
}

// sign computes the raw MAC Shopify attaches to query.
func sign(query url.Values, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signingMessage(query)))
	return mac.Sum(nil)
}

func signingMessage(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strings.Join(query[k], ","))
	}
	return strings.Join(parts, "&")
}
