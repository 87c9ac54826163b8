package customer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"consent-bridge/internal/domain"
	tokenrepo "consent-bridge/internal/repository/token"
	"consent-bridge/internal/shopify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryUpstream is a lightweight in-memory stand-in for the Shopify client.
type memoryUpstream struct {
	byEmail    map[string][]domain.Customer
	searchErr  error
	updateErr  error
	tokensSeen []string
	updates    []domain.EmailMarketingConsent
}

func (u *memoryUpstream) SearchCustomersByEmail(_ context.Context, token, email string) (*shopify.SearchResult, error) {
	u.tokensSeen = append(u.tokensSeen, token)
	if u.searchErr != nil {
		return nil, u.searchErr
	}
	customers := u.byEmail[email]
	raw, _ := json.Marshal(map[string]any{"customers": customers})
	return &shopify.SearchResult{Customers: customers, Raw: raw}, nil
}

func (u *memoryUpstream) ListCustomers(_ context.Context, token string) (json.RawMessage, error) {
	u.tokensSeen = append(u.tokensSeen, token)
	return json.RawMessage(`{"data":{"customers":{"edges":[]}}}`), nil
}

func (u *memoryUpstream) UpdateEmailMarketingConsent(_ context.Context, token string, id int64, consent domain.EmailMarketingConsent) (*domain.Customer, error) {
	u.tokensSeen = append(u.tokensSeen, token)
	if u.updateErr != nil {
		return nil, u.updateErr
	}
	u.updates = append(u.updates, consent)
	return &domain.Customer{ID: id, EmailMarketingConsent: &consent}, nil
}

func newServiceWithToken(t *testing.T, up *memoryUpstream, token string) (*Service, tokenrepo.Repository) {
	t.Helper()
	tokens := tokenrepo.NewMemory()
	if token != "" {
		require.NoError(t, tokens.Set(context.Background(), tokenrepo.Token{Value: token}))
	}
	return New(up, tokens, nil), tokens
}

func TestResolveByEmail_FirstMatchWins(t *testing.T) {
	up := &memoryUpstream{byEmail: map[string][]domain.Customer{
		"a@x.com": {{ID: 7, Email: "a@x.com"}, {ID: 8, Email: "a@x.com"}},
	}}
	svc, _ := newServiceWithToken(t, up, "tok")

	id, err := svc.ResolveByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestResolveByEmail_NotFound(t *testing.T) {
	svc, _ := newServiceWithToken(t, &memoryUpstream{}, "tok")

	_, err := svc.ResolveByEmail(context.Background(), "missing@x.com")
	require.ErrorIs(t, err, domain.ErrCustomerNotFound)
	assert.Equal(t, "No customer found with email: missing@x.com", err.Error())
}

func TestResolveByEmail_MissingCredentialSkipsUpstream(t *testing.T) {
	up := &memoryUpstream{}
	svc, _ := newServiceWithToken(t, up, "")

	_, err := svc.ResolveByEmail(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
	assert.Empty(t, up.tokensSeen)
}

func TestResolveByEmail_UpstreamError(t *testing.T) {
	svc, _ := newServiceWithToken(t, &memoryUpstream{searchErr: errors.New("request failed with status code 502")}, "tok")

	_, err := svc.ResolveByEmail(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Contains(t, err.Error(), "status code 502")
}

func TestUpdateConsent_StateTransitions(t *testing.T) {
	up := &memoryUpstream{}
	svc, _ := newServiceWithToken(t, up, "tok")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	_, err := svc.UpdateConsent(context.Background(), 1, true)
	require.NoError(t, err)
	_, err = svc.UpdateConsent(context.Background(), 1, false)
	require.NoError(t, err)

	require.Len(t, up.updates, 2)
	assert.Equal(t, domain.ConsentSubscribed, up.updates[0].State)
	require.NotNil(t, up.updates[0].ConsentUpdatedAt)
	assert.Equal(t, fixed, *up.updates[0].ConsentUpdatedAt)
	assert.Equal(t, domain.OptInLevelSingle, up.updates[0].OptInLevel)

	assert.Equal(t, domain.ConsentUnsubscribed, up.updates[1].State)
	assert.Nil(t, up.updates[1].ConsentUpdatedAt)
	assert.Equal(t, domain.OptInLevelSingle, up.updates[1].OptInLevel)
}

func TestUpdateConsent_UpstreamError(t *testing.T) {
	svc, _ := newServiceWithToken(t, &memoryUpstream{updateErr: errors.New("request failed with status code 422: invalid")}, "tok")

	_, err := svc.UpdateConsent(context.Background(), 1, true)
	require.ErrorIs(t, err, domain.ErrUpstreamUpdate)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "request failed with status code 422: invalid", derr.Detail())
}

func TestCalls_UseLatestToken(t *testing.T) {
	ctx := context.Background()
	up := &memoryUpstream{}
	svc, tokens := newServiceWithToken(t, up, "old")

	_, err := svc.List(ctx)
	require.NoError(t, err)
	require.NoError(t, tokens.Set(ctx, tokenrepo.Token{Value: "new"}))
	_, err = svc.Search(ctx, "a@x.com")
	require.NoError(t, err)

	assert.Equal(t, []string{"old", "new"}, up.tokensSeen)
}
