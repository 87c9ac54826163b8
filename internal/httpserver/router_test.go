package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"consent-bridge/internal/domain"
	authsvc "consent-bridge/internal/service/auth"
	consentsvc "consent-bridge/internal/service/consent"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) AuthorizationURL(nextPath string) string {
	return m.Called(nextPath).String(0)
}

func (m *mockAuthService) Exchange(ctx context.Context, in authsvc.Callback) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *mockAuthService) RequireAuthorization(ctx context.Context, returnPath string) *authsvc.NeedsAuthorization {
	args := m.Called(ctx, returnPath)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*authsvc.NeedsAuthorization)
}

type mockCustomerService struct {
	mock.Mock
}

func (m *mockCustomerService) Search(ctx context.Context, email string) (json.RawMessage, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *mockCustomerService) List(ctx context.Context) (json.RawMessage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

type mockConsentService struct {
	mock.Mock
}

func (m *mockConsentService) ProcessBatch(ctx context.Context, body []byte) (*consentsvc.Result, error) {
	args := m.Called(ctx, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consentsvc.Result), args.Error(1)
}

func (m *mockConsentService) RecentBatches(ctx context.Context, limit int) ([]domain.ConsentBatch, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ConsentBatch), args.Error(1)
}

func (m *mockConsentService) BatchItems(ctx context.Context, id string) (*consentsvc.BatchDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consentsvc.BatchDetail), args.Error(1)
}

type mocks struct {
	auth      *mockAuthService
	customers *mockCustomerService
	consent   *mockConsentService
}

func newTestRouter(t *testing.T) (*gin.Engine, mocks) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := mocks{
		auth:      &mockAuthService{},
		customers: &mockCustomerService{},
		consent:   &mockConsentService{},
	}
	router, err := buildRouter(zap.NewNop(), nil, Deps{
		AuthSvc:     m.auth,
		CustomerSvc: m.customers,
		ConsentSvc:  m.consent,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	})
	require.NoError(t, err)
	return router, m
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body=%s", rec.Body.String())
	return out
}

func TestBuildRouter_RequiresServices(t *testing.T) {
	_, err := buildRouter(zap.NewNop(), nil, Deps{})
	assert.Error(t, err)
}

func TestHealthAndReady(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := serve(router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disabled", decode(t, rec)["audit"])
}

func TestMetricsRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := serve(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestStartAuth_Redirects(t *testing.T) {
	router, m := newTestRouter(t)
	m.auth.On("AuthorizationURL", "/customers").Return("https://demo.myshopify.com/admin/oauth/authorize?state=%2Fcustomers")
	m.auth.On("AuthorizationURL", "").Return("https://demo.myshopify.com/admin/oauth/authorize?state=%2F")

	rec := serve(router, http.MethodGet, "/auth?next=%2Fcustomers", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://demo.myshopify.com/admin/oauth/authorize?state=%2Fcustomers", rec.Header().Get("Location"))

	rec = serve(router, http.MethodGet, "/auth", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	m.auth.AssertExpectations(t)
}

func TestExchangeToken(t *testing.T) {
	t.Run("missing parameters", func(t *testing.T) {
		router, m := newTestRouter(t)
		m.auth.On("Exchange", mock.Anything, mock.Anything).
			Return("", domain.NewError(domain.ErrMissingParameter, "Missing code or hmac in query parameters.", nil))

		rec := serve(router, http.MethodGet, "/token?code=abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, map[string]any{"message": "Missing code or hmac in query parameters."}, decode(t, rec))
	})

	t.Run("success redirects to state", func(t *testing.T) {
		router, m := newTestRouter(t)
		m.auth.On("Exchange", mock.Anything, mock.MatchedBy(func(in authsvc.Callback) bool {
			return in.Code == "abc" && in.HMAC == "sig" && in.State == "/customers?page=2" && in.Query.Get("shop") == "demo.myshopify.com"
		})).Return("/customers?page=2", nil)

		rec := serve(router, http.MethodGet, "/token?code=abc&hmac=sig&shop=demo.myshopify.com&state=%2Fcustomers%3Fpage%3D2", "")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/customers?page=2", rec.Header().Get("Location"))
		m.auth.AssertExpectations(t)
	})

	t.Run("upstream failure", func(t *testing.T) {
		router, m := newTestRouter(t)
		m.auth.On("Exchange", mock.Anything, mock.Anything).
			Return("", domain.NewError(domain.ErrUpstreamAuth, "Failed to retrieve access token.", assertErr("request failed with status code 400")))

		rec := serve(router, http.MethodGet, "/token?code=abc&hmac=sig", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, map[string]any{
			"message": "Failed to retrieve access token.",
			"error":   "request failed with status code 400",
		}, decode(t, rec))
	})
}

func TestListCustomers_GuardRedirects(t *testing.T) {
	router, m := newTestRouter(t)
	m.auth.On("RequireAuthorization", mock.Anything, "/customers?page=2").
		Return(&authsvc.NeedsAuthorization{ReturnPath: "/customers?page=2"})

	rec := serve(router, http.MethodGet, "/customers?page=2", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth?next=%2Fcustomers%3Fpage%3D2", rec.Header().Get("Location"))
	m.customers.AssertNotCalled(t, "List", mock.Anything)
}

func TestListCustomers_PassesThroughBody(t *testing.T) {
	router, m := newTestRouter(t)
	m.auth.On("RequireAuthorization", mock.Anything, "/customers").Return(nil)
	m.customers.On("List", mock.Anything).Return(json.RawMessage(`{"data":{"customers":{"edges":[]}}}`), nil)

	rec := serve(router, http.MethodGet, "/customers", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"customers":{"edges":[]}}}`, rec.Body.String())
}

func TestSearchCustomer(t *testing.T) {
	router, m := newTestRouter(t)
	m.customers.On("Search", mock.Anything, "a@x.com").Return(json.RawMessage(`{"customers":[{"id":1}]}`), nil)
	m.customers.On("Search", mock.Anything, "b@x.com").
		Return(nil, domain.NewError(domain.ErrUpstream, "Failed to fetch customers.", assertErr("request failed with status code 502")))

	rec := serve(router, http.MethodGet, "/customers/a@x.com", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"customers":[{"id":1}]}`, rec.Body.String())

	rec = serve(router, http.MethodGet, "/customers/b@x.com", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Failed to fetch customers.", body["message"])
	assert.Equal(t, "request failed with status code 502", body["error"])
}

func TestUpdateConsent_StatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		body   map[string]any
	}{
		{
			name:   "shape",
			err:    domain.NewError(domain.ErrInvalidInputShape, "Input must be an array of objects.", nil),
			status: http.StatusBadRequest,
			body:   map[string]any{"message": "Input must be an array of objects."},
		},
		{
			name:   "invalid value",
			err:    domain.NewError(domain.ErrInvalidValue, `propertyValue must be "true" or "false".`, nil),
			status: http.StatusBadRequest,
			body:   map[string]any{"message": `propertyValue must be "true" or "false".`},
		},
		{
			name:   "no token",
			err:    domain.NewError(domain.ErrMissingCredential, "Access token is missing. Please authenticate using /auth and /token routes.", nil),
			status: http.StatusForbidden,
			body:   map[string]any{"message": "Access token is missing. Please authenticate using /auth and /token routes."},
		},
		{
			name:   "not found",
			err:    domain.NewError(domain.ErrCustomerNotFound, "No customer found with email: missing@x.com", nil),
			status: http.StatusNotFound,
			body:   map[string]any{"message": "No customer found with email: missing@x.com"},
		},
		{
			name:   "upstream",
			err:    domain.NewError(domain.ErrUpstreamUpdate, "Failed to update marketing consent.", assertErr("request failed with status code 422")),
			status: http.StatusInternalServerError,
			body:   map[string]any{"message": "Failed to update marketing consent.", "error": "request failed with status code 422"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, m := newTestRouter(t)
			m.consent.On("ProcessBatch", mock.Anything, mock.Anything).Return(nil, tc.err)

			rec := serve(router, http.MethodPost, "/marketing-consent", `[]`)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.body, decode(t, rec))
		})
	}
}

func TestUpdateConsent_Success(t *testing.T) {
	router, m := newTestRouter(t)
	body := `[{"contact_email":"a@x.com","propertyName":"accepts_marketing","propertyValue":"true"}]`
	m.consent.On("ProcessBatch", mock.Anything, []byte(body)).
		Return(&consentsvc.Result{BatchID: "b1", Applied: 1, Message: consentsvc.SuccessMessage}, nil)

	rec := serve(router, http.MethodPost, "/marketing-consent", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"message": consentsvc.SuccessMessage}, decode(t, rec))
	m.consent.AssertExpectations(t)
}

func TestListBatches(t *testing.T) {
	t.Run("default limit", func(t *testing.T) {
		router, m := newTestRouter(t)
		m.consent.On("RecentBatches", mock.Anything, 20).
			Return([]domain.ConsentBatch{{ID: "b1", Outcome: domain.BatchSucceeded}}, nil)

		rec := serve(router, http.MethodGet, "/marketing-consent/batches", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 1, decode(t, rec)["count"])
		m.consent.AssertExpectations(t)
	})

	t.Run("limit out of range", func(t *testing.T) {
		router, m := newTestRouter(t)

		for _, target := range []string{"/marketing-consent/batches?limit=0", "/marketing-consent/batches?limit=101", "/marketing-consent/batches?limit=x"} {
			rec := serve(router, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		}
		m.consent.AssertNotCalled(t, "RecentBatches", mock.Anything, mock.Anything)
	})

	t.Run("audit disabled", func(t *testing.T) {
		router, m := newTestRouter(t)
		m.consent.On("RecentBatches", mock.Anything, 5).Return(nil, consentsvc.ErrAuditDisabled)

		rec := serve(router, http.MethodGet, "/marketing-consent/batches?limit=5", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestUpdateConsent_BodyTooLarge(t *testing.T) {
	router, m := newTestRouter(t)

	entry := `{"contact_email":"a@x.com","propertyName":"accepts_marketing","propertyValue":"true"}`
	var b strings.Builder
	b.WriteString("[")
	for b.Len() < 6<<20 {
		b.WriteString(entry)
		b.WriteString(",")
	}
	b.WriteString(entry + "]")

	rec := serve(router, http.MethodPost, "/marketing-consent", b.String())
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, map[string]any{"message": "Request body too large."}, decode(t, rec))
	m.consent.AssertNotCalled(t, "ProcessBatch", mock.Anything, mock.Anything)
}

func TestBatchItems(t *testing.T) {
	const id = "00000000-0000-4000-8000-000000000001"

	t.Run("found", func(t *testing.T) {
		router, m := newTestRouter(t)
		m.consent.On("BatchItems", mock.Anything, id).Return(&consentsvc.BatchDetail{
			Batch: domain.ConsentBatch{ID: id, Outcome: domain.BatchAborted, Applied: 1},
			Items: []domain.ConsentBatchItem{{BatchID: id, Email: "a@x.com", CustomerID: 7, State: domain.ConsentSubscribed}},
		}, nil)

		rec := serve(router, http.MethodGet, "/marketing-consent/batches/"+id+"/items", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, domain.BatchAborted, body["batch"].(map[string]any)["outcome"])
		items := body["items"].([]any)
		require.Len(t, items, 1)
		assert.Equal(t, "a@x.com", items[0].(map[string]any)["email"])
	})

	t.Run("unknown id", func(t *testing.T) {
		router, m := newTestRouter(t)
		m.consent.On("BatchItems", mock.Anything, "nope").Return(nil, domain.ErrNotFound)

		rec := serve(router, http.MethodGet, "/marketing-consent/batches/nope/items", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "No consent batch found with id: nope", decode(t, rec)["message"])
	})

	t.Run("audit disabled", func(t *testing.T) {
		router, m := newTestRouter(t)
		m.consent.On("BatchItems", mock.Anything, id).Return(nil, consentsvc.ErrAuditDisabled)

		rec := serve(router, http.MethodGet, "/marketing-consent/batches/"+id+"/items", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
