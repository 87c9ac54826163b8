package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"consent-bridge/internal/domain"
	"consent-bridge/internal/logger"
	authsvc "consent-bridge/internal/service/auth"
	consentsvc "consent-bridge/internal/service/consent"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AuthService drives the OAuth flow and the access guard.
type AuthService interface {
	AuthorizationURL(nextPath string) string
	Exchange(ctx context.Context, in authsvc.Callback) (string, error)
	RequireAuthorization(ctx context.Context, returnPath string) *authsvc.NeedsAuthorization
}

// CustomerService proxies customer reads.
type CustomerService interface {
	Search(ctx context.Context, email string) (json.RawMessage, error)
	List(ctx context.Context) (json.RawMessage, error)
}

// ConsentService applies consent batches.
type ConsentService interface {
	ProcessBatch(ctx context.Context, body []byte) (*consentsvc.Result, error)
	RecentBatches(ctx context.Context, limit int) ([]domain.ConsentBatch, error)
	BatchItems(ctx context.Context, id string) (*consentsvc.BatchDetail, error)
}

// Deps groups the services the router dispatches to.
type Deps struct {
	AuthSvc     AuthService
	CustomerSvc CustomerService
	ConsentSvc  ConsentService
	// Metrics is served on /metrics when set.
	Metrics          http.Handler
	CORSAllowOrigins []string
}

func (d Deps) validate() error {
	if d.AuthSvc == nil {
		return errors.New("auth service is required")
	}
	if d.CustomerSvc == nil {
		return errors.New("customer service is required")
	}
	if d.ConsentSvc == nil {
		return errors.New("consent service is required")
	}
	return nil
}

// buildRouter wires routes for the API.
func buildRouter(l *zap.Logger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(logger.GinMiddleware(l), logger.Recovery(l))
	if len(deps.CORSAllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: deps.CORSAllowOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	h := &handlers{
		auth:      deps.AuthSvc,
		customers: deps.CustomerSvc,
		consent:   deps.ConsentSvc,
		logger:    l.Named("http"),
	}

	router.GET("/auth", h.startAuth)
	router.GET("/token", h.exchangeToken)

	router.GET("/customers", requireToken(deps.AuthSvc), h.listCustomers)
	router.GET("/customers/:email", h.searchCustomer)

	router.POST("/marketing-consent", h.updateConsent)
	router.GET("/marketing-consent/batches", h.listBatches)
	router.GET("/marketing-consent/batches/:id/items", h.batchItems)

	return router, nil
}

// requireToken redirects to /auth, carrying the requested URI, while no
// access token is held.
func requireToken(auth AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if needs := auth.RequireAuthorization(c.Request.Context(), c.Request.URL.RequestURI()); needs != nil {
			c.Redirect(http.StatusFound, needs.RedirectURL())
			c.Abort()
			return
		}
		c.Next()
	}
}
