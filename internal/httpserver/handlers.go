package httpserver

import (
	"errors"
	"io"
	"net/http"

	"consent-bridge/internal/domain"
	authsvc "consent-bridge/internal/service/auth"
	consentsvc "consent-bridge/internal/service/consent"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxBatchBody = 5 << 20

type handlers struct {
	auth      AuthService
	customers CustomerService
	consent   ConsentService
	logger    *zap.Logger
}

type authQuery struct {
	Next string `form:"next"`
}

type tokenQuery struct {
	Code  string `form:"code"`
	HMAC  string `form:"hmac"`
	State string `form:"state"`
}

type batchesQuery struct {
	Limit int `form:"limit,default=20" binding:"min=1,max=100"`
}

func (h *handlers) startAuth(c *gin.Context) {
	var q authQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid query"})
		return
	}
	c.Redirect(http.StatusFound, h.auth.AuthorizationURL(q.Next))
}

func (h *handlers) exchangeToken(c *gin.Context) {
	var q tokenQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid query"})
		return
	}
	redirect, err := h.auth.Exchange(c.Request.Context(), authsvc.Callback{
		Code:  q.Code,
		HMAC:  q.HMAC,
		State: q.State,
		Query: c.Request.URL.Query(),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, redirect)
}

func (h *handlers) listCustomers(c *gin.Context) {
	raw, err := h.customers.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (h *handlers) searchCustomer(c *gin.Context) {
	raw, err := h.customers.Search(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (h *handlers) updateConsent(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBatchBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "Request body too large."})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "could not read request body"})
		return
	}
	res, err := h.consent.ProcessBatch(c.Request.Context(), body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": res.Message})
}

func (h *handlers) listBatches(c *gin.Context) {
	var q batchesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "limit must be between 1 and 100"})
		return
	}
	batches, err := h.consent.RecentBatches(c.Request.Context(), q.Limit)
	if errors.Is(err, consentsvc.ErrAuditDisabled) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Consent audit log is not enabled."})
		return
	}
	if err != nil {
		h.logger.Error("list consent batches", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to list consent batches.", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": batches, "count": len(batches)})
}

func (h *handlers) batchItems(c *gin.Context) {
	detail, err := h.consent.BatchItems(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, consentsvc.ErrAuditDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Consent audit log is not enabled."})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "No consent batch found with id: " + c.Param("id")})
	case err != nil:
		h.logger.Error("list consent batch items", zap.String("batch_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to list consent batch items.", "error": err.Error()})
	default:
		c.JSON(http.StatusOK, detail)
	}
}
