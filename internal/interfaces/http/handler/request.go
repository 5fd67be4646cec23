package handler

import (
	"context"

	requestapp "github.com/bloodchain/backend/internal/application/request"
	"github.com/bloodchain/backend/internal/domain/request"
	"github.com/gin-gonic/gin"
)

// RequestReader reads hospital requests.
type RequestReader interface {
	ListPending(ctx context.Context) ([]request.BloodRequest, error)
	Get(ctx context.Context, requestNumber string) (*requestapp.RequestDetail, error)
}

// RequestHandler serves the blood request queue
type RequestHandler struct {
	BaseHandler
	requests RequestReader
}

// NewRequestHandler creates a RequestHandler
func NewRequestHandler(requests RequestReader) *RequestHandler {
	return &RequestHandler{requests: requests}
}

// Pending returns REQUESTED requests in triage order.
func (h *RequestHandler) Pending(c *gin.Context) {
	out, err := h.requests.ListPending(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, out)
}

// Get returns one request with its component assignments.
func (h *RequestHandler) Get(c *gin.Context) {
	detail, err := h.requests.Get(c.Request.Context(), c.Param("requestNumber"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, detail)
}

// RegisterRoutes mounts the request routes under rg
func (h *RequestHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/requests/pending", h.Pending)
	rg.GET("/requests/:requestNumber", h.Get)
}
