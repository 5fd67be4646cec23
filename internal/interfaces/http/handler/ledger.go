package handler

import (
	"context"
	"net/http"

	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/interfaces/http/dto"
	"github.com/bloodchain/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// LedgerVerifier walks the whole chain.
type LedgerVerifier interface {
	Verify(ctx context.Context) (ledger.VerifyReport, error)
}

// LedgerHandler serves ledger verification
type LedgerHandler struct {
	BaseHandler
	verifier LedgerVerifier
}

// NewLedgerHandler creates a LedgerHandler
func NewLedgerHandler(verifier LedgerVerifier) *LedgerHandler {
	return &LedgerHandler{verifier: verifier}
}

// Verify answers 200 with the report when the chain is intact and 500 with
// the same report when it is not.
func (h *LedgerHandler) Verify(c *gin.Context) {
	report, err := h.verifier.Verify(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !report.OK {
		c.JSON(http.StatusInternalServerError, dto.Response{
			Success: false,
			Data:    report,
			Error: &dto.ErrorInfo{
				Code:      dto.ErrCodeIntegrityFailure,
				Message:   "Ledger chain verification failed",
				RequestID: middleware.GetRequestID(c),
			},
		})
		return
	}
	h.Success(c, report)
}

// RegisterRoutes mounts the ledger routes under rg
func (h *LedgerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ledger/verify", h.Verify)
}
