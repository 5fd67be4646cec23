package handler

import (
	"context"

	inventoryapp "github.com/bloodchain/backend/internal/application/inventory"
	"github.com/gin-gonic/gin"
)

// ProvenanceReader returns a unit's recorded history.
type ProvenanceReader interface {
	Provenance(ctx context.Context, unitNumber string) (*inventoryapp.Provenance, error)
}

// StockSummarizer returns the inventory dashboard view.
type StockSummarizer interface {
	Summary(ctx context.Context) (*inventoryapp.StockSummary, error)
}

// InventoryHandler serves unit provenance and the stock summary
type InventoryHandler struct {
	BaseHandler
	provenance ProvenanceReader
	summary    StockSummarizer
}

// NewInventoryHandler creates an InventoryHandler
func NewInventoryHandler(provenance ProvenanceReader, summary StockSummarizer) *InventoryHandler {
	return &InventoryHandler{provenance: provenance, summary: summary}
}

// Provenance returns the unit, its components, its ledger trail and the
// integrity checks.
func (h *InventoryHandler) Provenance(c *gin.Context) {
	p, err := h.provenance.Provenance(c.Request.Context(), c.Param("unitNumber"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, p)
}

// Summary returns available stock by component type and blood group.
func (h *InventoryHandler) Summary(c *gin.Context) {
	s, err := h.summary.Summary(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, s)
}

// RegisterRoutes mounts the inventory routes under rg
func (h *InventoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/units/:unitNumber/provenance", h.Provenance)
	rg.GET("/inventory/summary", h.Summary)
}
