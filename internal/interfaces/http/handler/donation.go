package handler

import (
	"context"

	"github.com/bloodchain/backend/internal/domain/donation"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DonationReader reads donation requests and donor eligibility.
type DonationReader interface {
	Get(ctx context.Context, id uuid.UUID) (*donation.DonationRequest, error)
	ListByDonor(ctx context.Context, donorID string) ([]donation.DonationRequest, error)
	CheckEligibility(ctx context.Context, donorID string) (donation.Eligibility, error)
}

// DonationHandler serves donation requests and donor eligibility
type DonationHandler struct {
	BaseHandler
	donations DonationReader
}

// NewDonationHandler creates a DonationHandler
func NewDonationHandler(donations DonationReader) *DonationHandler {
	return &DonationHandler{donations: donations}
}

// Get returns one donation request.
func (h *DonationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.HandleError(c, shared.Validation("invalid donation id: %s", c.Param("id")))
		return
	}
	d, err := h.donations.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, d)
}

// ByDonor returns a donor's requests, newest first.
func (h *DonationHandler) ByDonor(c *gin.Context) {
	out, err := h.donations.ListByDonor(c.Request.Context(), c.Param("donorID"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, out)
}

// Eligibility evaluates whether the donor may donate today.
func (h *DonationHandler) Eligibility(c *gin.Context) {
	e, err := h.donations.CheckEligibility(c.Request.Context(), c.Param("donorID"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, e)
}

// RegisterRoutes mounts the donation routes under rg
func (h *DonationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/donations/:id", h.Get)
	rg.GET("/donors/:donorID/donations", h.ByDonor)
	rg.GET("/donors/:donorID/eligibility", h.Eligibility)
}
