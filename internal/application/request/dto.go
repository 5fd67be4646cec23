package request

import (
	"time"

	"github.com/bloodchain/backend/internal/domain/request"
)

// CreateRequestCommand is a requester's submission.
type CreateRequestCommand struct {
	HospitalID    string     `json:"hospital_id" validate:"required"`
	HospitalEmail string     `json:"hospital_email" validate:"omitempty,email"`
	ComponentType string     `json:"component_type" validate:"required,oneof=RBC PLASMA PLATELETS WHOLE_BLOOD"`
	BloodGroup    string     `json:"blood_group" validate:"required,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Quantity      int        `json:"quantity" validate:"required,gt=0,lte=100"`
	Urgency       string     `json:"urgency" validate:"omitempty,oneof=ROUTINE URGENT EMERGENCY"`
	PatientName   string     `json:"patient_name" validate:"max=200"`
	PatientAge    int        `json:"patient_age" validate:"gte=0,lte=150"`
	Reason        string     `json:"reason" validate:"max=2000"`
	RequiredBy    *time.Time `json:"required_by"`
	Actor         string     `json:"actor" validate:"required"`
}

// RecordTransfusionCommand documents the use of a received component.
type RecordTransfusionCommand struct {
	ComponentID   string     `json:"component_id" validate:"required"`
	RequestNumber string     `json:"request_number"`
	PatientName   string     `json:"patient_name" validate:"required,max=200"`
	PatientID     string     `json:"patient_id" validate:"max=100"`
	TransfusedAt  *time.Time `json:"transfused_at"`
	Reaction      string     `json:"reaction" validate:"omitempty,oneof=NONE MILD MODERATE SEVERE"`
	Notes         string     `json:"notes" validate:"max=2000"`
	Actor         string     `json:"actor" validate:"required"`
}

// RequestDetail is a request with its component assignments.
type RequestDetail struct {
	Request     request.BloodRequest `json:"request"`
	Assignments []request.Assignment `json:"assignments"`
}
