package donation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubmitDonationCommand is a donor's donation request.
type SubmitDonationCommand struct {
	DonorID           string          `json:"donor_id" validate:"required"`
	BloodBankID       string          `json:"blood_bank_id"`
	BloodGroup        string          `json:"blood_group" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	DonationType      string          `json:"donation_type" validate:"omitempty,oneof=RBC PLASMA PLATELETS WHOLE_BLOOD"`
	PreferredDate     *time.Time      `json:"preferred_date"`
	Location          string          `json:"location" validate:"max=200"`
	HealthDeclaration string          `json:"health_declaration" validate:"max=4000"`
	Age               int             `json:"age" validate:"required,gt=0,lt=150"`
	WeightKg          decimal.Decimal `json:"weight_kg"`
}

// ScheduleDonationCommand books an appointment for an approved request.
type ScheduleDonationCommand struct {
	DonationID uuid.UUID `json:"donation_id" validate:"required"`
	Date       time.Time `json:"date" validate:"required"`
	Time       string    `json:"time" validate:"max=20"`
	Notes      string    `json:"notes" validate:"max=2000"`
	Actor      string    `json:"actor" validate:"required"`
}

// CompleteDonationCommand records the collection that closes a request.
type CompleteDonationCommand struct {
	DonationID      uuid.UUID `json:"donation_id" validate:"required"`
	BloodBankID     string    `json:"blood_bank_id" validate:"required"`
	BloodBankName   string    `json:"blood_bank_name" validate:"required"`
	VolumeML        int       `json:"volume_ml" validate:"gte=0,lte=1000"`
	StorageLocation string    `json:"storage_location"`
}

// CompletionResult is what a completed donation produced.
type CompletionResult struct {
	DonationID uuid.UUID `json:"donation_id"`
	UnitNumber string    `json:"unit_number"`
	Components []string  `json:"components"`
}
