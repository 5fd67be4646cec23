package models

import (
	"time"

	"github.com/bloodchain/backend/internal/domain/donation"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

// DonationRequestModel is the persistence model for the DonationRequest aggregate.
type DonationRequestModel struct {
	BaseModel
	DonorID           string `gorm:"type:varchar(64);not null;index:idx_donation_requests_donor_status,priority:1"`
	DonorEmail        string `gorm:"type:varchar(255)"`
	BloodBankID       string `gorm:"type:varchar(64)"`
	BloodGroup        string `gorm:"type:varchar(4);not null"`
	DonationType      string `gorm:"type:varchar(20);not null"`
	PreferredDate     *time.Time
	Location          string `gorm:"type:varchar(200)"`
	HealthDeclaration string `gorm:"type:text"`
	Age               int
	WeightKg          decimal.Decimal `gorm:"type:decimal(5,1);not null"`
	Status            string          `gorm:"type:varchar(20);not null;index:idx_donation_requests_donor_status,priority:2"`
	ApprovedBy        string          `gorm:"type:varchar(255)"`
	ApprovedAt        *time.Time
	RejectionReason   string `gorm:"type:text"`
	AppointmentDate   *time.Time
	AppointmentTime   string `gorm:"type:varchar(10)"`
	AppointmentNotes  string `gorm:"type:text"`
	BloodUnitID       string `gorm:"type:varchar(40)"`
	CompletedAt       *time.Time
}

// TableName returns the table name for GORM
func (DonationRequestModel) TableName() string {
	return "donation_requests"
}

// ToDomain converts the persistence model to a domain DonationRequest.
func (m *DonationRequestModel) ToDomain() *donation.DonationRequest {
	return &donation.DonationRequest{
		BaseEntity:        m.BaseModel.ToDomain(),
		DonorID:           m.DonorID,
		DonorEmail:        m.DonorEmail,
		BloodBankID:       m.BloodBankID,
		BloodGroup:        inventory.BloodGroup(m.BloodGroup),
		DonationType:      inventory.ComponentType(m.DonationType),
		PreferredDate:     utcPtr(m.PreferredDate),
		Location:          m.Location,
		HealthDeclaration: m.HealthDeclaration,
		Age:               m.Age,
		WeightKg:          m.WeightKg,
		Status:            donation.Status(m.Status),
		ApprovedBy:        m.ApprovedBy,
		ApprovedAt:        utcPtr(m.ApprovedAt),
		RejectionReason:   m.RejectionReason,
		AppointmentDate:   utcPtr(m.AppointmentDate),
		AppointmentTime:   m.AppointmentTime,
		AppointmentNotes:  m.AppointmentNotes,
		BloodUnitID:       m.BloodUnitID,
		CompletedAt:       utcPtr(m.CompletedAt),
	}
}

// DonationRequestModelFromDomain creates a persistence model from a domain DonationRequest.
func DonationRequestModelFromDomain(d *donation.DonationRequest) *DonationRequestModel {
	m := &DonationRequestModel{
		DonorID:           d.DonorID,
		DonorEmail:        d.DonorEmail,
		BloodBankID:       d.BloodBankID,
		BloodGroup:        string(d.BloodGroup),
		DonationType:      string(d.DonationType),
		PreferredDate:     d.PreferredDate,
		Location:          d.Location,
		HealthDeclaration: d.HealthDeclaration,
		Age:               d.Age,
		WeightKg:          d.WeightKg,
		Status:            string(d.Status),
		ApprovedBy:        d.ApprovedBy,
		ApprovedAt:        d.ApprovedAt,
		RejectionReason:   d.RejectionReason,
		AppointmentDate:   d.AppointmentDate,
		AppointmentTime:   d.AppointmentTime,
		AppointmentNotes:  d.AppointmentNotes,
		BloodUnitID:       d.BloodUnitID,
		CompletedAt:       d.CompletedAt,
	}
	m.FromDomainBaseEntity(d.BaseEntity)
	return m
}

// DonorModel is the slice of the identity record the core reads. The table
// is owned by the identity service; this service only writes
// last_donation_date.
type DonorModel struct {
	ID               string `gorm:"type:varchar(64);primary_key"`
	Name             string `gorm:"type:varchar(200)"`
	Email            string `gorm:"type:varchar(255)"`
	BloodGroup       string `gorm:"type:varchar(4)"`
	City             string `gorm:"type:varchar(100)"`
	Role             string `gorm:"type:varchar(40)"`
	Age              *int
	LastDonationDate *time.Time
}

// TableName returns the table name for GORM
func (DonorModel) TableName() string {
	return "donors"
}

// ToDomain converts the persistence model to a domain Donor.
func (m *DonorModel) ToDomain() *donation.Donor {
	return &donation.Donor{
		ID:               m.ID,
		Name:             m.Name,
		Email:            m.Email,
		BloodGroup:       inventory.BloodGroup(m.BloodGroup),
		City:             m.City,
		Role:             m.Role,
		Age:              m.Age,
		LastDonationDate: utcPtr(m.LastDonationDate),
	}
}

// DonorModelFromDomain creates a persistence model from a domain Donor.
func DonorModelFromDomain(d *donation.Donor) *DonorModel {
	return &DonorModel{
		ID:               d.ID,
		Name:             d.Name,
		Email:            d.Email,
		BloodGroup:       string(d.BloodGroup),
		City:             d.City,
		Role:             d.Role,
		Age:              d.Age,
		LastDonationDate: d.LastDonationDate,
	}
}
