package models

import (
	"time"

	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/request"
	"github.com/google/uuid"
)

// BloodRequestModel is the persistence model for the BloodRequest aggregate.
type BloodRequestModel struct {
	BaseModel
	RequestNumber    string `gorm:"type:varchar(30);not null;uniqueIndex:idx_blood_requests_number"`
	HospitalID       string `gorm:"type:varchar(64);not null;index:idx_blood_requests_hospital"`
	HospitalEmail    string `gorm:"type:varchar(255)"`
	ComponentType    string `gorm:"type:varchar(20);not null"`
	BloodGroup       string `gorm:"type:varchar(4);not null"`
	Quantity         int    `gorm:"not null"`
	Urgency          string `gorm:"type:varchar(10);not null"`
	PatientName      string `gorm:"type:varchar(200)"`
	PatientAge       int
	Reason           string `gorm:"type:text"`
	RequiredBy       *time.Time
	Status           string `gorm:"type:varchar(20);not null;index:idx_blood_requests_status"`
	ApprovedBy       string `gorm:"type:varchar(255)"`
	ApprovedAt       *time.Time
	ApprovedQuantity int    `gorm:"not null;default:0"`
	RejectionReason  string `gorm:"type:text"`
	DispatchedAt     *time.Time
	CompletedAt      *time.Time
	CancelledAt      *time.Time
}

// TableName returns the table name for GORM
func (BloodRequestModel) TableName() string {
	return "blood_requests"
}

// ToDomain converts the persistence model to a domain BloodRequest.
func (m *BloodRequestModel) ToDomain() *request.BloodRequest {
	return &request.BloodRequest{
		BaseEntity:       m.BaseModel.ToDomain(),
		RequestNumber:    m.RequestNumber,
		HospitalID:       m.HospitalID,
		HospitalEmail:    m.HospitalEmail,
		ComponentType:    inventory.ComponentType(m.ComponentType),
		BloodGroup:       inventory.BloodGroup(m.BloodGroup),
		Quantity:         m.Quantity,
		Urgency:          request.Urgency(m.Urgency),
		PatientName:      m.PatientName,
		PatientAge:       m.PatientAge,
		Reason:           m.Reason,
		RequiredBy:       utcPtr(m.RequiredBy),
		Status:           request.Status(m.Status),
		ApprovedBy:       m.ApprovedBy,
		ApprovedAt:       utcPtr(m.ApprovedAt),
		ApprovedQuantity: m.ApprovedQuantity,
		RejectionReason:  m.RejectionReason,
		DispatchedAt:     utcPtr(m.DispatchedAt),
		CompletedAt:      utcPtr(m.CompletedAt),
		CancelledAt:      utcPtr(m.CancelledAt),
	}
}

// BloodRequestModelFromDomain creates a persistence model from a domain BloodRequest.
func BloodRequestModelFromDomain(r *request.BloodRequest) *BloodRequestModel {
	m := &BloodRequestModel{
		RequestNumber:    r.RequestNumber,
		HospitalID:       r.HospitalID,
		HospitalEmail:    r.HospitalEmail,
		ComponentType:    string(r.ComponentType),
		BloodGroup:       string(r.BloodGroup),
		Quantity:         r.Quantity,
		Urgency:          string(r.Urgency),
		PatientName:      r.PatientName,
		PatientAge:       r.PatientAge,
		Reason:           r.Reason,
		RequiredBy:       r.RequiredBy,
		Status:           string(r.Status),
		ApprovedBy:       r.ApprovedBy,
		ApprovedAt:       r.ApprovedAt,
		ApprovedQuantity: r.ApprovedQuantity,
		RejectionReason:  r.RejectionReason,
		DispatchedAt:     r.DispatchedAt,
		CompletedAt:      r.CompletedAt,
		CancelledAt:      r.CancelledAt,
	}
	m.FromDomainBaseEntity(r.BaseEntity)
	return m
}

// AssignmentModel is the persistence model for a request-component
// assignment. The partial unique index allows one unreleased row per
// component.
type AssignmentModel struct {
	BaseModel
	RequestID    uuid.UUID `gorm:"type:uuid;not null;index:idx_assignments_request"`
	ComponentID  string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_assignments_active_component,where:released_at IS NULL"`
	BloodUnitID  string    `gorm:"type:varchar(40);not null"`
	AssignedAt   time.Time `gorm:"not null"`
	DispatchedAt *time.Time
	ReceivedAt   *time.Time
	ReleasedAt   *time.Time
}

// TableName returns the table name for GORM
func (AssignmentModel) TableName() string {
	return "request_component_assignments"
}

// ToDomain converts the persistence model to a domain Assignment.
func (m *AssignmentModel) ToDomain() request.Assignment {
	return request.Assignment{
		BaseEntity:   m.BaseModel.ToDomain(),
		RequestID:    m.RequestID,
		ComponentID:  m.ComponentID,
		BloodUnitID:  m.BloodUnitID,
		AssignedAt:   m.AssignedAt.UTC(),
		DispatchedAt: utcPtr(m.DispatchedAt),
		ReceivedAt:   utcPtr(m.ReceivedAt),
		ReleasedAt:   utcPtr(m.ReleasedAt),
	}
}

// AssignmentModelFromDomain creates a persistence model from a domain Assignment.
func AssignmentModelFromDomain(a *request.Assignment) *AssignmentModel {
	m := &AssignmentModel{
		RequestID:    a.RequestID,
		ComponentID:  a.ComponentID,
		BloodUnitID:  a.BloodUnitID,
		AssignedAt:   a.AssignedAt,
		DispatchedAt: a.DispatchedAt,
		ReceivedAt:   a.ReceivedAt,
		ReleasedAt:   a.ReleasedAt,
	}
	m.FromDomainBaseEntity(a.BaseEntity)
	return m
}

// TransfusionRecordModel is the persistence model for a TransfusionRecord.
type TransfusionRecordModel struct {
	BaseModel
	ComponentID  string     `gorm:"type:varchar(32);not null;index:idx_transfusions_component"`
	BloodUnitID  string     `gorm:"type:varchar(40);not null"`
	RequestID    *uuid.UUID `gorm:"type:uuid"`
	PatientName  string     `gorm:"type:varchar(200);not null"`
	PatientID    string     `gorm:"type:varchar(64)"`
	TransfusedAt time.Time  `gorm:"not null"`
	Reaction     string     `gorm:"type:varchar(10);not null"`
	Notes        string     `gorm:"type:text"`
	RecordedBy   string     `gorm:"type:varchar(255);not null"`
}

// TableName returns the table name for GORM
func (TransfusionRecordModel) TableName() string {
	return "transfusion_records"
}

// ToDomain converts the persistence model to a domain TransfusionRecord.
func (m *TransfusionRecordModel) ToDomain() request.TransfusionRecord {
	return request.TransfusionRecord{
		BaseEntity:   m.BaseModel.ToDomain(),
		ComponentID:  m.ComponentID,
		BloodUnitID:  m.BloodUnitID,
		RequestID:    m.RequestID,
		PatientName:  m.PatientName,
		PatientID:    m.PatientID,
		TransfusedAt: m.TransfusedAt.UTC(),
		Reaction:     request.Reaction(m.Reaction),
		Notes:        m.Notes,
		RecordedBy:   m.RecordedBy,
	}
}

// TransfusionRecordModelFromDomain creates a persistence model from a domain TransfusionRecord.
func TransfusionRecordModelFromDomain(t *request.TransfusionRecord) *TransfusionRecordModel {
	m := &TransfusionRecordModel{
		ComponentID:  t.ComponentID,
		BloodUnitID:  t.BloodUnitID,
		RequestID:    t.RequestID,
		PatientName:  t.PatientName,
		PatientID:    t.PatientID,
		TransfusedAt: t.TransfusedAt,
		Reaction:     string(t.Reaction),
		Notes:        t.Notes,
		RecordedBy:   t.RecordedBy,
	}
	m.FromDomainBaseEntity(t.BaseEntity)
	return m
}
