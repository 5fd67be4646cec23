package models

import (
	"time"

	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BloodUnitModel is the persistence model for the BloodUnit entity.
type BloodUnitModel struct {
	BaseModel
	Serial            int64      `gorm:"not null;uniqueIndex:idx_blood_units_serial"`
	UnitNumber        string     `gorm:"type:varchar(40);not null;uniqueIndex:idx_blood_units_number"`
	DonorID           string     `gorm:"type:varchar(64);not null;index:idx_blood_units_donor"`
	BloodBankID       string     `gorm:"type:varchar(64)"`
	DonationRequestID *uuid.UUID `gorm:"type:uuid"`
	BloodGroup        string     `gorm:"type:varchar(4);not null"`
	DonationType      string     `gorm:"type:varchar(20);not null"`
	CollectionDate    time.Time  `gorm:"not null"`
	ExpiryDate        time.Time  `gorm:"not null;index:idx_blood_units_status_expiry,priority:2"`
	Status            string     `gorm:"type:varchar(20);not null;index:idx_blood_units_status_expiry,priority:1"`
	HIV               string     `gorm:"column:hiv;type:varchar(10);not null"`
	HBV               string     `gorm:"column:hbv;type:varchar(10);not null"`
	HCV               string     `gorm:"column:hcv;type:varchar(10);not null"`
	TestStatus        string     `gorm:"type:varchar(10);not null"`
	VolumeML          int        `gorm:"column:volume_ml;not null"`
	StorageLocation   string     `gorm:"type:varchar(100)"`
	IntegrityHash     string     `gorm:"type:varchar(64);not null"`
}

// TableName returns the table name for GORM
func (BloodUnitModel) TableName() string {
	return "blood_units"
}

// ToDomain converts the persistence model to a domain BloodUnit.
func (m *BloodUnitModel) ToDomain() *inventory.BloodUnit {
	return &inventory.BloodUnit{
		BaseEntity:        m.BaseModel.ToDomain(),
		Serial:            m.Serial,
		UnitNumber:        m.UnitNumber,
		DonorID:           m.DonorID,
		BloodBankID:       m.BloodBankID,
		DonationRequestID: m.DonationRequestID,
		BloodGroup:        inventory.BloodGroup(m.BloodGroup),
		DonationType:      inventory.ComponentType(m.DonationType),
		CollectionDate:    m.CollectionDate.UTC(),
		ExpiryDate:        m.ExpiryDate.UTC(),
		Status:            inventory.UnitStatus(m.Status),
		HIV:               inventory.TestResult(m.HIV),
		HBV:               inventory.TestResult(m.HBV),
		HCV:               inventory.TestResult(m.HCV),
		TestStatus:        inventory.TestStatus(m.TestStatus),
		VolumeML:          m.VolumeML,
		StorageLocation:   m.StorageLocation,
		IntegrityHash:     m.IntegrityHash,
	}
}

// FromDomain populates the persistence model from a domain BloodUnit.
func (m *BloodUnitModel) FromDomain(u *inventory.BloodUnit) {
	m.FromDomainBaseEntity(u.BaseEntity)
	m.Serial = u.Serial
	m.UnitNumber = u.UnitNumber
	m.DonorID = u.DonorID
	m.BloodBankID = u.BloodBankID
	m.DonationRequestID = u.DonationRequestID
	m.BloodGroup = string(u.BloodGroup)
	m.DonationType = string(u.DonationType)
	m.CollectionDate = u.CollectionDate
	m.ExpiryDate = u.ExpiryDate
	m.Status = string(u.Status)
	m.HIV = string(u.HIV)
	m.HBV = string(u.HBV)
	m.HCV = string(u.HCV)
	m.TestStatus = string(u.TestStatus)
	m.VolumeML = u.VolumeML
	m.StorageLocation = u.StorageLocation
	m.IntegrityHash = u.IntegrityHash
}

// BloodUnitModelFromDomain creates a new persistence model from a domain BloodUnit.
func BloodUnitModelFromDomain(u *inventory.BloodUnit) *BloodUnitModel {
	m := &BloodUnitModel{}
	m.FromDomain(u)
	return m
}

// BloodComponentModel is the persistence model for the BloodComponent entity.
// The allocation index matches the FEFO query: type, group and status
// equality then expiry order.
type BloodComponentModel struct {
	ID                 string          `gorm:"type:varchar(32);primary_key"`
	BloodUnitID        string          `gorm:"type:varchar(40);not null;index:idx_blood_components_unit"`
	Type               string          `gorm:"column:component_type;type:varchar(20);not null;index:idx_blood_components_allocation,priority:1"`
	BloodGroup         string          `gorm:"type:varchar(4);not null;index:idx_blood_components_allocation,priority:2"`
	Status             string          `gorm:"type:varchar(20);not null;index:idx_blood_components_allocation,priority:3"`
	ExpiryDate         time.Time       `gorm:"not null;index:idx_blood_components_allocation,priority:4"`
	SeparationDate     time.Time       `gorm:"not null"`
	VolumeML           int             `gorm:"column:volume_ml;not null"`
	StorageRequirement string          `gorm:"type:varchar(100)"`
	StorageTempC       decimal.Decimal `gorm:"column:storage_temp_c;type:decimal(5,1);not null"`
	CreatedAt          time.Time       `gorm:"not null"`
	UpdatedAt          time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BloodComponentModel) TableName() string {
	return "blood_components"
}

// ToDomain converts the persistence model to a domain BloodComponent.
func (m *BloodComponentModel) ToDomain() inventory.BloodComponent {
	return inventory.BloodComponent{
		ID:                 m.ID,
		BloodUnitID:        m.BloodUnitID,
		Type:               inventory.ComponentType(m.Type),
		BloodGroup:         inventory.BloodGroup(m.BloodGroup),
		SeparationDate:     m.SeparationDate.UTC(),
		ExpiryDate:         m.ExpiryDate.UTC(),
		Status:             inventory.ComponentStatus(m.Status),
		VolumeML:           m.VolumeML,
		StorageRequirement: m.StorageRequirement,
		StorageTempC:       m.StorageTempC,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}
}

// BloodComponentModelFromDomain creates a persistence model from a domain BloodComponent.
func BloodComponentModelFromDomain(c *inventory.BloodComponent) *BloodComponentModel {
	return &BloodComponentModel{
		ID:                 c.ID,
		BloodUnitID:        c.BloodUnitID,
		Type:               string(c.Type),
		BloodGroup:         string(c.BloodGroup),
		SeparationDate:     c.SeparationDate,
		ExpiryDate:         c.ExpiryDate,
		Status:             string(c.Status),
		VolumeML:           c.VolumeML,
		StorageRequirement: c.StorageRequirement,
		StorageTempC:       c.StorageTempC,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}
