package models

import (
	"time"

	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/google/uuid"
)

// LedgerHeadID is the primary key of the only row in ledger_heads.
const LedgerHeadID = 1

// LedgerEntryModel is the persistence model for a ledger entry. Rows are
// inserted once and never updated.
type LedgerEntryModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	Sequence       int64     `gorm:"not null;uniqueIndex:idx_ledger_entries_sequence"`
	SubjectID      string    `gorm:"type:varchar(64);not null;index:idx_ledger_entries_subject"`
	Action         string    `gorm:"type:varchar(40);not null;index:idx_ledger_entries_action"`
	Actor          string    `gorm:"type:varchar(255);not null;index:idx_ledger_entries_actor"`
	ActorRole      string    `gorm:"type:varchar(40)"`
	PreviousStatus string    `gorm:"type:varchar(30)"`
	NewStatus      string    `gorm:"type:varchar(30)"`
	Details        string    `gorm:"type:text"`
	Timestamp      time.Time `gorm:"not null;index:idx_ledger_entries_timestamp"`
	PreviousHash   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_ledger_entries_previous_hash"`
	Hash           string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_ledger_entries_hash"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// ToDomain converts the persistence model to a domain Entry.
func (m *LedgerEntryModel) ToDomain() ledger.Entry {
	return ledger.Entry{
		ID:             m.ID,
		Sequence:       m.Sequence,
		SubjectID:      m.SubjectID,
		Action:         m.Action,
		Actor:          m.Actor,
		ActorRole:      m.ActorRole,
		PreviousStatus: m.PreviousStatus,
		NewStatus:      m.NewStatus,
		Details:        m.Details,
		Timestamp:      ledger.NormalizeTimestamp(m.Timestamp),
		PreviousHash:   m.PreviousHash,
		Hash:           m.Hash,
	}
}

// LedgerEntryModelFromDomain creates a persistence model from a domain Entry.
func LedgerEntryModelFromDomain(e *ledger.Entry) *LedgerEntryModel {
	return &LedgerEntryModel{
		ID:             e.ID,
		Sequence:       e.Sequence,
		SubjectID:      e.SubjectID,
		Action:         e.Action,
		Actor:          e.Actor,
		ActorRole:      e.ActorRole,
		PreviousStatus: e.PreviousStatus,
		NewStatus:      e.NewStatus,
		Details:        e.Details,
		Timestamp:      e.Timestamp,
		PreviousHash:   e.PreviousHash,
		Hash:           e.Hash,
	}
}

// LedgerHeadModel is the single row that points at the newest entry. Appenders
// lock it FOR UPDATE, which serializes the read-hash-insert cycle.
type LedgerHeadModel struct {
	ID        int    `gorm:"primary_key"`
	Sequence  int64  `gorm:"not null;default:0"`
	Hash      string `gorm:"type:varchar(64);not null;default:''"`
	Timestamp *time.Time
}

// TableName returns the table name for GORM
func (LedgerHeadModel) TableName() string {
	return "ledger_heads"
}

// ToDomain converts the head row to a domain Head.
func (m *LedgerHeadModel) ToDomain() ledger.Head {
	h := ledger.Head{Sequence: m.Sequence, Hash: m.Hash}
	if m.Timestamp != nil {
		h.Timestamp = ledger.NormalizeTimestamp(*m.Timestamp)
	}
	return h
}
