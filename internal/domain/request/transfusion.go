package request

import (
	"time"

	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Reaction is the severity of an adverse transfusion reaction.
type Reaction string

const (
	ReactionNone     Reaction = "NONE"
	ReactionMild     Reaction = "MILD"
	ReactionModerate Reaction = "MODERATE"
	ReactionSevere   Reaction = "SEVERE"
)

// IsValid checks if the reaction is known
func (r Reaction) IsValid() bool {
	switch r {
	case ReactionNone, ReactionMild, ReactionModerate, ReactionSevere:
		return true
	}
	return false
}

// TransfusionRecord documents the use of one component on a patient.
type TransfusionRecord struct {
	shared.BaseEntity
	ComponentID  string
	BloodUnitID  string
	RequestID    *uuid.UUID
	PatientName  string
	PatientID    string
	TransfusedAt time.Time
	Reaction     Reaction
	Notes        string
	RecordedBy   string
}
