// Package ledger holds the append-only, hash-chained audit log. Entries form
// one global chain ordered by Sequence; each entry's PreviousHash is the hash
// of the entry before it, and the first entry points at GenesisHash.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// GenesisHash is the previous-hash of the first entry ever written.
const GenesisHash = "0"

// Actions written by the lifecycles.
const (
	ActionBloodCollected          = "BLOOD_COLLECTED"
	ActionBloodCollectedAndTested = "BLOOD_COLLECTED_AND_TESTED"
	ActionUnitCreated             = "UNIT_CREATED"
	ActionBloodTested             = "BLOOD_TESTED"
	ActionBloodRejected           = "BLOOD_REJECTED"
	ActionStatusChanged           = "STATUS_CHANGED"
	ActionBloodExpired            = "BLOOD_EXPIRED"
	ActionComponentsCreated       = "COMPONENTS_CREATED"
	ActionComponentStatusChanged  = "COMPONENT_STATUS_CHANGED"
	ActionComponentExpired        = "COMPONENT_EXPIRED"
	ActionBloodReceived           = "BLOOD_RECEIVED"
	ActionBloodTransfused         = "BLOOD_TRANSFUSED"
	ActionAdverseReaction         = "ADVERSE_REACTION"
	ActionRequestStatusChanged    = "REQUEST_STATUS_CHANGED"
	ActionDonationStatusChanged   = "DONATION_STATUS_CHANGED"
)

// Roles attached to system-originated entries.
const (
	ActorSystem = "SYSTEM"
	RoleSystem  = "SYSTEM"
)

// Draft is what a caller supplies; the chain fields are filled in by NewEntry.
type Draft struct {
	SubjectID      string
	Action         string
	Actor          string
	ActorRole      string
	PreviousStatus string
	NewStatus      string
	Details        string
}

// Head is the tip of the chain. The zero Head means the chain is empty.
type Head struct {
	Sequence  int64
	Hash      string
	Timestamp time.Time
}

// IsEmpty reports whether no entry has been written yet.
func (h Head) IsEmpty() bool {
	return h.Sequence == 0
}

// Entry is one immutable audit record.
type Entry struct {
	ID             uuid.UUID
	Sequence       int64
	SubjectID      string
	Action         string
	Actor          string
	ActorRole      string
	PreviousStatus string
	NewStatus      string
	Details        string
	Timestamp      time.Time
	PreviousHash   string
	Hash           string
}

// NewEntry chains draft onto head. Timestamps are normalized and forced to be
// strictly after the head's so the chain is totally ordered in time as well as
// by sequence.
func NewEntry(draft Draft, head Head, now time.Time) (*Entry, error) {
	if strings.TrimSpace(draft.SubjectID) == "" {
		return nil, shared.Validation("ledger entry subject is required")
	}
	if strings.TrimSpace(draft.Action) == "" {
		return nil, shared.Validation("ledger entry action is required")
	}
	if strings.TrimSpace(draft.Actor) == "" {
		return nil, shared.Validation("ledger entry actor is required")
	}
	if !head.IsEmpty() && head.Hash == "" {
		return nil, shared.NewDomainError(shared.CodeIntegrityFailure, "ledger head has no hash")
	}

	ts := NormalizeTimestamp(now)
	if !head.IsEmpty() {
		if prev := NormalizeTimestamp(head.Timestamp); !ts.After(prev) {
			ts = prev.Add(time.Microsecond)
		}
	}

	prevHash := GenesisHash
	if !head.IsEmpty() {
		prevHash = head.Hash
	}

	e := &Entry{
		ID:             uuid.New(),
		Sequence:       head.Sequence + 1,
		SubjectID:      draft.SubjectID,
		Action:         draft.Action,
		Actor:          draft.Actor,
		ActorRole:      draft.ActorRole,
		PreviousStatus: draft.PreviousStatus,
		NewStatus:      draft.NewStatus,
		Details:        draft.Details,
		Timestamp:      ts,
		PreviousHash:   prevHash,
	}
	e.Hash = e.ComputeHash()
	return e, nil
}

// ComputeHash recomputes the entry hash from its stored fields.
func (e *Entry) ComputeHash() string {
	return ComputeHash(e.SubjectID, e.Action, e.Timestamp, e.PreviousHash, e.Details)
}

// Head returns the chain head after this entry.
func (e *Entry) Head() Head {
	return Head{Sequence: e.Sequence, Hash: e.Hash, Timestamp: e.Timestamp}
}

// ComputeHash is SHA-256 over subject, action, timestamp, previous hash and
// details, hex encoded.
func ComputeHash(subjectID, action string, ts time.Time, previousHash, details string) string {
	h := sha256.New()
	h.Write([]byte(subjectID))
	h.Write([]byte(action))
	h.Write([]byte(FormatTimestamp(ts)))
	h.Write([]byte(previousHash))
	h.Write([]byte(details))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeTimestamp is the form timestamps are stored and hashed in: UTC,
// microsecond precision.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// FormatTimestamp renders the hashed form of a timestamp.
func FormatTimestamp(t time.Time) string {
	return NormalizeTimestamp(t).Format(time.RFC3339Nano)
}
