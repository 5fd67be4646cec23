package inventory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// UnitStatus is the lifecycle status of a blood unit.
type UnitStatus string

const (
	UnitCollected  UnitStatus = "COLLECTED"
	UnitTested     UnitStatus = "TESTED"
	UnitStored     UnitStatus = "STORED"
	UnitRequested  UnitStatus = "REQUESTED"
	UnitApproved   UnitStatus = "APPROVED"
	UnitDispatched UnitStatus = "DISPATCHED"
	UnitReceived   UnitStatus = "RECEIVED"
	UnitUsed       UnitStatus = "USED"
	UnitExpired    UnitStatus = "EXPIRED"
	UnitRejected   UnitStatus = "REJECTED"
)

// UnitTransitions is the unit state machine. USED, EXPIRED and REJECTED
// have no outgoing edges.
var UnitTransitions = shared.NewTransitionTable("blood unit", map[UnitStatus][]UnitStatus{
	UnitCollected:  {UnitTested, UnitRejected},
	UnitTested:     {UnitStored, UnitRejected},
	UnitStored:     {UnitRequested, UnitExpired},
	UnitRequested:  {UnitApproved, UnitStored},
	UnitApproved:   {UnitDispatched},
	UnitDispatched: {UnitReceived},
	UnitReceived:   {UnitUsed},
})

// AllUnitStatuses lists every unit status.
var AllUnitStatuses = []UnitStatus{
	UnitCollected, UnitTested, UnitStored, UnitRequested, UnitApproved,
	UnitDispatched, UnitReceived, UnitUsed, UnitExpired, UnitRejected,
}

// IsValid checks if the status is known
func (s UnitStatus) IsValid() bool {
	for _, v := range AllUnitStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// String returns the string representation
func (s UnitStatus) String() string {
	return string(s)
}

// CanTransitionTo checks the unit transition table
func (s UnitStatus) CanTransitionTo(target UnitStatus) bool {
	return UnitTransitions.Allows(s, target)
}

// IsTerminal reports whether no further transition is possible
func (s UnitStatus) IsTerminal() bool {
	return UnitTransitions.IsTerminal(s)
}

// TestResult is the outcome of one infectious marker screen.
type TestResult string

const (
	TestPending  TestResult = "PENDING"
	TestNegative TestResult = "NEGATIVE"
	TestPositive TestResult = "POSITIVE"
)

// IsValid checks if the result is known
func (r TestResult) IsValid() bool {
	return r == TestPending || r == TestNegative || r == TestPositive
}

// TestStatus is the overall screening outcome of a unit.
type TestStatus string

const (
	TestStatusPending TestStatus = "PENDING"
	TestStatusPassed  TestStatus = "PASSED"
	TestStatusFailed  TestStatus = "FAILED"
)

// WholeBloodShelfDays is the shelf life of a whole-blood unit.
const WholeBloodShelfDays = 35

// DefaultVolumeML is used when a collection does not state its volume.
const DefaultVolumeML = 450

// BloodUnit is one physical donation.
type BloodUnit struct {
	shared.BaseEntity
	Serial            int64
	UnitNumber        string
	DonorID           string
	BloodBankID       string
	DonationRequestID *uuid.UUID
	BloodGroup        BloodGroup
	DonationType      ComponentType
	CollectionDate    time.Time
	ExpiryDate        time.Time
	Status            UnitStatus
	HIV               TestResult
	HBV               TestResult
	HCV               TestResult
	TestStatus        TestStatus
	VolumeML          int
	StorageLocation   string
	IntegrityHash     string
}

// NewUnitParams holds what a collection knows about a new unit.
type NewUnitParams struct {
	Serial            int64
	UnitNumber        string
	DonorID           string
	BloodBankID       string
	DonationRequestID *uuid.UUID
	BloodGroup        BloodGroup
	DonationType      ComponentType
	VolumeML          int
	StorageLocation   string
	CollectedAt       time.Time
}

// NewCollectedUnit creates a COLLECTED unit with pending tests. Expiry is
// fixed here from the collection date and the donation type's shelf life.
func NewCollectedUnit(p NewUnitParams) (*BloodUnit, error) {
	if p.UnitNumber == "" {
		return nil, shared.Validation("unit number is required")
	}
	if p.DonorID == "" {
		return nil, shared.Validation("donor is required")
	}
	if !p.BloodGroup.IsValid() {
		return nil, shared.Validation("invalid blood group: %s", p.BloodGroup)
	}
	if p.DonationType == "" {
		p.DonationType = ComponentWholeBlood
	}
	if !p.DonationType.IsValid() {
		return nil, shared.Validation("invalid donation type: %s", p.DonationType)
	}
	if p.VolumeML == 0 {
		p.VolumeML = DefaultVolumeML
	}
	if p.VolumeML < 0 {
		return nil, shared.Validation("volume must be positive")
	}

	collected := shared.StartOfDay(p.CollectedAt)
	u := &BloodUnit{
		BaseEntity:        shared.NewBaseEntityAt(p.CollectedAt),
		Serial:            p.Serial,
		UnitNumber:        p.UnitNumber,
		DonorID:           p.DonorID,
		BloodBankID:       p.BloodBankID,
		DonationRequestID: p.DonationRequestID,
		BloodGroup:        p.BloodGroup,
		DonationType:      p.DonationType,
		CollectionDate:    collected,
		ExpiryDate:        collected.AddDate(0, 0, UnitShelfDays(p.DonationType)),
		Status:            UnitCollected,
		HIV:               TestPending,
		HBV:               TestPending,
		HCV:               TestPending,
		TestStatus:        TestStatusPending,
		VolumeML:          p.VolumeML,
		StorageLocation:   p.StorageLocation,
	}
	u.IntegrityHash = u.ComputeIntegrityHash()
	return u, nil
}

// UnitShelfDays is the unit-level shelf life for a donation type. Whole
// blood keeps 35 days; single-component donations keep their component's.
func UnitShelfDays(t ComponentType) int {
	if t == ComponentWholeBlood {
		return WholeBloodShelfDays
	}
	return RuleFor(t).ShelfDays
}

// ComputeIntegrityHash hashes the fields fixed at collection.
func (u *BloodUnit) ComputeIntegrityHash() string {
	sum := sha256.Sum256([]byte(u.UnitNumber + u.DonorID +
		u.CollectionDate.UTC().Format("2006-01-02") + string(u.BloodGroup) + strconv.Itoa(u.VolumeML)))
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity reports whether the stored integrity hash still matches.
func (u *BloodUnit) VerifyIntegrity() bool {
	return u.IntegrityHash != "" && u.IntegrityHash == u.ComputeIntegrityHash()
}

// TransitionTo moves the unit to target if the table allows it and returns
// the previous status. The unit is untouched on error.
func (u *BloodUnit) TransitionTo(target UnitStatus, now time.Time) (UnitStatus, error) {
	from := u.Status
	if err := UnitTransitions.Check(from, target); err != nil {
		return from, err
	}
	u.Status = target
	u.Touch(now)
	return from, nil
}

// RecordTests stores the three marker results. All NEGATIVE moves the unit
// to TESTED/PASSED; anything else rejects it and returns the failed markers.
func (u *BloodUnit) RecordTests(hiv, hbv, hcv TestResult, now time.Time) ([]string, error) {
	if u.Status != UnitCollected {
		return nil, shared.NewDomainError(shared.CodeInvalidTransition,
			fmt.Sprintf("Cannot record tests for blood unit in status %s", u.Status))
	}
	for _, r := range []TestResult{hiv, hbv, hcv} {
		if !r.IsValid() {
			return nil, shared.Validation("invalid test result: %s", r)
		}
	}

	var failed []string
	if hiv != TestNegative {
		failed = append(failed, "HIV")
	}
	if hbv != TestNegative {
		failed = append(failed, "HBV")
	}
	if hcv != TestNegative {
		failed = append(failed, "HCV")
	}

	target, outcome := UnitTested, TestStatusPassed
	if len(failed) > 0 {
		target, outcome = UnitRejected, TestStatusFailed
	}
	if _, err := u.TransitionTo(target, now); err != nil {
		return nil, err
	}
	u.HIV, u.HBV, u.HCV = hiv, hbv, hcv
	u.TestStatus = outcome
	return failed, nil
}

// MarkPassedAtCollection records a collection that was screened on the spot:
// all markers NEGATIVE and the unit TESTED.
func (u *BloodUnit) MarkPassedAtCollection(now time.Time) error {
	_, err := u.RecordTests(TestNegative, TestNegative, TestNegative, now)
	return err
}

// IsExpiredAt reports whether the expiry date is before the day of now.
func (u *BloodUnit) IsExpiredAt(now time.Time) bool {
	return u.ExpiryDate.Before(shared.StartOfDay(now))
}
