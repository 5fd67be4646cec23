package inventory

import (
	"context"
	"fmt"
	"strings"

	ledgerapp "github.com/bloodchain/backend/internal/application/ledger"
	"github.com/bloodchain/backend/internal/application/txscope"
	"github.com/bloodchain/backend/internal/application/validate"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/metrics"
	"github.com/bloodchain/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoleBloodBank is the role of bank staff actions.
const RoleBloodBank = "ROLE_BLOODBANK"

const maxNumberAttempts = 1000

// UnitService owns the blood unit state machine.
type UnitService struct {
	scope   txscope.TransactionScope
	ledger  ledgerapp.Appender
	clock   shared.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewUnitService creates a UnitService. m may be nil.
func NewUnitService(scope txscope.TransactionScope, appender ledgerapp.Appender, clock shared.Clock, m *metrics.Metrics, logger *zap.Logger) *UnitService {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnitService{scope: scope, ledger: appender, clock: clock, metrics: m, logger: logger}
}

// CollectUnitCommand is a bank-side collection.
type CollectUnitCommand struct {
	DonorID         string `json:"donor_id" validate:"required"`
	BloodBankID     string `json:"blood_bank_id"`
	BloodGroup      string `json:"blood_group" validate:"required,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	DonationType    string `json:"donation_type" validate:"omitempty,oneof=RBC PLASMA PLATELETS WHOLE_BLOOD"`
	VolumeML        int    `json:"volume_ml" validate:"gte=0,lte=1000"`
	StorageLocation string `json:"storage_location"`
	Actor           string `json:"actor" validate:"required"`
}

// UnitSpec describes a unit to create inside a caller's transaction.
type UnitSpec struct {
	DonorID           string
	BloodBankID       string
	DonationRequestID *uuid.UUID
	BloodGroup        inventory.BloodGroup
	DonationType      inventory.ComponentType
	VolumeML          int
	StorageLocation   string
	// CollectionNumber switches numbering to the BB<bank>-<date>-<random>
	// form used for donation-driven collections.
	CollectionNumber bool
	// PassedAtCollection creates the unit already TESTED with all markers NEGATIVE.
	PassedAtCollection bool
}

// CreateFromCollection creates a COLLECTED unit and logs BLOOD_COLLECTED.
func (s *UnitService) CreateFromCollection(ctx context.Context, cmd CollectUnitCommand) (*inventory.BloodUnit, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "blood_unit", "create_from_collection",
		telemetry.SpanAttrBloodGroup, cmd.BloodGroup, telemetry.SpanAttrActor, cmd.Actor)
	defer span.End()

	var unit *inventory.BloodUnit
	err := ledgerapp.ExecuteWrite(ctx, s.scope, func(repos txscope.TransactionalRepositories) error {
		var err error
		unit, err = s.CreateInTx(ctx, repos, UnitSpec{
			DonorID:         cmd.DonorID,
			BloodBankID:     cmd.BloodBankID,
			BloodGroup:      inventory.BloodGroup(cmd.BloodGroup),
			DonationType:    inventory.ComponentType(cmd.DonationType),
			VolumeML:        cmd.VolumeML,
			StorageLocation: cmd.StorageLocation,
		})
		if err != nil {
			return err
		}
		_, err = s.ledger.Append(ctx, repos.LedgerRepo(), ledger.Draft{
			SubjectID: unit.UnitNumber,
			Action:    ledger.ActionBloodCollected,
			Actor:     cmd.Actor,
			ActorRole: RoleBloodBank,
			NewStatus: string(unit.Status),
			Details: fmt.Sprintf("Blood collected from donor %s: %s, %d ml, stored at %s",
				unit.DonorID, unit.BloodGroup, unit.VolumeML, unit.StorageLocation),
		})
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.IncrementUnitsCollected()
	s.logger.Info("Blood unit collected",
		zap.String("unit_number", unit.UnitNumber),
		zap.String("blood_group", string(unit.BloodGroup)),
		zap.String("actor", cmd.Actor),
	)
	return unit, nil
}

// CreateInTx allocates a serial and a collision-free unit number, then
// persists the unit. It writes no ledger entry; callers log their own.
func (s *UnitService) CreateInTx(ctx context.Context, repos txscope.TransactionalRepositories, spec UnitSpec) (*inventory.BloodUnit, error) {
	now := s.clock.Now()
	units := repos.UnitRepo()

	serial, err := units.NextSerial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate unit serial: %w", err)
	}

	var number string
	for attempt := 0; ; attempt++ {
		if attempt >= maxNumberAttempts {
			return nil, shared.NewDomainError(shared.CodeConflict, "could not allocate a free unit number")
		}
		if spec.CollectionNumber {
			number = inventory.CollectionUnitNumber(spec.BloodBankID, now, uuid.NewString()[:4])
		} else {
			number = inventory.UnitNumber(now.Year(), serial+int64(attempt))
		}
		exists, err := units.ExistsByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		if !exists {
			if !spec.CollectionNumber {
				serial += int64(attempt)
			}
			break
		}
	}

	unit, err := inventory.NewCollectedUnit(inventory.NewUnitParams{
		Serial:            serial,
		UnitNumber:        number,
		DonorID:           spec.DonorID,
		BloodBankID:       spec.BloodBankID,
		DonationRequestID: spec.DonationRequestID,
		BloodGroup:        spec.BloodGroup,
		DonationType:      spec.DonationType,
		VolumeML:          spec.VolumeML,
		StorageLocation:   spec.StorageLocation,
		CollectedAt:       now,
	})
	if err != nil {
		return nil, err
	}
	if spec.PassedAtCollection {
		if err := unit.MarkPassedAtCollection(now); err != nil {
			return nil, err
		}
	}
	if err := units.Create(ctx, unit); err != nil {
		return nil, fmt.Errorf("failed to create blood unit: %w", err)
	}
	return unit, nil
}

// RecordTestResults stores screening results of a COLLECTED unit. All
// NEGATIVE moves it to TESTED, anything else to REJECTED.
func (s *UnitService) RecordTestResults(ctx context.Context, unitNumber string, hiv, hbv, hcv inventory.TestResult, actor string) (*inventory.BloodUnit, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "blood_unit", "record_test_results",
		telemetry.SpanAttrUnitNumber, unitNumber, telemetry.SpanAttrActor, actor)
	defer span.End()

	var unit *inventory.BloodUnit
	var failed []string
	err := ledgerapp.ExecuteWrite(ctx, s.scope, func(repos txscope.TransactionalRepositories) error {
		var err error
		unit, err = repos.UnitRepo().FindByNumber(ctx, unitNumber)
		if err != nil {
			return err
		}
		from := unit.Status
		failed, err = unit.RecordTests(hiv, hbv, hcv, s.clock.Now())
		if err != nil {
			return err
		}
		if err := repos.UnitRepo().Save(ctx, unit); err != nil {
			return err
		}

		draft := ledger.Draft{
			SubjectID:      unit.UnitNumber,
			Actor:          actor,
			ActorRole:      RoleBloodBank,
			PreviousStatus: string(from),
			NewStatus:      string(unit.Status),
		}
		if len(failed) > 0 {
			draft.Action = ledger.ActionBloodRejected
			draft.Details = "Failed tests: " + strings.Join(failed, ", ")
		} else {
			draft.Action = ledger.ActionBloodTested
			draft.Details = "All tests negative (HIV, HBV, HCV)"
		}
		_, err = s.ledger.Append(ctx, repos.LedgerRepo(), draft)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if len(failed) > 0 {
		s.metrics.IncrementUnitsRejected()
		s.logger.Warn("Blood unit rejected after screening",
			zap.String("unit_number", unitNumber),
			zap.Strings("failed", failed),
		)
	}
	return unit, nil
}

// Transition applies a status change allowed by the unit table and logs it.
func (s *UnitService) Transition(ctx context.Context, unitNumber string, to inventory.UnitStatus, actor, role string) (*inventory.BloodUnit, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "blood_unit", "transition",
		telemetry.SpanAttrUnitNumber, unitNumber, "to", string(to))
	defer span.End()

	var unit *inventory.BloodUnit
	err := ledgerapp.ExecuteWrite(ctx, s.scope, func(repos txscope.TransactionalRepositories) error {
		var err error
		unit, err = repos.UnitRepo().FindByNumber(ctx, unitNumber)
		if err != nil {
			return err
		}
		return s.TransitionInTx(ctx, repos, unit, to, UnitChange{Actor: actor, Role: role})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return unit, nil
}

// UnitChange describes the ledger side of a unit transition. Action
// defaults to STATUS_CHANGED and Details to "Status changed from X to Y".
type UnitChange struct {
	Action  string
	Actor   string
	Role    string
	Details string
}

// TransitionInTx moves unit to `to`, saves it and appends one ledger entry.
func (s *UnitService) TransitionInTx(ctx context.Context, repos txscope.TransactionalRepositories, unit *inventory.BloodUnit, to inventory.UnitStatus, change UnitChange) error {
	from, err := unit.TransitionTo(to, s.clock.Now())
	if err != nil {
		return err
	}
	if err := repos.UnitRepo().Save(ctx, unit); err != nil {
		return err
	}
	if change.Action == "" {
		change.Action = ledger.ActionStatusChanged
	}
	if change.Details == "" {
		change.Details = fmt.Sprintf("Status changed from %s to %s", from, to)
	}
	_, err = s.ledger.Append(ctx, repos.LedgerRepo(), ledger.Draft{
		SubjectID:      unit.UnitNumber,
		Action:         change.Action,
		Actor:          change.Actor,
		ActorRole:      change.Role,
		PreviousStatus: string(from),
		NewStatus:      string(to),
		Details:        change.Details,
	})
	return err
}

// AdvanceInTx walks unit forward along path, applying each step the table
// allows from the unit's current status. Steps the unit is already past are
// skipped; a unit in a terminal status is left alone.
func (s *UnitService) AdvanceInTx(ctx context.Context, repos txscope.TransactionalRepositories, unit *inventory.BloodUnit, path []inventory.UnitStatus, change UnitChange) error {
	for _, step := range path {
		if !unit.Status.CanTransitionTo(step) {
			continue
		}
		if err := s.TransitionInTx(ctx, repos, unit, step, change); err != nil {
			return err
		}
	}
	return nil
}

// MarkExpired expires one unit if it is past its expiry date and EXPIRED is
// reachable from its status. It reports whether anything changed; calling it
// again is a no-op.
func (s *UnitService) MarkExpired(ctx context.Context, unitNumber string) (bool, error) {
	var changed bool
	err := ledgerapp.ExecuteWrite(ctx, s.scope, func(repos txscope.TransactionalRepositories) error {
		unit, err := repos.UnitRepo().FindByNumber(ctx, unitNumber)
		if err != nil {
			return err
		}
		changed, err = s.expireInTx(ctx, repos, unit)
		return err
	})
	return changed, err
}

func (s *UnitService) expireInTx(ctx context.Context, repos txscope.TransactionalRepositories, unit *inventory.BloodUnit) (bool, error) {
	if !unit.IsExpiredAt(s.clock.Now()) || !unit.Status.CanTransitionTo(inventory.UnitExpired) {
		return false, nil
	}
	err := s.TransitionInTx(ctx, repos, unit, inventory.UnitExpired, UnitChange{
		Action:  ledger.ActionBloodExpired,
		Actor:   ledger.ActorSystem,
		Role:    ledger.RoleSystem,
		Details: "Blood unit expired on " + unit.ExpiryDate.Format("2006-01-02"),
	})
	return err == nil, err
}

// GetUnit returns a unit by number.
func (s *UnitService) GetUnit(ctx context.Context, unitNumber string) (*inventory.BloodUnit, error) {
	var unit *inventory.BloodUnit
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		var err error
		unit, err = repos.UnitRepo().FindByNumber(ctx, unitNumber)
		return err
	})
	return unit, err
}

// UnitIntegrity is the result of recomputing a unit's integrity hash.
type UnitIntegrity struct {
	UnitNumber string `json:"unit_number"`
	Stored     string `json:"stored_hash"`
	Computed   string `json:"computed_hash"`
	OK         bool   `json:"ok"`
}

// VerifyUnit recomputes the integrity hash of a unit.
func (s *UnitService) VerifyUnit(ctx context.Context, unitNumber string) (*UnitIntegrity, error) {
	unit, err := s.GetUnit(ctx, unitNumber)
	if err != nil {
		return nil, err
	}
	computed := unit.ComputeIntegrityHash()
	return &UnitIntegrity{
		UnitNumber: unit.UnitNumber,
		Stored:     unit.IntegrityHash,
		Computed:   computed,
		OK:         unit.IntegrityHash == computed,
	}, nil
}
