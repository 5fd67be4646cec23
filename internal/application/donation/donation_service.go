// Package donation runs the donor side: eligibility, the donation request
// lifecycle and the completed collection that creates a blood unit.
package donation

import (
	"context"
	"fmt"

	inventoryapp "github.com/bloodchain/backend/internal/application/inventory"
	ledgerapp "github.com/bloodchain/backend/internal/application/ledger"
	"github.com/bloodchain/backend/internal/application/txscope"
	"github.com/bloodchain/backend/internal/application/validate"
	"github.com/bloodchain/backend/internal/domain/donation"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/metrics"
	"github.com/bloodchain/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Roles of donation actors.
const (
	RoleDonor     = "ROLE_DONOR"
	RoleBloodBank = inventoryapp.RoleBloodBank
)

// Service handles donation request business operations
type Service struct {
	scope   txscope.TransactionScope
	ledger  ledgerapp.Appender
	units   *inventoryapp.UnitService
	policy  donation.Policy
	clock   shared.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService creates a donation Service. m may be nil.
func NewService(
	scope txscope.TransactionScope,
	appender ledgerapp.Appender,
	units *inventoryapp.UnitService,
	policy donation.Policy,
	clock shared.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		scope:   scope,
		ledger:  appender,
		units:   units,
		policy:  policy,
		clock:   clock,
		metrics: m,
		logger:  logger,
	}
}

// CheckEligibility evaluates a donor against the age, gap and active-request
// rules.
func (s *Service) CheckEligibility(ctx context.Context, donorID string) (donation.Eligibility, error) {
	var result donation.Eligibility
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		_, e, err := s.eligibilityInTx(ctx, repos, donorID)
		result = e
		return err
	})
	return result, err
}

func (s *Service) eligibilityInTx(ctx context.Context, repos txscope.TransactionalRepositories, donorID string) (*donation.Donor, donation.Eligibility, error) {
	donor, err := repos.DonorDirectory().FindDonor(ctx, donorID)
	if err != nil {
		return nil, donation.Eligibility{}, err
	}
	active, err := repos.DonationRepo().HasActiveForDonor(ctx, donorID)
	if err != nil {
		return nil, donation.Eligibility{}, err
	}
	return donor, s.policy.Evaluate(donor, active, s.clock.Now()), nil
}

// Submit creates a PENDING donation request. Ineligible donors are turned
// away with INELIGIBLE before anything is written.
func (s *Service) Submit(ctx context.Context, cmd SubmitDonationCommand) (*donation.DonationRequest, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, err
	}
	if err := s.policy.CheckDeclaration(cmd.Age, cmd.WeightKg); err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "donation", "submit", telemetry.SpanAttrActor, cmd.DonorID)
	defer span.End()

	var d *donation.DonationRequest
	err := ledgerapp.ExecuteWrite(ctx, s.scope, func(repos txscope.TransactionalRepositories) error {
		donor, eligibility, err := s.eligibilityInTx(ctx, repos, cmd.DonorID)
		if err != nil {
			return err
		}
		if !eligibility.Eligible {
			return shared.NewDomainError(shared.CodeIneligible, eligibility.Reason)
		}

		group := inventory.BloodGroup(cmd.BloodGroup)
		if group == "" {
			group = donor.BloodGroup
		}
		if !group.IsValid() {
			return shared.Validation("blood group is required")
		}
		donationType := inventory.ComponentType(cmd.DonationType)
		if donationType == "" {
			donationType = inventory.ComponentWholeBlood
		}

		now := s.clock.Now()
		d = &donation.DonationRequest{
			BaseEntity:        shared.NewBaseEntityAt(now),
			DonorID:           donor.ID,
			DonorEmail:        donor.Email,
			BloodBankID:       cmd.BloodBankID,
			BloodGroup:        group,
			DonationType:      donationType,
			PreferredDate:     cmd.PreferredDate,
			Location:          cmd.Location,
			HealthDeclaration: cmd.HealthDeclaration,
			Age:               cmd.Age,
			WeightKg:          cmd.WeightKg,
			Status:            donation.StatusPending,
		}
		if err := repos.DonationRepo().Create(ctx, d); err != nil {
			return fmt.Errorf("failed to create donation request: %w", err)
		}
		return s.logTransition(ctx, repos, d, "", donorActor(donor), RoleDonor,
			fmt.Sprintf("Donation request submitted: %s %s", d.DonationType, d.BloodGroup))
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Donation request submitted",
		zap.String("donation_id", d.ID.String()),
		zap.String("donor_id", d.DonorID),
	)
	return d, nil
}

// Approve approves a PENDING request.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actor string) (*donation.DonationRequest, error) {
	return s.mutate(ctx, "approve", id, func(repos txscope.TransactionalRepositories, d *donation.DonationRequest) error {
		from, err := d.Approve(actor, s.clock.Now())
		if err != nil {
			return err
		}
		if err := repos.DonationRepo().Save(ctx, d); err != nil {
			return err
		}
		return s.logTransition(ctx, repos, d, from, actor, RoleBloodBank, "Donation request approved")
	})
}

// Reject rejects a PENDING request.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason, actor string) (*donation.DonationRequest, error) {
	if reason == "" {
		return nil, shared.Validation("rejection reason is required")
	}
	return s.mutate(ctx, "reject", id, func(repos txscope.TransactionalRepositories, d *donation.DonationRequest) error {
		from, err := d.Reject(reason, s.clock.Now())
		if err != nil {
			return err
		}
		if err := repos.DonationRepo().Save(ctx, d); err != nil {
			return err
		}
		return s.logTransition(ctx, repos, d, from, actor, RoleBloodBank, "Rejected: "+reason)
	})
}

// Schedule books or rebooks the appointment of an APPROVED or SCHEDULED request.
func (s *Service) Schedule(ctx context.Context, cmd ScheduleDonationCommand) (*donation.DonationRequest, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "schedule", cmd.DonationID, func(repos txscope.TransactionalRepositories, d *donation.DonationRequest) error {
		from, err := d.Schedule(cmd.Date, cmd.Time, cmd.Notes, s.clock.Now())
		if err != nil {
			return err
		}
		if err := repos.DonationRepo().Save(ctx, d); err != nil {
			return err
		}
		return s.logTransition(ctx, repos, d, from, cmd.Actor, RoleBloodBank,
			fmt.Sprintf("Appointment on %s %s", d.AppointmentDate.Format("2006-01-02"), d.AppointmentTime))
	})
}

// Cancel withdraws a request that is not COMPLETED, REJECTED or CANCELLED.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor, role string) (*donation.DonationRequest, error) {
	if role == "" {
		role = RoleDonor
	}
	return s.mutate(ctx, "cancel", id, func(repos txscope.TransactionalRepositories, d *donation.DonationRequest) error {
		from, err := d.Cancel(s.clock.Now())
		if err != nil {
			return err
		}
		if err := repos.DonationRepo().Save(ctx, d); err != nil {
			return err
		}
		return s.logTransition(ctx, repos, d, from, actor, role, "Donation request cancelled")
	})
}

// Complete closes a non-terminal request with a collection: it creates a
// tested unit under a BB<bank>-<date>-<suffix> number, separates it, stamps
// the donor's last donation and writes the collection entries, all in one
// transaction.
func (s *Service) Complete(ctx context.Context, cmd CompleteDonationCommand) (*CompletionResult, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "donation", "complete",
		telemetry.SpanAttrDonationID, cmd.DonationID.String(), telemetry.SpanAttrActor, cmd.BloodBankName)
	defer span.End()

	result := &CompletionResult{DonationID: cmd.DonationID}
	err := ledgerapp.ExecuteWrite(ctx, s.scope, func(repos txscope.TransactionalRepositories) error {
		d, err := repos.DonationRepo().FindByID(ctx, cmd.DonationID)
		if err != nil {
			return err
		}
		if !d.Status.IsActive() {
			return shared.NewDomainError(shared.CodeInvalidTransition,
				fmt.Sprintf("Donation request is already in a terminal state: %s", d.Status))
		}

		donationID := d.ID
		unit, err := s.units.CreateInTx(ctx, repos, inventoryapp.UnitSpec{
			DonorID:            d.DonorID,
			BloodBankID:        cmd.BloodBankID,
			DonationRequestID:  &donationID,
			BloodGroup:         d.BloodGroup,
			DonationType:       d.DonationType,
			VolumeML:           cmd.VolumeML,
			StorageLocation:    cmd.StorageLocation,
			CollectionNumber:   true,
			PassedAtCollection: true,
		})
		if err != nil {
			return err
		}
		result.UnitNumber = unit.UnitNumber

		donor := d.DonorEmail
		if donor == "" {
			donor = d.DonorID
		}
		_, err = s.ledger.Append(ctx, repos.LedgerRepo(), ledger.Draft{
			SubjectID: unit.UnitNumber,
			Action:    ledger.ActionBloodCollectedAndTested,
			Actor:     donor,
			ActorRole: RoleDonor,
			NewStatus: string(unit.Status),
			Details:   "Donation completed and auto-tested at " + cmd.BloodBankName,
		})
		if err != nil {
			return err
		}
		_, err = s.ledger.Append(ctx, repos.LedgerRepo(), ledger.Draft{
			SubjectID: unit.UnitNumber,
			Action:    ledger.ActionUnitCreated,
			Actor:     cmd.BloodBankName,
			ActorRole: RoleBloodBank,
			NewStatus: string(unit.Status),
			Details:   fmt.Sprintf("New blood unit created from Donation Request #%s", d.ID),
		})
		if err != nil {
			return err
		}

		components, err := s.units.SeparateInTx(ctx, repos, unit, cmd.BloodBankName, RoleBloodBank)
		if err != nil {
			return err
		}
		for _, c := range components {
			result.Components = append(result.Components, c.ID)
		}

		now := s.clock.Now()
		if err := repos.DonorDirectory().UpdateLastDonation(ctx, d.DonorID, now); err != nil {
			return fmt.Errorf("failed to update donor last donation: %w", err)
		}

		from, err := d.Complete(unit.UnitNumber, now)
		if err != nil {
			return err
		}
		if err := repos.DonationRepo().Save(ctx, d); err != nil {
			return err
		}
		return s.logTransition(ctx, repos, d, from, cmd.BloodBankName, RoleBloodBank,
			"Donation completed, blood unit "+unit.UnitNumber)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.IncrementUnitsCollected()
	s.logger.Info("Donation completed",
		zap.String("donation_id", cmd.DonationID.String()),
		zap.String("unit_number", result.UnitNumber),
		zap.Int("components", len(result.Components)),
	)
	return result, nil
}

// Get returns a donation request by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*donation.DonationRequest, error) {
	var d *donation.DonationRequest
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		var err error
		d, err = repos.DonationRepo().FindByID(ctx, id)
		return err
	})
	return d, err
}

// ListByDonor returns a donor's requests, newest first.
func (s *Service) ListByDonor(ctx context.Context, donorID string) ([]donation.DonationRequest, error) {
	var out []donation.DonationRequest
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		var err error
		out, err = repos.DonationRepo().FindByDonor(ctx, donorID)
		return err
	})
	return out, err
}

func (s *Service) mutate(ctx context.Context, op string, id uuid.UUID, fn func(repos txscope.TransactionalRepositories, d *donation.DonationRequest) error) (*donation.DonationRequest, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "donation", op, telemetry.SpanAttrDonationID, id.String())
	defer span.End()

	var d *donation.DonationRequest
	err := ledgerapp.ExecuteWrite(ctx, s.scope, func(repos txscope.TransactionalRepositories) error {
		var err error
		d, err = repos.DonationRepo().FindByID(ctx, id)
		if err != nil {
			return err
		}
		return fn(repos, d)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.logger.Info("Donation request updated",
		zap.String("operation", op),
		zap.String("donation_id", id.String()),
		zap.String("status", string(d.Status)),
	)
	return d, nil
}

func (s *Service) logTransition(ctx context.Context, repos txscope.TransactionalRepositories, d *donation.DonationRequest, from donation.Status, actor, role, details string) error {
	_, err := s.ledger.Append(ctx, repos.LedgerRepo(), ledger.Draft{
		SubjectID:      d.SubjectID(),
		Action:         ledger.ActionDonationStatusChanged,
		Actor:          actor,
		ActorRole:      role,
		PreviousStatus: string(from),
		NewStatus:      string(d.Status),
		Details:        details,
	})
	return err
}

func donorActor(d *donation.Donor) string {
	if d.Email != "" {
		return d.Email
	}
	return d.ID
}
