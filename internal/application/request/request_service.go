// Package request runs the blood request lifecycle: approval against FEFO
// stock, dispatch, receipt, cancellation and transfusion records.
package request

import (
	"context"
	"fmt"

	inventoryapp "github.com/bloodchain/backend/internal/application/inventory"
	ledgerapp "github.com/bloodchain/backend/internal/application/ledger"
	"github.com/bloodchain/backend/internal/application/txscope"
	"github.com/bloodchain/backend/internal/application/validate"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/request"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/metrics"
	"github.com/bloodchain/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Roles of request actors.
const (
	RoleHospital  = "ROLE_HOSPITAL"
	RoleBloodBank = inventoryapp.RoleBloodBank
)

const maxNumberAttempts = 1000

// Service handles blood request business operations
type Service struct {
	scope     txscope.TransactionScope
	ledger    ledgerapp.Appender
	units     *inventoryapp.UnitService
	allocator *inventoryapp.Allocator
	clock     shared.Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewService creates a request Service. m may be nil.
func NewService(
	scope txscope.TransactionScope,
	appender ledgerapp.Appender,
	units *inventoryapp.UnitService,
	allocator *inventoryapp.Allocator,
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
		scope:     scope,
		ledger:    appender,
		units:     units,
		allocator: allocator,
		clock:     clock,
		metrics:   m,
		logger:    logger,
	}
}

// Create submits a new REQUESTED request under a fresh request number.
func (s *Service) Create(ctx context.Context, cmd CreateRequestCommand) (*request.BloodRequest, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "blood_request", "create",
		telemetry.SpanAttrComponentType, cmd.ComponentType,
		telemetry.SpanAttrBloodGroup, cmd.BloodGroup,
		telemetry.SpanAttrQuantity, cmd.Quantity)
	defer span.End()

	var req *request.BloodRequest
	err := ledgerapp.ExecuteWrite(ctx, s.scope, func(repos txscope.TransactionalRepositories) error {
		now := s.clock.Now()
		number, err := s.nextNumber(ctx, repos, now.Year())
		if err != nil {
			return err
		}
		req, err = request.NewBloodRequest(request.NewBloodRequestParams{
			RequestNumber: number,
			HospitalID:    cmd.HospitalID,
			HospitalEmail: cmd.HospitalEmail,
			ComponentType: inventory.ComponentType(cmd.ComponentType),
			BloodGroup:    inventory.BloodGroup(cmd.BloodGroup),
			Quantity:      cmd.Quantity,
			Urgency:       request.Urgency(cmd.Urgency),
			PatientName:   cmd.PatientName,
			PatientAge:    cmd.PatientAge,
			Reason:        cmd.Reason,
			RequiredBy:    cmd.RequiredBy,
		}, now)
		if err != nil {
			return err
		}
		if err := repos.RequestRepo().Create(ctx, req); err != nil {
			return fmt.Errorf("failed to create blood request: %w", err)
		}
		return s.logTransition(ctx, repos, req, "", cmd.Actor, RoleHospital,
			fmt.Sprintf("Blood request created: %d x %s %s (%s)", req.Quantity, req.ComponentType, req.BloodGroup, req.Urgency))
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.IncrementRequestTransition(string(req.Status))
	s.logger.Info("Blood request created",
		zap.String("request_number", req.RequestNumber),
		zap.String("urgency", string(req.Urgency)),
	)
	return req, nil
}

// nextNumber is count+1, bumped past numbers that are already taken.
func (s *Service) nextNumber(ctx context.Context, repos txscope.TransactionalRepositories, year int) (string, error) {
	count, err := repos.RequestRepo().Count(ctx)
	if err != nil {
		return "", err
	}
	for seq := count + 1; seq <= count+maxNumberAttempts; seq++ {
		number := request.RequestNumber(year, seq)
		exists, err := repos.RequestRepo().ExistsByNumber(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", shared.NewDomainError(shared.CodeConflict, "could not allocate a free request number")
}

// Approve reserves up to the requested quantity FEFO and records the
// approval. With no matching stock it fails with INVENTORY_EXHAUSTED and
// changes nothing.
func (s *Service) Approve(ctx context.Context, requestNumber, actor string) (*request.BloodRequest, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "blood_request", "approve",
		telemetry.SpanAttrRequestNumber, requestNumber, telemetry.SpanAttrActor, actor)
	defer span.End()

	var req *request.BloodRequest
	err := ledgerapp.ExecuteWrite(ctx, s.scope, func(repos txscope.TransactionalRepositories) error {
		var err error
		req, err = repos.RequestRepo().FindByNumber(ctx, requestNumber)
		if err != nil {
			return err
		}
		if req.Status != request.StatusRequested {
			return shared.NewDomainError(shared.CodeInvalidTransition,
				fmt.Sprintf("Only REQUESTED requests can be approved: %s is %s", req.RequestNumber, req.Status))
		}

		reserved, err := s.allocator.AllocateInTx(ctx, repos, req.ComponentType, req.BloodGroup, req.Quantity, actor, RoleBloodBank)
		if err != nil {
			return err
		}
		if len(reserved) == 0 {
			return s.allocator.ExhaustedInTx(ctx, repos, req.ComponentType, req.BloodGroup)
		}

		now := s.clock.Now()
		for _, c := range reserved {
			if err := repos.AssignmentRepo().Create(ctx, request.NewAssignment(req.ID, c.ID, c.BloodUnitID, now)); err != nil {
				return fmt.Errorf("failed to assign component %s: %w", c.ID, err)
			}
			if err := s.approveUnit(ctx, repos, req, c, actor); err != nil {
				return err
			}
		}

		from, err := req.Approve(actor, len(reserved), now)
		if err != nil {
			return err
		}
		if err := repos.RequestRepo().Save(ctx, req); err != nil {
			return err
		}
		return s.logTransition(ctx, repos, req, from, actor, RoleBloodBank,
			fmt.Sprintf("Approved %d of %d %s components", req.ApprovedQuantity, req.Quantity, req.ComponentType))
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.IncrementRequestTransition(string(req.Status))
	s.logger.Info("Blood request approved",
		zap.String("request_number", req.RequestNumber),
		zap.String("status", string(req.Status)),
		zap.Int("approved_quantity", req.ApprovedQuantity),
	)
	return req, nil
}

// approveUnit walks the owning unit to APPROVED. A whole-blood request
// consumes the whole unit, so its still-AVAILABLE siblings are reserved too.
func (s *Service) approveUnit(ctx context.Context, repos txscope.TransactionalRepositories, req *request.BloodRequest, c inventory.BloodComponent, actor string) error {
	unit, err := repos.UnitRepo().FindByNumber(ctx, c.BloodUnitID)
	if err != nil {
		return err
	}
	err = s.units.AdvanceInTx(ctx, repos, unit,
		[]inventory.UnitStatus{inventory.UnitRequested, inventory.UnitApproved},
		inventoryapp.UnitChange{Actor: actor, Role: RoleBloodBank,
			Details: fmt.Sprintf("Reserved for request %s", req.RequestNumber)})
	if err != nil {
		return err
	}
	if req.ComponentType != inventory.ComponentWholeBlood {
		return nil
	}

	siblings, err := repos.ComponentRepo().FindByUnit(ctx, unit.UnitNumber)
	if err != nil {
		return err
	}
	for i := range siblings {
		sib := siblings[i]
		if sib.ID == c.ID || sib.Status != inventory.ComponentAvailable {
			continue
		}
		// A sibling taken by a concurrent approval is no longer AVAILABLE.
		won, err := s.allocator.TryTransitionInTx(ctx, repos, &sib, inventory.ComponentReserved, actor, RoleBloodBank)
		if err != nil {
			return err
		}
		if !won {
			s.logger.Debug("Sibling reserved elsewhere, skipped",
				zap.String("component_id", sib.ID),
				zap.String("request_number", req.RequestNumber))
		}
	}
	return nil
}

// Reject rejects a REQUESTED request without touching inventory.
func (s *Service) Reject(ctx context.Context, requestNumber, reason, actor string) (*request.BloodRequest, error) {
	if reason == "" {
		return nil, shared.Validation("rejection reason is required")
	}
	return s.mutate(ctx, "reject", requestNumber, func(repos txscope.TransactionalRepositories, req *request.BloodRequest) error {
		from, err := req.Reject(reason, s.clock.Now())
		if err != nil {
			return err
		}
		if err := repos.RequestRepo().Save(ctx, req); err != nil {
			return err
		}
		return s.logTransition(ctx, repos, req, from, actor, RoleBloodBank, "Rejected: "+reason)
	})
}

// Dispatch ships every assigned component. A component that can no longer
// be dispatched, e.g. one that expired while reserved, fails the whole
// dispatch.
func (s *Service) Dispatch(ctx context.Context, requestNumber, actor string) (*request.BloodRequest, error) {
	return s.mutate(ctx, "dispatch", requestNumber, func(repos txscope.TransactionalRepositories, req *request.BloodRequest) error {
		if !req.Status.HoldsReservations() {
			return shared.NewDomainError(shared.CodeInvalidTransition,
				fmt.Sprintf("Only APPROVED requests can be dispatched: %s is %s", req.RequestNumber, req.Status))
		}
		assignments, err := s.activeAssignments(ctx, repos, req)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		for i := range assignments {
			a := &assignments[i]
			c, err := repos.ComponentRepo().FindByID(ctx, a.ComponentID)
			if err != nil {
				return err
			}
			if err := s.allocator.TransitionInTx(ctx, repos, c, inventory.ComponentDispatched, actor, RoleBloodBank); err != nil {
				return err
			}
			a.MarkDispatched(now)
			if err := repos.AssignmentRepo().Save(ctx, a); err != nil {
				return err
			}
			unit, err := repos.UnitRepo().FindByNumber(ctx, a.BloodUnitID)
			if err != nil {
				return err
			}
			err = s.units.AdvanceInTx(ctx, repos, unit, []inventory.UnitStatus{inventory.UnitDispatched},
				inventoryapp.UnitChange{Actor: actor, Role: RoleBloodBank,
					Details: fmt.Sprintf("Dispatched for request %s", req.RequestNumber)})
			if err != nil {
				return err
			}
		}

		from, err := req.Dispatch(now)
		if err != nil {
			return err
		}
		if err := repos.RequestRepo().Save(ctx, req); err != nil {
			return err
		}
		return s.logTransition(ctx, repos, req, from, actor, RoleBloodBank,
			fmt.Sprintf("Dispatched %d components", len(assignments)))
	})
}

// ConfirmReceipt records the requester's receipt of a DISPATCHED request
// and completes it.
func (s *Service) ConfirmReceipt(ctx context.Context, requestNumber, actor string) (*request.BloodRequest, error) {
	return s.mutate(ctx, "confirm_receipt", requestNumber, func(repos txscope.TransactionalRepositories, req *request.BloodRequest) error {
		if req.Status != request.StatusDispatched {
			return shared.NewDomainError(shared.CodeInvalidTransition,
				fmt.Sprintf("Only DISPATCHED requests can be received: %s is %s", req.RequestNumber, req.Status))
		}
		assignments, err := s.activeAssignments(ctx, repos, req)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		for i := range assignments {
			a := &assignments[i]
			a.MarkReceived(now)
			if err := repos.AssignmentRepo().Save(ctx, a); err != nil {
				return err
			}
			c, err := repos.ComponentRepo().FindByID(ctx, a.ComponentID)
			if err != nil {
				return err
			}
			if err := s.allocator.TransitionInTx(ctx, repos, c, inventory.ComponentReceived, actor, RoleHospital); err != nil {
				return err
			}
			unit, err := repos.UnitRepo().FindByNumber(ctx, a.BloodUnitID)
			if err != nil {
				return err
			}
			change := inventoryapp.UnitChange{
				Action:  ledger.ActionBloodReceived,
				Actor:   actor,
				Role:    RoleHospital,
				Details: fmt.Sprintf("Received by hospital for request: %s", req.RequestNumber),
			}
			if unit.Status.CanTransitionTo(inventory.UnitReceived) {
				err = s.units.TransitionInTx(ctx, repos, unit, inventory.UnitReceived, change)
			} else {
				// an earlier request already received the unit
				_, err = s.ledger.Append(ctx, repos.LedgerRepo(), ledger.Draft{
					SubjectID:      unit.UnitNumber,
					Action:         change.Action,
					Actor:          change.Actor,
					ActorRole:      change.Role,
					PreviousStatus: string(unit.Status),
					NewStatus:      string(unit.Status),
					Details:        change.Details,
				})
			}
			if err != nil {
				return err
			}
		}

		from, err := req.Complete(now)
		if err != nil {
			return err
		}
		if err := repos.RequestRepo().Save(ctx, req); err != nil {
			return err
		}
		return s.logTransition(ctx, repos, req, from, actor, RoleHospital,
			fmt.Sprintf("Received %d components", len(assignments)))
	})
}

// Cancel cancels a request that is not COMPLETED, REJECTED or CANCELLED.
// Reservations of an APPROVED or PARTIALLY_APPROVED request go back to
// stock; a DISPATCHED request keeps its components in transit.
func (s *Service) Cancel(ctx context.Context, requestNumber, actor, role string) (*request.BloodRequest, error) {
	if role == "" {
		role = RoleHospital
	}
	return s.mutate(ctx, "cancel", requestNumber, func(repos txscope.TransactionalRepositories, req *request.BloodRequest) error {
		holds := req.Status.HoldsReservations()
		from, err := req.Cancel(s.clock.Now())
		if err != nil {
			return err
		}

		released := 0
		if holds {
			released, err = s.releaseReservations(ctx, repos, req, actor, role)
			if err != nil {
				return err
			}
		}

		if err := repos.RequestRepo().Save(ctx, req); err != nil {
			return err
		}
		details := "Cancelled"
		if released > 0 {
			details = fmt.Sprintf("Cancelled, %d reserved components released", released)
		}
		return s.logTransition(ctx, repos, req, from, actor, role, details)
	})
}

// releaseReservations returns the request's RESERVED components to stock
// and releases its assignments. For whole-blood requests the sibling
// reservations of the same units, which carry no assignment, are freed too.
func (s *Service) releaseReservations(ctx context.Context, repos txscope.TransactionalRepositories, req *request.BloodRequest, actor, role string) (int, error) {
	assignments, err := s.activeAssignments(ctx, repos, req)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	released := 0
	release := func(c *inventory.BloodComponent) error {
		if c.Status != inventory.ComponentReserved {
			return nil
		}
		if err := s.allocator.TransitionInTx(ctx, repos, c, inventory.ComponentAvailable, actor, role); err != nil {
			return err
		}
		released++
		return nil
	}

	for i := range assignments {
		a := &assignments[i]
		c, err := repos.ComponentRepo().FindByID(ctx, a.ComponentID)
		if err != nil {
			return 0, err
		}
		if err := release(c); err != nil {
			return 0, err
		}
		a.Release(now)
		if err := repos.AssignmentRepo().Save(ctx, a); err != nil {
			return 0, err
		}
	}

	if req.ComponentType != inventory.ComponentWholeBlood {
		return released, nil
	}
	for _, a := range assignments {
		siblings, err := repos.ComponentRepo().FindByUnit(ctx, a.BloodUnitID)
		if err != nil {
			return 0, err
		}
		for i := range siblings {
			sib := &siblings[i]
			if sib.ID == a.ComponentID || sib.Status != inventory.ComponentReserved {
				continue
			}
			_, err := repos.AssignmentRepo().FindActiveByComponent(ctx, sib.ID)
			if err == nil {
				continue
			}
			if !shared.IsCode(err, shared.CodeNotFound) {
				return 0, err
			}
			if err := release(sib); err != nil {
				return 0, err
			}
		}
	}
	return released, nil
}

// ListPending returns REQUESTED requests, most urgent first, then oldest first.
func (s *Service) ListPending(ctx context.Context) ([]request.BloodRequest, error) {
	var out []request.BloodRequest
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		var err error
		out, err = repos.RequestRepo().FindByStatus(ctx, request.StatusRequested)
		return err
	})
	if err != nil {
		return nil, err
	}
	request.SortPending(out)
	return out, nil
}

// Get returns a request with its assignments.
func (s *Service) Get(ctx context.Context, requestNumber string) (*RequestDetail, error) {
	var detail *RequestDetail
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		req, err := repos.RequestRepo().FindByNumber(ctx, requestNumber)
		if err != nil {
			return err
		}
		assignments, err := repos.AssignmentRepo().FindByRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		detail = &RequestDetail{Request: *req, Assignments: assignments}
		return nil
	})
	return detail, err
}

// mutate loads a request by number inside a transaction, runs fn and
// records the outcome.
func (s *Service) mutate(ctx context.Context, op, requestNumber string, fn func(repos txscope.TransactionalRepositories, req *request.BloodRequest) error) (*request.BloodRequest, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "blood_request", op,
		telemetry.SpanAttrRequestNumber, requestNumber)
	defer span.End()

	var req *request.BloodRequest
	err := ledgerapp.ExecuteWrite(ctx, s.scope, func(repos txscope.TransactionalRepositories) error {
		var err error
		req, err = repos.RequestRepo().FindByNumber(ctx, requestNumber)
		if err != nil {
			return err
		}
		return fn(repos, req)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Warn("Blood request operation failed",
			zap.String("operation", op),
			zap.String("request_number", requestNumber),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.IncrementRequestTransition(string(req.Status))
	s.logger.Info("Blood request updated",
		zap.String("operation", op),
		zap.String("request_number", req.RequestNumber),
		zap.String("status", string(req.Status)),
	)
	return req, nil
}

func (s *Service) activeAssignments(ctx context.Context, repos txscope.TransactionalRepositories, req *request.BloodRequest) ([]request.Assignment, error) {
	all, err := repos.AssignmentRepo().FindByRequest(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, a := range all {
		if a.IsActive() {
			active = append(active, a)
		}
	}
	return active, nil
}

func (s *Service) logTransition(ctx context.Context, repos txscope.TransactionalRepositories, req *request.BloodRequest, from request.Status, actor, role, details string) error {
	_, err := s.ledger.Append(ctx, repos.LedgerRepo(), ledger.Draft{
		SubjectID:      req.RequestNumber,
		Action:         ledger.ActionRequestStatusChanged,
		Actor:          actor,
		ActorRole:      role,
		PreviousStatus: string(from),
		NewStatus:      string(req.Status),
		Details:        details,
	})
	return err
}
