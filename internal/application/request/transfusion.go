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
	"github.com/bloodchain/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// RecordTransfusion uses a RECEIVED component on a patient. The component
// becomes USED, its unit moves RECEIVED -> USED, and the trail gets
// BLOOD_TRANSFUSED plus ADVERSE_REACTION when the reaction is not NONE.
func (s *Service) RecordTransfusion(ctx context.Context, cmd RecordTransfusionCommand) (*request.TransfusionRecord, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, err
	}
	reaction := request.Reaction(cmd.Reaction)
	if reaction == "" {
		reaction = request.ReactionNone
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "transfusion", "record",
		telemetry.SpanAttrComponentID, cmd.ComponentID, telemetry.SpanAttrActor, cmd.Actor)
	defer span.End()

	var record *request.TransfusionRecord
	err := ledgerapp.ExecuteWrite(ctx, s.scope, func(repos txscope.TransactionalRepositories) error {
		c, err := repos.ComponentRepo().FindByID(ctx, cmd.ComponentID)
		if err != nil {
			return err
		}
		if c.Status != inventory.ComponentReceived {
			return shared.NewDomainError(shared.CodeInvalidTransition,
				fmt.Sprintf("Component must be RECEIVED to be used. Current status: %s", c.Status))
		}

		now := s.clock.Now()
		record = &request.TransfusionRecord{
			BaseEntity:   shared.NewBaseEntityAt(now),
			ComponentID:  c.ID,
			BloodUnitID:  c.BloodUnitID,
			PatientName:  cmd.PatientName,
			PatientID:    cmd.PatientID,
			TransfusedAt: now,
			Reaction:     reaction,
			Notes:        cmd.Notes,
			RecordedBy:   cmd.Actor,
		}
		if cmd.TransfusedAt != nil {
			record.TransfusedAt = *cmd.TransfusedAt
		}
		if cmd.RequestNumber != "" {
			req, err := repos.RequestRepo().FindByNumber(ctx, cmd.RequestNumber)
			if err != nil {
				return err
			}
			record.RequestID = &req.ID
		}

		if err := s.allocator.TransitionInTx(ctx, repos, c, inventory.ComponentUsed, cmd.Actor, RoleHospital); err != nil {
			return err
		}
		if err := repos.TransfusionRepo().Create(ctx, record); err != nil {
			return fmt.Errorf("failed to store transfusion record: %w", err)
		}

		unit, err := repos.UnitRepo().FindByNumber(ctx, c.BloodUnitID)
		if err != nil {
			return err
		}
		details := fmt.Sprintf("Transfused to patient: %s (ID: %s). Component: %s %s",
			record.PatientName, record.PatientID, c.Type, c.ID)
		if unit.Status.CanTransitionTo(inventory.UnitUsed) {
			err = s.units.TransitionInTx(ctx, repos, unit, inventory.UnitUsed, inventoryapp.UnitChange{
				Action:  ledger.ActionBloodTransfused,
				Actor:   cmd.Actor,
				Role:    RoleHospital,
				Details: details,
			})
		} else {
			// another component of the unit already moved it to USED
			_, err = s.ledger.Append(ctx, repos.LedgerRepo(), ledger.Draft{
				SubjectID:      unit.UnitNumber,
				Action:         ledger.ActionBloodTransfused,
				Actor:          cmd.Actor,
				ActorRole:      RoleHospital,
				PreviousStatus: string(unit.Status),
				NewStatus:      string(unit.Status),
				Details:        details,
			})
		}
		if err != nil {
			return err
		}

		if reaction != request.ReactionNone {
			_, err = s.ledger.Append(ctx, repos.LedgerRepo(), ledger.Draft{
				SubjectID: unit.UnitNumber,
				Action:    ledger.ActionAdverseReaction,
				Actor:     cmd.Actor,
				ActorRole: RoleHospital,
				Details:   fmt.Sprintf("Adverse reaction: %s. Details: %s", reaction, cmd.Notes),
			})
		}
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.IncrementTransfusion(string(reaction))
	if reaction != request.ReactionNone {
		s.logger.Warn("Adverse transfusion reaction recorded",
			zap.String("component_id", record.ComponentID),
			zap.String("reaction", string(reaction)),
		)
	}
	return record, nil
}

// Transfusions lists the transfusion records of a component.
func (s *Service) Transfusions(ctx context.Context, componentID string) ([]request.TransfusionRecord, error) {
	var out []request.TransfusionRecord
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		var err error
		out, err = repos.TransfusionRepo().FindByComponent(ctx, componentID)
		return err
	})
	return out, err
}
