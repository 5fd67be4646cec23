package inventory

import (
	"context"
	"fmt"

	ledgerapp "github.com/bloodchain/backend/internal/application/ledger"
	"github.com/bloodchain/backend/internal/application/txscope"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Separate splits a TESTED, passed unit into its components and stores the
// unit. Components, the unit status change and the COMPONENTS_CREATED entry
// are written in one transaction.
func (s *UnitService) Separate(ctx context.Context, unitNumber, actor string) ([]inventory.BloodComponent, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "blood_unit", "separate",
		telemetry.SpanAttrUnitNumber, unitNumber, telemetry.SpanAttrActor, actor)
	defer span.End()

	var components []inventory.BloodComponent
	err := ledgerapp.ExecuteWrite(ctx, s.scope, func(repos txscope.TransactionalRepositories) error {
		unit, err := repos.UnitRepo().FindByNumber(ctx, unitNumber)
		if err != nil {
			return err
		}
		components, err = s.SeparateInTx(ctx, repos, unit, actor, RoleBloodBank)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Blood unit separated",
		zap.String("unit_number", unitNumber),
		zap.Int("components", len(components)),
	)
	return components, nil
}

// SeparateInTx is Separate inside the caller's transaction.
func (s *UnitService) SeparateInTx(ctx context.Context, repos txscope.TransactionalRepositories, unit *inventory.BloodUnit, actor, role string) ([]inventory.BloodComponent, error) {
	now := s.clock.Now()
	components, err := inventory.Separate(unit, now)
	if err != nil {
		return nil, err
	}
	from, err := unit.TransitionTo(inventory.UnitStored, now)
	if err != nil {
		return nil, err
	}
	if err := repos.ComponentRepo().CreateBatch(ctx, components); err != nil {
		return nil, fmt.Errorf("failed to create components: %w", err)
	}
	if err := repos.UnitRepo().Save(ctx, unit); err != nil {
		return nil, err
	}

	_, err = s.ledger.Append(ctx, repos.LedgerRepo(), ledger.Draft{
		SubjectID:      unit.UnitNumber,
		Action:         ledger.ActionComponentsCreated,
		Actor:          actor,
		ActorRole:      role,
		PreviousStatus: string(from),
		NewStatus:      string(unit.Status),
		Details: fmt.Sprintf("Units created based on donation type (%s): %s",
			unit.DonationType, inventory.DescribeTypes(components)),
	})
	if err != nil {
		return nil, err
	}

	for _, c := range components {
		s.metrics.AddComponentsSeparated(string(c.Type), 1)
	}
	return components, nil
}

// Components lists the components derived from a unit.
func (s *UnitService) Components(ctx context.Context, unitNumber string) ([]inventory.BloodComponent, error) {
	var out []inventory.BloodComponent
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		if _, err := repos.UnitRepo().FindByNumber(ctx, unitNumber); err != nil {
			return err
		}
		var err error
		out, err = repos.ComponentRepo().FindByUnit(ctx, unitNumber)
		return err
	})
	return out, err
}
