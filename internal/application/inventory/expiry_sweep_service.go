package inventory

import (
	"context"
	"fmt"
	"time"

	ledgerapp "github.com/bloodchain/backend/internal/application/ledger"
	"github.com/bloodchain/backend/internal/application/txscope"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/metrics"
	"github.com/bloodchain/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// expirableComponentStatuses are the component statuses the sweep may move
// to EXPIRED.
var expirableComponentStatuses = []inventory.ComponentStatus{
	inventory.ComponentAvailable,
	inventory.ComponentReserved,
}

// ExpirySweepService flips past-expiry units and components to EXPIRED.
// Each entity is expired in its own transaction with exactly one ledger
// entry, so a failure on one leaves the others committed and a rerun only
// picks up what is still left.
type ExpirySweepService struct {
	scope   txscope.TransactionScope
	ledger  ledgerapp.Appender
	units   *UnitService
	clock   shared.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewExpirySweepService creates an ExpirySweepService. m may be nil.
func NewExpirySweepService(scope txscope.TransactionScope, appender ledgerapp.Appender, units *UnitService, clock shared.Clock, m *metrics.Metrics, logger *zap.Logger) *ExpirySweepService {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirySweepService{scope: scope, ledger: appender, units: units, clock: clock, metrics: m, logger: logger}
}

// SweepStats contains statistics about one sweep run
type SweepStats struct {
	UnitsFound        int       `json:"units_found"`
	UnitsExpired      int       `json:"units_expired"`
	ComponentsFound   int       `json:"components_found"`
	ComponentsExpired int       `json:"components_expired"`
	Failed            int       `json:"failed"`
	ProcessedAt       time.Time `json:"processed_at"`
}

// Sweep expires every STORED unit and every AVAILABLE or RESERVED component
// whose expiry date is before today.
func (s *ExpirySweepService) Sweep(ctx context.Context) (stats *SweepStats, err error) {
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("expiry_sweep", nil), func(c context.Context) {
		stats, err = s.sweep(c)
	})
	return stats, err
}

func (s *ExpirySweepService) sweep(ctx context.Context) (*SweepStats, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "expiry_sweep", "sweep")
	defer span.End()

	start := time.Now()
	now := s.clock.Now()
	today := shared.StartOfDay(now)
	stats := &SweepStats{ProcessedAt: now}

	units, components, err := s.findCandidates(ctx, today)
	if err != nil {
		s.logger.Error("Failed to find expired inventory", zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, err
	}
	stats.UnitsFound = len(units)
	stats.ComponentsFound = len(components)
	if stats.UnitsFound == 0 && stats.ComponentsFound == 0 {
		s.logger.Debug("No expired inventory found")
		s.metrics.ObserveSweep(start, 0, 0)
		return stats, nil
	}

	for _, u := range units {
		changed, err := s.units.MarkExpired(ctx, u.UnitNumber)
		if err != nil {
			s.logger.Error("Failed to expire blood unit",
				zap.String("unit_number", u.UnitNumber),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}
		if changed {
			stats.UnitsExpired++
		}
	}

	for _, c := range components {
		changed, err := s.expireComponent(ctx, c.ID)
		if err != nil {
			s.logger.Error("Failed to expire blood component",
				zap.String("component_id", c.ID),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}
		if changed {
			stats.ComponentsExpired++
		}
	}

	s.metrics.ObserveSweep(start, stats.UnitsExpired, stats.ComponentsExpired)
	telemetry.SetAttributes(span,
		"units_expired", stats.UnitsExpired,
		"components_expired", stats.ComponentsExpired,
	)
	s.logger.Info("Completed expiry sweep",
		zap.Int("units_expired", stats.UnitsExpired),
		zap.Int("components_expired", stats.ComponentsExpired),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (s *ExpirySweepService) findCandidates(ctx context.Context, today time.Time) ([]inventory.BloodUnit, []inventory.BloodComponent, error) {
	var units []inventory.BloodUnit
	var components []inventory.BloodComponent
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		var err error
		units, err = repos.UnitRepo().FindExpiredBefore(ctx, today, expirableUnitStatuses())
		if err != nil {
			return err
		}
		components, err = repos.ComponentRepo().FindExpiredBefore(ctx, today, expirableComponentStatuses)
		return err
	})
	return units, components, err
}

// expirableUnitStatuses are the unit statuses with an edge to EXPIRED.
func expirableUnitStatuses() []inventory.UnitStatus {
	var out []inventory.UnitStatus
	for _, st := range inventory.AllUnitStatuses {
		if st.CanTransitionTo(inventory.UnitExpired) {
			out = append(out, st)
		}
	}
	return out
}

// expireComponent moves the component with a compare-and-set, so losing to
// another writer is a silent skip rather than a second entry.
func (s *ExpirySweepService) expireComponent(ctx context.Context, componentID string) (bool, error) {
	var changed bool
	err := ledgerapp.ExecuteWrite(ctx, s.scope, func(repos txscope.TransactionalRepositories) error {
		c, err := repos.ComponentRepo().FindByID(ctx, componentID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if !c.IsExpiredAt(now) || !c.Status.CanTransitionTo(inventory.ComponentExpired) {
			return nil
		}
		from := c.Status
		won, err := repos.ComponentRepo().CompareAndSetStatus(ctx, c.ID, from, inventory.ComponentExpired, now)
		if err != nil || !won {
			return err
		}
		_, err = s.ledger.Append(ctx, repos.LedgerRepo(), ledger.Draft{
			SubjectID:      c.BloodUnitID,
			Action:         ledger.ActionComponentExpired,
			Actor:          ledger.ActorSystem,
			ActorRole:      ledger.RoleSystem,
			PreviousStatus: string(from),
			NewStatus:      string(inventory.ComponentExpired),
			Details: fmt.Sprintf("%s component expired (was %s, now EXPIRED). Expiry date: %s",
				c.Type, from, c.ExpiryDate.Format("2006-01-02")),
		})
		changed = err == nil
		return err
	})
	return changed, err
}
