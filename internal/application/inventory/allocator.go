package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	ledgerapp "github.com/bloodchain/backend/internal/application/ledger"
	"github.com/bloodchain/backend/internal/application/txscope"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/metrics"
	"github.com/bloodchain/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultAllocationAttempts bounds how often AllocateInTx re-reads candidates
// after losing reservations to concurrent writers.
const DefaultAllocationAttempts = 5

// Allocator hands out components first-expires-first-out.
type Allocator struct {
	scope       txscope.TransactionScope
	ledger      ledgerapp.Appender
	clock       shared.Clock
	metrics     *metrics.Metrics
	logger      *zap.Logger
	maxAttempts int
}

// NewAllocator creates an Allocator. m may be nil.
func NewAllocator(scope txscope.TransactionScope, appender ledgerapp.Appender, clock shared.Clock, m *metrics.Metrics, logger *zap.Logger) *Allocator {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{
		scope:       scope,
		ledger:      appender,
		clock:       clock,
		metrics:     m,
		logger:      logger,
		maxAttempts: DefaultAllocationAttempts,
	}
}

// FindAvailable returns up to limit allocatable components, earliest expiry first.
func (a *Allocator) FindAvailable(ctx context.Context, componentType inventory.ComponentType, group inventory.BloodGroup, limit int) ([]inventory.BloodComponent, error) {
	if limit <= 0 {
		return nil, shared.Validation("limit must be positive")
	}
	var out []inventory.BloodComponent
	err := a.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		var err error
		out, err = repos.ComponentRepo().FindAvailable(ctx, componentType, group, shared.StartOfDay(a.clock.Now()), limit)
		return err
	})
	return out, err
}

// CountAvailable counts allocatable components of a type and group.
func (a *Allocator) CountAvailable(ctx context.Context, componentType inventory.ComponentType, group inventory.BloodGroup) (int64, error) {
	var n int64
	err := a.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		var err error
		n, err = repos.ComponentRepo().CountAvailable(ctx, componentType, group, shared.StartOfDay(a.clock.Now()))
		return err
	})
	return n, err
}

// Reserve moves one AVAILABLE component to RESERVED.
func (a *Allocator) Reserve(ctx context.Context, componentID, actor, role string) (*inventory.BloodComponent, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocator", "reserve",
		telemetry.SpanAttrComponentID, componentID, telemetry.SpanAttrActor, actor)
	defer span.End()

	var c *inventory.BloodComponent
	err := ledgerapp.ExecuteWrite(ctx, a.scope, func(repos txscope.TransactionalRepositories) error {
		var err error
		c, err = repos.ComponentRepo().FindByID(ctx, componentID)
		if err != nil {
			return err
		}
		if c.Status != inventory.ComponentAvailable {
			return shared.NewDomainError(shared.CodeInvalidTransition,
				fmt.Sprintf("Component %s is not available (status %s)", c.ID, c.Status))
		}
		return a.TransitionInTx(ctx, repos, c, inventory.ComponentReserved, actor, role)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return c, nil
}

// TransitionInTx moves c to `to` with a compare-and-set on its current status
// and appends a COMPONENT_STATUS_CHANGED entry to the owning unit's trail. A
// concurrent writer that changed the status first yields CONFLICT.
func (a *Allocator) TransitionInTx(ctx context.Context, repos txscope.TransactionalRepositories, c *inventory.BloodComponent, to inventory.ComponentStatus, actor, role string) error {
	won, err := a.TryTransitionInTx(ctx, repos, c, to, actor, role)
	if err != nil {
		return err
	}
	if !won {
		return shared.NewDomainError(shared.CodeConflict,
			fmt.Sprintf("Component %s was modified concurrently", c.ID))
	}
	return nil
}

// TryTransitionInTx is TransitionInTx for callers that treat a lost
// compare-and-set as "skip": it reports false, writes nothing and leaves c
// unchanged.
func (a *Allocator) TryTransitionInTx(ctx context.Context, repos txscope.TransactionalRepositories, c *inventory.BloodComponent, to inventory.ComponentStatus, actor, role string) (bool, error) {
	now := a.clock.Now()
	from := c.Status
	if err := inventory.ComponentTransitions.Check(from, to); err != nil {
		return false, err
	}
	won, err := repos.ComponentRepo().CompareAndSetStatus(ctx, c.ID, from, to, now)
	if err != nil || !won {
		return false, err
	}
	c.Status = to
	c.UpdatedAt = now

	_, err = a.ledger.Append(ctx, repos.LedgerRepo(), ledger.Draft{
		SubjectID:      c.BloodUnitID,
		Action:         ledger.ActionComponentStatusChanged,
		Actor:          actor,
		ActorRole:      role,
		PreviousStatus: string(from),
		NewStatus:      string(to),
		Details:        fmt.Sprintf("%s component status changed from %s to %s", c.Type, from, to),
	})
	return err == nil, err
}

// AllocateInTx reserves up to quantity components of a type and group. It
// re-reads candidates after every lost compare-and-set until quantity is
// met, stock runs out or the attempt budget is spent. It returns what it
// reserved, which may be fewer than quantity or empty.
func (a *Allocator) AllocateInTx(ctx context.Context, repos txscope.TransactionalRepositories, componentType inventory.ComponentType, group inventory.BloodGroup, quantity int, actor, role string) ([]inventory.BloodComponent, error) {
	today := shared.StartOfDay(a.clock.Now())
	reserved := make([]inventory.BloodComponent, 0, quantity)

	for attempt := 0; attempt < a.maxAttempts && len(reserved) < quantity; attempt++ {
		candidates, err := repos.ComponentRepo().FindAvailable(ctx, componentType, group, today, quantity-len(reserved))
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			break
		}

		lost := 0
		for i := range candidates {
			c := candidates[i]
			err := a.TransitionInTx(ctx, repos, &c, inventory.ComponentReserved, actor, role)
			if shared.IsCode(err, shared.CodeConflict) {
				a.metrics.IncrementReservation(false)
				lost++
				continue
			}
			if err != nil {
				return nil, err
			}
			a.metrics.IncrementReservation(true)
			reserved = append(reserved, c)
		}
		if lost == 0 {
			break
		}
		a.logger.Debug("Lost component reservations, retrying",
			zap.String("component_type", string(componentType)),
			zap.String("blood_group", string(group)),
			zap.Int("lost", lost),
			zap.Int("attempt", attempt+1),
		)
	}
	return reserved, nil
}

// ExhaustedInTx builds the inventory-exhausted error with the current
// total-vs-available diagnostics for a type and group.
func (a *Allocator) ExhaustedInTx(ctx context.Context, repos txscope.TransactionalRepositories, componentType inventory.ComponentType, group inventory.BloodGroup) error {
	total, err := repos.ComponentRepo().CountByType(ctx, componentType)
	if err != nil {
		return err
	}
	available, err := repos.ComponentRepo().CountAvailable(ctx, componentType, group, shared.StartOfDay(a.clock.Now()))
	if err != nil {
		return err
	}
	return shared.NewInventoryExhaustedError(string(componentType), string(group), total, available)
}

// TypeTotals is the all-status total and allocatable count of one type.
type TypeTotals struct {
	Total     int64 `json:"total"`
	Available int64 `json:"available"`
}

// StockSummary is the inventory dashboard view.
type StockSummary struct {
	AsOf          time.Time                              `json:"as_of"`
	Levels        []inventory.StockLevel                 `json:"levels"`
	ByType        map[inventory.ComponentType]TypeTotals `json:"by_type"`
	UnitsByStatus map[inventory.UnitStatus]int64         `json:"units_by_status"`
}

// Summary gathers the stock levels, the per-type totals and the unit status
// counts concurrently.
func (a *Allocator) Summary(ctx context.Context) (*StockSummary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocator", "summary")
	defer span.End()

	today := shared.StartOfDay(a.clock.Now())
	summary := &StockSummary{
		AsOf:   today,
		ByType: make(map[inventory.ComponentType]TypeTotals, len(inventory.AllComponentTypes)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scope.Execute(gctx, func(repos txscope.TransactionalRepositories) error {
			levels, err := repos.ComponentRepo().SummarizeAvailable(gctx, today)
			if err != nil {
				return err
			}
			sort.Slice(levels, func(i, j int) bool {
				if levels[i].ComponentType != levels[j].ComponentType {
					return levels[i].ComponentType < levels[j].ComponentType
				}
				return levels[i].BloodGroup < levels[j].BloodGroup
			})
			summary.Levels = levels
			return nil
		})
	})
	g.Go(func() error {
		return a.scope.Execute(gctx, func(repos txscope.TransactionalRepositories) error {
			counts, err := repos.UnitRepo().CountByStatus(gctx)
			if err != nil {
				return err
			}
			summary.UnitsByStatus = counts
			return nil
		})
	})
	totals := make([]int64, len(inventory.AllComponentTypes))
	for i, t := range inventory.AllComponentTypes {
		g.Go(func() error {
			return a.scope.Execute(gctx, func(repos txscope.TransactionalRepositories) error {
				n, err := repos.ComponentRepo().CountByType(gctx, t)
				totals[i] = n
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	for i, t := range inventory.AllComponentTypes {
		tt := TypeTotals{Total: totals[i]}
		for _, l := range summary.Levels {
			if l.ComponentType == t {
				tt.Available += l.Count
			}
		}
		summary.ByType[t] = tt
	}
	return summary, nil
}

// AvailableStock reports allocatable components per type and blood group for
// the stock gauges.
func (a *Allocator) AvailableStock(ctx context.Context) ([]telemetry.StockGauge, error) {
	var levels []inventory.StockLevel
	err := a.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		var err error
		levels, err = repos.ComponentRepo().SummarizeAvailable(ctx, shared.StartOfDay(a.clock.Now()))
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]telemetry.StockGauge, len(levels))
	for i, l := range levels {
		out[i] = telemetry.StockGauge{
			ComponentType: string(l.ComponentType),
			BloodGroup:    string(l.BloodGroup),
			Count:         l.Count,
		}
	}
	return out, nil
}
