// Package ledger is the application service over the hash-chained log.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/bloodchain/backend/internal/application/txscope"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/metrics"
	"github.com/bloodchain/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	// DefaultRecentLimit is the size of the recent-activity view.
	DefaultRecentLimit = 100
	verifyPageSize     = 500
)

// ActionCorrection marks a forward-only correction of an earlier entry.
const ActionCorrection = "CORRECTION"

// Appender appends one entry inside the caller's transaction. The other
// services depend on this rather than on Service.
type Appender interface {
	Append(ctx context.Context, repo ledger.Repository, draft ledger.Draft) (*ledger.Entry, error)
}

// Service appends to and reads the ledger.
type Service struct {
	scope   txscope.TransactionScope
	clock   shared.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService creates a ledger service. m may be nil.
func NewService(scope txscope.TransactionScope, clock shared.Clock, m *metrics.Metrics, logger *zap.Logger) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{scope: scope, clock: clock, metrics: m, logger: logger}
}

// Append locks the chain head through repo, chains draft onto it and inserts
// the entry. Any error must abort the caller's transaction.
func (s *Service) Append(ctx context.Context, repo ledger.Repository, draft ledger.Draft) (*ledger.Entry, error) {
	start := time.Now()

	head, err := repo.LockHead(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock ledger head: %w", err)
	}
	entry, err := ledger.NewEntry(draft, head, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	s.metrics.ObserveLedgerAppend(start)
	s.logger.Debug("Ledger entry appended",
		zap.Int64("sequence", entry.Sequence),
		zap.String("subject", entry.SubjectID),
		zap.String("action", entry.Action),
	)
	return entry, nil
}

// ExecuteWrite runs fn in a transaction that locks the chain head before
// anything else. Every mutating operation appends to the ledger, so taking
// the head first gives all writers one lock order: head, then rows.
func ExecuteWrite(ctx context.Context, scope txscope.TransactionScope, fn func(repos txscope.TransactionalRepositories) error) error {
	return scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		if _, err := repos.LedgerRepo().LockHead(ctx); err != nil {
			return fmt.Errorf("failed to lock ledger head: %w", err)
		}
		return fn(repos)
	})
}

// CorrectionCommand references an earlier entry that is being corrected.
type CorrectionCommand struct {
	SubjectID string
	Sequence  int64
	Actor     string
	ActorRole string
	Details   string
}

// RecordCorrection appends a CORRECTION entry pointing at an earlier entry of
// the same subject. History is never edited.
func (s *Service) RecordCorrection(ctx context.Context, cmd CorrectionCommand) (*ledger.Entry, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "record_correction",
		telemetry.SpanAttrUnitNumber, cmd.SubjectID, telemetry.SpanAttrLedgerSeq, cmd.Sequence)
	defer span.End()

	var entry *ledger.Entry
	err := ExecuteWrite(ctx, s.scope, func(repos txscope.TransactionalRepositories) error {
		trail, err := repos.LedgerRepo().FindBySubject(ctx, cmd.SubjectID)
		if err != nil {
			return err
		}
		found := false
		for _, e := range trail {
			if e.Sequence == cmd.Sequence {
				found = true
				break
			}
		}
		if !found {
			return shared.NotFound("ledger entry", fmt.Sprintf("%s#%d", cmd.SubjectID, cmd.Sequence))
		}
		entry, err = s.Append(ctx, repos.LedgerRepo(), ledger.Draft{
			SubjectID: cmd.SubjectID,
			Action:    ActionCorrection,
			Actor:     cmd.Actor,
			ActorRole: cmd.ActorRole,
			Details:   fmt.Sprintf("Corrects entry #%d: %s", cmd.Sequence, cmd.Details),
		})
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return entry, nil
}

// Trail returns a subject's full provenance, oldest first.
func (s *Service) Trail(ctx context.Context, subjectID string) ([]ledger.Entry, error) {
	var out []ledger.Entry
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		var err error
		out, err = repos.LedgerRepo().FindBySubject(ctx, subjectID)
		return err
	})
	return out, err
}

// ByActor returns an actor's entries, newest first.
func (s *Service) ByActor(ctx context.Context, actor string) ([]ledger.Entry, error) {
	var out []ledger.Entry
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		var err error
		out, err = repos.LedgerRepo().FindByActor(ctx, actor)
		return err
	})
	return out, err
}

// ByAction returns entries with action, newest first.
func (s *Service) ByAction(ctx context.Context, action string) ([]ledger.Entry, error) {
	var out []ledger.Entry
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		var err error
		out, err = repos.LedgerRepo().FindByAction(ctx, action)
		return err
	})
	return out, err
}

// Between returns entries in [from, to), newest first.
func (s *Service) Between(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	if !from.Before(to) {
		return nil, shared.Validation("time window start must be before its end")
	}
	var out []ledger.Entry
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		var err error
		out, err = repos.LedgerRepo().FindBetween(ctx, from, to)
		return err
	})
	return out, err
}

// Recent returns the newest limit entries; limit <= 0 means DefaultRecentLimit.
func (s *Service) Recent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	var out []ledger.Entry
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		var err error
		out, err = repos.LedgerRepo().FindRecent(ctx, limit)
		return err
	})
	return out, err
}

// Verify walks the whole chain page by page and recomputes every hash.
func (s *Service) Verify(ctx context.Context) (ledger.VerifyReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "verify")
	defer span.End()

	v := ledger.NewVerifier()
	var err error
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("ledger_verify", nil), func(ctx context.Context) {
		err = s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
			var after int64
			for {
				page, err := repos.LedgerRepo().Scan(ctx, after, verifyPageSize)
				if err != nil {
					return err
				}
				for _, e := range page {
					v.Add(e)
				}
				if len(page) < verifyPageSize {
					return nil
				}
				after = page[len(page)-1].Sequence
			}
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return ledger.VerifyReport{}, err
	}

	report := v.Report()
	telemetry.SetAttributes(span, "total", report.Total, "ok", report.OK)
	if !report.OK {
		s.metrics.IncrementVerifyFailures()
		s.logger.Error("Ledger chain verification failed",
			zap.Int("total", report.Total),
			zap.Strings("errors", report.Errors),
		)
	}
	return report, nil
}
