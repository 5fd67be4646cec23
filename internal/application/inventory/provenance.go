package inventory

import (
	"context"

	"github.com/bloodchain/backend/internal/application/txscope"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/infrastructure/telemetry"
)

// Provenance is everything recorded about one unit: the unit, its
// components, its ledger trail oldest first and the two tamper checks.
type Provenance struct {
	Unit       *inventory.BloodUnit       `json:"unit"`
	Components []inventory.BloodComponent `json:"components"`
	Trail      []ledger.Entry             `json:"trail"`
	Integrity  UnitIntegrity              `json:"integrity"`
	// TrailHashesOK is false when any trail entry's stored hash differs
	// from its recomputed hash. Chain linkage is checked by the full
	// ledger verification, not here.
	TrailHashesOK    bool    `json:"trail_hashes_ok"`
	MismatchedSeqNos []int64 `json:"mismatched_sequences,omitempty"`
}

// Provenance reads a unit's full history in one transaction.
func (s *UnitService) Provenance(ctx context.Context, unitNumber string) (*Provenance, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "unit", "provenance", telemetry.SpanAttrUnitNumber, unitNumber)
	defer span.End()

	p := &Provenance{}
	err := s.scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		unit, err := repos.UnitRepo().FindByNumber(ctx, unitNumber)
		if err != nil {
			return err
		}
		p.Unit = unit
		if p.Components, err = repos.ComponentRepo().FindByUnit(ctx, unitNumber); err != nil {
			return err
		}
		p.Trail, err = repos.LedgerRepo().FindBySubject(ctx, unitNumber)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	computed := p.Unit.ComputeIntegrityHash()
	p.Integrity = UnitIntegrity{
		UnitNumber: p.Unit.UnitNumber,
		Stored:     p.Unit.IntegrityHash,
		Computed:   computed,
		OK:         p.Unit.IntegrityHash == computed,
	}
	p.TrailHashesOK = true
	for _, e := range p.Trail {
		if e.ComputeHash() != e.Hash {
			p.TrailHashesOK = false
			p.MismatchedSeqNos = append(p.MismatchedSeqNos, e.Sequence)
		}
	}
	telemetry.SetAttributes(span,
		"trail_length", len(p.Trail),
		"integrity_ok", p.Integrity.OK,
		"trail_hashes_ok", p.TrailHashesOK,
	)
	return p, nil
}
