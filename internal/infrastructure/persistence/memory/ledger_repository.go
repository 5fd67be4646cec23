package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/shared"
)

type ledgerRepo struct {
	st *state
}

func (r *ledgerRepo) LockHead(_ context.Context) (ledger.Head, error) {
	if len(r.st.entries) == 0 {
		return ledger.Head{}, nil
	}
	return r.st.entries[len(r.st.entries)-1].Head(), nil
}

func (r *ledgerRepo) Append(_ context.Context, e *ledger.Entry) error {
	want := int64(len(r.st.entries)) + 1
	if e.Sequence != want {
		return shared.NewDomainError(shared.CodeConflict,
			fmt.Sprintf("ledger sequence %d does not follow head %d", e.Sequence, want-1))
	}
	r.st.entries = append(r.st.entries, *e)
	return nil
}

func (r *ledgerRepo) filter(keep func(ledger.Entry) bool, newestFirst bool) []ledger.Entry {
	var out []ledger.Entry
	for _, e := range r.st.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	if newestFirst {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	}
	return out
}

func (r *ledgerRepo) FindBySubject(_ context.Context, subjectID string) ([]ledger.Entry, error) {
	return r.filter(func(e ledger.Entry) bool { return e.SubjectID == subjectID }, false), nil
}

func (r *ledgerRepo) FindByActor(_ context.Context, actor string) ([]ledger.Entry, error) {
	return r.filter(func(e ledger.Entry) bool { return e.Actor == actor }, true), nil
}

func (r *ledgerRepo) FindByAction(_ context.Context, action string) ([]ledger.Entry, error) {
	return r.filter(func(e ledger.Entry) bool { return e.Action == action }, true), nil
}

func (r *ledgerRepo) FindBetween(_ context.Context, from, to time.Time) ([]ledger.Entry, error) {
	return r.filter(func(e ledger.Entry) bool {
		return !e.Timestamp.Before(from) && e.Timestamp.Before(to)
	}, true), nil
}

func (r *ledgerRepo) FindRecent(_ context.Context, limit int) ([]ledger.Entry, error) {
	out := r.filter(func(ledger.Entry) bool { return true }, true)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ledgerRepo) Scan(_ context.Context, afterSequence int64, limit int) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range r.st.entries {
		if e.Sequence > afterSequence {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
