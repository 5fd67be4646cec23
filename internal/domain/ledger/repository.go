package ledger

import (
	"context"
	"time"
)

// Repository persists ledger entries. There is no update or delete: an entry
// once appended is permanent, and mistakes are corrected with a new entry.
type Repository interface {
	// LockHead returns the chain head and holds it until the enclosing
	// transaction ends, so head-read, hash and insert are serialized.
	LockHead(ctx context.Context) (Head, error)

	// Append inserts entry and advances the head to it. entry must have been
	// built by NewEntry from the head returned by LockHead.
	Append(ctx context.Context, entry *Entry) error

	// FindBySubject returns a subject's entries oldest first.
	FindBySubject(ctx context.Context, subjectID string) ([]Entry, error)

	// FindByActor returns an actor's entries newest first.
	FindByActor(ctx context.Context, actor string) ([]Entry, error)

	// FindByAction returns entries with the given action newest first.
	FindByAction(ctx context.Context, action string) ([]Entry, error)

	// FindBetween returns entries with from <= timestamp < to, newest first.
	FindBetween(ctx context.Context, from, to time.Time) ([]Entry, error)

	// FindRecent returns the newest limit entries.
	FindRecent(ctx context.Context, limit int) ([]Entry, error)

	// Scan returns up to limit entries with sequence > afterSequence, in
	// sequence order.
	Scan(ctx context.Context, afterSequence int64, limit int) ([]Entry, error)
}
