package persistence

import (
	"errors"

	"github.com/bloodchain/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// translateError maps driver-level outcomes onto the domain error taxonomy.
// Anything else is returned unchanged.
func translateError(err error, kind, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.NotFound(kind, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.NewDomainError(shared.CodeConflict, kind+" already exists: "+id)
	default:
		return err
	}
}

func stringsOf[S ~string](values []S) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
