package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	ledgerapp "github.com/bloodchain/backend/internal/application/ledger"
	"github.com/bloodchain/backend/internal/application/txscope"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mockNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestLedgerLockHeadSelectsForUpdate(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "ledger_heads" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sequence", "hash", "timestamp"}).
			AddRow(1, 7, "abc", mockNow))

	head, err := NewGormLedgerRepository(db.DB).LockHead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), head.Sequence)
	assert.Equal(t, "abc", head.Hash)
	assert.True(t, head.Timestamp.Equal(mockNow))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerAppendDetectsMovedHead(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	e, err := ledger.NewEntry(ledger.Draft{SubjectID: "BU-2026-000001", Action: ledger.ActionUnitCreated, Actor: "bank@example.com"},
		ledger.Head{}, mockNow)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO "ledger_entries"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "ledger_heads" SET .* WHERE id = \$\d+ AND sequence = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewGormLedgerRepository(db.DB).Append(context.Background(), e)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComponentCompareAndSetStatusSQL(t *testing.T) {
	casSQL := `UPDATE "blood_components" SET .*"status"=\$\d+.* WHERE id = \$\d+ AND status = \$\d+`

	t.Run("won", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectExec(casSQL).WillReturnResult(sqlmock.NewResult(0, 1))

		won, err := NewGormComponentRepository(db.DB).CompareAndSetStatus(context.Background(),
			"RBC-1", inventory.ComponentAvailable, inventory.ComponentReserved, mockNow)
		require.NoError(t, err)
		assert.True(t, won)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost to another writer", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectExec(casSQL).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "blood_components" WHERE id = \$1`).
			WithArgs("RBC-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		won, err := NewGormComponentRepository(db.DB).CompareAndSetStatus(context.Background(),
			"RBC-1", inventory.ComponentAvailable, inventory.ComponentReserved, mockNow)
		require.NoError(t, err)
		assert.False(t, won)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing component", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectExec(casSQL).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "blood_components"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		_, err := NewGormComponentRepository(db.DB).CompareAndSetStatus(context.Background(),
			"RBC-404", inventory.ComponentAvailable, inventory.ComponentReserved, mockNow)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})
}

func TestTransactionScopeRollsBackOnError(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := db.TransactionScope().Execute(context.Background(), func(_ txscope.TransactionalRepositories) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteTransactionLocksHeadBeforeRows(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "ledger_heads" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sequence", "hash", "timestamp"}).
			AddRow(1, 7, "abc", mockNow))
	mock.ExpectQuery(`SELECT \* FROM "blood_components"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	ctx := context.Background()
	err := ledgerapp.ExecuteWrite(ctx, db.TransactionScope(), func(repos txscope.TransactionalRepositories) error {
		_, err := repos.ComponentRepo().FindByID(ctx, "RBC-404")
		return err
	})
	assert.True(t, errors.Is(err, shared.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
