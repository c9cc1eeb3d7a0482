package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/songsmith/backend/internal/errs"
	"github.com/songsmith/backend/internal/models"
)

const (
	lockAccountQuery   = "SELECT user_id, balance, version, updated_at\\s+FROM accounts\\s+WHERE user_id = \\$1\\s+FOR UPDATE"
	insertEntryQuery   = "INSERT INTO credit_transactions"
	updateBalanceQuery = "UPDATE accounts\\s+SET balance = \\$1, version = version \\+ 1, updated_at = \\$2\\s+WHERE user_id = \\$3 AND version = \\$4"
)

func TestLedgerService_Debit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)
	ctx := context.Background()

	t.Run("successful debit", func(t *testing.T) {
		userID := 42
		amount := int64(10)

		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountQuery).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "version", "updated_at"}).
				AddRow(userID, 100, 3, time.Now()))
		mock.ExpectQuery(insertEntryQuery).
			WithArgs(userID, -amount, int64(90), "deduction", "Song generation", "song-1", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectExec(updateBalanceQuery).
			WithArgs(int64(90), sqlmock.AnyArg(), userID, 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		entry, err := service.Debit(ctx, userID, amount, "Song generation", "song-1")
		assert.NoError(t, err)
		assert.Equal(t, int64(-10), entry.Amount)
		assert.Equal(t, int64(90), entry.BalanceAfter)
		assert.Equal(t, models.KindDeduction, entry.Kind)
		assert.Equal(t, int64(7), entry.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds leaves account untouched", func(t *testing.T) {
		userID := 42

		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountQuery).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "version", "updated_at"}).
				AddRow(userID, 5, 3, time.Now()))
		mock.ExpectRollback()

		entry, err := service.Debit(ctx, userID, 10, "Song generation", "song-2")
		assert.Nil(t, entry)
		assert.True(t, errs.Is(err, errs.KindInsufficientFunds))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exact balance debits to zero", func(t *testing.T) {
		userID := 42

		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountQuery).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "version", "updated_at"}).
				AddRow(userID, 10, 1, time.Now()))
		mock.ExpectQuery(insertEntryQuery).
			WithArgs(userID, int64(-10), int64(0), "deduction", "Song generation", "song-3", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
		mock.ExpectExec(updateBalanceQuery).
			WithArgs(int64(0), sqlmock.AnyArg(), userID, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		entry, err := service.Debit(ctx, userID, 10, "Song generation", "song-3")
		assert.NoError(t, err)
		assert.Equal(t, int64(0), entry.BalanceAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		_, err := service.Debit(ctx, 42, 0, "nothing", "")
		assert.Error(t, err)
		_, err = service.Debit(ctx, 42, -5, "nothing", "")
		assert.Error(t, err)
	})

	t.Run("storage failure rolls back", func(t *testing.T) {
		userID := 42

		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountQuery).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "version", "updated_at"}).
				AddRow(userID, 100, 1, time.Now()))
		mock.ExpectQuery(insertEntryQuery).
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		entry, err := service.Debit(ctx, userID, 10, "Song generation", "song-4")
		assert.Nil(t, entry)
		assert.True(t, errs.Is(err, errs.KindStorage))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_Credit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)
	ctx := context.Background()

	t.Run("purchase credit", func(t *testing.T) {
		userID := 7
		amount := int64(1000)

		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountQuery).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "version", "updated_at"}).
				AddRow(userID, 250, 12, time.Now()))
		mock.ExpectQuery(insertEntryQuery).
			WithArgs(userID, amount, int64(1250), "purchase", "Purchased studio package", "PAY-abc", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(99))
		mock.ExpectExec(updateBalanceQuery).
			WithArgs(int64(1250), sqlmock.AnyArg(), userID, 12).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		entry, err := service.Credit(ctx, userID, amount, models.KindPurchase, "Purchased studio package", "PAY-abc")
		assert.NoError(t, err)
		assert.Equal(t, int64(1250), entry.BalanceAfter)
		assert.Equal(t, models.KindPurchase, entry.Kind)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("optimistic lock conflict fails the operation", func(t *testing.T) {
		userID := 7

		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountQuery).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "version", "updated_at"}).
				AddRow(userID, 250, 12, time.Now()))
		mock.ExpectQuery(insertEntryQuery).
			WithArgs(userID, int64(100), int64(350), "refund", "Refund for failed song", "song-9", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
		mock.ExpectExec(updateBalanceQuery).
			WithArgs(int64(350), sqlmock.AnyArg(), userID, 12).
			WillReturnResult(sqlmock.NewResult(0, 0)) // someone else bumped the version
		mock.ExpectRollback()

		entry, err := service.Credit(ctx, userID, 100, models.KindRefund, "Refund for failed song", "song-9")
		assert.Nil(t, entry)
		assert.True(t, errs.Is(err, errs.KindStorage))
		assert.Contains(t, err.Error(), "optimistic lock failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_HasRefundFor(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)
	ctx := context.Background()

	t.Run("refund exists", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(7, "song-9").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := service.HasRefundFor(ctx, 7, "song-9")
		assert.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("no refund yet", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(7, "song-10").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		exists, err := service.HasRefundFor(ctx, 7, "song-10")
		assert.NoError(t, err)
		assert.False(t, exists)
	})
}
