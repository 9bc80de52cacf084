package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ridelink/carpool-backend/internal/models"
)

func TestReleaseStage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPayoutLedgerRepository(db)
	ledgerID := uuid.New()
	bookingID := uuid.New()
	driverID := uuid.New()
	now := time.Now()

	t.Run("Stage 10 Release", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payout_ledgers`).
			WithArgs(ledgerID, now, models.PayoutLedgerStatusPartialReleased, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE driver_accounts`).
			WithArgs(driverID, 27.0, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE bookings`).
			WithArgs(bookingID, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		applied, err := repo.ReleaseStage(ledgerID, bookingID, driverID,
			models.PayoutStage10, 27.0, models.PayoutLedgerStatusPartialReleased, nil, now)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Repeated Release Is A No-Op", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payout_ledgers`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		applied, err := repo.ReleaseStage(ledgerID, bookingID, driverID,
			models.PayoutStage10, 27.0, models.PayoutLedgerStatusPartialReleased, nil, now)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown Stage Rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		applied, err := repo.ReleaseStage(ledgerID, bookingID, driverID,
			55, 27.0, models.PayoutLedgerStatusPartialReleased, nil, now)
		assert.Error(t, err)
		assert.False(t, applied)
	})
}

func TestMarkHold(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPayoutLedgerRepository(db)
	ledgerID := uuid.New()
	bookingID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE payout_ledgers`).
		WithArgs(ledgerID, models.HoldReasonDisputeOpen, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs(bookingID, models.HoldReasonDisputeOpen, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.MarkHold(ledgerID, bookingID, models.HoldReasonDisputeOpen, nil, now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearHold(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPayoutLedgerRepository(db)
	ledgerID := uuid.New()
	bookingID := uuid.New()
	now := time.Now()

	t.Run("Held Ledger Cleared", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payout_ledgers`).
			WithArgs(ledgerID, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE bookings`).
			WithArgs(bookingID, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.ClearHold(ledgerID, bookingID, now)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unheld Ledger Is A Conflict", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payout_ledgers`).
			WithArgs(ledgerID, now).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.ClearHold(ledgerID, bookingID, now)
		assert.ErrorIs(t, err, ErrStatusConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
