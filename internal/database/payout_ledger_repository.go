package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/ridelink/carpool-backend/internal/models"
)

// PayoutLedgerRepository handles payout ledger persistence. A ledger row is
// the single source of truth for how much of a booking's driver share has
// been released; stage releases are idempotent at the SQL level through
// stage timestamp guards.
type PayoutLedgerRepository struct {
	db *sqlx.DB
}

// NewPayoutLedgerRepository creates a new PayoutLedgerRepository
func NewPayoutLedgerRepository(db *sqlx.DB) *PayoutLedgerRepository {
	return &PayoutLedgerRepository{db: db}
}

const payoutLedgerColumns = `
	id, booking_id, driver_id, gross_amount, commission_amount, driver_net_amount,
	release10_amount, release90_amount, status,
	stage10_released_at, stage90_released_at, hold_reason, last_error,
	provider_transfer_id, created_at, updated_at`

// GetByBookingID retrieves the ledger row for a booking. Returns (nil, nil)
// when no ledger exists yet.
func (r *PayoutLedgerRepository) GetByBookingID(bookingID uuid.UUID) (*models.PayoutLedger, error) {
	var ledger models.PayoutLedger
	query := `SELECT ` + payoutLedgerColumns + ` FROM payout_ledgers WHERE booking_id = $1`
	err := r.db.Get(&ledger, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout ledger: %w", err)
	}
	return &ledger, nil
}

// Create inserts a new ledger row. The booking_id unique constraint makes a
// concurrent double-create fail on one side; callers re-read on
// ErrDuplicateCode.
func (r *PayoutLedgerRepository) Create(ledger *models.PayoutLedger) error {
	if ledger.ID == uuid.Nil {
		ledger.ID = uuid.New()
	}
	ledger.CreatedAt = time.Now()
	ledger.UpdatedAt = ledger.CreatedAt

	query := `
		INSERT INTO payout_ledgers (
			id, booking_id, driver_id, gross_amount, commission_amount, driver_net_amount,
			release10_amount, release90_amount, status, hold_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(query,
		ledger.ID, ledger.BookingID, ledger.DriverID,
		ledger.GrossAmount, ledger.CommissionAmount, ledger.DriverNetAmount,
		ledger.Release10Amount, ledger.Release90Amount,
		ledger.Status, ledger.HoldReason, ledger.CreatedAt, ledger.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to create payout ledger: %w", err)
	}
	return nil
}

// ReleaseStage credits the driver wallet and stamps the stage in one
// transaction. The ledger update is guarded on the stage timestamp being
// NULL, so a concurrent or repeated release applies exactly once; the
// second caller gets (false, nil). The booking's payout timestamp and the
// wallet credit ride on the same guard.
func (r *PayoutLedgerRepository) ReleaseStage(
	ledgerID, bookingID, driverID uuid.UUID,
	stage int,
	amount float64,
	newStatus models.PayoutLedgerStatus,
	transferID *string,
	now time.Time,
) (bool, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ledgerQuery, bookingQuery string
	switch stage {
	case models.PayoutStage10:
		ledgerQuery = `
			UPDATE payout_ledgers
			SET stage10_released_at = $2, status = $3, hold_reason = NULL,
			    last_error = NULL, provider_transfer_id = $4, updated_at = $2
			WHERE id = $1 AND stage10_released_at IS NULL`
		bookingQuery = `UPDATE bookings SET payout10_released_at = $2, payout_hold_reason = NULL, updated_at = $2 WHERE id = $1`
	case models.PayoutStage90:
		ledgerQuery = `
			UPDATE payout_ledgers
			SET stage90_released_at = $2, status = $3, hold_reason = NULL,
			    last_error = NULL, provider_transfer_id = $4, updated_at = $2
			WHERE id = $1 AND stage90_released_at IS NULL`
		bookingQuery = `UPDATE bookings SET payout90_released_at = $2, payout_hold_reason = NULL, updated_at = $2 WHERE id = $1`
	default:
		return false, fmt.Errorf("unknown payout stage: %d", stage)
	}

	result, err := tx.Exec(ledgerQuery, ledgerID, now, newStatus, transferID)
	if err != nil {
		return false, fmt.Errorf("failed to stamp payout stage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read stage result: %w", err)
	}
	if rows == 0 {
		// Already released.
		return false, nil
	}

	_, err = tx.Exec(`
		UPDATE driver_accounts
		SET wallet_balance = wallet_balance + $2, updated_at = $3
		WHERE driver_id = $1`,
		driverID, amount, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to credit driver wallet: %w", err)
	}

	if _, err := tx.Exec(bookingQuery, bookingID, now); err != nil {
		return false, fmt.Errorf("failed to stamp booking payout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit payout release: %w", err)
	}
	return true, nil
}

// MarkHold parks the ledger (and its booking) under a hold reason. A held
// ledger is skipped by the settlement sweep until the reason clears.
func (r *PayoutLedgerRepository) MarkHold(ledgerID, bookingID uuid.UUID, reason string, lastError *string, now time.Time) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE payout_ledgers
		SET status = 'hold', hold_reason = $2, last_error = $3, updated_at = $4
		WHERE id = $1`,
		ledgerID, reason, lastError, now,
	)
	if err != nil {
		return fmt.Errorf("failed to hold payout ledger: %w", err)
	}

	_, err = tx.Exec(`UPDATE bookings SET payout_hold_reason = $2, updated_at = $3 WHERE id = $1`,
		bookingID, reason, now,
	)
	if err != nil {
		return fmt.Errorf("failed to stamp booking hold: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payout hold: %w", err)
	}
	return nil
}

// ClearHold lifts a hold so the next settlement sweep retries the release.
func (r *PayoutLedgerRepository) ClearHold(ledgerID, bookingID uuid.UUID, now time.Time) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE payout_ledgers
		SET status = CASE WHEN stage10_released_at IS NOT NULL THEN 'partial_released' ELSE 'pending' END,
		    hold_reason = NULL, updated_at = $2
		WHERE id = $1 AND status = 'hold'`,
		ledgerID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to clear payout hold: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read hold result: %w", err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}

	_, err = tx.Exec(`UPDATE bookings SET payout_hold_reason = NULL, updated_at = $2 WHERE id = $1`,
		bookingID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to clear booking hold: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit hold clear: %w", err)
	}
	return nil
}
