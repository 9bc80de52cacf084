package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/ridelink/carpool-backend/internal/models"
)

// DriverAccountRepository handles driver wallet and payout account persistence
type DriverAccountRepository struct {
	db *sqlx.DB
}

// NewDriverAccountRepository creates a new DriverAccountRepository
func NewDriverAccountRepository(db *sqlx.DB) *DriverAccountRepository {
	return &DriverAccountRepository{db: db}
}

const driverAccountColumns = `
	driver_id, wallet_balance, payout_account_status, provider_account_id,
	created_at, updated_at`

// GetByDriverID retrieves a driver's account. Returns (nil, nil) when the
// driver never registered a payout account.
func (r *DriverAccountRepository) GetByDriverID(driverID uuid.UUID) (*models.DriverAccount, error) {
	var account models.DriverAccount
	query := `SELECT ` + driverAccountColumns + ` FROM driver_accounts WHERE driver_id = $1`
	err := r.db.Get(&account, query, driverID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get driver account: %w", err)
	}
	return &account, nil
}

// UpsertPayoutAccount creates or updates the driver's payout account record.
// Re-registration resets verification until the provider confirms again.
func (r *DriverAccountRepository) UpsertPayoutAccount(driverID uuid.UUID, providerAccountID string, status models.PayoutAccountStatus) error {
	now := time.Now()
	query := `
		INSERT INTO driver_accounts (driver_id, wallet_balance, payout_account_status, provider_account_id, created_at, updated_at)
		VALUES ($1, 0, $2, $3, $4, $4)
		ON CONFLICT (driver_id)
		DO UPDATE SET payout_account_status = $2, provider_account_id = $3, updated_at = $4`

	_, err := r.db.Exec(query, driverID, status, providerAccountID, now)
	if err != nil {
		return fmt.Errorf("failed to upsert driver account: %w", err)
	}
	return nil
}

// SetPayoutAccountStatus updates only the verification status, typically from
// a provider webhook.
func (r *DriverAccountRepository) SetPayoutAccountStatus(driverID uuid.UUID, status models.PayoutAccountStatus) error {
	result, err := r.db.Exec(`
		UPDATE driver_accounts
		SET payout_account_status = $2, updated_at = $3
		WHERE driver_id = $1`,
		driverID, status, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update payout account status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read status update result: %w", err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}
	return nil
}
