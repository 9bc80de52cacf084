package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutAccountStatus is the verification state of a driver's payout account
// at the payment provider.
type PayoutAccountStatus string

const (
	PayoutAccountUnverified PayoutAccountStatus = "unverified"
	PayoutAccountPending    PayoutAccountStatus = "pending"
	PayoutAccountVerified   PayoutAccountStatus = "verified"
)

// DriverAccount holds a driver's wallet balance and payout account state.
// WalletBalance is credited only inside the same transaction as a payout
// stage release.
type DriverAccount struct {
	DriverID            uuid.UUID           `json:"driver_id" db:"driver_id"`
	WalletBalance       float64             `json:"wallet_balance" db:"wallet_balance"`
	PayoutAccountStatus PayoutAccountStatus `json:"payout_account_status" db:"payout_account_status"`
	ProviderAccountID   *string             `json:"provider_account_id,omitempty" db:"provider_account_id"`
	CreatedAt           time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at" db:"updated_at"`
}

// PayoutReady reports whether payouts can be sent to this driver.
func (a *DriverAccount) PayoutReady() bool {
	return a.PayoutAccountStatus == PayoutAccountVerified &&
		a.ProviderAccountID != nil && *a.ProviderAccountID != ""
}
