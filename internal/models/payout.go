package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutLedgerStatus tracks the two-stage release of a driver's net earnings
type PayoutLedgerStatus string

const (
	PayoutLedgerStatusPending         PayoutLedgerStatus = "pending"
	PayoutLedgerStatusHold            PayoutLedgerStatus = "hold"
	PayoutLedgerStatusPartialReleased PayoutLedgerStatus = "partial_released"
	PayoutLedgerStatusReleased        PayoutLedgerStatus = "released"
)

// Payout stage identifiers. Stage 10 releases at check-in, stage 90 after
// the dispute window closes.
const (
	PayoutStage10 = 10
	PayoutStage90 = 90
)

// Hold reasons recorded on the ledger when a release cannot proceed.
const (
	HoldReasonDisputeOpen        = "dispute_open"
	HoldReasonAccountNotVerified = "driver_payout_account_not_verified"
	HoldReasonGatewayError       = "gateway_error"
)

// PayoutLedger is the audit record of a paid booking's staged payout.
// Created lazily on the first release attempt, amounts fixed at creation,
// mutated only by the payout engine, never deleted.
type PayoutLedger struct {
	ID                 uuid.UUID          `json:"id" db:"id"`
	BookingID          uuid.UUID          `json:"booking_id" db:"booking_id"`
	DriverID           uuid.UUID          `json:"driver_id" db:"driver_id"`
	GrossAmount        float64            `json:"gross_amount" db:"gross_amount"`
	CommissionAmount   float64            `json:"commission_amount" db:"commission_amount"`
	DriverNetAmount    float64            `json:"driver_net_amount" db:"driver_net_amount"`
	Release10Amount    float64            `json:"release10_amount" db:"release10_amount"`
	Release90Amount    float64            `json:"release90_amount" db:"release90_amount"`
	Status             PayoutLedgerStatus `json:"status" db:"status"`
	Stage10ReleasedAt  *time.Time         `json:"stage10_released_at,omitempty" db:"stage10_released_at"`
	Stage90ReleasedAt  *time.Time         `json:"stage90_released_at,omitempty" db:"stage90_released_at"`
	HoldReason         *string            `json:"hold_reason,omitempty" db:"hold_reason"`
	LastError          *string            `json:"last_error,omitempty" db:"last_error"`
	ProviderTransferID *string            `json:"provider_transfer_id,omitempty" db:"provider_transfer_id"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// StageAmount returns the amount for the given release stage.
func (l *PayoutLedger) StageAmount(stage int) float64 {
	if stage == PayoutStage10 {
		return l.Release10Amount
	}
	return l.Release90Amount
}

// PayoutReleaseResult is the outcome of a release attempt.
type PayoutReleaseResult string

const (
	// PayoutReleased means money moved (or a zero-amount stage was stamped).
	PayoutReleased PayoutReleaseResult = "released"

	// PayoutSkipped means the stage was already released; nothing happened.
	PayoutSkipped PayoutReleaseResult = "skipped"

	// PayoutHeld means a precondition failed; the ledger is in hold state
	// and the scheduler will retry.
	PayoutHeld PayoutReleaseResult = "held"
)
