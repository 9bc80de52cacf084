package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ridelink/carpool-backend/internal/database"
	"github.com/ridelink/carpool-backend/internal/gateway"
	"github.com/ridelink/carpool-backend/internal/models"
)

// In-memory fakes mirroring the storage guard semantics: status-guarded
// updates fail with ErrStatusConflict, seat reservation is a conditional
// decrement, stage releases stamp exactly once.

type fakeTripStore struct {
	trips     map[uuid.UUID]*models.Trip
	stops     map[uuid.UUID][]models.TripStop
	getCalls  int
	stopCalls int
}

func newFakeTripStore() *fakeTripStore {
	return &fakeTripStore{
		trips: make(map[uuid.UUID]*models.Trip),
		stops: make(map[uuid.UUID][]models.TripStop),
	}
}

func (f *fakeTripStore) GetByID(tripID uuid.UUID) (*models.Trip, error) {
	f.getCalls++
	trip, ok := f.trips[tripID]
	if !ok {
		return nil, nil
	}
	copied := *trip
	return &copied, nil
}

func (f *fakeTripStore) GetStops(tripID uuid.UUID) ([]models.TripStop, error) {
	f.stopCalls++
	return f.stops[tripID], nil
}

func (f *fakeTripStore) reserve(tripID uuid.UUID, seats int) bool {
	trip, ok := f.trips[tripID]
	if !ok || !trip.Bookable() || trip.AvailableSeats < seats {
		return false
	}
	trip.AvailableSeats -= seats
	if trip.AvailableSeats == 0 {
		trip.Status = models.TripStatusFull
	}
	return true
}

func (f *fakeTripStore) ReleaseSeats(tripID uuid.UUID, seats int) error {
	trip, ok := f.trips[tripID]
	if !ok || trip.Status == models.TripStatusCancelled || trip.Status == models.TripStatusCompleted {
		return nil
	}
	trip.AvailableSeats += seats
	if trip.AvailableSeats > trip.TotalSeats {
		trip.AvailableSeats = trip.TotalSeats
	}
	if trip.Status == models.TripStatusFull {
		trip.Status = models.TripStatusPublished
	}
	return nil
}

type fakeBookingStore struct {
	bookings    map[uuid.UUID]*models.Booking
	trips       *fakeTripStore
	dupOnCreate int   // number of leading Create calls that report a code collision
	cancelErr   error // injected Cancel failure
	createCalls int
	lookupCalls int
}

func newFakeBookingStore(trips *fakeTripStore) *fakeBookingStore {
	return &fakeBookingStore{
		bookings: make(map[uuid.UUID]*models.Booking),
		trips:    trips,
	}
}

func (f *fakeBookingStore) Create(booking *models.Booking) error {
	f.createCalls++
	if f.dupOnCreate > 0 {
		f.dupOnCreate--
		return database.ErrDuplicateCode
	}
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	copied := *booking
	f.bookings[booking.ID] = &copied
	return nil
}

func (f *fakeBookingStore) GetByID(bookingID uuid.UUID) (*models.Booking, error) {
	booking, ok := f.bookings[bookingID]
	if !ok {
		return nil, nil
	}
	copied := *booking
	return &copied, nil
}

func (f *fakeBookingStore) GetByQRCode(qrCode string) (*models.Booking, error) {
	f.lookupCalls++
	for _, b := range f.bookings {
		if b.QRCode == qrCode {
			copied := *b
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeBookingStore) GetByPNR(pnrCode string) (*models.Booking, error) {
	f.lookupCalls++
	for _, b := range f.bookings {
		if b.PNRCode == pnrCode {
			copied := *b
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeBookingStore) guarded(bookingID uuid.UUID, from ...models.BookingStatus) (*models.Booking, error) {
	booking, ok := f.bookings[bookingID]
	if !ok {
		return nil, database.ErrStatusConflict
	}
	for _, s := range from {
		if booking.Status == s {
			return booking, nil
		}
	}
	return nil, database.ErrStatusConflict
}

func (f *fakeBookingStore) MarkAccepted(bookingID uuid.UUID, paymentDueAt, now time.Time) error {
	booking, err := f.guarded(bookingID, models.BookingStatusPending)
	if err != nil {
		return err
	}
	booking.Status = models.BookingStatusAwaitingPayment
	booking.AcceptedAt = &now
	booking.PaymentDueAt = &paymentDueAt
	return nil
}

func (f *fakeBookingStore) MarkRejected(bookingID uuid.UUID, reason *string, now time.Time) error {
	booking, err := f.guarded(bookingID, models.BookingStatusPending)
	if err != nil {
		return err
	}
	booking.Status = models.BookingStatusRejected
	booking.RejectionReason = reason
	return nil
}

func (f *fakeBookingStore) MarkCheckedIn(bookingID uuid.UUID, now time.Time) error {
	booking, err := f.guarded(bookingID, models.BookingStatusConfirmed)
	if err != nil {
		return err
	}
	booking.Status = models.BookingStatusCheckedIn
	booking.CheckedInAt = &now
	return nil
}

func (f *fakeBookingStore) MarkCompleted(bookingID uuid.UUID, source models.CompletionSource, disputeDeadlineAt, now time.Time) error {
	booking, err := f.guarded(bookingID, models.BookingStatusCheckedIn)
	if err != nil {
		return err
	}
	booking.Status = models.BookingStatusCompleted
	booking.CompletedAt = &now
	booking.CompletionSource = &source
	booking.DisputeStatus = models.DisputeStatusNone
	booking.DisputeDeadlineAt = &disputeDeadlineAt
	return nil
}

func (f *fakeBookingStore) MarkDisputed(bookingID uuid.UUID, reason string, now time.Time) error {
	booking, err := f.guarded(bookingID, models.BookingStatusCompleted, models.BookingStatusDisputed)
	if err != nil {
		return err
	}
	booking.Status = models.BookingStatusDisputed
	booking.DisputeStatus = models.DisputeStatusOpen
	booking.DisputeReason = &reason
	hold := models.HoldReasonDisputeOpen
	booking.PayoutHoldReason = &hold
	return nil
}

func (f *fakeBookingStore) MarkExpired(bookingID uuid.UUID, now time.Time) error {
	booking, err := f.guarded(bookingID, models.BookingStatusPending, models.BookingStatusAwaitingPayment)
	if err != nil {
		return err
	}
	booking.Status = models.BookingStatusExpired
	return nil
}

func (f *fakeBookingStore) FinalizePayment(bookingID, tripID uuid.UUID, seats int, paymentID string, now time.Time) error {
	if !f.trips.reserve(tripID, seats) {
		return database.ErrNoSeats
	}
	booking, err := f.guarded(bookingID, models.BookingStatusAwaitingPayment)
	if err != nil {
		// Roll the reservation back as the real transaction would.
		_ = f.trips.ReleaseSeats(tripID, seats)
		return err
	}
	booking.Status = models.BookingStatusConfirmed
	booking.PaymentStatus = models.PaymentStatusPaid
	booking.PaymentID = &paymentID
	booking.PaidAt = &now
	booking.PaymentDueAt = nil
	return nil
}

func (f *fakeBookingStore) Cancel(bookingID, tripID uuid.UUID,
	expectedStatus, newStatus models.BookingStatus,
	paymentStatus models.PaymentStatus,
	penalty, refund float64,
	reason *string,
	releaseSeats int,
	now time.Time,
) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	booking, err := f.guarded(bookingID, expectedStatus)
	if err != nil {
		return err
	}
	booking.Status = newStatus
	booking.PaymentStatus = paymentStatus
	booking.PenaltyAmount = penalty
	booking.RefundAmount = refund
	booking.CancellationReason = reason
	booking.CancelledAt = &now
	if releaseSeats > 0 {
		return f.trips.ReleaseSeats(tripID, releaseSeats)
	}
	return nil
}

func (f *fakeBookingStore) FindPaymentOverdue(now time.Time, limit int) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range f.bookings {
		if b.Status == models.BookingStatusAwaitingPayment &&
			b.PaymentDueAt != nil && b.PaymentDueAt.Before(now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBookingStore) FindAutoCompletable(now time.Time, arrivalFallback, delay time.Duration, limit int) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range f.bookings {
		if b.Status != models.BookingStatusCheckedIn {
			continue
		}
		trip := f.trips.trips[b.TripID]
		if trip == nil {
			continue
		}
		if !trip.ArrivalOrFallback(arrivalFallback).Add(delay).After(now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBookingStore) FindPayoutEligible(limit int) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range f.bookings {
		if b.PaymentStatus != models.PaymentStatusPaid {
			continue
		}
		if b.Status != models.BookingStatusCheckedIn && b.Status != models.BookingStatusCompleted {
			continue
		}
		if b.Payout10ReleasedAt == nil || b.Payout90ReleasedAt == nil {
			out = append(out, *b)
		}
	}
	return out, nil
}

type fakeAccountStore struct {
	accounts map[uuid.UUID]*models.DriverAccount
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[uuid.UUID]*models.DriverAccount)}
}

func (f *fakeAccountStore) GetByDriverID(driverID uuid.UUID) (*models.DriverAccount, error) {
	account, ok := f.accounts[driverID]
	if !ok {
		return nil, nil
	}
	copied := *account
	return &copied, nil
}

func (f *fakeAccountStore) UpsertPayoutAccount(driverID uuid.UUID, providerAccountID string, status models.PayoutAccountStatus) error {
	account, ok := f.accounts[driverID]
	if !ok {
		account = &models.DriverAccount{DriverID: driverID}
		f.accounts[driverID] = account
	}
	account.ProviderAccountID = &providerAccountID
	account.PayoutAccountStatus = status
	return nil
}

func (f *fakeAccountStore) SetPayoutAccountStatus(driverID uuid.UUID, status models.PayoutAccountStatus) error {
	account, ok := f.accounts[driverID]
	if !ok {
		return database.ErrStatusConflict
	}
	account.PayoutAccountStatus = status
	return nil
}

func (f *fakeAccountStore) verified(driverID uuid.UUID) {
	providerID := "acct_" + driverID.String()[:8]
	f.accounts[driverID] = &models.DriverAccount{
		DriverID:            driverID,
		PayoutAccountStatus: models.PayoutAccountVerified,
		ProviderAccountID:   &providerID,
	}
}

func (f *fakeAccountStore) balance(driverID uuid.UUID) float64 {
	if account, ok := f.accounts[driverID]; ok {
		return account.WalletBalance
	}
	return 0
}

type fakeLedgerStore struct {
	ledgers  map[uuid.UUID]*models.PayoutLedger // keyed by booking ID
	bookings *fakeBookingStore
	accounts *fakeAccountStore
}

func newFakeLedgerStore(bookings *fakeBookingStore, accounts *fakeAccountStore) *fakeLedgerStore {
	return &fakeLedgerStore{
		ledgers:  make(map[uuid.UUID]*models.PayoutLedger),
		bookings: bookings,
		accounts: accounts,
	}
}

func (f *fakeLedgerStore) GetByBookingID(bookingID uuid.UUID) (*models.PayoutLedger, error) {
	ledger, ok := f.ledgers[bookingID]
	if !ok {
		return nil, nil
	}
	copied := *ledger
	return &copied, nil
}

func (f *fakeLedgerStore) Create(ledger *models.PayoutLedger) error {
	if _, exists := f.ledgers[ledger.BookingID]; exists {
		return database.ErrDuplicateCode
	}
	if ledger.ID == uuid.Nil {
		ledger.ID = uuid.New()
	}
	copied := *ledger
	f.ledgers[ledger.BookingID] = &copied
	return nil
}

func (f *fakeLedgerStore) ReleaseStage(ledgerID, bookingID, driverID uuid.UUID,
	stage int, amount float64, newStatus models.PayoutLedgerStatus,
	transferID *string, now time.Time,
) (bool, error) {
	ledger, ok := f.ledgers[bookingID]
	if !ok {
		return false, fmt.Errorf("ledger not found")
	}
	booking := f.bookings.bookings[bookingID]
	switch stage {
	case models.PayoutStage10:
		if ledger.Stage10ReleasedAt != nil {
			return false, nil
		}
		ledger.Stage10ReleasedAt = &now
		if booking != nil {
			booking.Payout10ReleasedAt = &now
			booking.PayoutHoldReason = nil
		}
	case models.PayoutStage90:
		if ledger.Stage90ReleasedAt != nil {
			return false, nil
		}
		ledger.Stage90ReleasedAt = &now
		if booking != nil {
			booking.Payout90ReleasedAt = &now
			booking.PayoutHoldReason = nil
		}
	default:
		return false, fmt.Errorf("unknown stage %d", stage)
	}
	ledger.Status = newStatus
	ledger.HoldReason = nil
	ledger.LastError = nil
	ledger.ProviderTransferID = transferID
	if account, ok := f.accounts.accounts[driverID]; ok {
		account.WalletBalance += amount
	}
	return true, nil
}

func (f *fakeLedgerStore) MarkHold(ledgerID, bookingID uuid.UUID, reason string, lastError *string, now time.Time) error {
	ledger, ok := f.ledgers[bookingID]
	if !ok {
		return fmt.Errorf("ledger not found")
	}
	ledger.Status = models.PayoutLedgerStatusHold
	ledger.HoldReason = &reason
	ledger.LastError = lastError
	if booking := f.bookings.bookings[bookingID]; booking != nil {
		booking.PayoutHoldReason = &reason
	}
	return nil
}

func (f *fakeLedgerStore) ClearHold(ledgerID, bookingID uuid.UUID, now time.Time) error {
	ledger, ok := f.ledgers[bookingID]
	if !ok || ledger.Status != models.PayoutLedgerStatusHold {
		return database.ErrStatusConflict
	}
	if ledger.Stage10ReleasedAt != nil {
		ledger.Status = models.PayoutLedgerStatusPartialReleased
	} else {
		ledger.Status = models.PayoutLedgerStatusPending
	}
	ledger.HoldReason = nil
	if booking := f.bookings.bookings[bookingID]; booking != nil {
		booking.PayoutHoldReason = nil
	}
	return nil
}

type fakeGateway struct {
	chargeCalls  int
	refundCalls  int
	payoutCalls  map[string]int // by idempotency key
	accountCalls int

	chargeErr  error
	refundErr  error
	payoutErr  error
	accountErr error

	verifiedOnRegister bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payoutCalls: make(map[string]int)}
}

func (g *fakeGateway) Charge(_ context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	g.chargeCalls++
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	return &gateway.ChargeResult{Status: "success", PaymentID: fmt.Sprintf("pay_%d", g.chargeCalls)}, nil
}

func (g *fakeGateway) Refund(_ context.Context, paymentID string, amount float64, reason string) (*gateway.RefundResult, error) {
	g.refundCalls++
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &gateway.RefundResult{Status: "success", RefundID: fmt.Sprintf("ref_%d", g.refundCalls)}, nil
}

func (g *fakeGateway) ReleasePayout(_ context.Context, req *gateway.PayoutRequest) (*gateway.PayoutResult, error) {
	g.payoutCalls[req.IdempotencyKey]++
	if g.payoutErr != nil {
		return nil, g.payoutErr
	}
	return &gateway.PayoutResult{Status: "success", TransferID: "tr_" + req.IdempotencyKey}, nil
}

func (g *fakeGateway) RegisterPayoutAccount(_ context.Context, driverID, accountNumber, bankCode, holderName string) (*gateway.AccountResult, error) {
	g.accountCalls++
	if g.accountErr != nil {
		return nil, g.accountErr
	}
	return &gateway.AccountResult{Status: "success", AccountID: "acct_" + driverID[:8], Verified: g.verifiedOnRegister}, nil
}

func (g *fakeGateway) totalPayoutCalls() int {
	total := 0
	for _, n := range g.payoutCalls {
		total += n
	}
	return total
}

type fakeNotifier struct {
	requested, confirmed, cancelled, disputed int
}

func (n *fakeNotifier) BookingRequested(*models.Booking) { n.requested++ }
func (n *fakeNotifier) BookingConfirmed(*models.Booking) { n.confirmed++ }
func (n *fakeNotifier) BookingCancelled(*models.Booking) { n.cancelled++ }
func (n *fakeNotifier) DisputeOpened(*models.Booking)    { n.disputed++ }
