package gateway

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/ridelink/carpool-backend/internal/config"
)

// Gateway is the payment provider surface the booking and payout engines
// depend on. The HTTP implementation talks to the provider's REST API; tests
// substitute a fake.
type Gateway interface {
	// Charge captures the passenger's payment for a booking. The returned
	// payment ID is the provider's transaction reference.
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)

	// Refund returns part or all of a captured payment to the passenger.
	Refund(ctx context.Context, paymentID string, amount float64, reason string) (*RefundResult, error)

	// ReleasePayout transfers funds to the driver's payout account. The
	// idempotency key makes provider-side retries safe: the provider
	// returns the original transfer for a repeated key.
	ReleasePayout(ctx context.Context, req *PayoutRequest) (*PayoutResult, error)

	// RegisterPayoutAccount onboards a driver's bank details with the
	// provider and returns the provider-side account reference.
	RegisterPayoutAccount(ctx context.Context, driverID, accountNumber, bankCode, holderName string) (*AccountResult, error)
}

// ChargeRequest carries everything the provider needs to capture a payment
type ChargeRequest struct {
	InvoiceID    string  `json:"invoiceId"`
	PaymentToken string  `json:"paymentToken"`
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currencyCode"`
	Description  string  `json:"description,omitempty"`
	CheckValue   string  `json:"checkValue"`
}

// ChargeResult is the provider's answer to a capture attempt
type ChargeResult struct {
	Status        string `json:"status"`
	PaymentID     string `json:"paymentId"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message,omitempty"`
}

// RefundResult is the provider's answer to a refund
type RefundResult struct {
	Status   string `json:"status"`
	RefundID string `json:"refundId"`
	Message  string `json:"message,omitempty"`
}

// PayoutRequest carries a driver transfer
type PayoutRequest struct {
	IdempotencyKey    string  `json:"idempotencyKey"`
	ProviderAccountID string  `json:"accountId"`
	Amount            float64 `json:"amount"`
	CurrencyCode      string  `json:"currencyCode"`
	Description       string  `json:"description,omitempty"`
	CheckValue        string  `json:"checkValue"`
}

// PayoutResult is the provider's answer to a transfer
type PayoutResult struct {
	Status     string `json:"status"`
	TransferID string `json:"transferId"`
	Message    string `json:"message,omitempty"`
}

// AccountResult is the provider's answer to an account registration
type AccountResult struct {
	Status    string `json:"status"`
	AccountID string `json:"accountId"`
	// Verified is rarely true synchronously: most providers confirm
	// through a webhook after bank-side checks.
	Verified bool   `json:"verified"`
	Message  string `json:"message,omitempty"`
}

// HTTPGateway is the production Gateway talking JSON over HTTPS
type HTTPGateway struct {
	config *config.GatewayConfig
	logger *logrus.Logger
	client *http.Client
}

// NewHTTPGateway creates a new HTTPGateway
func NewHTTPGateway(cfg *config.GatewayConfig, logger *logrus.Logger) *HTTPGateway {
	return &HTTPGateway{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// checkValue builds the SHA-512 request signature:
// hash1 = SHA512(apiSecret) uppercase hex
// check = SHA512("apiKey|reference|amount|hash1") uppercase hex
func (g *HTTPGateway) checkValue(reference string, amount float64) string {
	hash1 := sha512.Sum512([]byte(g.config.APISecret))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%.2f|%s", g.config.APIKey, reference, amount, hash1Hex)
	hash2 := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// Charge captures a passenger payment
func (g *HTTPGateway) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	if g.config.APIKey == "" || g.config.APISecret == "" {
		return nil, fmt.Errorf("payment gateway not configured: missing API credentials")
	}
	req.CheckValue = g.checkValue(req.InvoiceID, req.Amount)

	g.logger.WithFields(logrus.Fields{
		"invoice_id": req.InvoiceID,
		"amount":     req.Amount,
		"currency":   req.CurrencyCode,
	}).Info("Charging payment")

	var result ChargeResult
	if err := g.post(ctx, "/v1/charges", "", req, &result); err != nil {
		return nil, err
	}
	if result.Status != "success" {
		return nil, fmt.Errorf("charge failed: %s", errMessage(result.Status, result.Message))
	}
	if result.PaymentID == "" {
		return nil, fmt.Errorf("charge failed: no payment ID returned")
	}
	return &result, nil
}

// Refund returns funds to the passenger
func (g *HTTPGateway) Refund(ctx context.Context, paymentID string, amount float64, reason string) (*RefundResult, error) {
	payload := map[string]interface{}{
		"paymentId":  paymentID,
		"amount":     amount,
		"reason":     reason,
		"checkValue": g.checkValue(paymentID, amount),
	}

	g.logger.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"amount":     amount,
	}).Info("Refunding payment")

	var result RefundResult
	if err := g.post(ctx, "/v1/refunds", "", payload, &result); err != nil {
		return nil, err
	}
	if result.Status != "success" {
		return nil, fmt.Errorf("refund failed: %s", errMessage(result.Status, result.Message))
	}
	return &result, nil
}

// ReleasePayout transfers funds to a driver
func (g *HTTPGateway) ReleasePayout(ctx context.Context, req *PayoutRequest) (*PayoutResult, error) {
	req.CheckValue = g.checkValue(req.IdempotencyKey, req.Amount)

	g.logger.WithFields(logrus.Fields{
		"idempotency_key": req.IdempotencyKey,
		"account_id":      req.ProviderAccountID,
		"amount":          req.Amount,
	}).Info("Releasing payout")

	var result PayoutResult
	if err := g.post(ctx, "/v1/payouts", req.IdempotencyKey, req, &result); err != nil {
		return nil, err
	}
	if result.Status != "success" {
		return nil, fmt.Errorf("payout failed: %s", errMessage(result.Status, result.Message))
	}
	return &result, nil
}

// RegisterPayoutAccount onboards a driver's bank account
func (g *HTTPGateway) RegisterPayoutAccount(ctx context.Context, driverID, accountNumber, bankCode, holderName string) (*AccountResult, error) {
	payload := map[string]interface{}{
		"externalId":    driverID,
		"accountNumber": accountNumber,
		"bankCode":      bankCode,
		"holderName":    holderName,
		"checkValue":    g.checkValue(driverID, 0),
	}

	g.logger.WithField("driver_id", driverID).Info("Registering payout account")

	var result AccountResult
	if err := g.post(ctx, "/v1/accounts", "", payload, &result); err != nil {
		return nil, err
	}
	if result.Status != "success" {
		return nil, fmt.Errorf("account registration failed: %s", errMessage(result.Status, result.Message))
	}
	if result.AccountID == "" {
		return nil, fmt.Errorf("account registration failed: no account ID returned")
	}
	return &result, nil
}

func (g *HTTPGateway) post(ctx context.Context, path, idempotencyKey string, payload, out interface{}) error {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", g.config.APIKey)
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.WithError(err).Error("Failed to call payment gateway")
		return fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		g.logger.WithFields(logrus.Fields{
			"body":  string(body),
			"error": err.Error(),
		}).Error("Failed to parse gateway response")
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func errMessage(status, message string) string {
	if message != "" {
		return message
	}
	return fmt.Sprintf("status=%s", status)
}
