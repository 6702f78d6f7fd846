package settlement

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alfanzaky/txnhook/config"
	"github.com/alfanzaky/txnhook/internal/domain"
	"github.com/alfanzaky/txnhook/pkg/logger"
)

// Name is the registry key for this processor
const Name = "settlement"

const (
	settlementEndpoint = "/settlements"
	signatureHeader    = "X-Signature"
	idempotencyHeader  = "Idempotency-Key"
	maxErrorBody       = 512
)

// Settlement statuses reported by the downstream API
const (
	StatusSettled  = "SETTLED"
	StatusAccepted = "ACCEPTED"
	StatusRejected = "REJECTED"
)

// Adapter implements domain.Processor by posting the transaction to a
// settlement API. Requests are signed with HMAC-SHA256 over the body and
// carry the transaction id as idempotency key, so a redelivered transaction
// never settles twice downstream.
type Adapter struct {
	cfg        config.SettlementConfig
	httpClient *http.Client
}

var _ domain.Processor = (*Adapter)(nil)

// NewAdapter creates a new settlement adapter instance
func NewAdapter(cfg config.SettlementConfig, client *http.Client) *Adapter {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Adapter{
		cfg:        cfg,
		httpClient: client,
	}
}

func (a *Adapter) Name() string {
	return Name
}

// Process submits the transaction for settlement. The call is bounded by ctx.
func (a *Adapter) Process(ctx context.Context, txn *domain.Transaction) error {
	if txn == nil {
		return fmt.Errorf("transaction is required")
	}

	payload := &settlementRequest{
		ReferenceID:        txn.TransactionID,
		SourceAccount:      txn.SourceAccount,
		DestinationAccount: txn.DestinationAccount,
		Amount:             txn.Amount,
		Currency:           txn.Currency,
		Attempt:            txn.Attempts,
	}

	start := time.Now()
	response, err := a.doPost(ctx, settlementEndpoint, txn.TransactionID, payload)
	if err != nil {
		return err
	}

	switch strings.ToUpper(response.Status) {
	case StatusSettled, StatusAccepted:
		logger.Info("Settlement confirmed",
			logger.TransactionID(txn.TransactionID),
			logger.String("settlement_id", response.SettlementID),
			logger.String("status", response.Status),
			logger.Duration("duration", time.Since(start)),
		)
		return nil
	case StatusRejected:
		return fmt.Errorf("settlement rejected: %s", response.Message)
	default:
		return fmt.Errorf("unexpected settlement status %q", response.Status)
	}
}

func (a *Adapter) doPost(ctx context.Context, path, idempotencyKey string, payload interface{}) (*settlementResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyHeader, idempotencyKey)
	req.Header.Set(signatureHeader, a.Sign(body))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("settlement request failed: %w", err)
	}
	defer resp.Body.Close()

	// Conflict means the key was settled by an earlier attempt.
	if resp.StatusCode == http.StatusConflict {
		return &settlementResponse{Status: StatusSettled, Message: "already settled"}, nil
	}

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("settlement API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var response settlementResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode settlement response: %w", err)
	}

	return &response, nil
}

func (a *Adapter) endpoint(path string) string {
	base := strings.TrimRight(a.cfg.BaseURL, "/")
	return base + path
}

// Sign returns the hex HMAC-SHA256 of body keyed by the shared secret
func (a *Adapter) Sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(a.cfg.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// --- Settlement DTOs ---

type settlementRequest struct {
	ReferenceID        string          `json:"reference_id"`
	SourceAccount      string          `json:"source_account"`
	DestinationAccount string          `json:"destination_account"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Attempt            int             `json:"attempt"`
}

type settlementResponse struct {
	SettlementID string `json:"settlement_id"`
	Status       string `json:"status"`
	Message      string `json:"message"`
}
