package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/alfanzaky/txnhook/internal/domain"
	"github.com/alfanzaky/txnhook/pkg/logger"
	"github.com/alfanzaky/txnhook/pkg/metrics"
	"github.com/alfanzaky/txnhook/pkg/observability"
	"github.com/alfanzaky/txnhook/pkg/utils"
	"github.com/alfanzaky/txnhook/pkg/xresponse"
)

const (
	acceptedMessage = "Transaction queued for processing"
	notFoundDetail  = "Transaction not found"
)

// TransactionHandler handles webhook ingestion and status lookups
type TransactionHandler struct {
	transactionUC domain.TransactionUsecase
	now           func() time.Time
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(transactionUC domain.TransactionUsecase) *TransactionHandler {
	return &TransactionHandler{
		transactionUC: transactionUC,
		now:           time.Now,
	}
}

// WebhookRequest is the transaction notification payload
type WebhookRequest struct {
	TransactionID      string           `json:"transaction_id" binding:"required,max=128"`
	SourceAccount      string           `json:"source_account" binding:"required,max=128"`
	DestinationAccount string           `json:"destination_account" binding:"required,max=128"`
	Amount             *decimal.Decimal `json:"amount" binding:"required"`
	Currency           string           `json:"currency" binding:"required,len=3"`
}

// TransactionResponse represents the status snapshot of a transaction
type TransactionResponse struct {
	TransactionID      string      `json:"transaction_id"`
	SourceAccount      string      `json:"source_account"`
	DestinationAccount string      `json:"destination_account"`
	Amount             json.Number `json:"amount"`
	Currency           string      `json:"currency"`
	Status             string      `json:"status"`
	Attempts           int         `json:"attempts"`
	FailureReason      *string     `json:"failure_reason,omitempty"`
	CreatedAt          string      `json:"created_at"`
	ProcessedAt        *string     `json:"processed_at"`
}

func newTransactionResponse(txn *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:      txn.TransactionID,
		SourceAccount:      txn.SourceAccount,
		DestinationAccount: txn.DestinationAccount,
		Amount:             json.Number(txn.Amount.String()),
		Currency:           txn.Currency,
		Status:             string(txn.Status),
		Attempts:           txn.Attempts,
		FailureReason:      txn.FailureReason,
		CreatedAt:          utils.FormatTimestamp(txn.CreatedAt),
		ProcessedAt:        utils.FormatOptionalTimestamp(txn.ProcessedAt),
	}
}

// Health reports liveness with the current server time
func (h *TransactionHandler) Health(c *gin.Context) {
	xresponse.Healthy(c, h.now())
}

// ReceiveWebhook accepts a transaction notification. New and duplicate
// submissions get the same acknowledgment.
func (h *TransactionHandler) ReceiveWebhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleBindError(c, err)
		return
	}

	result, err := h.transactionUC.IngestTransaction(c.Request.Context(), domain.NewTransactionInput{
		TransactionID:      req.TransactionID,
		SourceAccount:      req.SourceAccount,
		DestinationAccount: req.DestinationAccount,
		Amount:             req.Amount,
		Currency:           req.Currency,
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			metrics.RecordWebhook("invalid")
			xresponse.ValidationError(c, verr.Fields)
			return
		}

		metrics.RecordWebhook("error")
		observability.RecordSystemError(c, classify(err), "webhook", err)
		// Resending is safe: the transaction id makes the retry idempotent.
		c.Header("Retry-After", "1")
		xresponse.InternalServerError(c, "Failed to accept transaction, please retry")
		return
	}

	outcome := "accepted"
	if result.Duplicate {
		outcome = "duplicate"
	}
	metrics.RecordWebhook(outcome)

	observability.LogWithFields(c, "Webhook acknowledged",
		logger.TransactionID(req.TransactionID),
		logger.String("outcome", outcome),
	)

	xresponse.Accepted(c, acceptedMessage)
}

// GetTransaction returns the latest snapshot of a transaction
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	trxID := c.Param("transaction_id")

	transaction, err := h.transactionUC.GetTransaction(c.Request.Context(), trxID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			xresponse.NotFound(c, notFoundDetail)
			return
		}

		observability.RecordSystemError(c, classify(err), "status_lookup", err)
		xresponse.InternalServerError(c, "Failed to retrieve transaction")
		return
	}

	xresponse.OK(c, newTransactionResponse(transaction))
}

func (h *TransactionHandler) handleBindError(c *gin.Context, err error) {
	metrics.RecordWebhook("invalid")

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		xresponse.Error(c, http.StatusRequestEntityTooLarge, xresponse.ErrCodePayloadTooLarge,
			fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
		return
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fe.Field()] = fieldMessage(fe)
		}
		xresponse.ValidationError(c, details)
		return
	}

	logger.Ctx(c.Request.Context()).Debug("Malformed webhook body", logger.ErrorField(err))
	xresponse.ErrorWithDetails(c, http.StatusBadRequest, xresponse.ErrCodeValidationFailed,
		"Invalid request format", err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	default:
		return "is invalid"
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, domain.ErrQueueUnavailable):
		return "queue_unavailable"
	default:
		return "internal"
	}
}
