package domain

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a webhook transaction.
type TransactionStatus string

// Transaction statuses. PROCESSING is the only non-terminal state.
const (
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusProcessed  TransactionStatus = "PROCESSED"
	StatusFailed     TransactionStatus = "FAILED"
)

const (
	maxIdentifierLength = 128
	// Amounts must fit NUMERIC(38,18) style storage and render cheaply.
	maxAmountScale  = 18
	maxAmountDigits = 38
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Transaction represents a transaction notification accepted through the webhook
type Transaction struct {
	TransactionID      string            `json:"transaction_id" db:"transaction_id"`
	SourceAccount      string            `json:"source_account" db:"source_account"`
	DestinationAccount string            `json:"destination_account" db:"destination_account"`
	Amount             decimal.Decimal   `json:"amount" db:"amount"`
	Currency           string            `json:"currency" db:"currency"`
	Status             TransactionStatus `json:"status" db:"status"`

	// Processing bookkeeping
	Attempts      int     `json:"attempts" db:"attempts"`
	FailureReason *string `json:"failure_reason,omitempty" db:"failure_reason"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	EnqueuedAt  *time.Time `json:"-" db:"enqueued_at"`
	ProcessedAt *time.Time `json:"processed_at" db:"processed_at"`
}

// NewTransactionInput carries the caller supplied webhook fields.
type NewTransactionInput struct {
	TransactionID      string
	SourceAccount      string
	DestinationAccount string
	Amount             *decimal.Decimal
	Currency           string
}

// NewTransaction validates the input and builds a transaction in PROCESSING
// state stamped with the given acceptance time.
func NewTransaction(input NewTransactionInput, now time.Time) (*Transaction, error) {
	verr := &ValidationError{}

	id := input.TransactionID
	source := strings.TrimSpace(input.SourceAccount)
	destination := strings.TrimSpace(input.DestinationAccount)
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))

	// Ids are opaque; padding is rejected rather than trimmed into another id.
	if trimmed := strings.TrimSpace(id); trimmed != id && trimmed != "" {
		verr.Add("transaction_id", "must not have leading or trailing whitespace")
	}
	checkIdentifier(verr, "transaction_id", strings.TrimSpace(id))
	checkIdentifier(verr, "source_account", source)
	checkIdentifier(verr, "destination_account", destination)

	switch {
	case input.Amount == nil:
		verr.Add("amount", "is required")
	case !amountInRange(*input.Amount):
		verr.Add("amount", "is out of range")
	case !input.Amount.IsPositive():
		verr.Add("amount", "must be greater than zero")
	}

	switch {
	case currency == "":
		verr.Add("currency", "is required")
	case !currencyPattern.MatchString(currency):
		verr.Add("currency", "must be a 3-letter code")
	}

	if verr.HasErrors() {
		return nil, verr
	}

	createdAt := now.UTC()
	return &Transaction{
		TransactionID:      id,
		SourceAccount:      source,
		DestinationAccount: destination,
		Amount:             *input.Amount,
		Currency:           currency,
		Status:             StatusProcessing,
		CreatedAt:          createdAt,
		UpdatedAt:          createdAt,
	}, nil
}

// amountInRange bounds the scale and the integer digits before the value is
// ever rendered, since String expands the exponent into digits.
func amountInRange(amount decimal.Decimal) bool {
	exp := int64(amount.Exponent())
	if exp < -maxAmountScale {
		return false
	}
	digits := int64(amount.NumDigits())
	if exp > 0 {
		digits += exp
	}
	return digits <= maxAmountDigits
}

func checkIdentifier(verr *ValidationError, field, value string) {
	switch {
	case value == "":
		verr.Add(field, "is required")
	case len(value) > maxIdentifierLength:
		verr.Add(field, "must be at most 128 characters")
	}
}

// IsFinalStatus reports whether no further processing may happen.
func (t *Transaction) IsFinalStatus() bool {
	return t.Status == StatusProcessed || t.Status == StatusFailed
}

// NeedsEnqueue reports whether the row was accepted but never handed to the queue.
func (t *Transaction) NeedsEnqueue() bool {
	return t.Status == StatusProcessing && t.EnqueuedAt == nil
}

// CreateResult is the outcome of the idempotency guard.
type CreateResult int

const (
	// CreateInserted means the id was new and the row has been created.
	CreateInserted CreateResult = iota + 1
	// CreateAlreadyExists means the id was seen before; nothing was written.
	CreateAlreadyExists
)

func (r CreateResult) String() string {
	switch r {
	case CreateInserted:
		return "inserted"
	case CreateAlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// TransactionRepository defines operations for transaction data access.
// Every mutation is a single conditional statement; callers never lock.
type TransactionRepository interface {
	// CreateIfAbsent inserts the row unless the transaction id already exists.
	CreateIfAbsent(ctx context.Context, txn *Transaction) (CreateResult, error)
	GetByID(ctx context.Context, id string) (*Transaction, error)
	// MarkEnqueued stamps enqueued_at once; false when already stamped.
	MarkEnqueued(ctx context.Context, id string, at time.Time) (bool, error)
	// IncrementAttempts bumps the attempt counter of a PROCESSING row.
	// ok is false when the row is missing or no longer PROCESSING.
	IncrementAttempts(ctx context.Context, id string, at time.Time) (attempts int, ok bool, err error)
	// ReleaseAttempt gives back an attempt that was interrupted by shutdown.
	// It is false when the row is no longer PROCESSING or has no attempts.
	ReleaseAttempt(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkProcessed applies PROCESSING -> PROCESSED; false when it was not PROCESSING.
	MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkFailed applies PROCESSING -> FAILED; false when it was not PROCESSING.
	MarkFailed(ctx context.Context, id, reason string, at time.Time) (bool, error)
	// ListStranded returns PROCESSING rows never enqueued and created before the cutoff.
	ListStranded(ctx context.Context, createdBefore time.Time, limit int) ([]*Transaction, error)
	Ping(ctx context.Context) error
}

// IngestResult describes how a webhook submission was handled.
type IngestResult struct {
	Transaction *Transaction
	Duplicate   bool
	// Enqueued is true when this call handed the id to the queue.
	Enqueued bool
}

// ProcessOutcome is the result of one worker execution.
type ProcessOutcome string

const (
	OutcomeProcessed ProcessOutcome = "processed"
	// OutcomeSkipped: the row was already final or missing, nothing executed.
	OutcomeSkipped ProcessOutcome = "skipped"
	// OutcomeSuperseded: the step ran but another writer finalized the row first.
	OutcomeSuperseded ProcessOutcome = "superseded"
	OutcomeFailed     ProcessOutcome = "failed"
)

// ProcessResult is returned by TransactionUsecase.ProcessTransaction.
type ProcessResult struct {
	Outcome  ProcessOutcome
	Attempts int
}

// TransactionUsecase defines business logic operations for transactions
type TransactionUsecase interface {
	IngestTransaction(ctx context.Context, input NewTransactionInput) (*IngestResult, error)
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	ProcessTransaction(ctx context.Context, id string) (*ProcessResult, error)
	FailTransaction(ctx context.Context, id, reason string) (bool, error)
	RequeueStranded(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}
