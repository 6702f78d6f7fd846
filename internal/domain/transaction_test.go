package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestNewTransaction(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.FixedZone("IST", 19800))

	txn, err := NewTransaction(NewTransactionInput{
		TransactionID:      "txn_1",
		SourceAccount:      "acc_user_789",
		DestinationAccount: "acc_merchant_456",
		Amount:             amount("1500.50"),
		Currency:           "inr",
	}, now)
	require.NoError(t, err)

	assert.Equal(t, "txn_1", txn.TransactionID)
	assert.Equal(t, "INR", txn.Currency)
	assert.Equal(t, StatusProcessing, txn.Status)
	assert.True(t, txn.Amount.Equal(decimal.RequireFromString("1500.5")))
	assert.Equal(t, time.UTC, txn.CreatedAt.Location())
	assert.True(t, txn.CreatedAt.Equal(now))
	assert.Nil(t, txn.ProcessedAt)
	assert.True(t, txn.NeedsEnqueue())
	assert.False(t, txn.IsFinalStatus())
}

func TestNewTransaction_Validation(t *testing.T) {
	tests := []struct {
		name   string
		input  NewTransactionInput
		fields []string
	}{
		{
			name:   "everything missing",
			input:  NewTransactionInput{},
			fields: []string{"transaction_id", "source_account", "destination_account", "amount", "currency"},
		},
		{
			name: "non positive amount",
			input: NewTransactionInput{
				TransactionID: "t", SourceAccount: "a", DestinationAccount: "b",
				Amount: amount("0"), Currency: "USD",
			},
			fields: []string{"amount"},
		},
		{
			name: "currency not alphabetic",
			input: NewTransactionInput{
				TransactionID: "t", SourceAccount: "a", DestinationAccount: "b",
				Amount: amount("1"), Currency: "U5D",
			},
			fields: []string{"currency"},
		},
		{
			name: "padded transaction id",
			input: NewTransactionInput{
				TransactionID: " txn_1", SourceAccount: "a", DestinationAccount: "b",
				Amount: amount("1"), Currency: "USD",
			},
			fields: []string{"transaction_id"},
		},
		{
			name: "amount exponent too large",
			input: NewTransactionInput{
				TransactionID: "t", SourceAccount: "a", DestinationAccount: "b",
				Amount: amount("1e2000000"), Currency: "USD",
			},
			fields: []string{"amount"},
		},
		{
			name: "amount scale too fine",
			input: NewTransactionInput{
				TransactionID: "t", SourceAccount: "a", DestinationAccount: "b",
				Amount: amount("1e-19"), Currency: "USD",
			},
			fields: []string{"amount"},
		},
		{
			name: "amount with too many digits",
			input: NewTransactionInput{
				TransactionID: "t", SourceAccount: "a", DestinationAccount: "b",
				Amount: amount("123456789012345678901234567890123456789"), Currency: "USD",
			},
			fields: []string{"amount"},
		},
		{
			name: "identifier too long",
			input: NewTransactionInput{
				TransactionID: strings.Repeat("x", 129), SourceAccount: "a", DestinationAccount: "b",
				Amount: amount("1"), Currency: "USD",
			},
			fields: []string{"transaction_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn, err := NewTransaction(tt.input, time.Now())
			require.Error(t, err)
			assert.Nil(t, txn)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Len(t, verr.Fields, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}

func TestNewTransaction_AmountBounds(t *testing.T) {
	for _, value := range []string{"0.000000000000000001", "12345678901234567890.123456789012345678", "1e37"} {
		_, err := NewTransaction(NewTransactionInput{
			TransactionID: "t", SourceAccount: "a", DestinationAccount: "b",
			Amount: amount(value), Currency: "USD",
		}, time.Now())
		assert.NoError(t, err, value)
	}
}

func TestTransactionStatusHelpers(t *testing.T) {
	enqueued := time.Now()

	assert.True(t, (&Transaction{Status: StatusProcessed}).IsFinalStatus())
	assert.True(t, (&Transaction{Status: StatusFailed}).IsFinalStatus())
	assert.False(t, (&Transaction{Status: StatusProcessing, EnqueuedAt: &enqueued}).NeedsEnqueue())
	assert.False(t, (&Transaction{Status: StatusFailed}).NeedsEnqueue())
}

func TestValidationError(t *testing.T) {
	verr := &ValidationError{}
	assert.False(t, verr.HasErrors())

	verr.Add("currency", "is required")
	verr.Add("amount", "is required")
	verr.Add("amount", "must be greater than zero")

	assert.True(t, verr.HasErrors())
	assert.Equal(t, "is required", verr.Fields["amount"])
	assert.Equal(t, "validation failed: amount is required; currency is required", verr.Error())
	assert.True(t, IsValidationError(fmt.Errorf("ingest: %w", verr)))
	assert.False(t, IsValidationError(ErrStoreUnavailable))
}

func TestCreateResultString(t *testing.T) {
	assert.Equal(t, "inserted", CreateInserted.String())
	assert.Equal(t, "already_exists", CreateAlreadyExists.String())
	assert.Equal(t, "unknown", CreateResult(0).String())
}
