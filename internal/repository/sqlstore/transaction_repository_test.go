package sqlstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/alfanzaky/txnhook/internal/domain"
)

func TestTransactionRepository(t *testing.T) {
	suite.Run(t, &Suite{Assertions: require.New(t)})
}

type Suite struct {
	suite.Suite
	*require.Assertions // default to require behavior
	db   *sqlx.DB
	repo *transactionRepository
	now  time.Time
}

func (s *Suite) SetupTest() {
	ctx := context.Background()
	db, err := Open(ctx, Config{Driver: DriverSQLite, DSN: ":memory:"})
	s.NoError(err)
	s.NoError(Migrate(ctx, db))

	s.db = db
	s.repo = NewTransactionRepository(db)
	s.now = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
}

func (s *Suite) TearDownTest() {
	s.NoError(s.db.Close())
}

func (s *Suite) newTxn(id string, createdAt time.Time) *domain.Transaction {
	amount := decimal.RequireFromString("1500.50")
	txn, err := domain.NewTransaction(domain.NewTransactionInput{
		TransactionID:      id,
		SourceAccount:      "acc_user_789",
		DestinationAccount: "acc_merchant_456",
		Amount:             &amount,
		Currency:           "inr",
	}, createdAt)
	s.NoError(err)
	return txn
}

func (s *Suite) TestMigrateIsRepeatable() {
	s.NoError(Migrate(context.Background(), s.db))
}

func (s *Suite) TestCreateIfAbsentAndGet() {
	ctx := context.Background()

	result, err := s.repo.CreateIfAbsent(ctx, s.newTxn("txn_1", s.now))
	s.NoError(err)
	s.Equal(domain.CreateInserted, result)

	got, err := s.repo.GetByID(ctx, "txn_1")
	s.NoError(err)
	s.Equal("txn_1", got.TransactionID)
	s.Equal("acc_user_789", got.SourceAccount)
	s.Equal("acc_merchant_456", got.DestinationAccount)
	s.True(got.Amount.Equal(decimal.RequireFromString("1500.50")), "amount %s", got.Amount)
	s.Equal("INR", got.Currency)
	s.Equal(domain.StatusProcessing, got.Status)
	s.Zero(got.Attempts)
	s.True(got.CreatedAt.Equal(s.now))
	s.Nil(got.ProcessedAt)
	s.Nil(got.EnqueuedAt)
	s.Nil(got.FailureReason)
}

func (s *Suite) TestDuplicateLeavesOriginalUntouched() {
	ctx := context.Background()

	_, err := s.repo.CreateIfAbsent(ctx, s.newTxn("txn_1", s.now))
	s.NoError(err)

	dup := s.newTxn("txn_1", s.now.Add(time.Hour))
	dup.Amount = decimal.RequireFromString("1")
	dup.SourceAccount = "someone_else"

	result, err := s.repo.CreateIfAbsent(ctx, dup)
	s.NoError(err)
	s.Equal(domain.CreateAlreadyExists, result)

	got, err := s.repo.GetByID(ctx, "txn_1")
	s.NoError(err)
	s.Equal("acc_user_789", got.SourceAccount)
	s.True(got.CreatedAt.Equal(s.now))
}

func (s *Suite) TestConcurrentCreateInsertsOnce() {
	ctx := context.Background()
	txn := s.newTxn("txn_race", s.now)

	results := make(chan domain.CreateResult, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.repo.CreateIfAbsent(ctx, txn)
			if err == nil {
				results <- result
			}
		}()
	}
	wg.Wait()
	close(results)

	inserted := 0
	total := 0
	for result := range results {
		total++
		if result == domain.CreateInserted {
			inserted++
		}
	}
	s.Equal(20, total)
	s.Equal(1, inserted)
}

func (s *Suite) TestGetByIDNotFound() {
	_, err := s.repo.GetByID(context.Background(), "missing")
	s.ErrorIs(err, domain.ErrTransactionNotFound)
}

func (s *Suite) TestProcessingLifecycle() {
	ctx := context.Background()
	_, err := s.repo.CreateIfAbsent(ctx, s.newTxn("txn_1", s.now))
	s.NoError(err)

	attempts, ok, err := s.repo.IncrementAttempts(ctx, "txn_1", s.now.Add(time.Second))
	s.NoError(err)
	s.True(ok)
	s.Equal(1, attempts)

	attempts, ok, err = s.repo.IncrementAttempts(ctx, "txn_1", s.now.Add(2*time.Second))
	s.NoError(err)
	s.True(ok)
	s.Equal(2, attempts)

	processedAt := s.now.Add(30 * time.Second)
	applied, err := s.repo.MarkProcessed(ctx, "txn_1", processedAt)
	s.NoError(err)
	s.True(applied)

	applied, err = s.repo.MarkProcessed(ctx, "txn_1", processedAt.Add(time.Minute))
	s.NoError(err)
	s.False(applied)

	applied, err = s.repo.MarkFailed(ctx, "txn_1", "too late", processedAt)
	s.NoError(err)
	s.False(applied)

	_, ok, err = s.repo.IncrementAttempts(ctx, "txn_1", processedAt)
	s.NoError(err)
	s.False(ok)

	got, err := s.repo.GetByID(ctx, "txn_1")
	s.NoError(err)
	s.Equal(domain.StatusProcessed, got.Status)
	s.Equal(2, got.Attempts)
	s.Require().NotNil(got.ProcessedAt)
	s.True(got.ProcessedAt.Equal(processedAt))
	s.False(got.ProcessedAt.Before(got.CreatedAt))
}

func (s *Suite) TestMarkFailed() {
	ctx := context.Background()
	_, err := s.repo.CreateIfAbsent(ctx, s.newTxn("txn_1", s.now))
	s.NoError(err)

	applied, err := s.repo.MarkFailed(ctx, "txn_1", "settlement rejected", s.now.Add(time.Minute))
	s.NoError(err)
	s.True(applied)

	got, err := s.repo.GetByID(ctx, "txn_1")
	s.NoError(err)
	s.Equal(domain.StatusFailed, got.Status)
	s.Require().NotNil(got.FailureReason)
	s.Equal("settlement rejected", *got.FailureReason)
	s.Nil(got.ProcessedAt)
}

func (s *Suite) TestReleaseAttempt() {
	ctx := context.Background()
	_, err := s.repo.CreateIfAbsent(ctx, s.newTxn("txn_1", s.now))
	s.NoError(err)

	released, err := s.repo.ReleaseAttempt(ctx, "txn_1", s.now)
	s.NoError(err)
	s.False(released, "attempts never go below zero")

	_, _, err = s.repo.IncrementAttempts(ctx, "txn_1", s.now)
	s.NoError(err)
	released, err = s.repo.ReleaseAttempt(ctx, "txn_1", s.now.Add(time.Second))
	s.NoError(err)
	s.True(released)

	got, err := s.repo.GetByID(ctx, "txn_1")
	s.NoError(err)
	s.Zero(got.Attempts)

	_, _, err = s.repo.IncrementAttempts(ctx, "txn_1", s.now)
	s.NoError(err)
	_, err = s.repo.MarkFailed(ctx, "txn_1", "rejected", s.now)
	s.NoError(err)
	released, err = s.repo.ReleaseAttempt(ctx, "txn_1", s.now)
	s.NoError(err)
	s.False(released, "final rows keep their attempt count")
}

func (s *Suite) TestUnknownIDTransitionsDoNotApply() {
	ctx := context.Background()

	applied, err := s.repo.MarkProcessed(ctx, "missing", s.now)
	s.NoError(err)
	s.False(applied)

	_, ok, err := s.repo.IncrementAttempts(ctx, "missing", s.now)
	s.NoError(err)
	s.False(ok)
}

func (s *Suite) TestListStranded() {
	ctx := context.Background()
	for i, id := range []string{"txn_a", "txn_b", "txn_c", "txn_d"} {
		_, err := s.repo.CreateIfAbsent(ctx, s.newTxn(id, s.now.Add(time.Duration(i)*time.Minute)))
		s.NoError(err)
	}

	stamped, err := s.repo.MarkEnqueued(ctx, "txn_b", s.now)
	s.NoError(err)
	s.True(stamped)
	stamped, err = s.repo.MarkEnqueued(ctx, "txn_b", s.now.Add(time.Hour))
	s.NoError(err)
	s.False(stamped)

	_, err = s.repo.MarkFailed(ctx, "txn_c", "boom", s.now)
	s.NoError(err)

	stranded, err := s.repo.ListStranded(ctx, s.now.Add(10*time.Minute), 10)
	s.NoError(err)
	s.Require().Len(stranded, 2)
	s.Equal("txn_a", stranded[0].TransactionID)
	s.Equal("txn_d", stranded[1].TransactionID)

	stranded, err = s.repo.ListStranded(ctx, s.now.Add(2*time.Minute), 10)
	s.NoError(err)
	s.Require().Len(stranded, 1)
	s.Equal("txn_a", stranded[0].TransactionID)
}

func (s *Suite) TestPing() {
	s.NoError(s.repo.Ping(context.Background()))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql", DSN: "x"})
	require.Error(t, err)
}
