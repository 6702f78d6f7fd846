package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alfanzaky/txnhook/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestQueueRepository(t *testing.T) {
	suite.Run(t, &QueueSuite{Assertions: require.New(t)})
}

type QueueSuite struct {
	suite.Suite
	*require.Assertions
	server *miniredis.Miniredis
	client *redis.Client
	queue  *queueRepository
	now    time.Time
}

func (s *QueueSuite) SetupTest() {
	server, err := miniredis.Run()
	s.NoError(err)
	s.server = server
	s.client = redis.NewClient(&redis.Options{Addr: server.Addr()})

	s.now = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	s.queue = NewQueueRepository(s.client, QueueConfig{
		KeyPrefix:         "test:queue",
		VisibilityTimeout: time.Minute,
	}).WithClock(func() time.Time { return s.now })
}

func (s *QueueSuite) TearDownTest() {
	s.NoError(s.client.Close())
	s.server.Close()
}

func (s *QueueSuite) TestEnqueueDequeueFIFO() {
	ctx := context.Background()
	s.NoError(s.queue.Enqueue(ctx, "txn_1"))
	s.NoError(s.queue.Enqueue(ctx, "txn_2"))

	first, err := s.queue.Dequeue(ctx)
	s.NoError(err)
	s.Require().NotNil(first)
	s.Equal("txn_1", first.TransactionID)
	s.Equal(s.now.Add(time.Minute), first.LeasedUntil)

	second, err := s.queue.Dequeue(ctx)
	s.NoError(err)
	s.Equal("txn_2", second.TransactionID)

	empty, err := s.queue.Dequeue(ctx)
	s.NoError(err)
	s.Nil(empty)
}

func (s *QueueSuite) TestLeasedItemIsInvisible() {
	ctx := context.Background()
	s.NoError(s.queue.Enqueue(ctx, "txn_1"))

	_, err := s.queue.Dequeue(ctx)
	s.NoError(err)

	again, err := s.queue.Dequeue(ctx)
	s.NoError(err)
	s.Nil(again)

	stats, err := s.queue.Stats(ctx)
	s.NoError(err)
	s.Equal(domain.QueueStats{Ready: 0, Leased: 1}, stats)
}

func (s *QueueSuite) TestAckRemovesLease() {
	ctx := context.Background()
	s.NoError(s.queue.Enqueue(ctx, "txn_1"))
	_, err := s.queue.Dequeue(ctx)
	s.NoError(err)

	s.NoError(s.queue.Ack(ctx, "txn_1"))

	s.now = s.now.Add(time.Hour)
	moved, err := s.queue.RequeueExpired(ctx, 10)
	s.NoError(err)
	s.Zero(moved)
}

func (s *QueueSuite) TestExpiredLeaseIsRedelivered() {
	ctx := context.Background()
	s.NoError(s.queue.Enqueue(ctx, "txn_1"))
	_, err := s.queue.Dequeue(ctx)
	s.NoError(err)

	s.now = s.now.Add(30 * time.Second)
	moved, err := s.queue.RequeueExpired(ctx, 10)
	s.NoError(err)
	s.Zero(moved)

	s.now = s.now.Add(31 * time.Second)
	moved, err = s.queue.RequeueExpired(ctx, 10)
	s.NoError(err)
	s.Equal(1, moved)

	redelivered, err := s.queue.Dequeue(ctx)
	s.NoError(err)
	s.Require().NotNil(redelivered)
	s.Equal("txn_1", redelivered.TransactionID)
}

func (s *QueueSuite) TestRequeueExpiredHonorsLimit() {
	ctx := context.Background()
	for _, id := range []string{"txn_1", "txn_2", "txn_3"} {
		s.NoError(s.queue.Enqueue(ctx, id))
		_, err := s.queue.Dequeue(ctx)
		s.NoError(err)
	}

	s.now = s.now.Add(2 * time.Minute)
	moved, err := s.queue.RequeueExpired(ctx, 2)
	s.NoError(err)
	s.Equal(2, moved)

	stats, err := s.queue.Stats(ctx)
	s.NoError(err)
	s.Equal(domain.QueueStats{Ready: 2, Leased: 1}, stats)
}

func (s *QueueSuite) TestNackWithDelay() {
	ctx := context.Background()
	s.NoError(s.queue.Enqueue(ctx, "txn_1"))
	_, err := s.queue.Dequeue(ctx)
	s.NoError(err)

	s.NoError(s.queue.Nack(ctx, "txn_1", 5*time.Minute))

	s.now = s.now.Add(2 * time.Minute)
	moved, err := s.queue.RequeueExpired(ctx, 10)
	s.NoError(err)
	s.Zero(moved, "nack delay extends past the visibility timeout")

	s.now = s.now.Add(3 * time.Minute)
	moved, err = s.queue.RequeueExpired(ctx, 10)
	s.NoError(err)
	s.Equal(1, moved)
}

func (s *QueueSuite) TestNackWithoutDelayReleasesImmediately() {
	ctx := context.Background()
	s.NoError(s.queue.Enqueue(ctx, "txn_1"))
	_, err := s.queue.Dequeue(ctx)
	s.NoError(err)

	s.NoError(s.queue.Nack(ctx, "txn_1", 0))

	next, err := s.queue.Dequeue(ctx)
	s.NoError(err)
	s.Require().NotNil(next)
	s.Equal("txn_1", next.TransactionID)
}

func (s *QueueSuite) TestUnavailableRedis() {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	queue := NewQueueRepository(client, QueueConfig{})

	err := queue.Enqueue(ctx, "txn_1")
	s.ErrorIs(err, domain.ErrQueueUnavailable)

	s.ErrorIs(queue.Ping(ctx), domain.ErrQueueUnavailable)
}
