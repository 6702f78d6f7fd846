package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestQueueRepository_FIFOAndLease(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	q := NewQueueRepository(time.Minute).WithClock(clock.Now)

	require.NoError(t, q.Enqueue(ctx, "txn_1"))
	require.NoError(t, q.Enqueue(ctx, "txn_2"))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "txn_1", first.TransactionID)
	assert.Equal(t, clock.now.Add(time.Minute), first.LeasedUntil)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Ready)
	assert.EqualValues(t, 1, stats.Leased)

	require.NoError(t, q.Ack(ctx, "txn_1"))
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "txn_2", second.TransactionID)

	empty, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestQueueRepository_ExpiredLeaseIsRedelivered(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	q := NewQueueRepository(time.Minute).WithClock(clock.Now)

	require.NoError(t, q.Enqueue(ctx, "txn_1"))
	_, err := q.Dequeue(ctx)
	require.NoError(t, err)

	moved, err := q.RequeueExpired(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, moved, "lease still valid")

	clock.Advance(time.Minute)
	moved, err = q.RequeueExpired(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	again, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "txn_1", again.TransactionID)
}

func TestQueueRepository_NackWithDelay(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	q := NewQueueRepository(time.Minute).WithClock(clock.Now)

	require.NoError(t, q.Enqueue(ctx, "txn_1"))
	_, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Nack(ctx, "txn_1", 10*time.Second))

	clock.Advance(5 * time.Second)
	moved, err := q.RequeueExpired(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, moved)

	clock.Advance(5 * time.Second)
	moved, err = q.RequeueExpired(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
}

func TestQueueRepository_NackWithoutDelayIsImmediate(t *testing.T) {
	ctx := context.Background()
	q := NewQueueRepository(time.Minute)

	require.NoError(t, q.Enqueue(ctx, "txn_1"))
	_, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Nack(ctx, "txn_1", 0))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Ready)
	assert.EqualValues(t, 0, stats.Leased)
}
