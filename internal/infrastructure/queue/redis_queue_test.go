package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"verifyflow.backend/internal/domain/entities"
	domainerrors "verifyflow.backend/internal/domain/errors"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(t *testing.T, opts Options) (*RedisQueue, *fakeClock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	q := NewRedisQueue(client, opts)
	q.now = clock.now
	return q, clock, mr
}

func TestEnqueue_DedupesUnfinishedJob(t *testing.T) {
	q, _, _ := newTestQueue(t, Options{})
	ctx := context.Background()

	first, err := q.Enqueue(ctx, "doc-1", entities.JobPriorityNormal)
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, "doc-1", entities.JobPriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Ready)
}

func TestEnqueue_AfterCompletionCreatesNewJob(t *testing.T) {
	q, _, _ := newTestQueue(t, Options{})
	ctx := context.Background()

	first, err := q.Enqueue(ctx, "doc-1", "")
	require.NoError(t, err)
	job, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job))

	second, err := q.Enqueue(ctx, "doc-1", "")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestEnqueue_RejectsEmptyDocument(t *testing.T) {
	q, _, _ := newTestQueue(t, Options{})
	_, err := q.Enqueue(context.Background(), "", entities.JobPriorityNormal)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestReserve_PriorityThenFIFO(t *testing.T) {
	q, clock, _ := newTestQueue(t, Options{})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "low", entities.JobPriorityLow)
	require.NoError(t, err)
	clock.advance(time.Millisecond)
	_, err = q.Enqueue(ctx, "normal-1", entities.JobPriorityNormal)
	require.NoError(t, err)
	clock.advance(time.Millisecond)
	_, err = q.Enqueue(ctx, "normal-2", entities.JobPriorityNormal)
	require.NoError(t, err)
	clock.advance(time.Millisecond)
	_, err = q.Enqueue(ctx, "high", entities.JobPriorityHigh)
	require.NoError(t, err)

	var order []string
	for i := 0; i < 4; i++ {
		job, err := q.Reserve(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, 1, job.Attempts)
		order = append(order, job.DocumentID)
	}
	assert.Equal(t, []string{"high", "normal-1", "normal-2", "low"}, order)

	job, err := q.Reserve(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestFail_RetriesWithBackoffThenDeadLetters(t *testing.T) {
	q, clock, _ := newTestQueue(t, Options{MaxAttempts: 3, BackoffBase: 2 * time.Second})
	ctx := context.Background()

	jobID, err := q.Enqueue(ctx, "doc-1", entities.JobPriorityNormal)
	require.NoError(t, err)

	job, err := q.Reserve(ctx)
	require.NoError(t, err)
	retry, err := q.Fail(ctx, job, errors.New("timeout"))
	require.NoError(t, err)
	assert.True(t, retry)

	// not due before the 2s backoff elapses
	clock.advance(1999 * time.Millisecond)
	job, err = q.Reserve(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	clock.advance(time.Millisecond)
	job, err = q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, "timeout", job.LastError)

	retry, err = q.Fail(ctx, job, errors.New("timeout"))
	require.NoError(t, err)
	assert.True(t, retry)

	clock.advance(4 * time.Second)
	job, err = q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 3, job.Attempts)

	retry, err = q.Fail(ctx, job, errors.New("timeout"))
	require.NoError(t, err)
	assert.False(t, retry)

	failed, err := q.ListFailed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, jobID, failed[0].ID)
	assert.NotNil(t, failed[0].FinishedAt)
}

func TestFail_PermanentSkipsRetry(t *testing.T) {
	q, _, _ := newTestQueue(t, Options{MaxAttempts: 5})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "doc-1", entities.JobPriorityNormal)
	require.NoError(t, err)
	job, err := q.Reserve(ctx)
	require.NoError(t, err)

	retry, err := q.Fail(ctx, job, Permanent(errors.New("document not found")))
	require.NoError(t, err)
	assert.False(t, retry)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(0), stats.Delayed)
	assert.Equal(t, int64(0), stats.Active)
}

func TestReserve_ReclaimsExpiredLease(t *testing.T) {
	q, clock, _ := newTestQueue(t, Options{Lease: time.Minute})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "doc-1", entities.JobPriorityNormal)
	require.NoError(t, err)
	job, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	clock.advance(61 * time.Second)
	again, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, job.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)
}

func TestRetry_MovesFailedJobBack(t *testing.T) {
	q, _, _ := newTestQueue(t, Options{MaxAttempts: 1})
	ctx := context.Background()

	jobID, err := q.Enqueue(ctx, "doc-1", entities.JobPriorityNormal)
	require.NoError(t, err)
	job, err := q.Reserve(ctx)
	require.NoError(t, err)
	_, err = q.Fail(ctx, job, errors.New("boom"))
	require.NoError(t, err)

	require.NoError(t, q.Retry(ctx, jobID))
	job, err = q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, 1, job.Attempts)
	assert.Nil(t, job.FinishedAt)

	assert.ErrorIs(t, q.Retry(ctx, "missing"), domainerrors.ErrNotFound)
}

func TestTrim_CountAndAge(t *testing.T) {
	q, clock, mr := newTestQueue(t, Options{CompletedKeep: 2, CompletedMaxAge: time.Hour})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := q.Enqueue(ctx, fmt.Sprintf("doc-%d", i), entities.JobPriorityNormal)
		require.NoError(t, err)
		job, err := q.Reserve(ctx)
		require.NoError(t, err)
		require.NoError(t, q.Complete(ctx, job))
		ids = append(ids, id)
		clock.advance(time.Minute)
	}

	require.NoError(t, q.Trim(ctx))
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Completed)
	assert.False(t, mr.Exists("vq:job:"+ids[0]))
	assert.False(t, mr.Exists("vq:doc:doc-0"))
	assert.True(t, mr.Exists("vq:job:"+ids[3]))
	assert.True(t, mr.Exists("vq:doc:doc-3"))

	clock.advance(2 * time.Hour)
	require.NoError(t, q.Trim(ctx))
	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Completed)
	assert.False(t, mr.Exists("vq:job:"+ids[3]))
	assert.False(t, mr.Exists("vq:doc:doc-3"))
}

func TestTrim_KeepsPointerToNewerJob(t *testing.T) {
	q, clock, mr := newTestQueue(t, Options{CompletedKeep: 10, CompletedMaxAge: time.Hour})
	ctx := context.Background()

	first, err := q.Enqueue(ctx, "doc-reverified", entities.JobPriorityNormal)
	require.NoError(t, err)
	job, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job))

	clock.advance(2 * time.Hour)
	second, err := q.Enqueue(ctx, "doc-reverified", entities.JobPriorityNormal)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	require.NoError(t, q.Trim(ctx))
	assert.False(t, mr.Exists("vq:job:"+first))
	require.True(t, mr.Exists("vq:doc:doc-reverified"))
	pointer, err := mr.Get("vq:doc:doc-reverified")
	require.NoError(t, err)
	assert.Equal(t, second, pointer)
}

func TestBackoff(t *testing.T) {
	q := NewRedisQueue(nil, Options{BackoffBase: time.Second})
	assert.Equal(t, time.Second, q.Backoff(0))
	assert.Equal(t, time.Second, q.Backoff(1))
	assert.Equal(t, 2*time.Second, q.Backoff(2))
	assert.Equal(t, 8*time.Second, q.Backoff(4))
}

func TestGet_NotFound(t *testing.T) {
	q, _, _ := newTestQueue(t, Options{})
	_, err := q.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.Same(t, err, Permanent(err))
	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(base))
	assert.True(t, IsPermanent(fmt.Errorf("wrapped: %w", err)))
}
