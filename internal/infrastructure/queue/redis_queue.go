// Package queue implements the durable verification job queue on Redis.
//
// Layout (prefix "vq"):
//
//	vq:job:{id}     hash with the job fields
//	vq:doc:{docId}  id of the newest job for a document
//	vq:ready        zset, score = priority band * 1e13 + enqueue unix ms
//	vq:delayed      zset, score = due unix ms
//	vq:active       zset, score = lease deadline unix ms
//	vq:completed    list of finished job ids, newest first
//	vq:failed       list of dead-lettered job ids, newest first
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"verifyflow.backend/internal/domain/entities"
	domainerrors "verifyflow.backend/internal/domain/errors"
	"verifyflow.backend/pkg/utils"
)

const bandWidth = int64(1e13)

// Options tunes retry and retention
type Options struct {
	Prefix          string
	MaxAttempts     int
	BackoffBase     time.Duration
	Lease           time.Duration
	CompletedKeep   int
	CompletedMaxAge time.Duration
	FailedKeep      int
	FailedMaxAge    time.Duration
}

// DefaultOptions returns three attempts with a 2s exponential backoff
func DefaultOptions() Options {
	return Options{
		Prefix:          "vq",
		MaxAttempts:     3,
		BackoffBase:     2 * time.Second,
		Lease:           2 * time.Minute,
		CompletedKeep:   100,
		CompletedMaxAge: 24 * time.Hour,
		FailedKeep:      500,
		FailedMaxAge:    7 * 24 * time.Hour,
	}
}

var enqueueScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
	local jobKey = ARGV[7] .. existing
	if redis.call('EXISTS', jobKey) == 1 then
		local finished = redis.call('HGET', jobKey, 'finished_at')
		if not finished or finished == '' then
			return existing
		end
	end
end
redis.call('HSET', KEYS[2], 'id', ARGV[1], 'document_id', ARGV[2], 'priority', ARGV[3],
	'attempts', 0, 'max_attempts', ARGV[4], 'enqueued_at', ARGV[5], 'rank', ARGV[6])
redis.call('SET', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[6], ARGV[1])
return ARGV[1]
`)

// reserveScript promotes due delayed jobs and expired leases, then pops
// the best ready job and leases it.
var reserveScript = redis.NewScript(`
local function requeue(set)
	local ids = redis.call('ZRANGEBYSCORE', set, '-inf', ARGV[1])
	for _, id in ipairs(ids) do
		redis.call('ZREM', set, id)
		local rank = redis.call('HGET', ARGV[3] .. id, 'rank')
		if rank then
			redis.call('ZADD', KEYS[1], rank, id)
		end
	end
end
requeue(KEYS[2])
requeue(KEYS[3])
local popped = redis.call('ZPOPMIN', KEYS[1])
if #popped == 0 then
	return false
end
local id = popped[1]
redis.call('ZADD', KEYS[3], ARGV[2], id)
redis.call('HINCRBY', ARGV[3] .. id, 'attempts', 1)
return id
`)

// deleteScript drops a job hash and the document pointer when it still
// points at that job.
var deleteScript = redis.NewScript(`
local doc = redis.call('HGET', KEYS[1], 'document_id')
if doc then
	local docKey = ARGV[1] .. doc
	if redis.call('GET', docKey) == ARGV[2] then
		redis.call('DEL', docKey)
	end
end
return redis.call('DEL', KEYS[1])
`)

// RedisQueue is an at-least-once job queue keyed by document id
type RedisQueue struct {
	client redis.UniversalClient
	opts   Options
	now    func() time.Time
}

// NewRedisQueue wires the queue to an existing client
func NewRedisQueue(client redis.UniversalClient, opts Options) *RedisQueue {
	def := DefaultOptions()
	if opts.Prefix == "" {
		opts.Prefix = def.Prefix
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = def.BackoffBase
	}
	if opts.Lease <= 0 {
		opts.Lease = def.Lease
	}
	if opts.CompletedKeep <= 0 {
		opts.CompletedKeep = def.CompletedKeep
	}
	if opts.CompletedMaxAge <= 0 {
		opts.CompletedMaxAge = def.CompletedMaxAge
	}
	if opts.FailedKeep <= 0 {
		opts.FailedKeep = def.FailedKeep
	}
	if opts.FailedMaxAge <= 0 {
		opts.FailedMaxAge = def.FailedMaxAge
	}
	return &RedisQueue{client: client, opts: opts, now: time.Now}
}

func (q *RedisQueue) key(parts ...string) string {
	k := q.opts.Prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (q *RedisQueue) jobKey(id string) string { return q.key("job", id) }

// Enqueue schedules a job for documentID. While an unfinished job exists for
// the document its id is returned instead of creating a second one.
func (q *RedisQueue) Enqueue(ctx context.Context, documentID string, priority entities.JobPriority) (string, error) {
	if documentID == "" {
		return "", fmt.Errorf("enqueue: %w", domainerrors.ErrInvalidInput)
	}
	if priority == "" {
		priority = entities.JobPriorityNormal
	}
	jobID := utils.GenerateUUIDv7().String()
	enqueuedAt := q.now().UnixMilli()
	rank := priority.Band()*bandWidth + enqueuedAt

	id, err := enqueueScript.Run(ctx, q.client,
		[]string{q.key("doc", documentID), q.jobKey(jobID), q.key("ready")},
		jobID, documentID, string(priority), q.opts.MaxAttempts, enqueuedAt, rank, q.key("job")+":",
	).Text()
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

// Reserve leases the next ready job. It returns nil, nil when nothing is ready.
func (q *RedisQueue) Reserve(ctx context.Context) (*entities.VerificationJob, error) {
	now := q.now()
	id, err := reserveScript.Run(ctx, q.client,
		[]string{q.key("ready"), q.key("delayed"), q.key("active")},
		now.UnixMilli(), now.Add(q.opts.Lease).UnixMilli(), q.key("job")+":",
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reserve: %w", err)
	}
	return q.Get(ctx, id)
}

// Get loads a job by id
func (q *RedisQueue) Get(ctx context.Context, jobID string) (*entities.VerificationJob, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, domainerrors.ErrNotFound
	}
	return decodeJob(fields), nil
}

// Complete releases the lease and records the job as finished
func (q *RedisQueue) Complete(ctx context.Context, job *entities.VerificationJob) error {
	now := q.now()
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, q.key("active"), job.ID)
		p.HSet(ctx, q.jobKey(job.ID), "finished_at", now.UnixMilli())
		p.LPush(ctx, q.key("completed"), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	job.FinishedAt = &now
	return nil
}

// Fail records cause and either schedules a retry with exponential backoff
// or moves the job to the failed list. It reports whether a retry is pending.
func (q *RedisQueue) Fail(ctx context.Context, job *entities.VerificationJob, cause error) (bool, error) {
	now := q.now()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	retry := !IsPermanent(cause) && job.Attempts < job.MaxAttempts

	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, q.key("active"), job.ID)
		p.HSet(ctx, q.jobKey(job.ID), "last_error", msg)
		if retry {
			due := now.Add(q.Backoff(job.Attempts))
			p.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(due.UnixMilli()), Member: job.ID})
			return nil
		}
		p.HSet(ctx, q.jobKey(job.ID), "finished_at", now.UnixMilli())
		p.LPush(ctx, q.key("failed"), job.ID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("fail: %w", err)
	}
	job.LastError = msg
	if !retry {
		job.FinishedAt = &now
	}
	return retry, nil
}

// Backoff returns base * 2^(attempts-1)
func (q *RedisQueue) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return q.opts.BackoffBase * time.Duration(1<<uint(attempts-1))
}

// Trim enforces count and age retention on the completed and failed lists
func (q *RedisQueue) Trim(ctx context.Context) error {
	if err := q.trimList(ctx, q.key("completed"), q.opts.CompletedKeep, q.opts.CompletedMaxAge); err != nil {
		return err
	}
	return q.trimList(ctx, q.key("failed"), q.opts.FailedKeep, q.opts.FailedMaxAge)
}

func (q *RedisQueue) trimList(ctx context.Context, list string, keep int, maxAge time.Duration) error {
	overflow, err := q.client.LRange(ctx, list, int64(keep), -1).Result()
	if err != nil {
		return fmt.Errorf("trim %s: %w", list, err)
	}
	if len(overflow) > 0 {
		if err := q.client.LTrim(ctx, list, 0, int64(keep)-1).Err(); err != nil {
			return fmt.Errorf("trim %s: %w", list, err)
		}
		if err := q.deleteJobs(ctx, overflow); err != nil {
			return err
		}
	}

	cutoff := q.now().Add(-maxAge).UnixMilli()
	for {
		oldest, err := q.client.LIndex(ctx, list, -1).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("trim %s: %w", list, err)
		}
		finished, _ := q.client.HGet(ctx, q.jobKey(oldest), "finished_at").Int64()
		if finished > cutoff {
			return nil
		}
		if err := q.client.RPop(ctx, list).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("trim %s: %w", list, err)
		}
		if err := q.deleteJobs(ctx, []string{oldest}); err != nil {
			return err
		}
	}
}

func (q *RedisQueue) deleteJobs(ctx context.Context, ids []string) error {
	docPrefix := q.key("doc") + ":"
	for _, id := range ids {
		if err := deleteScript.Run(ctx, q.client, []string{q.jobKey(id)}, docPrefix, id).Err(); err != nil {
			return fmt.Errorf("delete job %s: %w", id, err)
		}
	}
	return nil
}

// Stats reports queue depth per state
func (q *RedisQueue) Stats(ctx context.Context) (*entities.QueueStats, error) {
	var ready, delayed, active, completed, failed *redis.IntCmd
	_, err := q.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		ready = p.ZCard(ctx, q.key("ready"))
		delayed = p.ZCard(ctx, q.key("delayed"))
		active = p.ZCard(ctx, q.key("active"))
		completed = p.LLen(ctx, q.key("completed"))
		failed = p.LLen(ctx, q.key("failed"))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &entities.QueueStats{
		Ready:     ready.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// ListFailed returns up to limit dead-lettered jobs, newest first
func (q *RedisQueue) ListFailed(ctx context.Context, limit int) ([]*entities.VerificationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := q.client.LRange(ctx, q.key("failed"), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*entities.VerificationJob, 0, len(ids))
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		if errors.Is(err, domainerrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Retry moves a dead-lettered job back to the ready set with a fresh budget
func (q *RedisQueue) Retry(ctx context.Context, jobID string) error {
	removed, err := q.client.LRem(ctx, q.key("failed"), 1, jobID).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return domainerrors.ErrNotFound
	}
	rank, err := q.client.HGet(ctx, q.jobKey(jobID), "rank").Result()
	if err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	score, _ := strconv.ParseFloat(rank, 64)
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.jobKey(jobID), "attempts", 0)
		p.HDel(ctx, q.jobKey(jobID), "finished_at")
		p.ZAdd(ctx, q.key("ready"), redis.Z{Score: score, Member: jobID})
		return nil
	})
	return err
}

func decodeJob(f map[string]string) *entities.VerificationJob {
	attempts, _ := strconv.Atoi(f["attempts"])
	maxAttempts, _ := strconv.Atoi(f["max_attempts"])
	enqueued, _ := strconv.ParseInt(f["enqueued_at"], 10, 64)
	job := &entities.VerificationJob{
		ID:          f["id"],
		DocumentID:  f["document_id"],
		Priority:    entities.JobPriority(f["priority"]),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		LastError:   f["last_error"],
		EnqueuedAt:  time.UnixMilli(enqueued).UTC(),
	}
	if finished, err := strconv.ParseInt(f["finished_at"], 10, 64); err == nil && finished > 0 {
		t := time.UnixMilli(finished).UTC()
		job.FinishedAt = &t
	}
	return job
}
