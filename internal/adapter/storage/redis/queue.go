package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"einvoice-dispatch/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// Queue implements ports.Queue as a Redis sorted set per named queue. The
// score is the unix timestamp at which the job becomes due, so EnqueueIn is a
// plain ZADD with a future score and Dequeue claims the earliest due member.
type Queue struct {
	client *goredis.Client
	prefix string
}

// NewQueue creates a Redis-backed delayed job queue.
func NewQueue(client *goredis.Client) *Queue {
	return &Queue{
		client: client,
		prefix: "queue:",
	}
}

// Enqueue adds a job due immediately.
func (q *Queue) Enqueue(ctx context.Context, job domain.Job) error {
	return q.EnqueueIn(ctx, job, 0)
}

// EnqueueIn adds a job that becomes due after delay.
func (q *Queue) EnqueueIn(ctx context.Context, job domain.Job, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	due := float64(time.Now().Add(delay).Unix())
	if err := q.client.ZAdd(ctx, q.prefix+job.Queue, goredis.Z{
		Score:  due,
		Member: payload,
	}).Err(); err != nil {
		return fmt.Errorf("redis queue zadd: %w", err)
	}
	return nil
}

// claimScript pops the earliest member whose score is <= now. Running the
// range and the removal inside one Lua script keeps the claim atomic across
// competing workers.
var claimScript = goredis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #due == 0 then
  return false
end
redis.call('ZREM', KEYS[1], due[1])
return due[1]
`)

// Dequeue claims the next due job on the queue, or nil when none is due.
func (q *Queue) Dequeue(ctx context.Context, queue string) (*domain.Job, error) {
	now := fmt.Sprintf("%d", time.Now().Unix())

	raw, err := claimScript.Run(ctx, q.client, []string{q.prefix + queue}, now).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis queue claim: %w", err)
	}

	payload, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("redis queue claim: unexpected reply type %T", raw)
	}

	var job domain.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}
