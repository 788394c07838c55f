package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error)
	Ack(ctx context.Context, jobID string) error
	RequeueStale(ctx context.Context, max int64, olderThan time.Duration) (int64, error)
}

// redisQueue is a reliable queue on Redis lists.
// Claim: BRPOPLPUSH queue -> processing, then the claim time is stamped into
// a hash keyed by job id. The move is atomic, so at most one worker ever
// holds a job id: that claim is what enforces the single-writer-per-job rule.
// Ack:   LREM from processing once the job reached a terminal status.
// A reaper periodically moves processing entries whose claim stamp is older
// than a threshold back to the queue (crashed workers), giving at-least-once
// delivery. The threshold must sit well above the worst-case job duration;
// an entry still inside it belongs to a live worker and is left alone.
type redisQueue struct {
	rdb           *redis.Client
	queueKey      string
	processingKey string
	claimedAtKey  string
}

func NewRedisQueue(rdb *redis.Client, queueKey, processingKey string) Queue {
	return &redisQueue{
		rdb:           rdb,
		queueKey:      queueKey,
		processingKey: processingKey,
		claimedAtKey:  processingKey + ":claimed_at",
	}
}

func (q *redisQueue) Enqueue(ctx context.Context, jobID string) error {
	return q.rdb.LPush(ctx, q.queueKey, jobID).Err()
}

// ClaimBlocking waits up to timeout for a job id. timeout <= 0 blocks
// forever in one-second slots (worker daemon mode) so ctx cancellation is
// still observed between slots.
func (q *redisQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	forever := timeout <= 0
	deadline := time.Now().Add(timeout)

	slot := 1 * time.Second
	if !forever && timeout < slot {
		slot = timeout
	}

	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		wait := slot
		if !forever {
			remain := time.Until(deadline)
			if remain <= 0 {
				return "", redis.Nil
			}
			if remain < wait {
				wait = remain
			}
		}

		id, err := q.rdb.BRPopLPush(ctx, q.queueKey, q.processingKey, wait).Result()
		if err == nil {
			if err := q.stampClaim(ctx, id, time.Now()); err != nil {
				return "", err
			}
			return id, nil
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		return "", err
	}
}

func (q *redisQueue) stampClaim(ctx context.Context, jobID string, at time.Time) error {
	return q.rdb.HSet(ctx, q.claimedAtKey, jobID, at.Unix()).Err()
}

func (q *redisQueue) Ack(ctx context.Context, jobID string) error {
	if err := q.rdb.LRem(ctx, q.processingKey, 1, jobID).Err(); err != nil {
		return err
	}
	return q.rdb.HDel(ctx, q.claimedAtKey, jobID).Err()
}

// RequeueStale moves up to max processing entries claimed more than olderThan
// ago back to the queue. Entries inside the window are in flight on a live
// worker and are not touched. An entry with no claim stamp (claim interrupted
// between the list move and the stamp) is stamped now, so it becomes eligible
// one full window later instead of leaking.
func (q *redisQueue) RequeueStale(ctx context.Context, max int64, olderThan time.Duration) (int64, error) {
	ids, err := q.rdb.LRange(ctx, q.processingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-olderThan).Unix()

	var moved int64
	for _, id := range ids {
		if moved >= max {
			break
		}

		ts, err := q.rdb.HGet(ctx, q.claimedAtKey, id).Int64()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				return moved, err
			}
			if err := q.stampClaim(ctx, id, time.Now()); err != nil {
				return moved, err
			}
			continue
		}
		if ts > cutoff {
			continue
		}

		// the LRem/LPush pair is not atomic; if the reaper dies in between,
		// the next claim stamp restores the invariant
		removed, err := q.rdb.LRem(ctx, q.processingKey, 1, id).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.HDel(ctx, q.claimedAtKey, id).Err(); err != nil {
			return moved, err
		}
		if err := q.rdb.LPush(ctx, q.queueKey, id).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}
