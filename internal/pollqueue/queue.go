// Package pollqueue schedules poll steps as delayed Redis messages so that
// polling progress survives process restarts. Each message carries the task
// and the attempt number it represents; losing the queue is tolerable because
// the staleness sweep re-discovers abandoned tasks from the database.
package pollqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dueKey = "pollq:due"

// Message is one scheduled poll step.
type Message struct {
	TaskID  string `json:"task_id"`
	Attempt int    `json:"attempt"`
}

// Queue is a Redis-backed delayed queue ordered by due time.
type Queue struct {
	client *redis.Client
	key    string
}

// New creates a poll queue on the given Redis client.
func New(client *redis.Client) *Queue {
	return &Queue{client: client, key: dueKey}
}

// Enqueue schedules msg to become due after delay.
func (q *Queue) Enqueue(ctx context.Context, msg Message, delay time.Duration) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("pollqueue: encode message: %w", err)
	}
	due := time.Now().Add(delay)
	if err := q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: payload,
	}).Err(); err != nil {
		return fmt.Errorf("pollqueue: enqueue: %w", err)
	}
	return nil
}

// PopDue removes and returns up to limit messages whose due time has passed.
// Members are claimed with ZRem so two consumers never process the same step.
func (q *Queue) PopDue(ctx context.Context, now time.Time, limit int) ([]Message, error) {
	raw, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.UnixMilli()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("pollqueue: range due: %w", err)
	}

	var claimed []Message
	for _, member := range raw {
		removed, err := q.client.ZRem(ctx, q.key, member).Result()
		if err != nil {
			return claimed, fmt.Errorf("pollqueue: claim: %w", err)
		}
		if removed == 0 {
			// Another consumer claimed it first.
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(member), &msg); err != nil {
			// Malformed members are dropped; the sweep picks the task up later.
			continue
		}
		claimed = append(claimed, msg)
	}
	return claimed, nil
}

// Len returns the number of scheduled steps.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}
