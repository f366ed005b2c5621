package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "bq:"

// Job is one delayed trigger claimed from a queue.
type Job struct {
	ID      string
	Payload map[string]any
}

// Queue is a named delayed-job queue over Redis: a sorted set of job IDs
// scored by ready-time plus a hash of payloads. A job re-added under the
// same fixed ID replaces the pending one (ZADD updates the member's score),
// which makes "at most one pending trigger per fixed ID" structural.
type Queue struct {
	client *goredis.Client
	name   string
}

// Service hands out queues by name, one instance per name.
type Service struct {
	client *goredis.Client

	mu     sync.Mutex
	queues map[string]*Queue
}

func NewService(client *goredis.Client) *Service {
	return &Service{
		client: client,
		queues: make(map[string]*Queue),
	}
}

func (s *Service) GetQueue(name string) *Queue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.queues[name]; ok {
		return q
	}

	q := &Queue{client: s.client, name: name}
	s.queues[name] = q
	return q
}

func (q *Queue) Name() string {
	return q.name
}

// AddJob schedules a trigger to become due after the delay. An empty jobID
// gets a generated one; a fixed jobID replaces any pending trigger with the
// same ID. Returns the effective job ID.
func (q *Queue) AddJob(ctx context.Context, payload map[string]any, delay time.Duration, jobID string) (string, error) {
	if q.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	if jobID == "" {
		jobID = uuid.NewString()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	readyAt := time.Now().Add(delay)

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.payloadKey(), jobID, raw)
	pipe.ZAdd(ctx, q.delayedKey(), goredis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: jobID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("add job %q to queue %q: %w", jobID, q.name, err)
	}

	return jobID, nil
}

func (q *Queue) RemoveJob(ctx context.Context, jobID string) error {
	if q.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if jobID == "" {
		return nil
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.delayedKey(), jobID)
	pipe.HDel(ctx, q.payloadKey(), jobID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove job %q from queue %q: %w", jobID, q.name, err)
	}

	return nil
}

// HasJob reports whether a trigger with the ID is still pending.
func (q *Queue) HasJob(ctx context.Context, jobID string) (bool, error) {
	if q.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	_, err := q.client.ZScore(ctx, q.delayedKey(), jobID).Result()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check job %q in queue %q: %w", jobID, q.name, err)
	}

	return true, nil
}

// claimDue atomically claims every job whose ready-time has passed. The
// ZRem return value arbitrates between competing claimers: only the caller
// that actually removed the member owns the job.
func (q *Queue) claimDue(ctx context.Context, now time.Time) ([]Job, error) {
	if q.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	ids, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due jobs in queue %q: %w", q.name, err)
	}

	var jobs []Job
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), id).Result()
		if err != nil {
			return jobs, fmt.Errorf("claim job %q in queue %q: %w", id, q.name, err)
		}
		if removed == 0 {
			continue
		}

		raw, err := q.client.HGet(ctx, q.payloadKey(), id).Bytes()
		if err != nil && err != goredis.Nil {
			return jobs, fmt.Errorf("load payload for job %q: %w", id, err)
		}
		_ = q.client.HDel(ctx, q.payloadKey(), id).Err()

		var payload map[string]any
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &payload); err != nil {
				payload = nil
			}
		}

		jobs = append(jobs, Job{ID: id, Payload: payload})
	}

	return jobs, nil
}

func (q *Queue) delayedKey() string {
	return keyPrefix + q.name + ":delayed"
}

func (q *Queue) payloadKey() string {
	return keyPrefix + q.name + ":payloads"
}
