package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	userStatePrefix = "user-state:"
	userDataPrefix  = "user-data:"
)

// StateRepo keeps the per-user conversation state machine position and its
// scratch data. Entries expire on their own so an abandoned dialog never
// wedges a user, and the state survives process restarts.
type StateRepo struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewStateRepo(client *goredis.Client, ttl time.Duration) *StateRepo {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &StateRepo{client: client, ttl: ttl}
}

func (r *StateRepo) SetState(ctx context.Context, tgUserID int64, state string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if tgUserID <= 0 || state == "" {
		return fmt.Errorf("invalid state payload")
	}

	if err := r.client.Set(ctx, stateKey(tgUserID), state, r.ttl).Err(); err != nil {
		return fmt.Errorf("set user state: %w", err)
	}

	return nil
}

// GetState returns the current state, or "" when none is set.
func (r *StateRepo) GetState(ctx context.Context, tgUserID int64) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}

	state, err := r.client.Get(ctx, stateKey(tgUserID)).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get user state: %w", err)
	}

	return state, nil
}

func (r *StateRepo) SetData(ctx context.Context, tgUserID int64, data map[string]any) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if tgUserID <= 0 {
		return fmt.Errorf("invalid tg_user_id")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal user data: %w", err)
	}

	if err := r.client.Set(ctx, dataKey(tgUserID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("set user data: %w", err)
	}

	return nil
}

// GetData returns the scratch data map, or nil when none is set.
func (r *StateRepo) GetData(ctx context.Context, tgUserID int64) (map[string]any, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	raw, err := r.client.Get(ctx, dataKey(tgUserID)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user data: %w", err)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("unmarshal user data: %w", err)
	}

	return data, nil
}

// Clear removes both the state and the scratch data in one round trip.
func (r *StateRepo) Clear(ctx context.Context, tgUserID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, stateKey(tgUserID))
	pipe.Del(ctx, dataKey(tgUserID))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear user state: %w", err)
	}

	return nil
}

func stateKey(tgUserID int64) string {
	return userStatePrefix + strconv.FormatInt(tgUserID, 10)
}

func dataKey(tgUserID int64) string {
	return userDataPrefix + strconv.FormatInt(tgUserID, 10)
}
