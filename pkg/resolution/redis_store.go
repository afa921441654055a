package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/redis"
)

// DefaultRedisKey is the hash holding every decision
const DefaultRedisKey = "fictotum:resolutions"

// RedisStore keeps decisions as JSON values in one Redis hash
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store over the hash at key
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*models.ResolutionDecision, error) {
	raw, err := s.client.Redis().HGet(ctx, s.key, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resolution %s: %w", key, err)
	}
	var d models.ResolutionDecision
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to decode resolution %s: %w", key, err)
	}
	return &d, nil
}

func (s *RedisStore) Put(ctx context.Context, decision models.ResolutionDecision) error {
	if err := validate(decision); err != nil {
		return err
	}
	raw, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to encode resolution: %w", err)
	}
	set, err := s.client.Redis().HSetNX(ctx, s.key, decision.Key, raw).Result()
	if err != nil {
		return fmt.Errorf("failed to put resolution %s: %w", decision.Key, err)
	}
	if !set {
		return fmt.Errorf("%s: %w", decision.Key, ErrDecisionExists)
	}
	return nil
}

func (s *RedisStore) Replace(ctx context.Context, decision models.ResolutionDecision) error {
	if err := validate(decision); err != nil {
		return err
	}
	raw, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to encode resolution: %w", err)
	}
	if err := s.client.Redis().HSet(ctx, s.key, decision.Key, raw).Err(); err != nil {
		return fmt.Errorf("failed to replace resolution %s: %w", decision.Key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	n, err := s.client.Redis().HDel(ctx, s.key, key).Result()
	if err != nil {
		return fmt.Errorf("failed to delete resolution %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", key, ErrDecisionNotFound)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]models.ResolutionDecision, error) {
	all, err := s.client.Redis().HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list resolutions: %w", err)
	}
	out := make([]models.ResolutionDecision, 0, len(all))
	for key, raw := range all {
		var d models.ResolutionDecision
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("failed to decode resolution %s: %w", key, err)
		}
		out = append(out, d)
	}
	sortByKey(out)
	return out, nil
}

func (s *RedisStore) Clear(ctx context.Context) (int, error) {
	n, err := s.client.Redis().HLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count resolutions: %w", err)
	}
	if err := s.client.Redis().Del(ctx, s.key).Err(); err != nil {
		return 0, fmt.Errorf("failed to clear resolutions: %w", err)
	}
	return int(n), nil
}

var _ Store = (*RedisStore)(nil)
