package redis

import (
	"context"
	"errors"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/singleton/domain/entity"
	"github.com/mbeoliero/singleton/domain/repo"
)

// TrialCache keeps the latest trial of each policy as one field of a redis hash.
type TrialCache struct {
	rdb redis.UniversalClient
	key string
}

var _ repo.TrialCache = (*TrialCache)(nil)

func NewTrialCache(rdb redis.UniversalClient, keyPrefix string) *TrialCache {
	key := "latest_trial"
	if keyPrefix != "" {
		key = keyPrefix + ":" + key
	}
	return &TrialCache{rdb: rdb, key: key}
}

func (c *TrialCache) SetLatest(ctx context.Context, trial *entity.Trial) error {
	data, err := sonic.Marshal(trial)
	if err != nil {
		return err
	}
	return c.rdb.HSet(ctx, c.key, trial.Policy, data).Err()
}

func (c *TrialCache) GetLatest(ctx context.Context, policy string) (*entity.Trial, error) {
	data, err := c.rdb.HGet(ctx, c.key, policy).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var trial entity.Trial
	if err = sonic.UnmarshalString(data, &trial); err != nil {
		return nil, err
	}
	return &trial, nil
}
