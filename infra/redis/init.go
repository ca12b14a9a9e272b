package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/singleton/domain/repo"
	"github.com/mbeoliero/singleton/infra/config"
)

var client redis.UniversalClient

func Init() error {
	cfg := config.Get()

	client = redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.TODO(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}

	repo.SetTrialCache(NewTrialCache(client, cfg.Soak.KeyPrefix))
	return nil
}

func GetClient() redis.UniversalClient {
	return client
}

func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// SetClient sets the Redis client (used for testing)
func SetClient(c redis.UniversalClient) {
	client = c
}
