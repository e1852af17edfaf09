package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisClients bundles the cache client and the lock client built on it.
type RedisClients struct {
	Client *redis.Client
	Locker *redislock.Client
}

// ConnectRedisWithRetry pings REDIS_ADDRESS until it answers or ctx is done.
// An empty address returns (nil, nil): redis is optional for every component.
func ConnectRedisWithRetry(ctx context.Context, s Settings) (*RedisClients, error) {
	if s.RedisAddress == "" {
		log.Printf("REDIS_ADDRESS not set; running without redis")
		return nil, nil
	}

	var attempt int
	for {
		attempt++
		rdb := redis.NewClient(&redis.Options{
			Addr:     s.RedisAddress,
			Password: s.RedisPassword,
			DB:       s.RedisDB,
			PoolSize: 100,
		})
		err := rdb.Ping(ctx).Err()
		if err == nil {
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, s.RedisAddress)
			return &RedisClients{Client: rdb, Locker: redislock.New(rdb)}, nil
		}
		_ = rdb.Close()

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, s.RedisAddress, err, sleep)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect redis: %w", errors.Join(ctx.Err(), err))
		case <-time.After(sleep):
		}
	}
}

// GetRedisObject reports whether key was present and decoded into dest.
func GetRedisObject(ctx context.Context, rdb *redis.Client, key string, dest interface{}) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func SetRedisObject(ctx context.Context, rdb *redis.Client, key string, obj interface{}, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	objInByte, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, objInByte, exp).Err()
}

func RemoveRedisKey(ctx context.Context, rdb *redis.Client, keys ...string) error {
	if rdb == nil || len(keys) == 0 {
		return nil
	}
	return rdb.Del(ctx, keys...).Err()
}
