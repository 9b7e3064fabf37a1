package config

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)
var ctx = context.Background()

func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

func GetRedisContext() context.Context {
	return ctx
}

// Every helper below is a no-op (cache miss) when redis is not configured,
// so the service and its tests run without a redis instance.

func GetRedisObject(key string, dest interface{}) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	err = json.Unmarshal([]byte(val), &dest)
	if err != nil {
		return false, err
	}
	return true, nil
}

func SetRedisObject(key string, obj interface{}, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	objInByte, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	if err = rdb.Set(ctx, key, objInByte, exp).Err(); err != nil {
		return err
	}
	return nil
}

func RemoveRedisKey(key string) error {
	if rdb == nil {
		return nil
	}
	if err := rdb.Del(ctx, key).Err(); err != nil {
		return err
	}
	return nil
}

func AddRedisSetMember(key string, members ...interface{}) error {
	if rdb == nil {
		return nil
	}
	return rdb.SAdd(ctx, key, members...).Err()
}

func RemoveRedisSetMember(key string, members ...interface{}) error {
	if rdb == nil {
		return nil
	}
	return rdb.SRem(ctx, key, members...).Err()
}

// ConnectRedisWithRetry connects the shared redis client and lock client.
// Redis stays optional: when REDIS_ADDRESS is empty the service runs with
// caching and advisory locks disabled.
func ConnectRedisWithRetry() {
	godotenv.Load()
	redisAddress := os.Getenv("REDIS_ADDRESS")
	if redisAddress == "" {
		log.Printf("REDIS_ADDRESS not set; running without redis")
		return
	}

	var attempt int
	for {
		attempt++
		client := redis.NewClient(&redis.Options{
			Addr: redisAddress,
		})
		if err := client.Ping(ctx).Err(); err == nil {
			rdb = client
			locker = redislock.New(client)
			log.Printf("connected to redis (attempt=%d)", attempt)
			return
		} else {
			sleep := time.Second * time.Duration(1<<min(attempt, 4))
			if sleep > 15*time.Second {
				sleep = 15 * time.Second
			}
			log.Printf("failed to connect redis (attempt=%d): %v; retrying in %s", attempt, err, sleep)
			time.Sleep(sleep)
		}
	}
}
