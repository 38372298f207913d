package infra

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tnqbao/gau-site-director/config"
	"github.com/tnqbao/gau-site-director/entity"
)

// SiteEventsChannel carries entity.SiteEvent JSON for the websocket hub.
const SiteEventsChannel = "site-events"

var ErrCacheMiss = errors.New("key not found in cache")

type RedisClient struct {
	Client *redis.Client
}

func InitRedisClient(cfg *config.EnvConfig) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.RedisHost + ":" + cfg.Redis.RedisPort,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}

	log.Println("Connected to Redis:", cfg.Redis.RedisPort+" on "+cfg.Redis.RedisHost)

	return &RedisClient{Client: client}
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	return r.Client.Del(ctx, keys...).Err()
}

// Both scripts act only while the caller's token still owns the key.
var (
	leaseRefresh = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
	leaseRelease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Lease claims key for ttl and keeps extending it until release is called,
// so a holder that dies loses the claim within ttl. ok is false when
// someone else holds it.
func (r *RedisClient) Lease(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	hold, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-hold.Done():
				return
			case <-ticker.C:
				err := leaseRefresh.Run(hold, r.Client, []string{key}, token, ttl.Milliseconds()).Err()
				if err != nil && hold.Err() == nil {
					log.Printf("[Redis] Failed to refresh lease %s: %v", key, err)
				}
			}
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			stop()
			<-done
			if err := leaseRelease.Run(context.Background(), r.Client, []string{key}, token).Err(); err != nil {
				log.Printf("[Redis] Failed to release lease %s: %v", key, err)
			}
		})
	}
	return release, true, nil
}

func (r *RedisClient) LeaseHeld(ctx context.Context, key string) (bool, error) {
	n, err := r.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// NotifySite publishes a site event. Delivery is best effort.
func (r *RedisClient) NotifySite(ctx context.Context, event entity.SiteEvent) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.Client.Publish(ctx, SiteEventsChannel, data).Err()
}

// SubscribeSiteEvents streams decoded site events until ctx is done.
// Malformed payloads are skipped.
func (r *RedisClient) SubscribeSiteEvents(ctx context.Context) <-chan entity.SiteEvent {
	pubsub := r.Client.Subscribe(ctx, SiteEventsChannel)
	out := make(chan entity.SiteEvent, 64)

	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event entity.SiteEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
