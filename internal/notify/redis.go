package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"transcriber/internal/models"
)

// Redis publishes notifications over Redis pub/sub so the API process and
// any number of workers share one stream.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects to the Redis server at addr.
func NewRedis(ctx context.Context, addr, password string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Printf("Redis client connected (%s)", addr)
	return &Redis{rdb: rdb}, nil
}

// Publish sends n on channel.
func (r *Redis) Publish(ctx context.Context, channel string, n models.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		log.Printf("Error encoding notification: %v", err)
		return
	}
	if err := r.rdb.Publish(ctx, channel, data).Err(); err != nil {
		log.Printf("Error publishing notification on %s: %v", channel, err)
	}
}

// Subscribe streams payloads published on channel until ctx ends.
func (r *Redis) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := r.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close disconnects from Redis.
func (r *Redis) Close() error {
	log.Println("Redis client disconnected")
	return r.rdb.Close()
}
