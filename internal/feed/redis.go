// Package feed publishes discoveries to Redis so other processes can follow
// a scan as it runs.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/config"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/logger"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/recorder"
)

// RedisFeed appends each discovery to a list and announces it on a channel
// of the same name.
type RedisFeed struct {
	client *redis.Client
	key    string
	log    *logger.Logger
}

// NewRedisFeed connects to Redis and logs through the logger carried by ctx.
func NewRedisFeed(ctx context.Context, cfg config.RedisConfig) (*RedisFeed, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = "tmdbscan:discoveries"
	}

	log := logger.FromContext(ctx).WithComponent("feed")
	log.Debugw("Connected to discovery feed", "addr", cfg.Addr, "key", key)

	return &RedisFeed{client: client, key: key, log: log}, nil
}

func (f *RedisFeed) Key() string {
	return f.key
}

func (f *RedisFeed) Publish(ctx context.Context, d *recorder.Discovery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery: %w", err)
	}

	pipe := f.client.Pipeline()
	pipe.RPush(ctx, f.key, data)
	pipe.Publish(ctx, f.key, data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish discovery %s: %w", d.TitleID, err)
	}
	return nil
}

// Recent returns up to n of the most recently published discoveries, oldest
// first.
func (f *RedisFeed) Recent(ctx context.Context, n int) ([]recorder.Discovery, error) {
	if n <= 0 {
		return nil, nil
	}

	raw, err := f.client.LRange(ctx, f.key, int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}

	out := make([]recorder.Discovery, 0, len(raw))
	for _, item := range raw {
		var d recorder.Discovery
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal feed entry: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Subscribe returns a channel of discoveries published after the call. The
// channel closes when ctx is done.
func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan recorder.Discovery, error) {
	sub := f.client.Subscribe(ctx, f.key)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", f.key, err)
	}

	out := make(chan recorder.Discovery)
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
				var d recorder.Discovery
				if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
					f.log.Warnw("Skipping malformed feed message", "key", f.key, "error", err)
					continue
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *RedisFeed) Close() error {
	return f.client.Close()
}
