package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper claims the (case, type) slot for one window. Claim returns false
// when another notice of the same type was claimed inside the window.
type Deduper interface {
	Claim(ctx context.Context, caseID, notifType string, window time.Duration) (bool, error)
}

// RedisDeduper shares the dedup window across processes with SET NX PX.
type RedisDeduper struct {
	Client *redis.Client
	Prefix string
}

// NewRedisDeduper connects to url (redis://...). An empty url returns nil.
func NewRedisDeduper(ctx context.Context, url string) (*RedisDeduper, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisDeduper{Client: client, Prefix: "disputehub:notify:"}, nil
}

func (d *RedisDeduper) Claim(ctx context.Context, caseID, notifType string, window time.Duration) (bool, error) {
	return d.Client.SetNX(ctx, d.Prefix+caseID+":"+notifType, time.Now().UTC().Format(time.RFC3339), window).Result()
}

func (d *RedisDeduper) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
