// Package redis is a read-through cache for detail lookups on the live API
// path. The crawl path never goes through it.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/neows-archiver/internal/neo"
)

const (
	keyPrefix      = "neows:detail:"
	defaultTTL     = 24 * time.Hour
	connectTimeout = 2 * time.Second
)

// NewClient connects to addr and pings it.
func NewClient(ctx context.Context, addr, password string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return client, nil
}

// Lookuper serves detail records from Redis, falling back to next on a miss.
// Cache errors degrade to a direct lookup.
type Lookuper struct {
	client goredis.UniversalClient
	next   neo.Lookuper
	ttl    time.Duration
	logger *zap.Logger
}

// NewLookuper wraps next with a cache.
func NewLookuper(client goredis.UniversalClient, next neo.Lookuper, ttl time.Duration, logger *zap.Logger) (*Lookuper, error) {
	if client == nil || next == nil {
		return nil, errors.New("redis lookuper needs a client and a fallback")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lookuper{client: client, next: next, ttl: ttl, logger: logger}, nil
}

// Key returns the cache key for id. Surrounding whitespace is ignored.
func Key(id string) string {
	return keyPrefix + strings.TrimSpace(id)
}

// Lookup implements neo.Lookuper. Blank ids go straight to the next lookuper
// so it can reject them.
func (l *Lookuper) Lookup(ctx context.Context, id string) (neo.DetailRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return l.next.Lookup(ctx, id)
	}
	raw, err := l.client.Get(ctx, Key(id)).Bytes()
	switch {
	case err == nil:
		var detail neo.DetailRecord
		if decodeErr := json.Unmarshal(raw, &detail); decodeErr == nil {
			return detail, nil
		}
		l.logger.Warn("dropping undecodable cache entry", zap.String("record_id", id))
		_ = l.client.Del(ctx, Key(id)).Err()
	case errors.Is(err, goredis.Nil):
	default:
		l.logger.Warn("detail cache read failed", zap.String("record_id", id), zap.Error(err))
	}

	detail, err := l.next.Lookup(ctx, id)
	if err != nil {
		return neo.DetailRecord{}, err
	}
	if body, encErr := json.Marshal(detail); encErr == nil {
		if setErr := l.client.Set(ctx, Key(id), body, l.ttl).Err(); setErr != nil {
			l.logger.Warn("detail cache write failed", zap.String("record_id", id), zap.Error(setErr))
		}
	}
	return detail, nil
}
