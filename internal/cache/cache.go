// Package cache stores provider payloads between requests.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/circuitbreaker"
)

// PayloadCache defines cache operations. Values are opaque encoded payloads.
type PayloadCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, v []byte, ttl time.Duration)
}

// LocalLRU is a simple in-process LRU with TTL
type LocalLRU struct {
	mu   sync.Mutex
	cap  int
	list *list.List               // front = most recent
	m    map[string]*list.Element // key -> element
	now  func() time.Time
}

type lruEntry struct {
	key string
	val []byte
	exp time.Time
}

func NewLocalLRU(capacity int) *LocalLRU {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LocalLRU{cap: capacity, list: list.New(), m: make(map[string]*list.Element, capacity), now: time.Now}
}

func (l *LocalLRU) Get(_ context.Context, key string) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.m[key]; ok {
		ent := el.Value.(lruEntry)
		if ent.exp.After(l.now()) {
			l.list.MoveToFront(el)
			return ent.val, true
		}
		l.list.Remove(el)
		delete(l.m, key)
	}
	return nil, false
}

func (l *LocalLRU) Set(_ context.Context, key string, v []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ent := lruEntry{key: key, val: v, exp: l.now().Add(ttl)}
	if el, ok := l.m[key]; ok {
		el.Value = ent
		l.list.MoveToFront(el)
		return
	}
	l.m[key] = l.list.PushFront(ent)
	if l.list.Len() > l.cap {
		if lru := l.list.Back(); lru != nil {
			delete(l.m, lru.Value.(lruEntry).key)
			l.list.Remove(lru)
		}
	}
}

// Len returns the number of entries, including expired ones not yet evicted.
func (l *LocalLRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.Len()
}

// RedisCache uses circuit-breaker wrapped Redis
type RedisCache struct {
	cli    *circuitbreaker.RedisWrapper
	logger *zap.Logger
}

// NewRedisCache connects to addr and verifies it with a PING.
func NewRedisCache(addr string, logger *zap.Logger) (*RedisCache, error) {
	rc := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: addr}), logger)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return rc, nil
}

// NewRedisCacheFromClient wraps an existing client without contacting it.
func NewRedisCacheFromClient(client *redis.Client, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{cli: circuitbreaker.NewRedisWrapper(client, logger), logger: logger}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.cli.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Debug("Provider cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return b, true
}

func (r *RedisCache) Set(ctx context.Context, key string, v []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := r.cli.Set(ctx, key, v, ttl).Err(); err != nil {
		r.logger.Debug("Provider cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Ping checks connectivity through the breaker.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

// IsCircuitBreakerOpen reports whether Redis calls are being rejected.
func (r *RedisCache) IsCircuitBreakerOpen() bool {
	return r.cli.IsCircuitBreakerOpen()
}

// Close releases the underlying client.
func (r *RedisCache) Close() error {
	return r.cli.Close()
}

// Tiered reads the local LRU first and falls back to the shared cache,
// warming the local tier on a remote hit.
type Tiered struct {
	local    *LocalLRU
	remote   PayloadCache
	localTTL time.Duration
}

// NewTiered combines local and remote. remote may be nil.
func NewTiered(local *LocalLRU, remote PayloadCache, localTTL time.Duration) *Tiered {
	return &Tiered{local: local, remote: remote, localTTL: localTTL}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := t.local.Get(ctx, key); ok {
		return v, true
	}
	if t.remote == nil {
		return nil, false
	}
	v, ok := t.remote.Get(ctx, key)
	if ok {
		t.local.Set(ctx, key, v, t.localTTL)
	}
	return v, ok
}

func (t *Tiered) Set(ctx context.Context, key string, v []byte, ttl time.Duration) {
	localTTL := t.localTTL
	if ttl < localTTL {
		localTTL = ttl
	}
	t.local.Set(ctx, key, v, localTTL)
	if t.remote != nil {
		t.remote.Set(ctx, key, v, ttl)
	}
}

// MakeKey derives a stable key for a stage and its normalized query parts.
func MakeKey(stage string, parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = strings.ToLower(strings.TrimSpace(p))
	}
	h := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return "provider:" + stage + ":" + hex.EncodeToString(h[:12])
}
