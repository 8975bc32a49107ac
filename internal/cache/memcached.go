package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/docsentry/docsentry/internal/probe"
)

const keyPrefix = "link:"

// MemcachedCache implements Cache against memcached, for deployments that
// share probe results across replicas.
type MemcachedCache struct {
	client   *memcache.Client
	staleFor time.Duration
}

// NewMemcachedCache connects to a comma-separated server list
// ("host1:11211,host2:11211"). timeout and maxIdleConns use client defaults
// when zero; staleFor extends how long expired results stay retrievable.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, staleFor time.Duration) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	if staleFor < 0 {
		staleFor = 0
	}
	return &MemcachedCache{client: client, staleFor: staleFor}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(url string) string {
	return keyPrefix + url
}

func (c *MemcachedCache) fetch(ctx context.Context, url string) (envelope, bool, error) {
	if ctx.Err() != nil {
		return envelope{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(url))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return envelope{}, false, nil
		}
		return envelope{}, false, err
	}
	var env envelope
	if err := json.Unmarshal(item.Value, &env); err != nil {
		return envelope{}, false, err
	}
	return env, true, nil
}

// Get implements Cache.Get. Returns false, nil on miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, url string) (probe.Result, bool, error) {
	env, ok, err := c.fetch(ctx, url)
	if err != nil || !ok {
		return probe.Result{}, false, err
	}
	if time.Now().After(env.FreshUntil) {
		return probe.Result{}, false, nil
	}
	return env.Result, true, nil
}

// GetStale implements Cache.GetStale. Memcached evicts entries staleFor
// after their TTL, so anything it still returns is inside the window.
func (c *MemcachedCache) GetStale(ctx context.Context, url string) (probe.Result, bool, error) {
	env, ok, err := c.fetch(ctx, url)
	if err != nil || !ok {
		return probe.Result{}, false, err
	}
	value := env.Result
	if time.Now().After(env.FreshUntil) {
		value.Stale = true
	}
	return value, true, nil
}

// Set implements Cache.Set. The memcached expiry covers TTL plus the stale
// window; freshness is tracked inside the stored envelope.
func (c *MemcachedCache) Set(ctx context.Context, url string, value probe.Result, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(envelope{Result: value, FreshUntil: time.Now().Add(ttl)})
	if err != nil {
		return err
	}
	expSec := int32((ttl + c.staleFor).Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(url),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks memcached reachability for health reporting.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
