package directory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/inletmail/inlet/internal/cache"
)

// Cache key prefixes and the marker stored for negative entries.
const (
	addressKeyPrefix = "dir:addr:"
	accountKeyPrefix = "dir:acct:"
	negativeMarker   = "!"
)

// CacheTTL controls how long directory answers are reused. Account entries
// carry the quota accounting, so their TTL bounds how stale a quota check
// can be.
type CacheTTL struct {
	Address  time.Duration
	Account  time.Duration
	Negative time.Duration
}

// DefaultCacheTTL returns the stock TTLs
func DefaultCacheTTL() CacheTTL {
	return CacheTTL{
		Address:  5 * time.Minute,
		Account:  30 * time.Second,
		Negative: time.Minute,
	}
}

// Cached is a read-through caching wrapper around a Directory. Cache errors
// are soft: on any cache failure the lookup falls through to the backend.
type Cached struct {
	Directory
	cache  cache.Cache
	ttl    CacheTTL
	logger *slog.Logger
}

// NewCached wraps dir with the given cache
func NewCached(dir Directory, c cache.Cache, ttl CacheTTL, logger *slog.Logger) *Cached {
	return &Cached{
		Directory: dir,
		cache:     c,
		ttl:       ttl,
		logger:    logger.With("component", "directory-cache", "backend", dir.Type()),
	}
}

// FindAddress looks up a canonical address, consulting the cache first
func (c *Cached) FindAddress(ctx context.Context, address string) (Address, error) {
	key := addressKeyPrefix + address

	var cached Address
	hit, negative := c.lookup(ctx, key, &cached)
	if negative {
		return Address{}, ErrNotFound
	}
	if hit {
		return cached, nil
	}

	addr, err := c.Directory.FindAddress(ctx, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.storeNegative(ctx, key)
		}
		return Address{}, err
	}

	c.store(ctx, key, addr, c.ttl.Address)
	return addr, nil
}

// FindAccount retrieves an account, consulting the cache first
func (c *Cached) FindAccount(ctx context.Context, accountID string) (Account, error) {
	key := accountKeyPrefix + accountID

	var cached Account
	hit, negative := c.lookup(ctx, key, &cached)
	if negative {
		return Account{}, ErrNotFound
	}
	if hit {
		return cached, nil
	}

	account, err := c.Directory.FindAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.storeNegative(ctx, key)
		}
		return Account{}, err
	}

	c.store(ctx, key, account, c.ttl.Account)
	return account, nil
}

// lookup reports (hit, negative). Any cache or decode error is a miss.
func (c *Cached) lookup(ctx context.Context, key string, out any) (bool, bool) {
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return false, false
	}
	if string(data) == negativeMarker {
		return false, true
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("cache entry corrupt, ignoring", "key", key, "error", err)
		return false, false
	}
	return true, false
}

func (c *Cached) store(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *Cached) storeNegative(ctx context.Context, key string) {
	if err := c.cache.Set(ctx, key, []byte(negativeMarker), c.ttl.Negative); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}
