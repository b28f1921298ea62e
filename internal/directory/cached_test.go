package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inletmail/inlet/internal/cache"
)

// countingDirectory counts backend lookups so tests can assert cache hits.
type countingDirectory struct {
	*Mock
	addressLookups atomic.Int64
	accountLookups atomic.Int64
}

func (c *countingDirectory) FindAddress(ctx context.Context, address string) (Address, error) {
	c.addressLookups.Add(1)
	return c.Mock.FindAddress(ctx, address)
}

func (c *countingDirectory) FindAccount(ctx context.Context, accountID string) (Account, error) {
	c.accountLookups.Add(1)
	return c.Mock.FindAccount(ctx, accountID)
}

func newCachedFixture(t *testing.T) (*countingDirectory, *Cached) {
	t.Helper()

	backend := &countingDirectory{Mock: NewMock("backend")}
	require.NoError(t, backend.Connect())
	backend.AddAccount(Account{ID: "alice", Quota: 1000, Active: true}, "alice@example.com")

	mem := cache.NewMemory(cache.Config{})
	require.NoError(t, mem.Connect())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return backend, NewCached(backend, mem, DefaultCacheTTL(), logger)
}

func TestCachedFindAddress(t *testing.T) {
	ctx := context.Background()
	backend, cached := newCachedFixture(t)

	for i := 0; i < 3; i++ {
		addr, err := cached.FindAddress(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, "alice", addr.AccountID)
	}

	assert.Equal(t, int64(1), backend.addressLookups.Load())
}

func TestCachedFindAccount(t *testing.T) {
	ctx := context.Background()
	backend, cached := newCachedFixture(t)

	for i := 0; i < 3; i++ {
		account, err := cached.FindAccount(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(1000), account.Quota)
	}

	assert.Equal(t, int64(1), backend.accountLookups.Load())
}

func TestCachedNegativeEntries(t *testing.T) {
	ctx := context.Background()
	backend, cached := newCachedFixture(t)

	for i := 0; i < 3; i++ {
		_, err := cached.FindAddress(ctx, "nobody@example.com")
		require.ErrorIs(t, err, ErrNotFound)
	}

	assert.Equal(t, int64(1), backend.addressLookups.Load())
}

func TestCachedBackendErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	backend, cached := newCachedFixture(t)

	boom := errors.New("directory down")
	backend.FailWith(boom)

	_, err := cached.FindAddress(ctx, "bob@example.com")
	require.ErrorIs(t, err, boom)

	// Transient failures must not poison the cache
	backend.FailWith(nil)
	backend.AddAccount(Account{ID: "bob", Active: true}, "bob@example.com")

	addr, err := cached.FindAddress(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "bob", addr.AccountID)
}
