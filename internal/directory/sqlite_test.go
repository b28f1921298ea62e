package directory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteFixture(t *testing.T) *SQLite {
	t.Helper()

	s := NewSQLite(Config{
		Type:     "sqlite",
		Database: filepath.Join(t.TempDir(), "directory.db"),
	})
	require.NoError(t, s.Connect())
	t.Cleanup(func() { s.Close() })
	return s
}

func seedSQLite(t *testing.T, s *SQLite) {
	t.Helper()

	_, err := s.db.Exec(`INSERT INTO accounts (id, name, quota, storage_used, active)
		VALUES ('alice', 'Alice', 1000, 200, 1)`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO addresses (address, account_id)
		VALUES ('alice@example.com', 'alice'), ('postmaster@example.com', 'alice')`)
	require.NoError(t, err)
}

func TestSQLiteFindAddress(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteFixture(t)
	seedSQLite(t, s)

	addr, err := s.FindAddress(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", addr.AccountID)

	_, err = s.FindAddress(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteFindAccount(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteFixture(t)
	seedSQLite(t, s)

	account, err := s.FindAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", account.Name)
	assert.Equal(t, int64(1000), account.Quota)
	assert.Equal(t, int64(200), account.StorageUsed)
	assert.True(t, account.Active)

	_, err = s.FindAccount(ctx, "bob")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteNotConnected(t *testing.T) {
	ctx := context.Background()
	s := NewSQLite(Config{Database: filepath.Join(t.TempDir(), "directory.db")})

	_, err := s.FindAddress(ctx, "alice@example.com")
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = s.FindAccount(ctx, "alice")
	require.ErrorIs(t, err, ErrNotConnected)
}
