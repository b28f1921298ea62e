package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMockLookups(t *testing.T) {
	ctx := context.Background()
	m := NewMock("test")

	_, err := m.FindAddress(ctx, "alice@example.com")
	require.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, m.Connect())
	m.AddAccount(Account{ID: "alice", Quota: 1000, StorageUsed: 200, Active: true},
		"alice@example.com", "postmaster@example.com")

	addr, err := m.FindAddress(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", addr.AccountID)

	addr, err = m.FindAddress(ctx, "postmaster@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", addr.AccountID)

	_, err = m.FindAddress(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)

	account, err := m.FindAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), account.Quota)
	assert.Equal(t, int64(200), account.StorageUsed)

	_, err = m.FindAccount(ctx, "bob")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMockFailureInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMock("test")
	require.NoError(t, m.Connect())
	m.AddAccount(Account{ID: "alice", Active: true}, "alice@example.com")

	boom := errors.New("directory down")
	m.FailWith(boom)

	_, err := m.FindAddress(ctx, "alice@example.com")
	require.ErrorIs(t, err, boom)

	m.FailWith(nil)
	_, err = m.FindAddress(ctx, "alice@example.com")
	require.NoError(t, err)
}

func TestMockAuthenticate(t *testing.T) {
	ctx := context.Background()
	m := NewMock("test")
	require.NoError(t, m.Connect())

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	m.AddAccount(Account{ID: "alice", PasswordHash: string(hash), Active: true},
		"alice@example.com")
	m.AddAccount(Account{ID: "bob", PasswordHash: string(hash), Active: false},
		"bob@example.com")

	ok, err := m.Authenticate(ctx, "alice@example.com", "secret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Authenticate(ctx, "alice@example.com", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	// Inactive accounts never authenticate
	ok, err = m.Authenticate(ctx, "bob@example.com", "secret")
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown address is not an error
	ok, err = m.Authenticate(ctx, "nobody@example.com", "secret")
	require.NoError(t, err)
	assert.False(t, ok)
}
