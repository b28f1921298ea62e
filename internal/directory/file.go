package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/bcrypt"
)

// File implements the Directory interface over a TOML account file. Useful
// for small installations and tests; the whole file is loaded on Connect.
//
// File format:
//
//	[[account]]
//	id = "alice"
//	name = "Alice Example"
//	quota = 104857600
//	storage_used = 0
//	password_hash = "$2a$10$..."
//	active = true
//	addresses = ["alice@example.com", "postmaster@example.com"]
type File struct {
	path      string
	connected bool
	mu        sync.RWMutex
	accounts  map[string]Account
	addresses map[string]string // canonical address -> account id
}

type fileAccount struct {
	ID           string   `toml:"id"`
	Name         string   `toml:"name"`
	Quota        int64    `toml:"quota"`
	StorageUsed  int64    `toml:"storage_used"`
	PasswordHash string   `toml:"password_hash"`
	Active       *bool    `toml:"active"`
	Addresses    []string `toml:"addresses"`
}

type fileRoot struct {
	Accounts []fileAccount `toml:"account"`
}

// NewFile creates a new file-backed directory
func NewFile(config Config) *File {
	path := config.Database
	if config.Options != nil {
		if p, ok := config.Options["file"].(string); ok && p != "" {
			path = p
		}
	}
	return &File{
		path:      path,
		accounts:  make(map[string]Account),
		addresses: make(map[string]string),
	}
}

// Connect loads the account file
func (f *File) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.path == "" {
		return fmt.Errorf("account file path is empty")
	}

	var root fileRoot
	if _, err := toml.DecodeFile(f.path, &root); err != nil {
		return fmt.Errorf("failed to load account file %s: %w", f.path, err)
	}

	accounts := make(map[string]Account, len(root.Accounts))
	addresses := make(map[string]string)
	for _, fa := range root.Accounts {
		if fa.ID == "" {
			return fmt.Errorf("account file %s: account without id", f.path)
		}
		active := true
		if fa.Active != nil {
			active = *fa.Active
		}
		accounts[fa.ID] = Account{
			ID:           fa.ID,
			Name:         fa.Name,
			Quota:        fa.Quota,
			StorageUsed:  fa.StorageUsed,
			PasswordHash: fa.PasswordHash,
			Active:       active,
		}
		for _, addr := range fa.Addresses {
			addresses[addr] = fa.ID
		}
	}

	f.accounts = accounts
	f.addresses = addresses
	f.connected = true
	return nil
}

// Close discards the loaded accounts
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

// IsConnected returns true if the directory is connected
func (f *File) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Name returns the name of this directory instance
func (f *File) Name() string { return "file" }

// Type returns the type of the directory
func (f *File) Type() string { return "file" }

// FindAddress looks up a canonical address
func (f *File) FindAddress(ctx context.Context, address string) (Address, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.connected {
		return Address{}, ErrNotConnected
	}

	accountID, ok := f.addresses[address]
	if !ok {
		return Address{}, ErrNotFound
	}

	return Address{Address: address, AccountID: accountID}, nil
}

// FindAccount retrieves an account by id
func (f *File) FindAccount(ctx context.Context, accountID string) (Account, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.connected {
		return Account{}, ErrNotConnected
	}

	account, ok := f.accounts[accountID]
	if !ok {
		return Account{}, ErrNotFound
	}

	return account, nil
}

// Authenticate verifies credentials for an address
func (f *File) Authenticate(ctx context.Context, address, password string) (bool, error) {
	addr, err := f.FindAddress(ctx, address)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}

	account, err := f.FindAccount(ctx, addr.AccountID)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}

	if !account.Active || account.PasswordHash == "" {
		return false, nil
	}

	err = bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password))
	return err == nil, nil
}
