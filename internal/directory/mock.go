package directory

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Mock implements the Directory interface in memory, for tests and local
// development. Lookup failures can be injected with FailWith.
type Mock struct {
	name      string
	connected bool
	mu        sync.RWMutex
	accounts  map[string]Account
	addresses map[string]string // canonical address -> account id
	failErr   error
}

// NewMock creates a new mock directory
func NewMock(name string) *Mock {
	if name == "" {
		name = "mock"
	}
	return &Mock{
		name:      name,
		accounts:  make(map[string]Account),
		addresses: make(map[string]string),
	}
}

// Connect establishes a connection to the mock directory
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

// Close closes the connection to the mock directory
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected returns true if the directory is connected
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Name returns the name of this directory instance
func (m *Mock) Name() string { return m.name }

// Type returns the type of the directory
func (m *Mock) Type() string { return "mock" }

// FindAddress looks up a canonical address
func (m *Mock) FindAddress(ctx context.Context, address string) (Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return Address{}, ErrNotConnected
	}
	if m.failErr != nil {
		return Address{}, m.failErr
	}

	accountID, ok := m.addresses[address]
	if !ok {
		return Address{}, ErrNotFound
	}

	return Address{Address: address, AccountID: accountID}, nil
}

// FindAccount retrieves an account by id
func (m *Mock) FindAccount(ctx context.Context, accountID string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return Account{}, ErrNotConnected
	}
	if m.failErr != nil {
		return Account{}, m.failErr
	}

	account, ok := m.accounts[accountID]
	if !ok {
		return Account{}, ErrNotFound
	}

	return account, nil
}

// Authenticate verifies credentials for an address
func (m *Mock) Authenticate(ctx context.Context, address, password string) (bool, error) {
	addr, err := m.FindAddress(ctx, address)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}

	account, err := m.FindAccount(ctx, addr.AccountID)
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

// AddAccount registers an account and its addresses for testing
func (m *Mock) AddAccount(account Account, addresses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts[account.ID] = account
	for _, addr := range addresses {
		m.addresses[addr] = account.ID
	}
}

// FailWith makes every lookup return err until called with nil
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}
