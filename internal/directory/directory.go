package directory

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrNotConnected = errors.New("not connected to directory")
)

// Directory is the address/account lookup service consulted during envelope
// validation. Implementations must be safe for concurrent use; sessions share
// one connection-pooled instance and perform no locking of their own.
type Directory interface {
	// Connect establishes a connection to the directory
	Connect() error

	// Close closes the connection to the directory
	Close() error

	// IsConnected returns true if the directory is connected
	IsConnected() bool

	// Name returns the name of this directory instance
	Name() string

	// Type returns the type of the directory (e.g., "sqlite", "ldap")
	Type() string

	// FindAddress looks up a canonical address and returns its routing entry.
	// Returns ErrNotFound if the address is not known.
	FindAddress(ctx context.Context, address string) (Address, error)

	// FindAccount retrieves the account owning one or more addresses.
	// Returns ErrNotFound if the account does not exist.
	FindAccount(ctx context.Context, accountID string) (Account, error)

	// Authenticate verifies credentials for an address. The reception
	// front-end never calls this; it serves the platform's retrieval
	// surfaces, which share the same directory.
	Authenticate(ctx context.Context, address, password string) (bool, error)
}

// Address maps a canonical mail address to its owning account.
type Address struct {
	Address   string `json:"address"`
	AccountID string `json:"account_id"`
}

// Account holds the storage-accounting view of a mailbox account. Quota is
// the configured byte ceiling; zero means the server-wide default applies.
type Account struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Quota        int64  `json:"quota"`
	StorageUsed  int64  `json:"storage_used"`
	PasswordHash string `json:"-"`
	Active       bool   `json:"active"`
}

// StorageAvailable returns the bytes this account may still receive, given
// the server-wide fallback ceiling for accounts without an explicit quota.
// Never negative.
func (a Account) StorageAvailable(defaultQuota int64) int64 {
	quota := a.Quota
	if quota == 0 {
		quota = defaultQuota
	}
	if avail := quota - a.StorageUsed; avail > 0 {
		return avail
	}
	return 0
}

// Config represents the configuration for a directory backend
type Config struct {
	Type     string         // Type of directory (sqlite, mysql, postgres, ldap, file, mock)
	Name     string         // Name of this directory instance
	Host     string         // Hostname or IP address
	Port     int            // Port number
	Database string         // Database name or file path
	Username string         // Username for authentication
	Password string         // Password for authentication
	Options  map[string]any // Additional backend-specific options
}

// Factory creates directory backends based on configuration
func Factory(config Config) (Directory, error) {
	switch config.Type {
	case "sqlite":
		return NewSQLite(config), nil
	case "mysql":
		return NewMySQL(config), nil
	case "postgres":
		return NewPostgres(config), nil
	case "ldap":
		return NewLDAP(config), nil
	case "file":
		return NewFile(config), nil
	case "mock":
		return NewMock(config.Name), nil
	default:
		return nil, fmt.Errorf("unsupported directory type: %s", config.Type)
	}
}
