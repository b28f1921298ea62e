package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"
)

// MySQL implements the Directory interface for MySQL databases
type MySQL struct {
	config    Config
	db        *sql.DB
	connected bool
}

// NewMySQL creates a new MySQL directory
func NewMySQL(config Config) *MySQL {
	if config.Port == 0 {
		config.Port = 3306 // Default MySQL port
	}
	if config.Database == "" {
		config.Database = "inlet"
	}

	return &MySQL{
		config: config,
	}
}

// Connect establishes a connection to the MySQL database
func (m *MySQL) Connect() error {
	if m.connected {
		return nil
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		m.config.Username, m.config.Password,
		m.config.Host, m.config.Port, m.config.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping MySQL database: %w", err)
	}

	m.db = db
	m.connected = true
	return nil
}

// Close closes the database connection
func (m *MySQL) Close() error {
	if !m.connected {
		return nil
	}

	if err := m.db.Close(); err != nil {
		return err
	}

	m.connected = false
	return nil
}

// IsConnected returns true if the directory is connected
func (m *MySQL) IsConnected() bool {
	return m.connected
}

// Name returns the name of this directory instance
func (m *MySQL) Name() string {
	if m.config.Name != "" {
		return m.config.Name
	}
	return "mysql"
}

// Type returns the type of the directory
func (m *MySQL) Type() string {
	return "mysql"
}

// FindAddress looks up a canonical address
func (m *MySQL) FindAddress(ctx context.Context, address string) (Address, error) {
	if !m.connected {
		return Address{}, ErrNotConnected
	}

	var addr Address
	row := m.db.QueryRowContext(ctx,
		"SELECT address, account_id FROM addresses WHERE address = ?", address)
	if err := row.Scan(&addr.Address, &addr.AccountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Address{}, ErrNotFound
		}
		return Address{}, fmt.Errorf("address lookup failed: %w", err)
	}

	return addr, nil
}

// FindAccount retrieves an account by id
func (m *MySQL) FindAccount(ctx context.Context, accountID string) (Account, error) {
	if !m.connected {
		return Account{}, ErrNotConnected
	}

	var account Account
	row := m.db.QueryRowContext(ctx,
		"SELECT id, name, quota, storage_used, password_hash, active FROM accounts WHERE id = ?", accountID)
	if err := row.Scan(&account.ID, &account.Name, &account.Quota,
		&account.StorageUsed, &account.PasswordHash, &account.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("account lookup failed: %w", err)
	}

	return account, nil
}

// Authenticate verifies credentials for an address
func (m *MySQL) Authenticate(ctx context.Context, address, password string) (bool, error) {
	addr, err := m.FindAddress(ctx, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	account, err := m.FindAccount(ctx, addr.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
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
