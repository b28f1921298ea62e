package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// SQLite implements the Directory interface for SQLite databases. Suited to
// single-node deployments where the account database lives beside the server.
type SQLite struct {
	config    Config
	db        *sql.DB
	dbPath    string
	connected bool
}

// NewSQLite creates a new SQLite directory
func NewSQLite(config Config) *SQLite {
	if config.Database == "" {
		config.Database = "inlet.db"
	}

	dbPath := config.Database
	if config.Options != nil {
		if path, ok := config.Options["db_path"].(string); ok && path != "" {
			dbPath = path
		} else if dir, ok := config.Options["db_dir"].(string); ok && dir != "" && !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(dir, config.Database)
		}
	}

	return &SQLite{
		config: config,
		dbPath: dbPath,
	}
}

// Connect opens the SQLite database and ensures the schema exists
func (s *SQLite) Connect() error {
	if s.connected {
		return nil
	}

	dir := filepath.Dir(s.dbPath)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory for SQLite database: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite supports only one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize SQLite schema: %w", err)
	}

	s.db = db
	s.connected = true
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL DEFAULT '',
			quota         INTEGER NOT NULL DEFAULT 0,
			storage_used  INTEGER NOT NULL DEFAULT 0,
			password_hash TEXT NOT NULL DEFAULT '',
			active        INTEGER NOT NULL DEFAULT 1
		);
		CREATE TABLE IF NOT EXISTS addresses (
			address    TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id)
		);
	`)
	return err
}

// Close closes the database connection
func (s *SQLite) Close() error {
	if !s.connected {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return err
	}

	s.connected = false
	return nil
}

// IsConnected returns true if the directory is connected
func (s *SQLite) IsConnected() bool {
	return s.connected
}

// Name returns the name of this directory instance
func (s *SQLite) Name() string {
	if s.config.Name != "" {
		return s.config.Name
	}
	return "sqlite"
}

// Type returns the type of the directory
func (s *SQLite) Type() string {
	return "sqlite"
}

// FindAddress looks up a canonical address
func (s *SQLite) FindAddress(ctx context.Context, address string) (Address, error) {
	if !s.connected {
		return Address{}, ErrNotConnected
	}

	var addr Address
	row := s.db.QueryRowContext(ctx,
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
func (s *SQLite) FindAccount(ctx context.Context, accountID string) (Account, error) {
	if !s.connected {
		return Account{}, ErrNotConnected
	}

	var account Account
	row := s.db.QueryRowContext(ctx,
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
func (s *SQLite) Authenticate(ctx context.Context, address, password string) (bool, error) {
	addr, err := s.FindAddress(ctx, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	account, err := s.FindAccount(ctx, addr.AccountID)
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
