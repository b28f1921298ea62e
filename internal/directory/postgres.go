package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// Postgres implements the Directory interface for PostgreSQL databases
type Postgres struct {
	config    Config
	db        *sql.DB
	connected bool
}

// NewPostgres creates a new PostgreSQL directory
func NewPostgres(config Config) *Postgres {
	if config.Port == 0 {
		config.Port = 5432 // Default PostgreSQL port
	}
	if config.Database == "" {
		config.Database = "inlet"
	}

	return &Postgres{
		config: config,
	}
}

// Connect establishes a connection to the PostgreSQL database
func (p *Postgres) Connect() error {
	if p.connected {
		return nil
	}

	sslMode := "disable"
	if p.config.Options != nil {
		if mode, ok := p.config.Options["sslmode"].(string); ok && mode != "" {
			sslMode = mode
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.config.Host, p.config.Port, p.config.Username,
		p.config.Password, p.config.Database, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}

	p.db = db
	p.connected = true
	return nil
}

// Close closes the database connection
func (p *Postgres) Close() error {
	if !p.connected {
		return nil
	}

	if err := p.db.Close(); err != nil {
		return err
	}

	p.connected = false
	return nil
}

// IsConnected returns true if the directory is connected
func (p *Postgres) IsConnected() bool {
	return p.connected
}

// Name returns the name of this directory instance
func (p *Postgres) Name() string {
	if p.config.Name != "" {
		return p.config.Name
	}
	return "postgres"
}

// Type returns the type of the directory
func (p *Postgres) Type() string {
	return "postgres"
}

// FindAddress looks up a canonical address
func (p *Postgres) FindAddress(ctx context.Context, address string) (Address, error) {
	if !p.connected {
		return Address{}, ErrNotConnected
	}

	var addr Address
	row := p.db.QueryRowContext(ctx,
		"SELECT address, account_id FROM addresses WHERE address = $1", address)
	if err := row.Scan(&addr.Address, &addr.AccountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Address{}, ErrNotFound
		}
		return Address{}, fmt.Errorf("address lookup failed: %w", err)
	}

	return addr, nil
}

// FindAccount retrieves an account by id
func (p *Postgres) FindAccount(ctx context.Context, accountID string) (Account, error) {
	if !p.connected {
		return Account{}, ErrNotConnected
	}

	var account Account
	row := p.db.QueryRowContext(ctx,
		"SELECT id, name, quota, storage_used, password_hash, active FROM accounts WHERE id = $1", accountID)
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
func (p *Postgres) Authenticate(ctx context.Context, address, password string) (bool, error) {
	addr, err := p.FindAddress(ctx, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	account, err := p.FindAccount(ctx, addr.AccountID)
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
