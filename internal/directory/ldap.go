package directory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// LDAP implements the Directory interface for LDAP directories using a
// mailRecipient-style schema: one entry per account, with mail and
// mailAlternateAddress holding the routable addresses.
type LDAP struct {
	config    Config
	conn      *ldap.Conn
	connected bool
	baseDN    string
	mu        sync.Mutex
}

// Attribute names, overridable through Options.
const (
	defaultMailAttr        = "mail"
	defaultAliasAttr       = "mailAlternateAddress"
	defaultQuotaAttr       = "mailQuota"
	defaultStorageUsedAttr = "mailStorageUsed"
	defaultNameAttr        = "cn"
)

// NewLDAP creates a new LDAP directory
func NewLDAP(config Config) *LDAP {
	if config.Port == 0 {
		config.Port = 389 // Default LDAP port (use 636 for LDAPS)
	}

	baseDN := "dc=example,dc=com"
	if config.Options != nil {
		if base, ok := config.Options["base_dn"].(string); ok && base != "" {
			baseDN = base
		}
	}

	return &LDAP{
		config: config,
		baseDN: baseDN,
	}
}

func (l *LDAP) attr(option, fallback string) string {
	if l.config.Options != nil {
		if v, ok := l.config.Options[option].(string); ok && v != "" {
			return v
		}
	}
	return fallback
}

// Connect establishes a connection to the LDAP server
func (l *LDAP) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected {
		return nil
	}

	ldapURL := fmt.Sprintf("ldap://%s:%d", l.config.Host, l.config.Port)
	conn, err := ldap.DialURL(ldapURL)
	if err != nil {
		return fmt.Errorf("failed to connect to LDAP server: %w", err)
	}
	conn.SetTimeout(30 * time.Second)

	if l.config.Username != "" {
		if err := conn.Bind(l.config.Username, l.config.Password); err != nil {
			conn.Close()
			return fmt.Errorf("failed to bind to LDAP server: %w", err)
		}
	}

	l.conn = conn
	l.connected = true
	return nil
}

// Close closes the connection to the LDAP server
func (l *LDAP) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return nil
	}

	l.conn.Close()
	l.connected = false
	return nil
}

// IsConnected returns true if the directory is connected
func (l *LDAP) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Name returns the name of this directory instance
func (l *LDAP) Name() string {
	if l.config.Name != "" {
		return l.config.Name
	}
	return "ldap"
}

// Type returns the type of the directory
func (l *LDAP) Type() string {
	return "ldap"
}

// FindAddress looks up a canonical address
func (l *LDAP) FindAddress(ctx context.Context, address string) (Address, error) {
	entry, err := l.searchAddress(address)
	if err != nil {
		return Address{}, err
	}

	return Address{
		Address:   address,
		AccountID: entry.DN,
	}, nil
}

// FindAccount retrieves an account; for LDAP the account id is the entry DN
func (l *LDAP) FindAccount(ctx context.Context, accountID string) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return Account{}, ErrNotConnected
	}

	quotaAttr := l.attr("quota_attr", defaultQuotaAttr)
	usedAttr := l.attr("storage_used_attr", defaultStorageUsedAttr)
	nameAttr := l.attr("name_attr", defaultNameAttr)

	searchRequest := ldap.NewSearchRequest(
		accountID,
		ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false,
		"(objectClass=*)",
		[]string{nameAttr, quotaAttr, usedAttr},
		nil,
	)

	result, err := l.conn.Search(searchRequest)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("account lookup failed: %w", err)
	}
	if len(result.Entries) == 0 {
		return Account{}, ErrNotFound
	}

	entry := result.Entries[0]
	quota, _ := strconv.ParseInt(entry.GetAttributeValue(quotaAttr), 10, 64)
	used, _ := strconv.ParseInt(entry.GetAttributeValue(usedAttr), 10, 64)

	return Account{
		ID:          entry.DN,
		Name:        entry.GetAttributeValue(nameAttr),
		Quota:       quota,
		StorageUsed: used,
		Active:      true,
	}, nil
}

// Authenticate verifies credentials by binding as the address's entry
func (l *LDAP) Authenticate(ctx context.Context, address, password string) (bool, error) {
	entry, err := l.searchAddress(address)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}

	// Bind on a separate connection so the service bind is not disturbed
	ldapURL := fmt.Sprintf("ldap://%s:%d", l.config.Host, l.config.Port)
	conn, err := ldap.DialURL(ldapURL)
	if err != nil {
		return false, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}
	defer conn.Close()

	if err := conn.Bind(entry.DN, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return false, nil
		}
		return false, fmt.Errorf("bind failed: %w", err)
	}

	return true, nil
}

func (l *LDAP) searchAddress(address string) (*ldap.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return nil, ErrNotConnected
	}

	mailAttr := l.attr("mail_attr", defaultMailAttr)
	aliasAttr := l.attr("alias_attr", defaultAliasAttr)
	escaped := ldap.EscapeFilter(strings.TrimSpace(address))

	searchRequest := ldap.NewSearchRequest(
		l.baseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		fmt.Sprintf("(|(%s=%s)(%s=%s))", mailAttr, escaped, aliasAttr, escaped),
		[]string{"dn", mailAttr},
		nil,
	)

	result, err := l.conn.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("address lookup failed: %w", err)
	}
	if len(result.Entries) == 0 {
		return nil, ErrNotFound
	}

	return result.Entries[0], nil
}
