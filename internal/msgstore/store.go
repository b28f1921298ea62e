// Package msgstore is the boundary to the mailbox storage engine. The
// reception front-end hands each accepted message to a Store once per
// recipient; everything beyond that call (indexing, flags, receipt
// timestamps) belongs to the storage engine.
package msgstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FolderInbox is the folder new mail is delivered into.
const FolderInbox = "INBOX"

// Common errors
var (
	ErrNotConnected = errors.New("not connected to message store")
)

// Metadata describes one delivery. Receipt date and message flags are
// deliberately absent: the storage engine assigns its own canonical receipt
// timestamp and default flags.
type Metadata struct {
	// Source labels how the message entered the platform (e.g. "SMTP").
	Source string

	// Sender is the declared envelope sender.
	Sender string

	// Recipient is the envelope recipient this copy is stored for.
	Recipient string

	// RemoteAddr is the network origin of the transaction.
	RemoteAddr string

	// HeloName is the hostname the client declared.
	HeloName string

	// Received is when the front-end finished receiving the payload.
	Received time.Time
}

// Store durably persists one recipient-specific copy of a message. Safe for
// concurrent use and safe to call repeatedly and independently per
// recipient.
type Store interface {
	// Deliver stores raw into the account's folder and returns an opaque
	// reference to the stored message.
	Deliver(ctx context.Context, accountID, folder string, meta Metadata, raw []byte) (string, error)

	// Close releases any resources held by the store
	Close() error
}

// Config represents the configuration for a message store
type Config struct {
	Type string // Type of store (maildir, mock)
	Root string // Filesystem root for maildir stores
}

// Factory creates message stores based on configuration
func Factory(config Config) (Store, error) {
	switch config.Type {
	case "maildir", "":
		return NewMaildir(config.Root), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported message store type: %s", config.Type)
	}
}
