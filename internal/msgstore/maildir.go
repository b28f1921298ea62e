package msgstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Maildir stores messages in per-account maildir trees under a common root:
// <root>/<accountID>/<folder>/{tmp,new,cur}. Delivery writes into tmp/ and
// renames into new/, so readers never observe a partial message.
type Maildir struct {
	root     string
	hostname string
}

// NewMaildir creates a maildir store rooted at root
func NewMaildir(root string) *Maildir {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	// Maildir names reserve '/' and ':'
	hostname = strings.NewReplacer("/", "_", ":", "_").Replace(hostname)

	return &Maildir{
		root:     root,
		hostname: hostname,
	}
}

// Deliver stores raw into the account's folder
func (m *Maildir) Deliver(ctx context.Context, accountID, folder string, meta Metadata, raw []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if accountID == "" {
		return "", fmt.Errorf("account id is empty")
	}
	if folder == "" {
		folder = FolderInbox
	}

	dir := filepath.Join(m.root, accountID, folder)
	for _, sub := range []string{"tmp", "new", "cur"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0700); err != nil {
			return "", fmt.Errorf("failed to create maildir %s: %w", dir, err)
		}
	}

	name := fmt.Sprintf("%d.%s.%s", time.Now().UnixNano(), uuid.New().String(), m.hostname)
	tmpPath := filepath.Join(dir, "tmp", name)
	newPath := filepath.Join(dir, "new", name)

	if err := os.WriteFile(tmpPath, raw, 0600); err != nil {
		return "", fmt.Errorf("failed to write message to %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, newPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to commit message to %s: %w", newPath, err)
	}

	return name, nil
}

// Close releases resources; maildir holds none between deliveries
func (m *Maildir) Close() error {
	return nil
}
