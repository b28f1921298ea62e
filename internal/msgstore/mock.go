package msgstore

import (
	"context"
	"fmt"
	"sync"
)

// Delivery records one Deliver call made against a Mock store.
type Delivery struct {
	AccountID string
	Folder    string
	Meta      Metadata
	Raw       []byte
}

// Mock implements the Store interface in memory, recording every delivery.
// Individual recipients can be scripted to fail.
type Mock struct {
	mu         sync.Mutex
	deliveries []Delivery
	attempts   int
	failFor    map[string]error // recipient address -> error
}

// NewMock creates a new recording mock store
func NewMock() *Mock {
	return &Mock{
		failFor: make(map[string]error),
	}
}

// Deliver records the call, or fails if the recipient is scripted to
func (m *Mock) Deliver(ctx context.Context, accountID, folder string, meta Metadata, raw []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	if err, ok := m.failFor[meta.Recipient]; ok {
		return "", err
	}

	stored := Delivery{
		AccountID: accountID,
		Folder:    folder,
		Meta:      meta,
		Raw:       append([]byte(nil), raw...),
	}
	m.deliveries = append(m.deliveries, stored)

	return fmt.Sprintf("mock-%d", len(m.deliveries)), nil
}

// Close is a no-op
func (m *Mock) Close() error {
	return nil
}

// Deliveries returns a copy of all recorded deliveries in order
func (m *Mock) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.deliveries...)
}

// Attempts returns the total number of Deliver calls, failed ones included
func (m *Mock) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// FailRecipient scripts Deliver to fail whenever meta.Recipient == recipient
func (m *Mock) FailRecipient(recipient string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[recipient] = err
}
