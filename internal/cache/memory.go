package cache

import (
	"context"
	"sync"
	"time"
)

// Memory implements the Cache interface with an in-process map. Intended for
// single-node deployments and tests.
type Memory struct {
	config    Config
	connected bool
	mu        sync.RWMutex
	items     map[string]memoryItem
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time // zero means no expiration
}

// NewMemory creates a new in-memory cache
func NewMemory(config Config) *Memory {
	return &Memory{
		config: config,
		items:  make(map[string]memoryItem),
	}
}

// Connect marks the cache ready; there is no external service to reach.
func (m *Memory) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

// Close discards all cached items
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.items = make(map[string]memoryItem)
	return nil
}

// IsConnected returns true if the cache is connected
func (m *Memory) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Name returns the name of the cache instance
func (m *Memory) Name() string {
	if m.config.Name != "" {
		return m.config.Name
	}
	return "memory"
}

// Type returns the type of the cache
func (m *Memory) Type() string {
	return "memory"
}

// Get retrieves a value from the cache
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return nil, ErrNotConnected
	}

	item, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		return nil, ErrNotFound
	}

	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, nil
}

// Set stores a value in the cache with an optional expiration
func (m *Memory) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}

	item := memoryItem{value: make([]byte, len(value))}
	copy(item.value, value)
	if expiration > 0 {
		item.expiresAt = time.Now().Add(expiration)
	}

	m.items[key] = item
	return nil
}

// Delete removes a value from the cache
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}

	if _, ok := m.items[key]; !ok {
		return ErrNotFound
	}
	delete(m.items, key)
	return nil
}

// Exists checks if a key exists in the cache
func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.Get(ctx, key)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
