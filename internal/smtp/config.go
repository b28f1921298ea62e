package smtp

// Config holds the settings the reception front-end needs
type Config struct {
	// Hostname is this server's name, used in the greeting and in
	// synthesized Received headers.
	Hostname string

	// ListenAddr is the host:port to accept connections on
	ListenAddr string

	// Enabled starts the listener when true; when false the server is a
	// no-op that still reports readiness.
	Enabled bool

	// MaxMessageSize is the global inbound message-size cap in bytes
	MaxMessageSize int64

	// DefaultQuota is the per-account storage ceiling in bytes for accounts
	// without an explicit quota, and the initial per-transaction bound
	// before any recipient is resolved.
	DefaultQuota int64

	// MaxConnections bounds concurrently served connections
	MaxConnections int64
}

// DefaultConfig returns a config suitable for local development
func DefaultConfig() *Config {
	return &Config{
		Hostname:       "localhost",
		ListenAddr:     ":2525",
		Enabled:        true,
		MaxMessageSize: 25 * 1024 * 1024,
		DefaultQuota:   1024 * 1024 * 1024,
		MaxConnections: 100,
	}
}
