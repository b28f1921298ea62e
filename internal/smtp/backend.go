package smtp

import (
	"log/slog"

	"github.com/inletmail/inlet/internal/directory"
	"github.com/inletmail/inlet/internal/msgstore"
)

// Backend is the envelope-validation and delivery pipeline behind the
// protocol engine. One Backend serves all sessions; the directory and store
// collaborators are shared, connection-pooled services and the pipeline
// performs no locking or retries of its own.
type Backend struct {
	config    *Config
	directory directory.Directory
	store     msgstore.Store
	logger    *slog.Logger
	metrics   *Metrics
}

// NewBackend creates the pipeline with its collaborators
func NewBackend(config *Config, dir directory.Directory, store msgstore.Store, logger *slog.Logger) *Backend {
	return &Backend{
		config:    config,
		directory: dir,
		store:     store,
		logger:    logger.With("component", "smtp-backend"),
		metrics:   GetMetrics(),
	}
}

// SenderDeclared is the sender-declaration callback. The sender address is
// accepted unconditionally at this layer; its job is establishing a fresh
// transaction scope with the configured storage ceiling.
func (b *Backend) SenderDeclared(sess *Session, sender string, declaredSize int64) {
	sess.BeginTransaction(sender, declaredSize, b.config.DefaultQuota)

	b.logger.Debug("transaction started",
		"session_id", sess.ID,
		"sender", sender,
		"declared_size", declaredSize,
	)
}
