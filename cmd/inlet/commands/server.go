package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/inletmail/inlet/internal/api"
	"github.com/inletmail/inlet/internal/cache"
	"github.com/inletmail/inlet/internal/directory"
	"github.com/inletmail/inlet/internal/msgstore"
	"github.com/inletmail/inlet/internal/smtp"
)

var (
	listenFlag   string
	hostnameFlag string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the mail reception server",
	Long:  `Start the SMTP listener and, if enabled, the operational API server.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&listenFlag, "listen", "", "Override the SMTP listen address")
	serverCmd.Flags().StringVar(&hostnameFlag, "hostname", "", "Override the server hostname")
}

func runServer(cmd *cobra.Command, args []string) error {
	if listenFlag != "" {
		cfg.Server.Listen = listenFlag
	}
	if hostnameFlag != "" {
		cfg.Server.Hostname = hostnameFlag
	}

	logger := newLogger()
	logger.Info("starting inlet", "version", Version, "hostname", cfg.Server.Hostname)

	dir, err := buildDirectory(logger)
	if err != nil {
		return err
	}
	defer dir.Close()

	store, err := msgstore.Factory(cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to create message store: %w", err)
	}
	defer store.Close()

	smtpConfig := &smtp.Config{
		Hostname:       cfg.Server.Hostname,
		ListenAddr:     cfg.Server.Listen,
		Enabled:        cfg.Server.Enabled,
		MaxMessageSize: cfg.Server.MaxMessageSize,
		DefaultQuota:   cfg.Server.DefaultQuota,
		MaxConnections: cfg.Server.MaxConnections,
	}
	backend := smtp.NewBackend(smtpConfig, dir, store, logger)
	smtpServer := smtp.NewServer(smtpConfig, backend, logger)

	apiServer := api.NewServer(
		&api.Config{Enabled: cfg.API.Enabled, ListenAddr: cfg.API.Listen},
		api.StatusSource{
			Hostname:  cfg.Server.Hostname,
			Version:   Version,
			Directory: cfg.Directory.Type,
			Storage:   cfg.Storage.Type,
		},
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return smtpServer.Start(ctx) })
	g.Go(func() error { return apiServer.Start(ctx) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// buildDirectory assembles the directory stack: concrete backend, optional
// read-through cache, and the circuit breaker outermost so a dead backend
// fails fast instead of stalling every recipient declaration.
func buildDirectory(logger *slog.Logger) (directory.Directory, error) {
	dir, err := directory.Factory(cfg.DirectoryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := dir.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to directory: %w", err)
	}

	var wrapped directory.Directory = dir
	if cfg.Directory.Cache.Enabled {
		dirCache, err := cache.Factory(cfg.CacheConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create directory cache: %w", err)
		}
		if err := dirCache.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to directory cache: %w", err)
		}
		wrapped = directory.NewCached(wrapped, dirCache, cfg.CacheTTL(), logger)
	}

	return directory.NewResilient(wrapped, logger), nil
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
