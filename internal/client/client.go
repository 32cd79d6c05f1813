// Package client wires configuration, transport, storage, and the
// update orchestrator into one high-level API.
package client

import (
	"context"
	"fmt"
	"os"

	"github.com/seiken-dev/jiten/internal/config"
	"github.com/seiken-dev/jiten/internal/events"
	"github.com/seiken-dev/jiten/internal/server"
	"github.com/seiken-dev/jiten/internal/services/update"
	"github.com/seiken-dev/jiten/internal/store"
	"github.com/seiken-dev/jiten/internal/transport"
)

// Client provides the high-level API for jiten operations.
type Client struct {
	Updates *update.Manager
	Server  *server.Server

	config *config.Config
	logger *events.Logger
	remote transport.Client
}

// New creates a client from configuration. The store itself is opened
// lazily by the manager's run loop, with bounded retries.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	remote := transport.NewHTTPClient(&cfg.Remote, logger)

	retry := store.RetryConfig{
		MaxRetries:   cfg.Update.MaxRetries,
		InitialDelay: cfg.Update.RetryDelay,
		MaxDelay:     cfg.Update.MaxDelay,
	}

	opener := func(ctx context.Context) (store.Store, error) {
		return update.OpenWithRetry(ctx, func(context.Context) (store.Store, error) {
			return openStore(cfg, remote, retry, logger)
		}, logger)
	}

	manager := update.NewManager(opener, logger)

	return &Client{
		Updates: manager,
		Server:  server.New(manager, logger),
		config:  cfg,
		logger:  logger,
		remote:  remote,
	}, nil
}

// DefaultLang returns the configured update language.
func (c *Client) DefaultLang() string {
	return c.config.Update.DefaultLang
}

func openStore(cfg *config.Config, remote transport.Client, retry store.RetryConfig, logger *events.Logger) (store.Store, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	var (
		backend store.Backend
		err     error
	)
	switch cfg.Storage.Backend {
	case "bolt":
		backend, err = store.NewBoltBackend(cfg.Storage.Path(), logger)
	default:
		backend, err = store.NewSQLiteBackend(cfg.Storage.Path(), logger)
	}
	if err != nil {
		return nil, err
	}

	return store.New(backend, remote, retry, logger)
}
