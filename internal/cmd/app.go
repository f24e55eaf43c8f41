package cmd

import (
	"context"
	"os"

	"github.com/Iron-Ham/panebus/internal/config"
	"github.com/Iron-Ham/panebus/internal/errors"
	"github.com/Iron-Ham/panebus/internal/event"
	"github.com/Iron-Ham/panebus/internal/logging"
	"github.com/Iron-Ham/panebus/internal/pubsub"
	"github.com/Iron-Ham/panebus/internal/shutdown"
	"github.com/Iron-Ham/panebus/internal/tmux"
)

// app holds the long-lived pieces every publishing command needs.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *event.Bus
	registry *pubsub.Registry
	hooks    *shutdown.Hooks
	source   pubsub.Source
}

// newApp builds the event bus and wires it to the pub/sub registry according
// to cfg. Callers must call close.
func newApp(ctx context.Context, cfg *config.Config, dialer pubsub.Dialer) (*app, error) {
	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create logger")
	}

	source := detectSource(ctx, cfg.Source, os.Getenv, logger)
	if source.SessionID != "" {
		logger = logger.WithSession(source.SessionID)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		bus:    event.NewBus(logger),
		registry: pubsub.NewRegistry(dialer,
			pubsub.WithLinger(cfg.Publish.Linger()),
			pubsub.WithSettleDelay(cfg.Publish.SettleDelay()),
			pubsub.WithLogger(logger)),
		hooks:  shutdown.New(logger),
		source: source,
	}

	if err := a.registry.EnablePublishing(ctx, a.bus, a.hooks, publishOptions(cfg, a.source)); err != nil {
		_ = logger.Close()
		return nil, errors.Wrap(err, "failed to enable publishing")
	}
	return a, nil
}

// publisher returns the publisher events are forwarded to.
func (a *app) publisher() (*pubsub.Publisher, error) {
	return a.registry.Publisher(endpointOptions(a.cfg))
}

// close runs the shutdown hooks, if no signal ran them already, and closes
// the log.
func (a *app) close() {
	a.hooks.Run()
	_ = a.logger.Close()
}

func endpointOptions(cfg *config.Config) pubsub.EndpointOptions {
	return pubsub.EndpointOptions{
		SocketName: cfg.Publish.SocketName,
		SocketPath: cfg.Publish.SocketPath,
	}
}

func publishOptions(cfg *config.Config, src pubsub.Source) pubsub.Options {
	return pubsub.Options{
		ZMQ:      cfg.Publish.ZMQ,
		Endpoint: endpointOptions(cfg),
		Source:   src,
		Include:  cfg.Publish.Include,
	}
}

// detectSource fills session fields missing from sc with those of the tmux
// client the process runs in. Outside tmux the configured values are used
// as they are.
func detectSource(ctx context.Context, sc config.SourceConfig, getenv func(string) string, logger *logging.Logger) pubsub.Source {
	src := pubsub.Source{
		Script:      sc.Script,
		SessionID:   sc.SessionID,
		SessionName: sc.SessionName,
	}

	client, err := tmux.Current(ctx, getenv)
	if err != nil {
		if !errors.Is(err, tmux.ErrNotInTmux) {
			logger.Debug("tmux session detection failed", "error", err)
		}
		// Current may still have found the socket.
		src.SocketPath = client.SocketPath
		return pubsub.NewSource(src)
	}

	src.SocketPath = client.SocketPath
	if src.SessionID == "" {
		src.SessionID = client.SessionID
	}
	if src.SessionName == "" {
		src.SessionName = client.SessionName
	}
	return pubsub.NewSource(src)
}
