package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"flatstore/pkg/config"
	"flatstore/pkg/health"
	"flatstore/pkg/shared"

	"go.uber.org/zap"
)

const healthService = "flatstore.Coordinator"

// Coordinator accepts node registrations and client commands and routes file
// commands to the owning storage node.
type Coordinator struct {
	address   string
	logger    *zap.Logger
	config    *config.CoordinatorConfig
	registry  *Registry
	placement PlacementPolicy

	dialer    *net.Dialer
	ioTimeout time.Duration

	server *shared.Server
	health *health.Server

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg *config.CoordinatorConfig, logger *zap.Logger) (*Coordinator, error) {
	placement, err := NewPlacementPolicy(cfg.Placement)
	if err != nil {
		return nil, err
	}
	dialTimeout, err := config.ParseTimeout(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial_timeout: %w", err)
	}
	ioTimeout, err := config.ParseTimeout(cfg.IOTimeout)
	if err != nil {
		return nil, fmt.Errorf("io_timeout: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		address:   cfg.Address,
		logger:    logger,
		config:    cfg,
		registry:  NewRegistry(cfg.DedupeNodes),
		placement: placement,
		dialer:    &net.Dialer{Timeout: dialTimeout},
		ioTimeout: ioTimeout,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Registry exposes the coordinator's registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Listen binds the coordinator's listener without serving it.
func (c *Coordinator) Listen() error {
	server, err := shared.Listen(c.ctx, c.address, "coordinator", c.logger)
	if err != nil {
		return err
	}
	c.server = server

	if c.config.HealthAddress != "" {
		hs, err := health.Start(c.config.HealthAddress, healthService, c.logger)
		if err != nil {
			server.Stop()
			return err
		}
		c.health = hs
	}
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (c *Coordinator) Addr() net.Addr {
	if c.server == nil {
		return nil
	}
	return c.server.Addr()
}

// Start listens and serves until Stop is called.
func (c *Coordinator) Start() error {
	if err := c.Listen(); err != nil {
		return err
	}
	return c.Serve()
}

// Serve runs the accept loop on a listener bound by Listen. It returns nil
// after Stop.
func (c *Coordinator) Serve() error {
	if c.server == nil {
		return errors.New("coordinator is not listening")
	}

	c.logger.Info("Coordinator starting",
		zap.String("address", c.server.Addr().String()),
		zap.String("placement", c.placement.Name()),
		zap.Bool("dedupe_nodes", c.config.DedupeNodes))

	return c.server.Serve(func(ctx context.Context, conn net.Conn, logger *zap.Logger) {
		c.handle(ctx, conn, logger)
	})
}

// Stop closes the listener, cancels outbound exchanges and waits for
// in-flight connections to finish.
func (c *Coordinator) Stop() {
	c.cancel()
	if c.server != nil {
		c.server.Stop()
	}
	if c.health != nil {
		c.health.Stop()
	}

	stats := c.registry.Stats()
	c.logger.Info("Coordinator stopped",
		zap.Int("nodes", stats.Nodes),
		zap.Int("files", stats.Files))
}
