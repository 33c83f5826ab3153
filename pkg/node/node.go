package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"flatstore/pkg/config"
	"flatstore/pkg/health"
	"flatstore/pkg/protocol"
	"flatstore/pkg/shared"
	"flatstore/pkg/types"

	"go.uber.org/zap"
)

const healthService = "flatstore.Node"

// Node is a storage node: it holds files under a root directory and executes
// the READ, WRITE and LIST commands the coordinator routes to it.
type Node struct {
	self    types.NodeAddress
	address string
	rootDir string
	logger  *zap.Logger
	config  *config.NodeConfig

	// Coordinator connection
	coordinatorAddress string
	dialer             *net.Dialer
	ioTimeout          time.Duration

	locks *pathLocks

	server *shared.Server
	health *health.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a node. The advertised address is the configured advertise
// host with the port of the listen address, which must be explicit.
func New(cfg *config.NodeConfig, logger *zap.Logger) (*Node, error) {
	_, portStr, err := net.SplitHostPort(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", cfg.Address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("listen address %q needs an explicit port", cfg.Address)
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

	return &Node{
		self:               types.NodeAddress{Host: cfg.AdvertiseHost, Port: port},
		address:            cfg.Address,
		rootDir:            cfg.RootDir,
		logger:             logger,
		config:             cfg,
		coordinatorAddress: cfg.CoordinatorAddress,
		dialer:             &net.Dialer{Timeout: dialTimeout},
		ioTimeout:          ioTimeout,
		locks:              newPathLocks(),
		ctx:                ctx,
		cancel:             cancel,
	}, nil
}

// Self returns the address this node registers under.
func (n *Node) Self() types.NodeAddress {
	return n.self
}

// Start registers with the coordinator, pushes the file inventory, then
// listens and serves until Stop. A failed registration aborts startup.
func (n *Node) Start() error {
	if err := n.Bootstrap(n.ctx); err != nil {
		return err
	}
	if err := n.Listen(); err != nil {
		return err
	}
	return n.Serve()
}

// Bootstrap creates the root directory, registers with the coordinator and
// pushes the node's inventory on the same connection.
func (n *Node) Bootstrap(ctx context.Context) error {
	if err := os.MkdirAll(n.rootDir, 0755); err != nil {
		return fmt.Errorf("failed to create root directory: %w", err)
	}

	reg, err := protocol.NewRegisterNode(n.self)
	if err != nil {
		return fmt.Errorf("failed to encode registration: %w", err)
	}

	conn, err := n.dialer.DialContext(ctx, "tcp", n.coordinatorAddress)
	if err != nil {
		return fmt.Errorf("failed to connect to coordinator: %w", err)
	}
	defer conn.Close()

	if n.ioTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(n.ioTimeout))
	}

	if err := protocol.WriteEnvelope(conn, reg); err != nil {
		return fmt.Errorf("failed to send registration: %w", err)
	}
	if _, err := protocol.Expect(conn, protocol.KindRegisterAck); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	n.logger.Info("Successfully registered with coordinator",
		zap.Stringer("node", n.self),
		zap.String("coordinator", n.coordinatorAddress))

	paths, err := n.Inventory()
	if err != nil {
		return fmt.Errorf("failed to list root directory: %w", err)
	}
	fitted := protocol.FitFileList(paths)
	if len(fitted) < len(paths) {
		n.logger.Warn("File list truncated to fit one envelope",
			zap.Int("files", len(paths)),
			zap.Int("sent", len(fitted)))
	}
	push, err := protocol.NewFileListPush(fitted)
	if err != nil {
		return fmt.Errorf("failed to encode file list: %w", err)
	}
	if err := protocol.WriteEnvelope(conn, push); err != nil {
		return fmt.Errorf("failed to send file list: %w", err)
	}

	n.logger.Info("Pushed file list to coordinator", zap.Int("files", len(fitted)))
	return nil
}

// Inventory lists the regular files directly under the root as "/name".
func (n *Node) Inventory() ([]string, error) {
	entries, err := os.ReadDir(n.rootDir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		// Stat follows symlinks, so a link to a regular file counts.
		info, err := os.Stat(n.resolve(e.Name()))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		paths = append(paths, "/"+e.Name())
	}
	return paths, nil
}

// Listen binds the node's listener.
func (n *Node) Listen() error {
	server, err := shared.Listen(n.ctx, n.address, "node", n.logger)
	if err != nil {
		return err
	}
	n.server = server

	if n.config.HealthAddress != "" {
		hs, err := health.Start(n.config.HealthAddress, healthService, n.logger)
		if err != nil {
			server.Stop()
			return err
		}
		n.health = hs
	}
	return nil
}

func (n *Node) Addr() net.Addr {
	if n.server == nil {
		return nil
	}
	return n.server.Addr()
}

// Serve answers one NodeCommand per connection until Stop.
func (n *Node) Serve() error {
	if n.server == nil {
		return errors.New("node is not listening")
	}

	n.logger.Info("Node starting",
		zap.Stringer("node", n.self),
		zap.String("root", n.rootDir))

	return n.server.Serve(n.serveConn)
}

func (n *Node) Stop() {
	n.cancel()
	if n.server != nil {
		n.server.Stop()
	}
	if n.health != nil {
		n.health.Stop()
	}
	n.logger.Info("Node stopped", zap.Stringer("node", n.self))
}

func (n *Node) serveConn(ctx context.Context, conn net.Conn, logger *zap.Logger) {
	if n.ioTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(n.ioTimeout))
	}

	env, err := protocol.ReadEnvelope(conn)
	if err != nil {
		logger.Debug("Connection closed before request", zap.Error(err))
		return
	}
	if env.Kind != protocol.KindNodeCommand {
		logger.Warn("Unexpected message kind", zap.Stringer("kind", env.Kind))
		return
	}
	cmd, err := env.Command()
	if err != nil {
		logger.Warn("Malformed node command", zap.Error(err))
		return
	}

	resp := n.Handle(cmd, logger)
	if err := protocol.WriteEnvelope(conn, resp); err != nil {
		logger.Warn("Failed to send response", zap.Error(err))
	}
}
