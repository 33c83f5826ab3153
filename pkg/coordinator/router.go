package coordinator

import (
	"context"
	"errors"
	"io"
	"strings"

	"flatstore/pkg/protocol"
	"flatstore/pkg/types"

	"go.uber.org/zap"
)

// handle reads one request envelope from rw and answers it.
func (c *Coordinator) handle(ctx context.Context, rw io.ReadWriter, logger *zap.Logger) {
	env, err := protocol.ReadEnvelope(rw)
	if err != nil {
		logger.Debug("Connection closed before request", zap.Error(err))
		return
	}

	switch env.Kind {
	case protocol.KindRegisterNode:
		c.handleRegister(rw, env, logger)
	case protocol.KindClientCommand:
		cmd, err := env.Command()
		if err != nil {
			logger.Warn("Malformed client command", zap.Error(err))
			return
		}
		resp := c.Route(ctx, cmd, logger)
		if err := protocol.WriteEnvelope(rw, resp); err != nil {
			logger.Warn("Failed to send response to client", zap.Error(err))
		}
	default:
		logger.Warn("Unexpected message kind, closing connection",
			zap.Stringer("kind", env.Kind))
	}
}

func (c *Coordinator) handleRegister(rw io.ReadWriter, env protocol.Envelope, logger *zap.Logger) {
	addr, err := env.NodeIdentity()
	if err != nil {
		logger.Warn("Malformed node registration", zap.Error(err))
		return
	}

	added := c.registry.RegisterNode(addr)
	logger.Info("Registered storage node",
		zap.Stringer("node", addr),
		zap.Bool("new_entry", added))

	if err := protocol.WriteEnvelope(rw, protocol.NewAck()); err != nil {
		logger.Warn("Failed to send registration ack", zap.Stringer("node", addr), zap.Error(err))
		return
	}

	push, err := protocol.Expect(rw, protocol.KindFileListPush)
	if err != nil {
		// a node may register without pushing an inventory
		logger.Info("No file list from storage node", zap.Stringer("node", addr), zap.Error(err))
		return
	}
	list, err := push.FileList()
	if err != nil {
		logger.Warn("Malformed file list", zap.Stringer("node", addr), zap.Error(err))
		return
	}
	imported := c.registry.ImportFileList(addr, list.Paths)
	logger.Info("Imported file list from storage node",
		zap.Stringer("node", addr),
		zap.Int("files", imported))
}

// Route resolves one client command into the envelope sent back to the
// client. It never returns a transport error; failures become Error
// envelopes.
func (c *Coordinator) Route(ctx context.Context, cmd protocol.Command, logger *zap.Logger) protocol.Envelope {
	cmd.Verb = types.CanonicalVerb(string(cmd.Verb))
	logger = logger.With(zap.String("verb", string(cmd.Verb)), zap.String("path", cmd.Path))
	logger.Debug("Client command")

	switch cmd.Verb {
	case types.VerbList:
		return c.aggregateList(ctx, cmd.Path, logger)
	case types.VerbRead:
		return c.routeRead(ctx, cmd, logger)
	case types.VerbWrite:
		return c.routeWrite(ctx, cmd, logger)
	}
	return protocol.NewError(protocol.MsgUnknownCommand)
}

func (c *Coordinator) routeRead(ctx context.Context, cmd protocol.Command, logger *zap.Logger) protocol.Envelope {
	owner, ok := c.registry.Locate(cmd.Path)
	if !ok {
		return protocol.NewError(protocol.MsgFileNotFound)
	}

	resp, err := c.forward(ctx, owner, cmd)
	if err != nil {
		logger.Warn("Read forwarding failed", zap.Stringer("node", owner), zap.Error(err))
		return failureEnvelope(err)
	}
	return resp
}

func (c *Coordinator) routeWrite(ctx context.Context, cmd protocol.Command, logger *zap.Logger) protocol.Envelope {
	owner, ok := c.registry.Locate(cmd.Path)
	if !ok {
		var err error
		owner, err = c.placement.Place(cmd.Path, Candidates(c.registry), c.registry)
		if err != nil {
			return protocol.NewError(protocol.MsgNoStorageServers)
		}
		c.registry.Upsert(cmd.Path, owner)
		logger.Info("Placed new file", zap.Stringer("node", owner), zap.String("policy", c.placement.Name()))
	}

	resp, err := c.forward(ctx, owner, cmd)
	if err != nil {
		logger.Warn("Write forwarding failed", zap.Stringer("node", owner), zap.Error(err))
		return failureEnvelope(err)
	}
	if resp.Kind == protocol.KindNodeResponse {
		c.registry.Upsert(cmd.Path, owner)
	}
	return resp
}

// aggregateList asks every known node, one at a time, to list path and
// concatenates the successful listings. Unreachable nodes and error replies
// contribute nothing.
func (c *Coordinator) aggregateList(ctx context.Context, path string, logger *zap.Logger) protocol.Envelope {
	if path == "" {
		path = "/"
	}
	cmd := protocol.Command{Verb: types.VerbList, Path: path}

	var sb strings.Builder
	answered := 0
	for _, node := range c.registry.Nodes() {
		resp, err := c.forward(ctx, node, cmd)
		if err != nil {
			logger.Warn("Skipping storage node in listing", zap.Stringer("node", node), zap.Error(err))
			continue
		}
		if resp.Kind != protocol.KindNodeResponse {
			logger.Debug("Storage node returned no listing",
				zap.Stringer("node", node),
				zap.Stringer("kind", resp.Kind),
				zap.String("message", resp.Text()))
			continue
		}
		sb.WriteString(resp.Text())
		answered++
	}

	env, truncated := protocol.TruncatedText(protocol.KindCoordinatorResponse, sb.String())
	if truncated {
		logger.Warn("Aggregated listing truncated", zap.Int("size", sb.Len()))
	}
	logger.Debug("Aggregated listing", zap.Int("nodes_answered", answered))
	return env
}

// errEncode marks commands that could not be re-encoded for a node.
var errEncode = errors.New("command does not fit node envelope")

// forward sends cmd to node as a NodeCommand and returns the raw reply.
func (c *Coordinator) forward(ctx context.Context, node types.NodeAddress, cmd protocol.Command) (protocol.Envelope, error) {
	req, err := protocol.NewCommand(protocol.KindNodeCommand, cmd)
	if err != nil {
		return protocol.Envelope{}, errors.Join(errEncode, err)
	}

	resp, err := protocol.Exchange(ctx, c.dialer, node.String(), req, c.ioTimeout)
	if err != nil {
		c.registry.MarkUnreachable(node)
		return protocol.Envelope{}, err
	}
	c.registry.MarkReachable(node)
	return resp, nil
}

func failureEnvelope(err error) protocol.Envelope {
	switch {
	case errors.Is(err, errEncode):
		return protocol.NewError(protocol.MsgRequestTooLarge)
	case errors.Is(err, protocol.ErrReceive):
		return protocol.NewError(protocol.MsgReceiveFailed)
	}
	return protocol.NewError(protocol.MsgStorageServerUnavailable)
}
