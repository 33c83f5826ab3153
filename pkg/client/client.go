package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"flatstore/pkg/config"
	"flatstore/pkg/protocol"
	"flatstore/pkg/types"

	"go.uber.org/zap"
)

// Result is the coordinator's answer to one command.
type Result struct {
	Kind protocol.Kind
	Text string
}

// OK reports whether the command succeeded.
func (r Result) OK() bool {
	return r.Kind.IsSuccess()
}

// Client sends file commands to a coordinator, one connection per command.
type Client struct {
	coordinatorAddress string
	dialer             protocol.Dialer
	logger             *zap.Logger
}

func New(cfg *config.ClientConfig, logger *zap.Logger) (*Client, error) {
	dialTimeout, err := config.ParseTimeout(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial_timeout: %w", err)
	}
	return &Client{
		coordinatorAddress: cfg.CoordinatorAddress,
		dialer:             &net.Dialer{Timeout: dialTimeout},
		logger:             logger,
	}, nil
}

// Do sends one ClientCommand and waits for the reply. Application failures
// come back as a Result with Kind Error; only transport and encoding
// problems are returned as errors.
func (c *Client) Do(ctx context.Context, verb types.Verb, path, data string) (Result, error) {
	verb = types.CanonicalVerb(string(verb))
	if verb != types.VerbWrite {
		data = ""
	}

	req, err := protocol.NewCommand(protocol.KindClientCommand, protocol.Command{Verb: verb, Path: path, Data: data})
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	resp, err := protocol.Exchange(ctx, c.dialer, c.coordinatorAddress, req, 0)
	if err != nil {
		return Result{}, fmt.Errorf("failed to reach coordinator %s: %w", c.coordinatorAddress, err)
	}

	c.logger.Debug("Command completed",
		zap.String("verb", string(verb)),
		zap.String("path", path),
		zap.Stringer("kind", resp.Kind),
		zap.Duration("elapsed", time.Since(start)))

	return Result{Kind: resp.Kind, Text: resp.Text()}, nil
}

func (c *Client) Read(ctx context.Context, path string) (Result, error) {
	return c.Do(ctx, types.VerbRead, path, "")
}

func (c *Client) Write(ctx context.Context, path, data string) (Result, error) {
	return c.Do(ctx, types.VerbWrite, path, data)
}

func (c *Client) List(ctx context.Context, path string) (Result, error) {
	return c.Do(ctx, types.VerbList, path, "")
}
