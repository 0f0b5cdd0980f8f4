// Package client unifies the channel and remote transports behind one
// send/listen/probe contract.
//
// Callers address a destination role, never a transport: the client
// holds one private strategy instance per transport and selects it at
// call time. Derived operations (SendCommand, SendAnalysis) are thin
// wire-contract bindings that fix the message type and the backend
// route but reuse the generic send path.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/planline/planlink/ipc"
	"github.com/planline/planlink/log"
	"github.com/planline/planlink/remote"
	"github.com/planline/planlink/types"
)

// Role identifies a message destination.
type Role int

const (
	// RoleHostPlugin is the co-located CAD-host plugin process,
	// reached over the framed channel.
	RoleHostPlugin Role = iota
	// RoleBackend is the remote backend, reached over HTTP.
	RoleBackend
)

// String returns the role's stable name as used in logs.
func (r Role) String() string {
	switch r {
	case RoleHostPlugin:
		return "host-plugin"
	case RoleBackend:
		return "backend"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// backendRoutes maps message types to backend endpoint paths.
var backendRoutes = map[string]string{
	types.MessageTypeCommand:  remote.CommandPath,
	types.MessageTypeAnalysis: remote.AnalysisPath,
}

// Client routes request/response traffic to the host plugin or the
// backend. Both strategy instances are private; no caller branches on
// transport or payload shape.
type Client struct {
	channel *ipc.ChannelTransport
	remote  *remote.Transport
	logger  *log.Logger
}

// New creates a dual-transport client over the given strategies.
func New(channel *ipc.ChannelTransport, backend *remote.Transport, logger *log.Logger) (*Client, error) {
	if channel == nil {
		return nil, fmt.Errorf("client requires a channel transport")
	}
	if backend == nil {
		return nil, fmt.Errorf("client requires a remote transport")
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{channel: channel, remote: backend, logger: logger}, nil
}

// Send routes one request envelope to the destination role and returns
// the response. Failures are captured into a failure Response; errors
// never escape this boundary.
func (c *Client) Send(ctx context.Context, dest Role, msg *types.Message) *types.Response {
	switch dest {
	case RoleHostPlugin:
		return c.channel.Send(ctx, msg)
	case RoleBackend:
		route, ok := backendRoutes[msg.MessageType]
		if !ok {
			return types.Fail(msg.MessageType, msg.CorrelationID,
				fmt.Sprintf("no backend route for message type %q", msg.MessageType))
		}
		return c.remote.Exchange(ctx, route, msg)
	default:
		return types.Fail(msg.MessageType, msg.CorrelationID,
			fmt.Sprintf("unknown destination role %d", int(dest)))
	}
}

// Listen accepts one inbound exchange from the host plugin on the
// given listener and verifies the message type. Remote traffic is
// request/response only and has no listen path.
func (c *Client) Listen(ctx context.Context, ln net.Listener, expectedType string) *types.Response {
	return c.channel.Listen(ctx, ln, expectedType)
}

// ProbeLocalPeer reports whether the host plugin channel is accepting
// connections. Never returns an error and completes within the channel
// connect timeout.
func (c *Client) ProbeLocalPeer(ctx context.Context) bool {
	return c.channel.Probe(ctx)
}

// ProbeRemote reports whether the backend health endpoint answers 2xx.
// Never returns an error and completes within the probe timeout.
func (c *Client) ProbeRemote(ctx context.Context) bool {
	return c.remote.Healthy(ctx)
}

// SendCommand sends an AI command to the destination role. Fixes the
// message type; everything else is the generic send path.
func (c *Client) SendCommand(ctx context.Context, dest Role, correlationID string, payload json.RawMessage) *types.Response {
	msg := types.NewMessage(types.MessageTypeCommand, correlationID, payload)
	return c.Send(ctx, dest, msg)
}

// SendAnalysis sends a project analysis request to the backend. Fixes
// the message type and the route; everything else is the generic send
// path.
func (c *Client) SendAnalysis(ctx context.Context, correlationID string, payload json.RawMessage) *types.Response {
	msg := types.NewMessage(types.MessageTypeAnalysis, correlationID, payload)
	return c.Send(ctx, RoleBackend, msg)
}
