package ipc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/planline/planlink/iox"
	"github.com/planline/planlink/log"
	"github.com/planline/planlink/types"
)

// DefaultConnectTimeout bounds the dial to the named channel.
const DefaultConnectTimeout = 5 * time.Second

// DefaultExchangeTimeout bounds a full send/receive exchange once the
// connection is established.
const DefaultExchangeTimeout = 30 * time.Second

// Config configures the channel transport.
type Config struct {
	// Network is the stream network of the channel ("unix" or "tcp").
	Network string
	// Address is the channel address (socket path or host:port).
	Address string
	// ConnectTimeout bounds the dial (default 5s).
	ConnectTimeout time.Duration
	// ExchangeTimeout bounds one full exchange after connecting (default 30s).
	ExchangeTimeout time.Duration
}

// ChannelTransport performs one-shot framed exchanges over a local
// byte-stream channel. There is no persistent session: Send dials,
// exchanges one message, and disconnects.
type ChannelTransport struct {
	config Config
	logger *log.Logger
}

// NewChannelTransport creates a channel transport from the given config.
// Returns an error if the address is empty.
func NewChannelTransport(cfg Config, logger *log.Logger) (*ChannelTransport, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("channel transport requires an address")
	}
	if cfg.Network == "" {
		cfg.Network = "unix"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = DefaultExchangeTimeout
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &ChannelTransport{config: cfg, logger: logger}, nil
}

// Send dials the channel, writes one framed request, and reads one
// framed response. All failures (dial timeout, connection refused,
// malformed frame) are captured into a failure Response; errors never
// escape this boundary.
func (t *ChannelTransport) Send(ctx context.Context, msg *types.Message) *types.Response {
	logger := t.logger.WithCorrelation(msg.CorrelationID)

	frame, err := EncodeMessage(msg)
	if err != nil {
		return types.Fail(msg.MessageType, msg.CorrelationID, err.Error())
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.config.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, t.config.Network, t.config.Address)
	if err != nil {
		logger.Warn("channel dial failed", map[string]any{
			"network": t.config.Network,
			"address": t.config.Address,
			"error":   err.Error(),
		})
		wrapped := types.WrapError(types.KindTransportUnavailable, "channel peer unreachable", err)
		return types.Fail(msg.MessageType, msg.CorrelationID, wrapped.Error())
	}
	defer iox.DiscardClose(conn)

	if err := t.writeFrame(ctx, conn, frame); err != nil {
		return types.Fail(msg.MessageType, msg.CorrelationID, err.Error())
	}

	resp, err := t.readResponse(ctx, conn, msg.MessageType)
	if err != nil {
		return types.Fail(msg.MessageType, msg.CorrelationID, err.Error())
	}

	logger.Debug("channel exchange complete", map[string]any{
		"messageType": msg.MessageType,
		"success":     resp.Success,
	})
	return resp
}

// writeFrame writes the request frame under the exchange deadline.
func (t *ChannelTransport) writeFrame(ctx context.Context, conn net.Conn, frame []byte) error {
	if err := t.applyDeadline(ctx, conn); err != nil {
		return err
	}
	if _, err := conn.Write(frame); err != nil {
		return types.WrapError(types.KindTransportUnavailable, "channel write failed", err)
	}
	return nil
}

// readResponse reads and decodes one response frame, verifying the
// message type against the request.
func (t *ChannelTransport) readResponse(ctx context.Context, conn net.Conn, expectedType string) (*types.Response, error) {
	if err := t.applyDeadline(ctx, conn); err != nil {
		return nil, err
	}

	payload, err := NewFrameDecoder(conn).ReadFrame()
	if err != nil {
		return nil, types.WrapError(types.KindTransportUnavailable, "channel read failed", err)
	}
	resp, err := DecodeResponse(payload)
	if err != nil {
		return nil, types.WrapError(types.KindProtocolMismatch, "malformed response frame", err)
	}
	if resp.MessageType != expectedType {
		return nil, types.NewError(types.KindProtocolMismatch,
			fmt.Sprintf("unexpected message type %q, want %q", resp.MessageType, expectedType))
	}
	return resp, nil
}

// Listen accepts exactly one connection on the channel, reads one
// framed response envelope, and verifies its message type. Like Send,
// failures are captured into a failure Response.
//
// The caller owns the listener lifecycle; passing it in lets tests and
// the desktop process bind the channel before the peer dials.
func (t *ChannelTransport) Listen(ctx context.Context, ln net.Listener, expectedType string) *types.Response {
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		conn, err := ln.Accept()
		accepted <- acceptResult{conn: conn, err: err}
	}()

	var conn net.Conn
	select {
	case <-ctx.Done():
		return types.Fail(expectedType, "", ctx.Err().Error())
	case res := <-accepted:
		if res.err != nil {
			wrapped := types.WrapError(types.KindTransportUnavailable, "channel accept failed", res.err)
			return types.Fail(expectedType, "", wrapped.Error())
		}
		conn = res.conn
	}
	defer iox.DiscardClose(conn)

	resp, err := t.readResponse(ctx, conn, expectedType)
	if err != nil {
		return types.Fail(expectedType, "", err.Error())
	}
	return resp
}

// applyDeadline sets the connection deadline from the context deadline
// when present, otherwise from the configured exchange timeout. A
// cancelled context fails immediately.
func (t *ChannelTransport) applyDeadline(ctx context.Context, conn net.Conn) error {
	if err := ctx.Err(); err != nil {
		return types.WrapError(types.KindTransportUnavailable, "channel exchange cancelled", err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(t.config.ExchangeTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return types.WrapError(types.KindTransportUnavailable, "channel deadline rejected", err)
	}
	return nil
}

// Probe reports whether the channel peer is accepting connections.
// Never returns an error and completes within the connect timeout.
func (t *ChannelTransport) Probe(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, t.config.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, t.config.Network, t.config.Address)
	if err != nil {
		return false
	}
	iox.DiscardClose(conn)
	return true
}
