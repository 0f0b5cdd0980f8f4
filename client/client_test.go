package client

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/planline/planlink/ipc"
	"github.com/planline/planlink/remote"
	"github.com/planline/planlink/types"
)

const testCorrelationID = "DT_20240115100000_0123456789abcdef0123456789abcdef"

// startPluginPeer runs a one-shot framed-channel peer that echoes a
// success response for every request.
func startPluginPeer(t *testing.T) ipc.Config {
	t.Helper()
	addr := filepath.Join(t.TempDir(), "plugin.sock")
	ln, err := net.Listen("unix", addr)
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				payload, err := ipc.NewFrameDecoder(conn).ReadFrame()
				if err != nil {
					return
				}
				msg, err := ipc.DecodeMessage(payload)
				if err != nil {
					return
				}
				frame, err := ipc.EncodeResponse(types.OK(msg, json.RawMessage(`{"via":"channel"}`)))
				if err != nil {
					return
				}
				_, _ = conn.Write(frame)
			}(conn)
		}
	}()

	return ipc.Config{Network: "unix", Address: addr, ConnectTimeout: time.Second}
}

// startBackend runs an HTTP backend answering commands, analyses and
// health probes.
func startBackend(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case remote.HealthPath:
			w.WriteHeader(http.StatusOK)
		case remote.CommandPath, remote.AnalysisPath:
			var msg types.Message
			if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set(remote.HeaderCorrelationID, msg.CorrelationID)
			_ = json.NewEncoder(w).Encode(types.OK(&msg, json.RawMessage(`{"via":"http"}`)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	channelCfg := startPluginPeer(t)
	backend := startBackend(t)

	channel, err := ipc.NewChannelTransport(channelCfg, nil)
	if err != nil {
		t.Fatalf("NewChannelTransport failed: %v", err)
	}
	transport, err := remote.NewTransport(remote.Config{
		BaseURL:      backend.URL,
		Timeout:      2 * time.Second,
		ProbeTimeout: time.Second,
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewTransport failed: %v", err)
	}

	c, err := New(channel, transport, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestClient_RoutesByRole(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	viaChannel := c.SendCommand(ctx, RoleHostPlugin, testCorrelationID, json.RawMessage(`{"action":"x"}`))
	if !viaChannel.Success {
		t.Fatalf("channel send failed: %s", viaChannel.Error)
	}
	if string(viaChannel.Payload) != `{"via":"channel"}` {
		t.Errorf("channel payload = %s, want via channel", viaChannel.Payload)
	}

	viaHTTP := c.SendCommand(ctx, RoleBackend, testCorrelationID, json.RawMessage(`{"action":"x"}`))
	if !viaHTTP.Success {
		t.Fatalf("backend send failed: %s", viaHTTP.Error)
	}
	if string(viaHTTP.Payload) != `{"via":"http"}` {
		t.Errorf("backend payload = %s, want via http", viaHTTP.Payload)
	}
}

func TestClient_SendAnalysisBinding(t *testing.T) {
	c := newTestClient(t)

	resp := c.SendAnalysis(context.Background(), testCorrelationID, json.RawMessage(`{"projectId":"p1"}`))
	if !resp.Success {
		t.Fatalf("SendAnalysis failed: %s", resp.Error)
	}
	if resp.MessageType != types.MessageTypeAnalysis {
		t.Errorf("message type = %q, want %q", resp.MessageType, types.MessageTypeAnalysis)
	}
	if resp.CorrelationID != testCorrelationID {
		t.Errorf("correlation id = %q, want propagated unchanged", resp.CorrelationID)
	}
}

func TestClient_UnroutableMessageType(t *testing.T) {
	c := newTestClient(t)

	msg := types.NewMessage("unknown.type", testCorrelationID, nil)
	resp := c.Send(context.Background(), RoleBackend, msg)
	if resp.Success {
		t.Fatal("Send with unroutable type succeeded, want failure")
	}
	if resp.Error == "" {
		t.Error("failure response carries no error text")
	}
}

func TestClient_Probes(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if !c.ProbeLocalPeer(ctx) {
		t.Error("ProbeLocalPeer = false, want true")
	}
	if !c.ProbeRemote(ctx) {
		t.Error("ProbeRemote = false, want true")
	}
}

func TestClient_ProbesNeverErrorWhenDown(t *testing.T) {
	channel, err := ipc.NewChannelTransport(ipc.Config{
		Network:        "unix",
		Address:        filepath.Join(t.TempDir(), "absent.sock"),
		ConnectTimeout: 100 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewChannelTransport failed: %v", err)
	}
	transport, err := remote.NewTransport(remote.Config{
		BaseURL:      "http://127.0.0.1:1",
		ProbeTimeout: 100 * time.Millisecond,
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewTransport failed: %v", err)
	}
	c, err := New(channel, transport, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	if c.ProbeLocalPeer(ctx) {
		t.Error("ProbeLocalPeer against absent peer = true, want false")
	}
	if c.ProbeRemote(ctx) {
		t.Error("ProbeRemote against absent backend = true, want false")
	}
}
