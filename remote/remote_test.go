package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/planline/planlink/metrics"
	"github.com/planline/planlink/types"
)

const testCorrelationID = "BC_20240115100000_0123456789abcdef0123456789abcdef"

func newTestTransport(t *testing.T, baseURL string, collector *metrics.Collector) *Transport {
	t.Helper()
	transport, err := NewTransport(Config{
		BaseURL:        baseURL,
		Timeout:        2 * time.Second,
		ProbeTimeout:   time.Second,
		RetryBaseDelay: time.Millisecond,
	}, nil, collector)
	if err != nil {
		t.Fatalf("NewTransport failed: %v", err)
	}
	return transport
}

func TestPost_RetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderCorrelationID, r.Header.Get(HeaderCorrelationID))
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	collector := metrics.NewCollector("test")
	transport := newTestTransport(t, server.URL, collector)

	body, err := transport.Post(context.Background(), "/v1/ai/commands", []byte(`{}`), testCorrelationID)
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("backend saw %d attempts, want 3", got)
	}
	if got := collector.Snapshot().RemoteRetries; got != 2 {
		t.Errorf("RemoteRetries = %d, want 2", got)
	}
}

func TestPost_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such project"))
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL, nil)

	_, err := transport.Post(context.Background(), "/v1/ai/commands", []byte(`{}`), testCorrelationID)
	if err == nil {
		t.Fatal("Post succeeded, want error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("backend saw %d attempts, want 1 (no retry on 404)", got)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("Code = %d, want 404", statusErr.Code)
	}
	// Response body is captured verbatim.
	if !strings.Contains(statusErr.Body, "no such project") {
		t.Errorf("Body = %q, want backend text preserved", statusErr.Body)
	}
}

func TestPost_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL, nil)
	if _, err := transport.Post(context.Background(), "/x", nil, testCorrelationID); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("backend saw %d attempts, want 2", got)
	}
}

func TestPost_ExhaustedRetries(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL, nil)
	_, err := transport.Post(context.Background(), "/x", nil, testCorrelationID)
	if err == nil {
		t.Fatal("Post succeeded, want error after exhausted retries")
	}
	if got := calls.Load(); got != DefaultRetryAttempts {
		t.Errorf("backend saw %d attempts, want %d", got, DefaultRetryAttempts)
	}
	if !types.IsKind(err, types.KindTransportUnavailable) {
		t.Errorf("error = %v, want TransportUnavailable classification", err)
	}
}

func TestPost_CorrelationHeaderAttached(t *testing.T) {
	var seen atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get(HeaderCorrelationID))
		w.Header().Set(HeaderCorrelationID, r.Header.Get(HeaderCorrelationID))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL, nil)
	if _, err := transport.Post(context.Background(), "/x", nil, testCorrelationID); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if got := seen.Load(); got != testCorrelationID {
		t.Errorf("backend saw correlation id %v, want %q", got, testCorrelationID)
	}
}

func TestExchange_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg types.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set(HeaderCorrelationID, msg.CorrelationID)
		_ = json.NewEncoder(w).Encode(types.OK(&msg, json.RawMessage(`{"accepted":true}`)))
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL, nil)
	msg := types.NewMessage(types.MessageTypeCommand, testCorrelationID, json.RawMessage(`{"action":"x"}`))

	resp := transport.Exchange(context.Background(), CommandPath, msg)
	if !resp.Success {
		t.Fatalf("Exchange failed: %s", resp.Error)
	}
	if resp.CorrelationID != testCorrelationID {
		t.Errorf("correlation id = %q, want %q", resp.CorrelationID, testCorrelationID)
	}
}

func TestExchange_CapturesBackendErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("validation engine offline"))
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL, nil)
	msg := types.NewMessage(types.MessageTypeAnalysis, testCorrelationID, nil)

	resp := transport.Exchange(context.Background(), AnalysisPath, msg)
	if resp.Success {
		t.Fatal("Exchange succeeded, want failure")
	}
	if !strings.Contains(resp.Error, "validation engine offline") {
		t.Errorf("error = %q, want backend body preserved verbatim", resp.Error)
	}
}

func TestHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != HealthPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL, nil)
	if !transport.Healthy(context.Background()) {
		t.Error("Healthy against live backend = false, want true")
	}

	server.Close()
	if transport.Healthy(context.Background()) {
		t.Error("Healthy against closed backend = true, want false")
	}
}
