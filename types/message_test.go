package types

import (
	"encoding/json"
	"testing"
)

func TestMessage_WireKeys(t *testing.T) {
	msg := NewMessage(MessageTypeCommand, "AB_20240115100000_0123456789abcdef0123456789abcdef",
		json.RawMessage(`{"action":"create_wall"}`))

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, key := range []string{"messageType", "correlationId", "payload", "timestamp"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("wire encoding missing key %q", key)
		}
	}
}

func TestResponse_SuccessErrorInvariant(t *testing.T) {
	req := NewMessage(MessageTypePing, "PG_20240115100000_0123456789abcdef0123456789abcdef", nil)

	ok := OK(req, json.RawMessage(`{"pong":true}`))
	if !ok.Success || ok.Error != "" {
		t.Errorf("OK response: Success=%v Error=%q, want true and empty", ok.Success, ok.Error)
	}
	if ok.CorrelationID != req.CorrelationID {
		t.Errorf("OK response correlation id = %q, want %q", ok.CorrelationID, req.CorrelationID)
	}

	fail := Fail(req.MessageType, req.CorrelationID, "peer unreachable")
	if fail.Success || fail.Error == "" {
		t.Errorf("Fail response: Success=%v Error=%q, want false and non-empty", fail.Success, fail.Error)
	}
	if fail.Payload != nil {
		t.Errorf("Fail response payload = %q, want absent", fail.Payload)
	}
}

func TestResponse_FailOmitsPayloadOnWire(t *testing.T) {
	fail := Fail(MessageTypeCommand, "AB_20240115100000_0123456789abcdef0123456789abcdef", "boom")

	data, err := json.Marshal(fail)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := raw["payload"]; ok {
		t.Error("failure encoding carries a payload key, want omitted")
	}
	if raw["error"] != "boom" {
		t.Errorf("error field = %v, want %q", raw["error"], "boom")
	}
}
