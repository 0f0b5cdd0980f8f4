package types

import (
	"encoding/json"
	"time"
)

// Well-known message types carried over either transport.
const (
	// MessageTypeCommand is an AI command request to the host plugin or backend.
	MessageTypeCommand = "ai.command"
	// MessageTypeAnalysis is a project validation analysis request.
	MessageTypeAnalysis = "validation.analyze"
	// MessageTypePing is a lightweight health probe exchange.
	MessageTypePing = "ping"
)

// Message is a single request envelope. Created by the initiator and
// read-only thereafter; the correlation id is propagated unchanged
// through every hop (frame, HTTP header, log record).
type Message struct {
	// MessageType discriminates the payload and selects the handler.
	MessageType string `json:"messageType"`
	// CorrelationID is the end-to-end trace id for this operation.
	CorrelationID string `json:"correlationId"`
	// Payload is the opaque request body.
	Payload json.RawMessage `json:"payload,omitempty"`
	// Timestamp is the creation instant (UTC).
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a request envelope with the current UTC timestamp.
func NewMessage(messageType, correlationID string, payload json.RawMessage) *Message {
	return &Message{
		MessageType:   messageType,
		CorrelationID: correlationID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}
}

// Response is a single response envelope. Invariant: Success implies
// Error is empty; failure implies Error is set and Payload absent.
type Response struct {
	// Success reports whether the peer handled the request.
	Success bool `json:"success"`
	// MessageType mirrors the request's message type.
	MessageType string `json:"messageType"`
	// CorrelationID is copied from the request.
	CorrelationID string `json:"correlationId"`
	// Payload is the response body, absent on failure.
	Payload json.RawMessage `json:"payload,omitempty"`
	// Error is the failure description, absent on success.
	Error string `json:"error,omitempty"`
	// Timestamp is the creation instant (UTC).
	Timestamp time.Time `json:"timestamp"`
}

// OK creates a success response for the given request envelope.
func OK(req *Message, payload json.RawMessage) *Response {
	return &Response{
		Success:       true,
		MessageType:   req.MessageType,
		CorrelationID: req.CorrelationID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}
}

// Fail creates a failure response carrying the error text. The payload
// is always absent on failure.
func Fail(messageType, correlationID, errText string) *Response {
	return &Response{
		Success:       false,
		MessageType:   messageType,
		CorrelationID: correlationID,
		Error:         errText,
		Timestamp:     time.Now().UTC(),
	}
}
