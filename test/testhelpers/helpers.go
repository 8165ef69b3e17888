// Package testhelpers provides common utilities and helper functions for
// testing the signalroom relay.
//
// This package contains reusable test utilities shared across integration
// tests: connecting WebSocket clients, framing envelope events, and waiting
// for specific outbound events without duplicating read-loop plumbing in
// every test file.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalroom/signalroom/internal/server"
)

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket creates a WebSocket connection to the specified URL,
// presenting the given origin during the handshake.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// EventConn wraps a WebSocket connection with envelope framing. The server's
// write pump batches queued frames into a single message separated by
// newlines, so one read can carry several envelopes; leftovers are buffered
// for the next read.
type EventConn struct {
	conn    *websocket.Conn
	pending []server.Envelope
}

// NewEventConn wraps an established WebSocket connection.
func NewEventConn(conn *websocket.Conn) *EventConn {
	return &EventConn{conn: conn}
}

// SendEvent frames a payload in the wire envelope and writes it as a text message.
func (c *EventConn) SendEvent(event string, data any) error {
	frame, err := server.EncodeEvent(event, data)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// SendRaw writes an arbitrary text frame, bypassing the envelope codec.
func (c *EventConn) SendRaw(frame []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// JoinRoom sends a joinRoom event for the given identity.
func (c *EventConn) JoinRoom(userID, room string) error {
	return c.SendEvent(server.EventJoinRoom, server.JoinRoomRequest{UserID: userID, Room: room})
}

// SendChat sends a chat:message event with the given body and room claim.
func (c *EventConn) SendChat(message, room string) error {
	return c.SendEvent(server.EventChatMessage, server.ChatMessagePayload{Message: message, Room: room})
}

// Next returns the next envelope, reading and splitting a frame when the
// buffer is empty. The timeout applies to the underlying read only.
func (c *EventConn) Next(timeout time.Duration) (server.Envelope, error) {
	for len(c.pending) == 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return server.Envelope{}, err
		}
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return server.Envelope{}, err
		}
		for _, part := range bytes.Split(frame, []byte{'\n'}) {
			if len(part) == 0 {
				continue
			}
			var env server.Envelope
			if err := json.Unmarshal(part, &env); err != nil {
				return server.Envelope{}, err
			}
			c.pending = append(c.pending, env)
		}
	}

	env := c.pending[0]
	c.pending = c.pending[1:]
	return env, nil
}

// WaitFor reads envelopes until one with the given event name arrives,
// discarding everything else. It fails the test if the deadline passes first.
func (c *EventConn) WaitFor(t *testing.T, event string, timeout time.Duration) server.Envelope {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %q event", event)
		}
		env, err := c.Next(remaining)
		if err != nil {
			t.Fatalf("Failed reading while waiting for %q: %v", event, err)
		}
		if env.Event == event {
			return env
		}
	}
}

// ExpectNone asserts that no envelope with the given event name arrives
// within the timeout. Other events are tolerated and discarded.
func (c *EventConn) ExpectNone(t *testing.T, event string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		env, err := c.Next(remaining)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			t.Fatalf("Unexpected error while waiting for absence of %q: %v", event, err)
		}
		if env.Event == event {
			t.Fatalf("Expected no %q event, but received one", event)
		}
	}
}

// Close gracefully closes the WebSocket connection.
func (c *EventConn) Close() error {
	err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return c.conn.Close()
}

// DecodeData unmarshals an envelope payload into out, failing the test on error.
func DecodeData(t *testing.T, env server.Envelope, out any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("Failed to decode %q payload: %v", env.Event, err)
	}
}

// RosterUserIDs extracts the user ids from a presence event payload, in order.
func RosterUserIDs(t *testing.T, env server.Envelope) []string {
	t.Helper()
	var entries []server.PresenceEntry
	DecodeData(t, env, &entries)
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	return ids
}
