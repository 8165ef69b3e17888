package integration

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalroom/signalroom/internal/server"
	"github.com/signalroom/signalroom/test/testhelpers"
)

// TestMessageSizeLimitClosesConnection verifies that an inbound frame above
// MAX_MESSAGE_SIZE terminates the offending connection and that the rest of
// the room never sees the frame.
func TestMessageSizeLimitClosesConnection(t *testing.T) {
	const limit int64 = 256
	wsURL := setupRelayServer(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = limit
	})

	watcher := dialRelay(t, wsURL)
	if err := watcher.JoinRoom("watcher", "attic"); err != nil {
		t.Fatalf("Failed to join room: %v", err)
	}
	watcher.WaitFor(t, server.EventUsersInRoom, 2*time.Second)

	offender := dialRelay(t, wsURL)
	if err := offender.JoinRoom("offender", "attic"); err != nil {
		t.Fatalf("Failed to join room: %v", err)
	}
	offender.WaitFor(t, server.EventUsersInRoom, 2*time.Second)
	watcher.WaitFor(t, server.EventUsersInRoom, 2*time.Second)

	if err := offender.SendChat(strings.Repeat("A", int(limit)*2), "attic"); err != nil {
		t.Fatalf("Failed to write oversized frame: %v", err)
	}

	// The server must close the offending connection rather than relay.
	deadline := time.Now().Add(3 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("Connection stayed open after oversized frame")
		}
		_, err := offender.Next(200 * time.Millisecond)
		if err == nil {
			continue
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			continue
		}
		if websocket.IsCloseError(err, websocket.CloseMessageTooBig) {
			break
		}
		// Any other error still means the server tore the connection down.
		t.Logf("Connection closed with: %v", err)
		break
	}

	// The watcher sees the offender purged from the roster, and never the
	// oversized message.
	deadline = time.Now().Add(3 * time.Second)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatal("Watcher never saw the offender leave")
		}
		env, err := watcher.Next(remaining)
		if err != nil {
			t.Fatalf("Watcher read failed: %v", err)
		}
		if env.Event == server.EventChatMessage {
			t.Fatal("Oversized message must not be relayed")
		}
		if env.Event == server.EventUsersInRoom {
			ids := testhelpers.RosterUserIDs(t, env)
			if len(ids) == 1 && ids[0] == "watcher" {
				break
			}
		}
	}
}

// TestRateLimitDropsExcessMessages verifies that messages past the burst are
// discarded without closing the connection. The join consumes one token, so
// a burst of four admits exactly three chat messages.
func TestRateLimitDropsExcessMessages(t *testing.T) {
	wsURL := setupRelayServer(t, func(cfg *server.Config) {
		cfg.RateLimit = server.RateLimitConfig{Burst: 4, RefillInterval: time.Minute}
	})

	sender := dialRelay(t, wsURL)
	if err := sender.JoinRoom("sender", "floodgate"); err != nil {
		t.Fatalf("Failed to join room: %v", err)
	}
	sender.WaitFor(t, server.EventUsersInRoom, 2*time.Second)

	receiver := dialRelay(t, wsURL)
	if err := receiver.JoinRoom("receiver", "floodgate"); err != nil {
		t.Fatalf("Failed to join room: %v", err)
	}
	receiver.WaitFor(t, server.EventUsersInRoom, 2*time.Second)
	sender.WaitFor(t, server.EventUsersInRoom, 2*time.Second)

	const flood = 10
	for i := 0; i < flood; i++ {
		if err := sender.SendChat(fmt.Sprintf("burst %d", i), "floodgate"); err != nil {
			t.Fatalf("Failed to send message %d: %v", i, err)
		}
	}

	relayed := countChatMessages(t, receiver, flood)
	if relayed != 3 {
		t.Errorf("Expected exactly 3 messages past the limiter, got %d", relayed)
	}

	// Dropped messages are discarded, not fatal: the connection stays open
	// and traffic in the other direction still flows.
	if err := receiver.SendChat("still here", "floodgate"); err != nil {
		t.Fatalf("Failed to send from receiver: %v", err)
	}
	env := sender.WaitFor(t, server.EventChatMessage, 2*time.Second)
	var msg server.ChatMessage
	testhelpers.DecodeData(t, env, &msg)
	if msg.UserID != "receiver" {
		t.Errorf("Expected message from receiver, got %q", msg.UserID)
	}
}

// TestConcurrentClientsRoomBroadcast has several clients in one room send
// concurrently and verifies every member receives every message.
func TestConcurrentClientsRoomBroadcast(t *testing.T) {
	wsURL := setupRelayServer(t, nil)

	const numClients = 5
	clients := make([]*testhelpers.EventConn, numClients)
	for i := range clients {
		clients[i] = dialRelay(t, wsURL)
		if err := clients[i].JoinRoom(fmt.Sprintf("user%d", i), "swarm"); err != nil {
			t.Fatalf("Client %d failed to join: %v", i, err)
		}
	}

	// Every client must observe the full roster before anyone sends.
	for i, c := range clients {
		deadline := time.Now().Add(3 * time.Second)
		for {
			if time.Now().After(deadline) {
				t.Fatalf("Client %d never saw the full roster", i)
			}
			env := c.WaitFor(t, server.EventUsersInRoom, 3*time.Second)
			if len(testhelpers.RosterUserIDs(t, env)) == numClients {
				break
			}
		}
	}

	var wg sync.WaitGroup
	sendErrs := make(chan error, numClients)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := clients[i].SendChat(fmt.Sprintf("hello from user%d", i), "swarm"); err != nil {
				sendErrs <- fmt.Errorf("client %d: send failed: %w", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(sendErrs)
	for err := range sendErrs {
		t.Error(err)
	}

	// Each member, senders included, receives all five messages.
	for i, c := range clients {
		seen := make(map[string]bool)
		deadline := time.Now().Add(3 * time.Second)
		for len(seen) < numClients && time.Now().Before(deadline) {
			env, err := c.Next(time.Until(deadline))
			if err != nil {
				t.Fatalf("Client %d read failed: %v", i, err)
			}
			if env.Event != server.EventChatMessage {
				continue
			}
			var msg server.ChatMessage
			testhelpers.DecodeData(t, env, &msg)
			seen[msg.UserID] = true
		}
		if len(seen) != numClients {
			t.Errorf("Client %d: expected messages from %d senders, got %d", i, numClients, len(seen))
		}
	}
}

// countChatMessages drains chat events until the connection goes quiet and
// returns how many arrived.
func countChatMessages(t *testing.T, c *testhelpers.EventConn, maxExpected int) int {
	t.Helper()

	count := 0
	for count < maxExpected {
		env, err := c.Next(500 * time.Millisecond)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				break
			}
			t.Fatalf("Read failed while counting messages: %v", err)
		}
		if env.Event == server.EventChatMessage {
			count++
		}
	}
	return count
}
