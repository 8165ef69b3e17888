// Package server coordinates client registration, event fan-out, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub manages all WebSocket client connections, keyed by connection id. It
// owns the presence registry and coordinator wiring, and resolves delivery
// sinks for the room router. All access to the client map is guarded by a
// mutex so fan-out never races registration or cleanup.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	registry    *Registry
	coordinator *Coordinator
}

// NewHub creates a Hub with its registry, router, and coordinator assembled.
// The returned Hub is ready to manage WebSocket connections once Run starts.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		registry:   NewRegistry(),
	}
	h.coordinator = NewCoordinator(h.registry, NewRouter(h))
	return h
}

// GetRegisterChan returns the channel used for registering new clients.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Registry exposes the presence registry for read-only consumers such as
// the stats endpoint.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Sink resolves a live client as a delivery sink. Closed or unknown
// connections resolve to nothing.
func (h *Hub) Sink(connectionID string) (EventSink, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	client, ok := h.clients[connectionID]
	if !ok || client.closed {
		return nil, false
	}
	return client, true
}

// DropSink removes a client whose send buffer overflowed, purging its
// registry state so the roster never lists an unreachable connection.
func (h *Hub) DropSink(connectionID string) {
	h.removeClient(connectionID, "send buffer full")
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic in safeSend", "panic", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client.id]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine as it
// runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				slog.Warn("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mutex.Unlock()
			slog.Info("Client registered", "connectionId", client.id, "addr", client.addr, "total", clientCount)

			// Registry entry and presence push happen before the pumps
			// start, so the first inbound event always finds its
			// participant.
			h.coordinator.HandleConnect(client.id)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.removeClient(client.id, "disconnected")
		}
	}
}

var hub = NewHub()

// removeClient drops a client from the map, closes its send channel, and
// lets the coordinator purge its presence. Safe to call twice for the same
// connection; the second call is a no-op.
func (h *Hub) removeClient(connectionID, reason string) {
	h.mutex.Lock()
	client, ok := h.clients[connectionID]
	if ok {
		delete(h.clients, connectionID)
		client.closed = true
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if !ok {
		return
	}

	// Close the channel after releasing the lock
	close(client.send)
	slog.Info("Client unregistered", "connectionId", connectionID, "reason", reason, "total", clientCount)

	h.coordinator.HandleDisconnect(connectionID)
}

// shutdownClients gracefully closes all active client connections.
func (h *Hub) shutdownClients() {
	slog.Info("Shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					slog.Error("Error closing client connection", "connectionId", client.id, "err", err)
				}
			}
		}
	}

	slog.Info("Closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("Initiating hub shutdown")

	h.cancel()

	// Wait for Run() to complete
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		slog.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
