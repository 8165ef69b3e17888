// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, stats, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the connection, and hands the new
// client to the hub, which registers its participant and starts the pumps.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "err", err)
		return
	}

	client := NewClient(conn, hub, r.RemoteAddr)
	client.hub.register <- client
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Signalroom relay is running!")
}

// StatsHandler reports occupied room and participant counts as JSON.
func StatsHandler(w http.ResponseWriter, _ *http.Request) {
	rooms, participants := hub.Registry().Stats()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]int{
		"rooms":        rooms,
		"participants": participants,
	}); err != nil {
		slog.Error("Error writing stats response", "err", err)
	}
}

// TestPageHandler serves an HTML test page for exercising the relay:
// join a room, watch presence updates, and exchange messages.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Signalroom Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        #roster { color: #555; margin: 10px 0; }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
    </style>
</head>
<body>
    <h1>Signalroom Test</h1>

    <div>
        <input type="text" id="userInput" placeholder="User id...">
        <input type="text" id="roomInput" placeholder="Room...">
        <button onclick="join()">Join</button>
    </div>
    <div id="roster">Not joined</div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>
    <div id="messages"></div>

    <script>
        let ws = null;
        let room = '';
        const messagesDiv = document.getElementById('messages');
        const rosterDiv = document.getElementById('roster');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');

        function addLine(text) {
            const el = document.createElement('div');
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function join() {
            const userId = document.getElementById('userInput').value.trim();
            room = document.getElementById('roomInput').value.trim();
            if (!userId || !room) { return; }

            if (!ws || ws.readyState !== WebSocket.OPEN) {
                ws = new WebSocket('ws://' + location.host + '/ws');
                ws.onopen = function() {
                    ws.send(JSON.stringify({event: 'joinRoom', data: {userId: userId, room: room}}));
                };
                ws.onmessage = function(evt) {
                    const env = JSON.parse(evt.data);
                    if (env.event === 'usersInRoom') {
                        rosterDiv.textContent = 'In ' + room + ': ' +
                            env.data.map(function(p) { return p.userId; }).join(', ');
                        messageInput.disabled = false;
                        sendButton.disabled = false;
                    } else if (env.event === 'chat:message') {
                        addLine(env.data.userId + ': ' + env.data.message);
                    } else if (env.event === 'error') {
                        addLine('error: ' + env.data.message);
                    }
                };
                ws.onclose = function() {
                    rosterDiv.textContent = 'Disconnected';
                    messageInput.disabled = true;
                    sendButton.disabled = true;
                };
            } else {
                ws.send(JSON.stringify({event: 'joinRoom', data: {userId: userId, room: room}}));
            }
        }

        function sendMessage() {
            const message = messageInput.value.trim();
            if (message && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: 'chat:message', data: {message: message, room: room}}));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendMessage(); }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Error writing HTML response", "err", err)
	}
}
