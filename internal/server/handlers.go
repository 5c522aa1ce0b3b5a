// Package server exposes the HTTP surface: WebSocket upgrades, the health
// check, and the built-in test page.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers bundles the HTTP endpoints with the hub they serve.
type Handlers struct {
	hub      *Hub
	upgrader websocket.Upgrader
	startAt  time.Time
	logger   *zap.Logger
}

// NewHandlers wires the endpoints to hub, with the upgrade origin policy
// taken from cfg. The reported server start time is captured here.
func NewHandlers(hub *Hub, cfg Config, logger *zap.Logger) *Handlers {
	checker := newOriginChecker(cfg.AllowedOrigins, logger)
	return &Handlers{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checker.check,
		},
		startAt: time.Now().UTC(),
		logger:  logger,
	}
}

// WebSocket upgrades the request and hands the connection to the hub. The
// hub acknowledges admission with a connected event carrying the assigned
// connection id.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			zap.String("addr", r.RemoteAddr),
			zap.Error(err))
		return
	}

	client := NewClient(conn, h.hub, r.RemoteAddr)
	if !h.hub.Admit(client) {
		// Shutting down; the connection was never attached.
		_ = conn.Close()
	}
}

// healthResponse is the GET /health body.
type healthResponse struct {
	Status          string `json:"status"`
	ConnectedUsers  int    `json:"connectedUsers"`
	ServerStartTime string `json:"serverStartTime"`
}

// Health reports liveness, the live session count, and the process start
// time in ISO-8601.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status:          "ok",
		ConnectedUsers:  h.hub.Registry().Count(),
		ServerStartTime: h.startAt.Format(time.RFC3339),
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("writing JSON response", zap.Error(err))
	}
}

// TestPage serves a minimal chat client that speaks the event protocol:
// join with a username, exchange messages, and watch presence and typing
// notifications. Useful for poking at the server from a browser.
func (h *Handlers) TestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := w.Write([]byte(testPageHTML)); err != nil {
		h.logger.Warn("writing test page", zap.Error(err))
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #layout { display: flex; gap: 10px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            width: 500px;
            padding: 10px;
            overflow-y: scroll;
            background-color: #f9f9f9;
        }
        #users {
            border: 1px solid #ccc;
            height: 300px;
            width: 150px;
            padding: 10px;
            overflow-y: scroll;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:disabled { background-color: #999; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        #typing { height: 1.2em; color: gray; font-style: italic; }
    </style>
</head>
<body>
    <h1>Chat Relay Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="usernameInput" placeholder="Pick a username..." disabled>
        <button id="joinButton" onclick="join()" disabled>Join</button>
    </div>

    <div id="layout">
        <div id="messages"></div>
        <div id="users"></div>
    </div>
    <div id="typing"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        let ws = null;
        let joined = false;
        let typingTimer = null;
        let typingSent = false;
        const typingUsers = new Set();

        const messagesDiv = document.getElementById('messages');
        const usersDiv = document.getElementById('users');
        const typingDiv = document.getElementById('typing');
        const usernameInput = document.getElementById('usernameInput');
        const joinButton = document.getElementById('joinButton');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const statusDiv = document.getElementById('status');

        function addLine(text, color) {
            const line = document.createElement('div');
            line.style.margin = '5px 0';
            line.style.color = color || 'black';
            line.textContent = text;
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function send(event, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: event, data: data}));
            }
        }

        function renderTyping() {
            const names = Array.from(typingUsers);
            if (names.length === 0) {
                typingDiv.textContent = '';
            } else if (names.length === 1) {
                typingDiv.textContent = names[0] + ' is typing...';
            } else {
                typingDiv.textContent = names.join(', ') + ' are typing...';
            }
        }

        function handle(msg) {
            switch (msg.event) {
            case 'connected':
                addLine('Connected with id ' + msg.data.id, 'gray');
                break;
            case 'joined':
                joined = true;
                usernameInput.disabled = true;
                joinButton.disabled = true;
                messageInput.disabled = false;
                sendButton.disabled = false;
                addLine('Joined as ' + msg.data.username, 'gray');
                break;
            case 'error':
                addLine(msg.data.message, 'red');
                break;
            case 'userJoined':
                addLine(msg.data.username + ' joined', 'gray');
                break;
            case 'userLeft':
                addLine(msg.data.username + ' left', 'gray');
                typingUsers.delete(msg.data.username);
                renderTyping();
                break;
            case 'userList':
                usersDiv.innerHTML = '';
                msg.data.forEach(function(name) {
                    const entry = document.createElement('div');
                    entry.textContent = name;
                    usersDiv.appendChild(entry);
                });
                break;
            case 'message':
                addLine(msg.data.sender + ': ' + msg.data.text + ' (' + msg.data.timestamp + ')');
                break;
            case 'userTyping':
                typingUsers.add(msg.data.username);
                renderTyping();
                break;
            case 'userStoppedTyping':
                typingUsers.delete(msg.data.username);
                renderTyping();
                break;
            case 'serverShutdown':
                addLine(msg.data.message, 'red');
                break;
            }
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');

            ws.onopen = function() {
                statusDiv.textContent = 'Connected';
                statusDiv.className = 'status connected';
                usernameInput.disabled = false;
                joinButton.disabled = false;
            };

            ws.onmessage = function(event) {
                handle(JSON.parse(event.data));
            };

            ws.onclose = function() {
                statusDiv.textContent = 'Disconnected';
                statusDiv.className = 'status disconnected';
                joined = false;
                usernameInput.disabled = true;
                joinButton.disabled = true;
                messageInput.disabled = true;
                sendButton.disabled = true;
                ws = null;
            };
        }

        function join() {
            send('join', {username: usernameInput.value});
        }

        function sendMessage() {
            const text = messageInput.value;
            if (!text) {
                return;
            }
            stopTyping();
            send('message', {text: text});
            messageInput.value = '';
        }

        function stopTyping() {
            if (typingSent) {
                typingSent = false;
                send('stopTyping', null);
            }
            if (typingTimer) {
                clearTimeout(typingTimer);
                typingTimer = null;
            }
        }

        messageInput.addEventListener('input', function() {
            if (!joined) {
                return;
            }
            if (!typingSent) {
                typingSent = true;
                send('typing', null);
            }
            if (typingTimer) {
                clearTimeout(typingTimer);
            }
            typingTimer = setTimeout(stopTyping, 1500);
        });

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });

        usernameInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                join();
            }
        });

        connect();
    </script>
</body>
</html>`
