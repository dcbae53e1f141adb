package server

import (
	"fmt"
	"net/http"

	"github.com/Tyrowin/chatrelay/internal/auth"
)

// WebSocketHandler authenticates the bearer token, upgrades the connection
// and hands the new Client to the hub, which launches its pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	userID, err := s.tokens.Verify(auth.TokenFromRequest(r))
	if err != nil {
		s.logger.Debug(r.Context(), "websocket authentication failed", "remote", r.RemoteAddr, "error", err)
		writeError(w, errUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug(r.Context(), "websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s, userID, r.RemoteAddr)
	if err := s.hub.attach(client); err != nil {
		s.logger.Debug(r.Context(), "connection refused", "remote", r.RemoteAddr, "error", err)
		_ = conn.Close()
	}
}

// HealthHandler reports liveness as JSON.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// BannerHandler responds with a plain text message indicating the server is running.
func BannerHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "chatrelay server is running!")
}

// TestPageHandler serves an HTML page that logs in, opens the channel and
// exchanges messages with another user.
func (s *Server) TestPageHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.logger.Warn(r.Context(), "error writing HTML response", "error", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>chatrelay WebSocket Test</title>
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
        input[type="text"], input[type="password"] {
            width: 220px;
            padding: 5px;
            margin-right: 10px;
        }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status {
            margin: 10px 0;
            padding: 5px;
            border-radius: 3px;
        }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>chatrelay WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="email" placeholder="Email">
        <input type="password" id="password" placeholder="Password">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div id="online"></div>
    <div>
        <input type="text" id="receiverInput" placeholder="Receiver user id" disabled>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        let me = null;
        let seq = 0;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const receiverInput = document.getElementById('receiverInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');
        const onlineDiv = document.getElementById('online');

        function addMessage(message, type = 'info') {
            const messageElement = document.createElement('div');
            messageElement.style.margin = '5px 0';
            messageElement.style.padding = '3px';
            messageElement.textContent = message;

            if (type === 'sent') {
                messageElement.style.color = 'blue';
            } else if (type === 'received') {
                messageElement.style.color = 'green';
            } else {
                messageElement.style.color = 'gray';
            }

            messagesDiv.appendChild(messageElement);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected as ' + me.name + ' (' + me.id + ')' : 'Disconnected';
            statusDiv.className = connected ? 'status connected' : 'status disconnected';
            messageInput.disabled = !connected;
            receiverInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        async function connect() {
            const res = await fetch('/api/login', {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: JSON.stringify({
                    email: document.getElementById('email').value,
                    password: document.getElementById('password').value
                })
            });
            const body = await res.json();
            if (!res.ok) {
                addMessage('Login failed: ' + body.error);
                return;
            }
            me = body.user;

            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws?token=' + encodeURIComponent(body.token));

            ws.onopen = function() {
                ws.send(JSON.stringify({type: 'register', userId: me.id}));
                updateStatus(true);
            };

            ws.onmessage = function(event) {
                const frame = JSON.parse(event.data);
                switch (frame.type) {
                case 'message':
                    addMessage(frame.message.senderId + ': ' + frame.message.content, 'received');
                    break;
                case 'messageSent':
                    addMessage('You: ' + frame.message.content, 'sent');
                    break;
                case 'messageError':
                    addMessage('Error: ' + frame.reason);
                    break;
                case 'presenceUpdate':
                    onlineDiv.textContent = 'Online: ' + frame.online.join(', ');
                    break;
                case 'read':
                    addMessage(frame.readerId + ' read ' + frame.count + ' message(s)');
                    break;
                }
            };

            ws.onclose = function() {
                addMessage('Connection closed');
                updateStatus(false);
                ws = null;
            };

            ws.onerror = function() {
                addMessage('Connection error');
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const content = messageInput.value.trim();
            const receiverId = receiverInput.value.trim();
            if (content && receiverId && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({
                    type: 'sendMessage',
                    receiverId: receiverId,
                    content: content,
                    clientMessageId: me.id + '-' + Date.now() + '-' + (seq++)
                }));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
