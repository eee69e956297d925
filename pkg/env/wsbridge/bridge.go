// Package wsbridge lets a browser report focus, visibility and
// connectivity changes over a WebSocket into an *env.Events.
package wsbridge

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/turboresource/pkg/env"
)

// FrameType identifies a client report.
type FrameType string

const (
	FrameFocus      FrameType = "focus"
	FrameBlur       FrameType = "blur"
	FrameVisibility FrameType = "visibility"
	FrameOnline     FrameType = "online"
	FrameOffline    FrameType = "offline"
	FrameAck        FrameType = "ack"
)

// Frame is the wire message in both directions.
type Frame struct {
	Type  FrameType `json:"type"`
	State string    `json:"state,omitempty"`
	Error string    `json:"error,omitempty"`
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithCheckOrigin replaces the upgrader's origin check. All origins are
// accepted by default.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(b *Bridge) {
		b.upgrader.CheckOrigin = fn
	}
}

// Bridge is an http.Handler upgrading requests to report connections.
type Bridge struct {
	events   *env.Events
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*websocket.Conn
}

// New creates a bridge feeding events.
func New(events *env.Events, opts ...Option) *Bridge {
	b := &Bridge{
		events:  events,
		logger:  slog.Default().With("component", "wsbridge"),
		clients: make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ServeHTTP upgrades the request and reads frames until the client leaves.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	log := b.logger.With("conn", id)

	b.mu.Lock()
	b.clients[id] = conn
	b.mu.Unlock()
	log.Debug("client connected", "remote", r.RemoteAddr)

	defer func() {
		b.mu.Lock()
		delete(b.clients, id)
		b.mu.Unlock()
		conn.Close()
		log.Debug("client disconnected")
	}()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("read failed", "error", err)
			}
			return
		}

		ack := Frame{Type: FrameAck}
		if !b.apply(f) {
			log.Warn("unknown frame", "type", f.Type, "state", f.State)
			ack.Error = "unknown frame"
		}
		if err := conn.WriteJSON(ack); err != nil {
			log.Warn("write failed", "error", err)
			return
		}
	}
}

func (b *Bridge) apply(f Frame) bool {
	switch f.Type {
	case FrameFocus:
		b.events.Focus()
	case FrameBlur:
		b.events.Blur()
	case FrameOnline:
		b.events.Online()
	case FrameOffline:
		b.events.Offline()
	case FrameVisibility:
		v := env.Visibility(f.State)
		if v != env.VisibilityVisible && v != env.VisibilityHidden {
			return false
		}
		b.events.SetVisibility(v)
	default:
		return false
	}
	return true
}

// ClientCount returns the number of connected clients.
func (b *Bridge) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close closes all client connections.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, conn := range b.clients {
		conn.Close()
		delete(b.clients, id)
	}
}

// Decode parses a single frame, for hosts receiving frames over another
// transport.
func Decode(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// ClientScript reports browser focus, visibility and connectivity to a
// bridge mounted at /ws.
const ClientScript = `
<script>
(function() {
    'use strict';

    var ws = null;
    var queue = [];
    var delay = 1000;

    function send(frame) {
        if (ws && ws.readyState === WebSocket.OPEN) {
            ws.send(JSON.stringify(frame));
        } else {
            queue.push(frame);
        }
    }

    function connect() {
        var protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
        ws = new WebSocket(protocol + '//' + location.host + '/ws');

        ws.onopen = function() {
            delay = 1000;
            while (queue.length) {
                ws.send(JSON.stringify(queue.shift()));
            }
        };

        ws.onclose = function() {
            setTimeout(function() {
                delay = Math.min(delay * 2, 30000);
                connect();
            }, delay);
        };

        ws.onerror = function() {
            ws.close();
        };
    }

    window.addEventListener('focus', function() { send({type: 'focus'}); });
    window.addEventListener('blur', function() { send({type: 'blur'}); });
    window.addEventListener('online', function() { send({type: 'online'}); });
    window.addEventListener('offline', function() { send({type: 'offline'}); });
    document.addEventListener('visibilitychange', function() {
        send({type: 'visibility', state: document.visibilityState});
    });

    connect();
})();
</script>
`
