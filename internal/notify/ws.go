package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// wsClient is one connected websocket subscriber.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WSSink broadcasts every notification to every connected websocket
// client, evicting clients that fall behind rather than blocking the
// driver loop on a slow reader.
type WSSink struct {
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan Event

	allowedOrigins []string

	done     chan struct{}
	stopOnce sync.Once
}

// NewWSSink creates a hub. Call Run in its own goroutine before serving
// ServeHTTP.
func NewWSSink(logger *slog.Logger, allowedOrigins []string) *WSSink {
	return &WSSink{
		clients:        make(map[*wsClient]struct{}),
		logger:         logger.With("component", "notify-ws"),
		register:       make(chan *wsClient),
		unregister:     make(chan *wsClient),
		broadcast:      make(chan Event, 256),
		allowedOrigins: allowedOrigins,
		done:           make(chan struct{}),
	}
}

// Run is the hub's event loop; it must run in its own goroutine for the
// lifetime of the sink.
func (h *WSSink) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case e := <-h.broadcast:
			data, err := json.Marshal(struct {
				Kind   string      `json:"kind"`
				NodeID byte        `json:"nodeId,omitempty"`
				Data   interface{} `json:"data,omitempty"`
			}{Kind: e.Kind.String(), NodeID: e.NodeID, Data: e.Data})
			if err != nil {
				h.logger.Error("notify: ws marshal", "err", err)
				continue
			}
			h.mu.Lock()
			var slow []*wsClient
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					slow = append(slow, c)
				}
			}
			for _, c := range slow {
				delete(h.clients, c)
				close(c.send)
				h.logger.Warn("notify: ws client evicted (too slow)")
			}
			h.mu.Unlock()
		}
	}
}

// Publish implements Sink.
func (h *WSSink) Publish(e Event) {
	select {
	case h.broadcast <- e:
	default:
		h.logger.Warn("notify: ws broadcast channel full, dropping event")
	}
}

// Stop shuts the hub down. Safe to call multiple times.
func (h *WSSink) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ServeHTTP upgrades r to a websocket connection and streams
// notifications to it until the client disconnects or the hub stops.
func (h *WSSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(h.allowedOrigins) > 0 {
		opts.OriginPatterns = h.allowedOrigins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.logger.Error("notify: ws accept", "err", err)
		return
	}
	conn.SetReadLimit(4096)

	c := &wsClient{conn: conn, send: make(chan []byte, 64)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *WSSink) writePump(c *wsClient) {
	for msg := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			return
		}
	}
	c.conn.Close(websocket.StatusNormalClosure, "")
}

func (h *WSSink) readPump(c *wsClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
			c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
	}()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-h.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}
