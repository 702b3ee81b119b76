package signaling

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientOptions tunes the websocket pumps.
type ClientOptions struct {
	ReadLimit  int64
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	SendBuffer int
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		ReadLimit:  65536,
		WriteWait:  10 * time.Second,
		PongWait:   60 * time.Second,
		PingPeriod: 54 * time.Second,
		SendBuffer: 256,
	}
}

// Client is one websocket connection. The server knows nothing about who is
// on the other end until the client sends presence:connect or signal:join.
type Client struct {
	ID          string          `json:"id"`
	RemoteAddr  string          `json:"remoteAddr"`
	ConnectedAt time.Time       `json:"connectedAt"`
	Conn        *websocket.Conn `json:"-"`
	Send        chan Message    `json:"-"`

	opts   ClientOptions
	logger *zap.Logger

	// mu guards closed and sends on Send.
	mu     sync.Mutex
	closed bool

	// Callbacks
	OnMessage    func(*Client, Message)
	OnDisconnect func(*Client)
}

func NewClient(id string, conn *websocket.Conn, opts ClientOptions, logger *zap.Logger) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	c := &Client{
		ID:          id,
		ConnectedAt: time.Now(),
		Conn:        conn,
		Send:        make(chan Message, opts.SendBuffer),
		opts:        opts,
		logger:      logger.With(zap.String("connectionID", id)),
	}
	if conn != nil {
		c.RemoteAddr = conn.RemoteAddr().String()
	}
	return c
}

func (c *Client) ConnectionID() string { return c.ID }

// Close stops the write pump, which in turn closes the socket.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// ReadPump delivers inbound frames until the socket fails, then fires
// OnDisconnect exactly once.
func (c *Client) ReadPump() {
	defer func() {
		if c.OnDisconnect != nil {
			c.OnDisconnect(c)
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.opts.ReadLimit)
	c.Conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		var message Message
		if err := json.Unmarshal(raw, &message); err != nil || message.Type == "" {
			c.SendError(ErrorPayload{Code: CodeInvalidPayload, Message: "frame is not a valid message envelope"})
			continue
		}

		message.From = c.ID
		message.Timestamp = time.Now()

		if c.OnMessage != nil {
			c.OnMessage(c, message)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues a frame. It reports false when the client is closed or
// its buffer is full.
func (c *Client) SendMessage(message Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- message:
		return true
	default:
		c.logger.Warn("Client send channel full, dropping message",
			zap.String("type", string(message.Type)),
		)
		return false
	}
}

func (c *Client) SendError(payload ErrorPayload) {
	message, err := NewMessage(MessageTypeError, payload)
	if err != nil {
		c.logger.Error("Failed to marshal error message", zap.Error(err))
		return
	}
	c.SendMessage(message)
}

// NewUpgrader builds a websocket upgrader honouring the allowed origins.
// A single "*" entry accepts any origin.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
}
