package websocket

import (
	"sync"
	"time"

	"freecord/internal/auth"
	"freecord/internal/models"
	chaterrors "freecord/pkg/errors"
	"freecord/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Client adapts a gorilla connection to Conn. Writes go through a buffered
// queue drained by WritePump; a full queue counts as a failed send.
type Client struct {
	conn     *websocket.Conn
	id       string
	userID   int64
	username string
	scope    models.Scope

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, scope models.Scope, identity *auth.Identity) *Client {
	c := &Client{
		conn:     conn,
		id:       uuid.NewString(),
		userID:   identity.UserID,
		username: identity.Username,
		scope:    scope,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}

	// Set read deadline and pong handler for connection health
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	return c
}

func (c *Client) ID() string          { return c.id }
func (c *Client) UserID() int64       { return c.userID }
func (c *Client) Username() string    { return c.username }
func (c *Client) Scope() models.Scope { return c.scope }

func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return chaterrors.ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return chaterrors.ErrConnectionClosed
	default:
		return chaterrors.ErrSendBufferFull
	}
}

// ReadFrame blocks until the next text or binary frame arrives.
func (c *Client) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
			logger.Error("WebSocket error: %v", err)
		}
		return nil, err
	}
	return data, nil
}

// Close is idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// CloseWithCode sends a close frame before tearing the connection down.
func (c *Client) CloseWithCode(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		logger.Debug("Error writing close frame: %v", err)
	}
	return c.Close()
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
