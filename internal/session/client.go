package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client wraps one WebSocket connection. Writes are serialized by the
// client's own mutex because gorilla/websocket allows only one concurrent
// writer.
type Client struct {
	ID     string
	UserID uint

	conn *websocket.Conn
	mu   sync.Mutex

	// hook replaces the network write in tests.
	hook func(Frame)
}

func NewClient(conn *websocket.Conn, userID uint) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
	}
}

// newTestClient builds a connectionless client whose sends invoke hook.
func newTestClient(userID uint, hook func(Frame)) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hook:   hook,
	}
}

// Send writes one frame to the peer.
func (c *Client) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hook != nil {
		c.hook(f)
		return nil
	}
	return c.conn.WriteJSON(f)
}

// Close sends a close frame with the given code and closes the socket.
func (c *Client) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
	_ = c.conn.Close()
}

// ReadFrame blocks for the next inbound frame.
func (c *Client) ReadFrame() (Frame, error) {
	var f Frame
	err := c.conn.ReadJSON(&f)
	return f, err
}
