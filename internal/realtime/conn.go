package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// WSConn wraps a gorilla websocket connection with a write mutex so hub
// fan-out and the handler's own writes never interleave frames.
type WSConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSConn wraps an upgraded connection.
func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

// Send writes one JSON frame under the write deadline.
func (c *WSConn) Send(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(payload)
}

// SendError writes a per-frame error without closing the connection. Used
// for validation and rate-limit rejections.
func (c *WSConn) SendError(message string) error {
	return c.Send(map[string]string{"error": message})
}

// ClosePolicy closes the connection with a policy-violation frame, the
// response to failed authorization during or after the handshake.
func (c *WSConn) ClosePolicy(reason string) {
	c.closeWith(websocket.ClosePolicyViolation, reason)
}

// CloseInternal closes the connection signalling a server-side failure.
func (c *WSConn) CloseInternal(reason string) {
	c.closeWith(websocket.CloseInternalServerErr, reason)
}

func (c *WSConn) closeWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
	_ = c.conn.Close()
}

// ReadJSON reads the next frame into v.
func (c *WSConn) ReadJSON(v any) error {
	return c.conn.ReadJSON(v)
}

// Close tears the connection down without a close frame.
func (c *WSConn) Close() error {
	return c.conn.Close()
}
