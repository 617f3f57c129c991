package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	closeWait  = time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 2 * pingPeriod
)

type outMessage struct {
	binary bool
	data   []byte
}

// wsConn wraps a websocket and coordinates outbound writes through a
// buffered queue. Sends never block: a client whose queue is full is
// disconnected.
type wsConn struct {
	ws   *websocket.Conn
	ip   string
	send chan outMessage
	once sync.Once
	done chan struct{}
}

var _ Conn = (*wsConn)(nil)

func newWSConn(ws *websocket.Conn, ip string, queue int) *wsConn {
	return &wsConn{
		ws:   ws,
		ip:   ip,
		send: make(chan outMessage, queue),
		done: make(chan struct{}),
	}
}

func (c *wsConn) IP() string { return c.ip }

func (c *wsConn) SendText(msg string) {
	c.enqueue(outMessage{data: []byte(msg)})
}

func (c *wsConn) SendBinary(data []byte) {
	c.enqueue(outMessage{binary: true, data: data})
}

func (c *wsConn) enqueue(m outMessage) {
	select {
	case <-c.done:
	case c.send <- m:
	default:
		slog.Warn("send queue full, closing connection", "ip", c.ip)
		c.Close("send buffer full")
	}
}

// Close stops the write loop and tears the socket down in the background.
// It never blocks, so the coordinator may call it while the write loop is
// stuck on a slow reader.
func (c *wsConn) Close(reason string) {
	c.once.Do(func() {
		close(c.done)
		go c.shutdown(reason)
	})
}

// shutdown sends a close frame if the writer frees up within closeWait and
// then closes the socket, which also unblocks a pending write.
func (c *wsConn) shutdown(reason string) {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), time.Now().Add(closeWait))
	_ = c.ws.Close()
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case m := <-c.send:
			if err := c.write(m); err != nil {
				c.Close("write failed")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close("ping failed")
				return
			}
		}
	}
}

func (c *wsConn) write(m outMessage) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	kind := websocket.TextMessage
	if m.binary {
		kind = websocket.BinaryMessage
	}
	return c.ws.WriteMessage(kind, m.data)
}
