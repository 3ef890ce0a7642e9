package ws

import (
	"sync"
	"time"

	"github.com/Wyydra/rendezvous/internal/core/domain"
	"github.com/Wyydra/rendezvous/internal/core/port"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	DefaultWriteWait = 10 * time.Second
	DefaultPongWait  = 60 * time.Second
)

type Options struct {
	WriteWait time.Duration
	PongWait  time.Duration
}

// Client adapts a gorilla connection to port.Transport. Data frames are
// written by the peer goroutine only; control frames may come from any
// goroutine.
type Client struct {
	conn      *websocket.Conn
	writeWait time.Duration
	pongWait  time.Duration

	closeOnce sync.Once
	closeErr  error
}

var (
	_ port.Transport    = (*Client)(nil)
	_ port.Configurable = (*Client)(nil)
)

func NewClient(conn *websocket.Conn, opts Options) *Client {
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultWriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = DefaultPongWait
	}
	return &Client{
		conn:      conn,
		writeWait: opts.WriteWait,
		pongWait:  opts.PongWait,
	}
}

func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Client) SetReadLimit(limit int64) {
	c.conn.SetReadLimit(limit)
}

func (c *Client) WriteFrame(f domain.Frame) error {
	deadline := time.Now().Add(c.writeWait)
	switch f.Kind {
	case domain.FramePing:
		return c.conn.WriteControl(websocket.PingMessage, f.Payload, deadline)
	case domain.FramePong:
		return c.conn.WriteControl(websocket.PongMessage, f.Payload, deadline)
	case domain.FrameClose:
		return c.conn.WriteControl(websocket.CloseMessage, f.Payload, deadline)
	case domain.FrameBinary:
		c.conn.SetWriteDeadline(deadline)
		return c.conn.WriteMessage(websocket.BinaryMessage, f.Payload)
	default:
		c.conn.SetWriteDeadline(deadline)
		return c.conn.WriteMessage(websocket.TextMessage, f.Payload)
	}
}

// Close sends a close frame with code and reason, then drops the socket.
func (c *Client) Close(code domain.CloseCode, reason string) error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(int(code), reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// ReadPump turns inbound websocket messages into frames until the socket
// fails or done is closed. frames is closed on return.
func (c *Client) ReadPump(frames chan<- domain.Frame, done <-chan struct{}) {
	defer close(frames)

	push := func(f domain.Frame) bool {
		select {
		case frames <- f:
			return true
		case <-done:
			return false
		}
	}

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})
	c.conn.SetPingHandler(func(data string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		push(domain.Frame{Kind: domain.FramePing, Payload: []byte(data)})
		return nil
	})
	c.conn.SetCloseHandler(func(code int, text string) error {
		push(domain.Frame{Kind: domain.FrameClose})
		return nil
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("remote_addr", c.RemoteAddr()).Msg("Unexpected close error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

		kind := domain.FrameText
		if mt == websocket.BinaryMessage {
			kind = domain.FrameBinary
		}
		if !push(domain.Frame{Kind: kind, Payload: data}) {
			return
		}
	}
}

// Keepalive pings the remote end until done is closed or a ping fails.
func (c *Client) Keepalive(done <-chan struct{}) {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait)); err != nil {
				return
			}
		}
	}
}
