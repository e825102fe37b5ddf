package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const maxInboundSize = 4096

// Client represents a WebSocket client
type Client struct {
	conn       *websocket.Conn
	server     *Server
	queue      *sendQueue
	remoteAddr string
	closeOnce  sync.Once
	closeChan  chan struct{}
}

func newClient(s *Server, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		conn:       conn,
		server:     s,
		queue:      newSendQueue(s.opts.SendQueueSize),
		remoteAddr: remoteAddr,
		closeChan:  make(chan struct{}),
	}
}

// readPump reads client messages until the connection fails. Missing pongs
// trip the read deadline.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.server.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.server.opts.PongTimeout))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Debug("WebSocket read error", Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.server.opts.PongTimeout))

		var message InboundMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil || message.Type == "" {
			c.server.malformed.Add(1)
			c.server.logger.Debug("Dropping malformed WebSocket message",
				String("remote_addr", c.remoteAddr))
			continue
		}

		c.server.handleInbound(c, message)
	}
}

// writePump is the only writer of the connection. It drains the send queue,
// pings on every heartbeat and gives up on the first failed write.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.server.opts.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.queue.ready():
			for _, message := range c.queue.drain() {
				data, err := json.Marshal(message)
				if err != nil {
					c.server.logger.Error("Failed to marshal message",
						Error(err),
						String("message_type", message.Type))
					continue
				}
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.opts.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Close moves the client to closing; the write pump sends a close frame and
// tears the connection down
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.queue.close()
		close(c.closeChan)
	})
}

// SendMessage queues a message for this client only
func (c *Client) SendMessage(message *Message) bool {
	return c.queue.push(message)
}

// RemoteAddr returns the client's address
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// sendQueue is a bounded FIFO that drops its oldest message on overflow
type sendQueue struct {
	mu       sync.Mutex
	items    []*Message
	capacity int
	closed   bool
	drops    int64
	notify   chan struct{}
}

func newSendQueue(capacity int) *sendQueue {
	return &sendQueue{
		items:    make([]*Message, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// push appends m, evicting the oldest message when full. It reports false
// once the queue is closed.
func (q *sendQueue) push(m *Message) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if len(q.items) >= q.capacity {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		q.drops++
	}
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *sendQueue) ready() <-chan struct{} {
	return q.notify
}

// drain removes and returns everything queued
func (q *sendQueue) drain() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = make([]*Message, 0, q.capacity)
	q.drops = 0
	return out
}

func (q *sendQueue) dropsSinceDrain() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drops
}

func (q *sendQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *sendQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
