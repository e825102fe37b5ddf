package websocket

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yegors/ogn-tracker/internal/tracker"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// Message types exchanged with subscribers
const (
	MessageTypeAircraftData    = "aircraft_data"    // full snapshot on connect
	MessageTypeAircraftUpdate  = "aircraft_update"  // coalesced per aircraft and tick
	MessageTypeAircraftRemoved = "aircraft_removed" // evicted by the stale sweep
	MessageTypeAircraftTrack   = "aircraft_track"   // reply to a track request
	MessageTypeADSBData        = "adsb_aircraft_data"
	MessageTypeADSBUpdate      = "adsb_aircraft_update"
	MessageTypeADSBRemoved     = "adsb_aircraft_removed"
	MessageTypeTrackRequest    = "track_request" // client -> server
)

// Message represents a WebSocket message
type Message struct {
	Type       string `json:"type"`
	AircraftID string `json:"aircraft_id,omitempty"`
	Data       any    `json:"data"`
}

// InboundMessage is a message received from a client
type InboundMessage struct {
	Type       string         `json:"type"`
	AircraftID string         `json:"aircraft_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// MessageHandler handles client messages the hub does not answer itself
type MessageHandler interface {
	HandleMessage(client *Client, msg InboundMessage) error
}

// StateSource is the aircraft state the hub serves snapshots and tracks from
type StateSource interface {
	ListActive() []tracker.AircraftState
	History(id string) []tracker.Position
}

// SnapshotFunc returns an extra message sent to every new client after the
// aircraft snapshot, or nil when there is nothing to send
type SnapshotFunc func() *Message

// Options configures the hub
type Options struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	PongTimeout       time.Duration
	SendQueueSize     int
	BroadcastTick     time.Duration
}

// Server is the subscriber hub. Register, unregister and fan-out all happen
// on the Run goroutine; each client owns a bounded drop-oldest send queue.
type Server struct {
	clients        map[*Client]bool
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *Message
	done           chan struct{}
	upgrader       websocket.Upgrader
	state          StateSource
	snapshots      []SnapshotFunc
	messageHandler MessageHandler
	opts           Options
	logger         *logger.Logger
	mu             sync.RWMutex

	// Latest pending aircraft_update per aircraft, flushed every tick
	pendingMu    sync.Mutex
	pending      map[string]any
	pendingOrder []string

	dropped   atomic.Int64
	malformed atomic.Int64
}

// NewServer creates a new WebSocket server
func NewServer(state StateSource, opts Options, log *logger.Logger) *Server {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PongTimeout <= opts.HeartbeatInterval {
		opts.PongTimeout = 3 * opts.HeartbeatInterval
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = 256
	}
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 1024),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		state:   state,
		opts:    opts,
		pending: make(map[string]any),
		logger:  log.Named("web-socket"),
	}
}

// SetMessageHandler sets the handler for client messages other than track requests
func (s *Server) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

// AddSnapshot registers an extra message for newly connected clients
func (s *Server) AddSnapshot(fn SnapshotFunc) {
	s.snapshots = append(s.snapshots, fn)
}

// Run runs the hub until ctx is done, then closes every client
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("Starting WebSocket server")
	defer close(s.done)

	var tick <-chan time.Time
	if s.opts.BroadcastTick > 0 {
		ticker := time.NewTicker(s.opts.BroadcastTick)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case client := <-s.register:
			s.addClient(client)

		case client := <-s.unregister:
			s.removeClient(client)

		case message := <-s.broadcast:
			s.fanOut(message)

		case <-tick:
			s.flushUpdates()

		case <-ctx.Done():
			s.mu.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				client.Close()
			}
			s.mu.Unlock()
			s.logger.Info("WebSocket server stopped")
			return
		}
	}
}

func (s *Server) addClient(client *Client) {
	// The snapshot is queued before the client joins the broadcast set so it
	// always precedes incremental updates
	var states []tracker.AircraftState
	if s.state != nil {
		states = s.state.ListActive()
	}
	if states == nil {
		states = []tracker.AircraftState{}
	}
	client.queue.push(&Message{Type: MessageTypeAircraftData, Data: states})
	for _, fn := range s.snapshots {
		if msg := fn(); msg != nil {
			client.queue.push(msg)
		}
	}

	s.mu.Lock()
	s.clients[client] = true
	clientCount := len(s.clients)
	s.mu.Unlock()
	s.logger.Debug("Client registered",
		logger.Int("client_count", clientCount),
		logger.Int("snapshot_size", len(states)))
}

func (s *Server) removeClient(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
	}
	clientCount := len(s.clients)
	s.mu.Unlock()
	client.Close()
	s.logger.Debug("Client unregistered", logger.Int("client_count", clientCount))
}

func (s *Server) fanOut(message *Message) {
	maxDrops := int64(4 * s.opts.SendQueueSize)
	var slow []*Client

	s.mu.RLock()
	for client := range s.clients {
		if !client.queue.push(message) {
			continue
		}
		if client.queue.dropsSinceDrain() > maxDrops {
			slow = append(slow, client)
		}
	}
	s.mu.RUnlock()

	for _, client := range slow {
		s.logger.Warn("Disconnecting slow client", String("remote_addr", client.remoteAddr))
		s.removeClient(client)
	}
}

func (s *Server) flushUpdates() {
	s.pendingMu.Lock()
	if len(s.pendingOrder) == 0 {
		s.pendingMu.Unlock()
		return
	}
	order := s.pendingOrder
	pending := s.pending
	s.pendingOrder = nil
	s.pending = make(map[string]any, len(pending))
	s.pendingMu.Unlock()

	for _, id := range order {
		s.fanOut(&Message{Type: MessageTypeAircraftUpdate, Data: pending[id]})
	}
}

// HandleConnection upgrades an HTTP request and registers the new client
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			Error(err),
			String("remote_addr", r.RemoteAddr))
		return
	}

	client := newClient(s, conn, r.RemoteAddr)

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// BroadcastUpdate queues an aircraft_update. Updates for the same aircraft
// within one broadcast tick are coalesced and only the latest is sent.
func (s *Server) BroadcastUpdate(id string, data any) {
	if s.opts.BroadcastTick <= 0 {
		s.send(&Message{Type: MessageTypeAircraftUpdate, Data: data})
		return
	}
	s.pendingMu.Lock()
	if _, ok := s.pending[id]; !ok {
		s.pendingOrder = append(s.pendingOrder, id)
	}
	s.pending[id] = data
	s.pendingMu.Unlock()
}

// BroadcastRemoved notifies clients that an aircraft left the store. A
// coalesced update still waiting for that aircraft is discarded.
func (s *Server) BroadcastRemoved(id string) {
	s.pendingMu.Lock()
	if _, ok := s.pending[id]; ok {
		delete(s.pending, id)
		for i, pid := range s.pendingOrder {
			if pid == id {
				s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
				break
			}
		}
	}
	s.pendingMu.Unlock()

	s.send(&Message{Type: MessageTypeAircraftRemoved, Data: map[string]string{"id": id}})
}

// Broadcast sends a message of the given type to every client
func (s *Server) Broadcast(msgType string, data any) {
	s.send(&Message{Type: msgType, Data: data})
}

func (s *Server) send(message *Message) {
	select {
	case s.broadcast <- message:
	default:
		s.dropped.Add(1)
		s.logger.Warn("Broadcast queue full, dropping message", String("message_type", message.Type))
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Stats reports messages dropped at the broadcast queue and malformed client messages
func (s *Server) Stats() (dropped, malformed int64) {
	return s.dropped.Load(), s.malformed.Load()
}

func (s *Server) handleInbound(c *Client, msg InboundMessage) {
	switch msg.Type {
	case MessageTypeTrackRequest:
		var positions []tracker.Position
		if s.state != nil {
			positions = s.state.History(msg.AircraftID)
		}
		if positions == nil {
			positions = []tracker.Position{}
		}
		c.SendMessage(&Message{
			Type:       MessageTypeAircraftTrack,
			AircraftID: msg.AircraftID,
			Data:       positions,
		})
	default:
		if s.messageHandler == nil {
			s.logger.Debug("Ignoring unknown message type", String("type", msg.Type))
			return
		}
		if err := s.messageHandler.HandleMessage(c, msg); err != nil {
			s.logger.Error("Failed to handle WebSocket message",
				Error(err),
				String("type", msg.Type))
		}
	}
}

// Import logger functions
var (
	String = logger.String
	Error  = logger.Error
)
