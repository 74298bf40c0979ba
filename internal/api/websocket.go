package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-syncsign/internal/bridges/syncsign"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/logging"
)

// Stream frame types. Clients send watch and ping; the server sends the rest.
const (
	FrameSnapshot = "snapshot"
	FrameState    = "state"
	FrameWatch    = "watch"
	FramePing     = "ping"
	FramePong     = "pong"
	FrameError    = "error"

	// streamSendBuffer is the per-client outbound frame buffer.
	streamSendBuffer = 256
)

// Frame is one message of the entity state stream.
type Frame struct {
	Type      string                  `json:"type"`
	ID        string                  `json:"id,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
	State     *syncsign.StateMessage  `json:"state,omitempty"`
	States    []syncsign.StateMessage `json:"states,omitempty"`
	Watch     *Watch                  `json:"watch,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// Watch narrows what a client receives. Empty fields match everything.
type Watch struct {
	EntryID   string   `json:"entry_id,omitempty"`
	EntityIDs []string `json:"entity_ids,omitempty"`
}

func (w Watch) matches(m syncsign.StateMessage) bool {
	if w.EntryID != "" && m.EntryID != w.EntryID {
		return false
	}
	return len(w.EntityIDs) == 0 || slices.Contains(w.EntityIDs, m.EntityID)
}

// StateStream fans entity states out to WebSocket clients.
//
// Frames are only queued under mu, and a client's send channel is only
// closed under the write lock, so a send never races a close.
type StateStream struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
}

type streamClient struct {
	conn    *websocket.Conn
	send    chan []byte
	subject string

	mu    sync.RWMutex
	watch Watch
}

func (c *streamClient) filter() Watch {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watch
}

func (c *streamClient) setFilter(w Watch) {
	c.mu.Lock()
	c.watch = w
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// CORS middleware owns origin policy.
		return true
	},
}

// NewStateStream creates an empty stream.
func NewStateStream(cfg config.WebSocketConfig, logger *logging.Logger) *StateStream {
	return &StateStream{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (s *StateStream) Run(ctx context.Context) {
	<-ctx.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

// Publish queues msg for every client whose watch matches. Slow clients
// lose frames rather than stall the bridge.
func (s *StateStream) Publish(msg syncsign.StateMessage) {
	data, err := json.Marshal(Frame{Type: FrameState, Timestamp: time.Now().UTC(), State: &msg})
	if err != nil {
		s.logger.Error("encoding state frame", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		if c.filter().matches(msg) {
			s.queue(c, data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *StateStream) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *StateStream) add(c *streamClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *StateStream) remove(c *streamClient) {
	s.mu.Lock()
	_, ok := s.clients[c]
	if ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
	if ok {
		s.logger.Debug("stream client disconnected", "subject", c.subject)
	}
}

// reply queues a frame for one client if it is still connected.
func (s *StateStream) reply(c *streamClient, f Frame) {
	f.Timestamp = time.Now().UTC()
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clients[c]; ok {
		s.queue(c, data)
	}
}

// queue must be called with mu held.
func (s *StateStream) queue(c *streamClient, data []byte) {
	select {
	case c.send <- data:
	default:
		s.logger.Warn("stream client too slow, dropping frame", "subject", c.subject)
	}
}

// states returns the current state of every entity matching w, by id.
func (s *Server) states(w Watch) []syncsign.StateMessage {
	ents := s.bridge.Entities()
	out := make([]syncsign.StateMessage, 0, len(ents))
	for _, e := range ents {
		if m := syncsign.NewStateMessage(e); w.matches(m) {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b syncsign.StateMessage) int { return strings.Compare(a.EntityID, b.EntityID) })
	return out
}

// handleStream upgrades the connection and sends a snapshot of every
// entity. authMiddleware has already checked the token.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &streamClient{conn: conn, send: make(chan []byte, streamSendBuffer)}
	if claims := claimsFromContext(r.Context()); claims != nil {
		c.subject = claims.Subject
	}
	if !s.stream.add(c) {
		conn.Close()
		return
	}
	s.logger.Debug("stream client connected", "subject", c.subject, "clients", s.stream.ClientCount())

	go s.writeLoop(c)
	s.stream.reply(c, Frame{Type: FrameSnapshot, States: s.states(Watch{})})
	go s.readLoop(c)
}

func (s *Server) readLoop(c *streamClient) {
	defer func() {
		s.stream.remove(c)
		c.conn.Close()
	}()

	idle := time.Duration(s.wsCfg.PingInterval+s.wsCfg.PongTimeout) * time.Second
	c.conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	//nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetReadDeadline(time.Now().Add(idle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		//nolint:errcheck // as above
		c.conn.SetReadDeadline(time.Now().Add(idle))

		var in Frame
		if err := json.Unmarshal(data, &in); err != nil {
			s.stream.reply(c, Frame{Type: FrameError, Error: "invalid JSON frame"})
			continue
		}
		switch in.Type {
		case FrameWatch:
			w := Watch{}
			if in.Watch != nil {
				w = *in.Watch
			}
			c.setFilter(w)
			s.stream.reply(c, Frame{Type: FrameSnapshot, ID: in.ID, States: s.states(w)})
		case FramePing:
			s.stream.reply(c, Frame{Type: FramePong, ID: in.ID})
		default:
			s.stream.reply(c, Frame{Type: FrameError, ID: in.ID, Error: "unknown frame type: " + in.Type})
		}
	}
}

func (s *Server) writeLoop(c *streamClient) {
	ticker := time.NewTicker(time.Duration(s.wsCfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	writeWait := time.Duration(s.wsCfg.PongTimeout) * time.Second

	for {
		select {
		case data, ok := <-c.send:
			//nolint:errcheck // a failed deadline surfaces as a write error
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // closing anyway
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // as above
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
