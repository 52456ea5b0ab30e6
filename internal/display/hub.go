package display

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/listenai/neural-link/internal/observability"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 50 * time.Second
	sendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	// Display pages are served from any host on the local network.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans render operations out to every connected display client and keeps
// a snapshot so late joiners start from the current state. Clients that fall
// behind by more than the send buffer are dropped.
type Hub struct {
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	state   Snapshot
}

// NewHub creates a hub with an empty snapshot and no clients.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and streams operations until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to upgrade display connection")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}
	h.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Display client connected")

	go h.writePump(c)
	h.readPump(c)
}

// Snapshot returns a copy of the current display state.
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) SetLanguages(sourceLang, targetLang string) {
	h.update(func(s *Snapshot) Message {
		s.SourceLang, s.TargetLang = sourceLang, targetLang
		return Message{Op: OpLanguages, SourceLang: sourceLang, TargetLang: targetLang}
	})
}

func (h *Hub) AppendSource(index int, suffix string) {
	h.update(func(s *Snapshot) Message {
		b := s.block(index)
		b.Source += suffix
		return Message{Op: OpAppend, Index: intPtr(index), Text: suffix}
	})
}

func (h *Hub) ReplaceSource(index int, text string) {
	h.update(func(s *Snapshot) Message {
		s.block(index).Source = text
		return Message{Op: OpReplace, Index: intPtr(index), Text: text}
	})
}

func (h *Hub) SetTranslation(index int, text string) {
	h.update(func(s *Snapshot) Message {
		b := s.block(index)
		b.Translation, b.Failed = text, false
		return Message{Op: OpTranslation, Index: intPtr(index), Text: text}
	})
}

func (h *Hub) TranslationFailed(index int, err error) {
	h.update(func(s *Snapshot) Message {
		b := s.block(index)
		b.Translation, b.Failed = "", true
		msg := Message{Op: OpTranslationFailed, Index: intPtr(index)}
		if err != nil {
			msg.Error = err.Error()
		}
		return msg
	})
}

func (h *Hub) SetAggregate(text string) {
	h.update(func(s *Snapshot) Message {
		s.Aggregate = text
		return Message{Op: OpAggregate, Text: text}
	})
}

func (h *Hub) Truncate(n int) {
	h.update(func(s *Snapshot) Message {
		if n < len(s.Blocks) {
			s.Blocks = s.Blocks[:n]
		}
		return Message{Op: OpTruncate, Count: intPtr(n)}
	})
}

func (h *Hub) Reset() {
	h.update(func(s *Snapshot) Message {
		s.Blocks = nil
		s.Aggregate = ""
		return Message{Op: OpReset}
	})
}

// block returns block index, growing the slice as needed.
func (s *Snapshot) block(index int) *Block {
	for len(s.Blocks) <= index {
		s.Blocks = append(s.Blocks, Block{})
	}
	return &s.Blocks[index]
}

func (h *Hub) update(apply func(*Snapshot) Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := apply(&h.state)
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("op", msg.Op).Msg("Failed to encode display message")
		return
	}
	h.broadcastLocked(payload)
}

func (h *Hub) broadcastLocked(payload []byte) {
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn().Msg("Display client too slow, dropping")
			h.removeLocked(c)
		}
	}
}

// register queues the snapshot and adds c under the same lock as broadcasts,
// so no operation is lost or duplicated between the two.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := h.snapshotLocked()
	payload, err := json.Marshal(Message{Op: OpSnapshot, Snapshot: &snap})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode display snapshot")
		return false
	}
	c.send <- payload

	h.clients[c] = struct{}{}
	observability.SetDisplayClients(len(h.clients))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	observability.SetDisplayClients(len(h.clients))
}

func (h *Hub) snapshotLocked() Snapshot {
	snap := h.state
	snap.Blocks = append([]Block(nil), h.state.Blocks...)
	if snap.Blocks == nil {
		snap.Blocks = []Block{}
	}
	return snap
}

// readPump discards client input and returns once the connection fails.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("Display read error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug().Err(err).Msg("Display write error")
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
