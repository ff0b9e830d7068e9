package server

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("subscriber send buffer full")

// Exchange is one processed audio round-trip, pushed to transcript
// subscribers.
type Exchange struct {
	UserText     string    `json:"user_text"`
	ResponseText string    `json:"response_text"`
	AudioID      string    `json:"audio_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) trySend(data []byte) error {
	select {
	case s.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.send)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// Hub fans processed exchanges out to transcript WebSocket subscribers.
// Slow subscribers are dropped rather than buffered without bound.
type Hub struct {
	mu   sync.Mutex
	subs map[string]*subscriber
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]*subscriber)}
}

// Subscribe registers an upgraded connection and starts its write pump.
// The hub owns the connection from here on.
func (h *Hub) Subscribe(conn *websocket.Conn) {
	sub := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 16),
	}
	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()
	log.Info().Str("module", "server.hub").Str("sub", sub.id).Msg("transcript subscriber added")

	go h.writePump(sub)
	go h.readPump(sub)
}

// Broadcast pushes one exchange to every subscriber, dropping the slow ones.
func (h *Hub) Broadcast(ex Exchange) {
	data, err := json.Marshal(ex)
	if err != nil {
		log.Error().Err(err).Str("module", "server.hub").Msg("marshal exchange")
		return
	}

	h.mu.Lock()
	var dropped []*subscriber
	for id, sub := range h.subs {
		if err := sub.trySend(data); err != nil {
			dropped = append(dropped, sub)
			delete(h.subs, id)
		}
	}
	h.mu.Unlock()

	for _, sub := range dropped {
		log.Warn().Str("module", "server.hub").Str("sub", sub.id).Msg("dropping slow transcript subscriber")
		sub.close()
	}
}

// Count reports the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
	sub.close()
}

func (h *Hub) writePump(sub *subscriber) {
	for data := range sub.send {
		if err := sub.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			h.remove(sub)
			return
		}
		if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Str("module", "server.hub").Str("sub", sub.id).Msg("write failed")
			h.remove(sub)
			return
		}
	}
}

// readPump drains the connection so pings are answered and close frames
// are seen; subscribers never send application data.
func (h *Hub) readPump(sub *subscriber) {
	defer h.remove(sub)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}
