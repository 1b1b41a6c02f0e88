package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"SRLevels/internal/domain/models"
	applogger "SRLevels/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Event is the frame pushed to subscribers.
type Event struct {
	Type string                 `json:"type"`
	Data *models.AnalysisResult `json:"data"`
}

type subscriber struct {
	conn     *websocket.Conn
	send     chan []byte
	exchange string
	symbol   string
}

func (s *subscriber) wants(r *models.AnalysisResult) bool {
	if s.exchange != "" && s.exchange != r.Exchange {
		return false
	}
	return s.symbol == "" || s.symbol == r.Symbol
}

// Hub fans stored results out to websocket subscribers. Subscribers may
// narrow the stream with the exchange and symbol query parameters.
type Hub struct {
	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
	upgrader websocket.Upgrader
	sendBuf  int
	l        *applogger.Logger
}

func NewHub(l *applogger.Logger) *Hub {
	if l == nil {
		l = applogger.NewNop()
	}
	return &Hub{
		subs: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sendBuf: 64,
		l:       l.With("ws_hub"),
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/levels", h.Serve)
}

// Serve upgrades the request and streams events until the client leaves.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", applogger.Error(err))
		return nil
	}
	s := &subscriber{
		conn:     conn,
		send:     make(chan []byte, h.sendBuf),
		exchange: strings.ToLower(c.QueryParam("exchange")),
		symbol:   models.NormalizeSymbol(c.QueryParam("symbol")),
	}
	h.add(s)
	h.l.Debug("subscriber connected", applogger.String("remote", c.RealIP()), applogger.Int("subscribers", h.Clients()))

	go h.writePump(s)
	h.readPump(s)
	return nil
}

// Broadcast queues r for every matching subscriber. A subscriber whose
// buffer is full is disconnected.
func (h *Hub) Broadcast(r *models.AnalysisResult) {
	if r == nil {
		return
	}
	b, err := json.Marshal(Event{Type: "levels", Data: r})
	if err != nil {
		h.l.Error("marshal event", applogger.Error(err))
		return
	}

	var slow []*subscriber
	h.mu.RLock()
	for s := range h.subs {
		if !s.wants(r) {
			continue
		}
		select {
		case s.send <- b:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.l.Warn("dropping slow subscriber")
		h.remove(s)
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()
	for s := range subs {
		close(s.send)
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
}

// remove closes the send channel once; the write pump then closes the
// connection.
func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
}

// readPump discards client frames and detects disconnects.
func (h *Hub) readPump(s *subscriber) {
	defer h.remove(s)
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case b, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
