package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	clientBuffer   = 256
	fanoutBuffer   = 256
)

// Feed message types.
const (
	TypeEnvelopeReceived = "envelope_received"
	TypeEventDispatched  = "event_dispatched"
)

// FeedMessage is one update pushed to live dashboard clients.
type FeedMessage struct {
	Type       string    `json:"type"`
	EnvelopeID string    `json:"envelope_id"`
	ProjectID  int64     `json:"project_id"`
	ItemID     string    `json:"item_id,omitempty"`
	Level      string    `json:"level,omitempty"`
	Message    string    `json:"message,omitempty"`
	Items      int       `json:"items,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Subscription narrows what a client receives. The zero value receives
// everything.
type Subscription struct {
	ProjectID int64
	MinLevel  domain.Level
}

// ParseSubscription reads the project_id and min_level query parameters.
func ParseSubscription(r *http.Request) (Subscription, error) {
	var sub Subscription
	q := r.URL.Query()
	if raw := q.Get("project_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return sub, &queryError{param: "project_id", value: raw}
		}
		sub.ProjectID = id
	}
	if raw := q.Get("min_level"); raw != "" {
		level, err := domain.ParseLevel(raw)
		if err != nil {
			return sub, &queryError{param: "min_level", value: raw}
		}
		sub.MinLevel = level
	}
	return sub, nil
}

type queryError struct {
	param string
	value string
}

func (e *queryError) Error() string {
	return "invalid " + e.param + " " + strconv.Quote(e.value)
}

// wants reports whether a message for project at level passes the
// subscription. Messages without a level only match on project.
func (s Subscription) wants(project int64, level domain.Level, hasLevel bool) bool {
	if s.ProjectID != 0 && s.ProjectID != project {
		return false
	}
	if hasLevel && level < s.MinLevel {
		return false
	}
	return true
}

type outbound struct {
	project  int64
	level    domain.Level
	hasLevel bool
	payload  []byte
}

// Hub fans feed messages out to connected WebSocket clients. It is also a
// sender, so it can be registered for any level.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	fanout chan outbound
	joins  chan join
	leaves chan *peer
	closed chan struct{}

	mu    sync.RWMutex
	peers map[*peer]Subscription
}

type peer struct {
	conn  *websocket.Conn
	queue chan []byte
}

type join struct {
	peer *peer
	sub  Subscription
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		fanout: make(chan outbound, fanoutBuffer),
		joins:  make(chan join),
		leaves: make(chan *peer),
		closed: make(chan struct{}),
		peers:  make(map[*peer]Subscription),
	}
}

// Run owns the peer set until ctx is cancelled, then disconnects every
// peer.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-h.joins:
			h.mu.Lock()
			h.peers[j.peer] = j.sub
			total := len(h.peers)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected",
				"total_clients", total,
				"project_id", j.sub.ProjectID,
				"min_level", j.sub.MinLevel.String(),
			)
		case p := <-h.leaves:
			h.drop(p)
			h.logger.Debug("websocket client disconnected", "total_clients", h.count())
		case out := <-h.fanout:
			h.deliver(out)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.closed)
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		delete(h.peers, p)
		close(p.queue)
	}
}

func (h *Hub) drop(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[p]; ok {
		delete(h.peers, p)
		close(p.queue)
	}
}

func (h *Hub) deliver(out outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p, sub := range h.peers {
		if !sub.wants(out.project, out.level, out.hasLevel) {
			continue
		}
		select {
		case p.queue <- out.payload:
		default:
			// Peer is not keeping up.
			delete(h.peers, p)
			close(p.queue)
			h.logger.Warn("dropping slow websocket client")
		}
	}
}

func (h *Hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Broadcast queues msg for matching clients without blocking. The message
// is dropped when the hub is backed up.
func (h *Hub) Broadcast(msg FeedMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", "error", err)
		return
	}

	out := outbound{project: msg.ProjectID, payload: payload}
	if msg.Level != "" {
		if level, err := domain.ParseLevel(msg.Level); err == nil {
			out.level, out.hasLevel = level, true
		}
	}

	select {
	case h.fanout <- out:
	default:
		h.logger.Warn("websocket broadcast channel full, dropping message", "type", msg.Type)
	}
}

func (h *Hub) Name() string {
	return "websocket"
}

// Send publishes a dispatched event to the live feed.
func (h *Hub) Send(_ context.Context, ev *domain.Event) error {
	h.Broadcast(FeedMessage{
		Type:       TypeEventDispatched,
		EnvelopeID: ev.EnvelopeID,
		ProjectID:  ev.Project.ID,
		ItemID:     ev.EventID,
		Level:      ev.Level.String(),
		Message:    ev.Message(),
	})
	return nil
}

// HandleWebSocket upgrades the request and subscribes the client using
// the project_id and min_level query parameters.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sub, err := ParseSubscription(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	p := &peer{conn: conn, queue: make(chan []byte, clientBuffer)}
	select {
	case h.joins <- join{peer: p, sub: sub}:
	case <-h.closed:
		conn.Close()
		return
	}

	go h.write(p)
	go h.read(p)
}

// read discards client frames so control frames are handled, and removes
// the peer when the connection ends.
func (h *Hub) read(p *peer) {
	defer func() {
		select {
		case h.leaves <- p:
		case <-h.closed:
		}
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	extend := func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	extend("")
	p.conn.SetPongHandler(extend)

	for {
		if _, _, err := p.conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) write(p *peer) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-p.queue:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return h.count()
}
