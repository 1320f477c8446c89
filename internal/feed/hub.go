package feed

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/lockup"
	"lockup-ledger/internal/observability"
	"lockup-ledger/internal/storage"
)

// HubConfig configures a Hub.
type HubConfig struct {
	// History backfills events a client missed; optional.
	History storage.EventStore
	// BufferSize is the per-client queue; a client that falls this far behind is dropped.
	BufferSize int
	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration
	// PingInterval is the interval for server ping frames.
	PingInterval time.Duration
	Logger       *zap.Logger
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:   1024,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Hub broadcasts committed ledger events to websocket subscribers.
// Clients connect with optional query parameters token (filter) and
// from (first seq wanted, served from History).
type Hub struct {
	config   HubConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*subscriber]struct{}
	closed  bool
}

type subscriber struct {
	token domain.Address
	send  chan Message
	done  chan struct{}
	once  sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewHub creates a hub.
func NewHub(config HubConfig) *Hub {
	def := DefaultHubConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		config: config,
		logger: logger.Named("feed"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*subscriber]struct{}),
	}
}

// Compile-time interface check.
var _ lockup.EventSink = (*Hub)(nil)

// Publish queues events for every matching subscriber. It never blocks:
// subscribers with a full queue are disconnected.
func (h *Hub) Publish(_ context.Context, events []domain.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.clients {
	deliver:
		for _, ev := range events {
			if !sub.token.IsZero() && ev.Token != sub.token {
				continue
			}
			select {
			case <-sub.done:
				break deliver
			case sub.send <- FromEvent(ev):
			default:
				observability.RecordFeedDrop()
				h.logger.Warn("dropping slow subscriber", zap.Uint64("seq", ev.Seq))
				sub.stop()
				break deliver
			}
		}
	}
	return nil
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all subscribers and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.clients {
		sub.stop()
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var from uint64
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = n
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := &subscriber{
		token: domain.Address(r.URL.Query().Get("token")),
		send:  make(chan Message, h.config.BufferSize),
		done:  make(chan struct{}),
	}
	if !h.register(sub) {
		return
	}
	defer h.unregister(sub)

	// Live events queue up while the backfill is written.
	last := uint64(0)
	if from > 0 && h.config.History != nil {
		last, err = h.backfill(r.Context(), conn, sub, from)
		if err != nil {
			h.logger.Warn("backfill failed", zap.Uint64("from", from), zap.Error(err))
			return
		}
	}

	go h.readLoop(conn, sub)
	h.writeLoop(conn, sub, last)
}

func (h *Hub) register(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[sub] = struct{}{}
	observability.UpdateFeedClients(len(h.clients))
	return true
}

func (h *Hub) unregister(sub *subscriber) {
	sub.stop()
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, sub)
	observability.UpdateFeedClients(len(h.clients))
}

func (h *Hub) backfill(ctx context.Context, conn *websocket.Conn, sub *subscriber, from uint64) (uint64, error) {
	var (
		events []*domain.Event
		err    error
	)
	if sub.token.IsZero() {
		events, err = h.config.History.GetBySeqRange(ctx, from, ^uint64(0))
	} else {
		events, err = h.config.History.GetByToken(ctx, sub.token)
	}
	if err != nil {
		return 0, err
	}

	last := from - 1
	for _, ev := range events {
		if ev.Seq < from {
			continue
		}
		if err := h.write(conn, FromEvent(*ev)); err != nil {
			return 0, err
		}
		last = ev.Seq
	}
	return last, nil
}

// writeLoop forwards queued messages, skipping any already sent by the backfill.
func (h *Hub) writeLoop(conn *websocket.Conn, sub *subscriber, last uint64) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.config.WriteTimeout))
			return
		case msg := <-sub.send:
			if msg.Seq <= last {
				continue
			}
			if err := h.write(conn, msg); err != nil {
				return
			}
			last = msg.Seq
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, msg Message) error {
	conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	return conn.WriteJSON(msg)
}

// readLoop discards client frames; it ends the subscription when the client goes away.
func (h *Hub) readLoop(conn *websocket.Conn, sub *subscriber) {
	defer sub.stop()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
