package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lockup-ledger/internal/domain"
)

// ClientConfig configures feed client behavior.
type ClientConfig struct {
	// Token restricts the feed to one pool; empty means all pools.
	Token domain.Address
	// FromSeq is the first event wanted. Zero starts with live events.
	FromSeq uint64
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// DefaultClientConfig returns default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	def := DefaultClientConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = max(def.MaxReconnectDelay, c.ReconnectDelay)
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}

var errClientClosed = errors.New("client closed")

// Client follows a feed endpoint and delivers events in seq order.
// After a dropped connection it redials from the last delivered seq, so a
// server with history never leaves a gap.
type Client struct {
	endpoint string
	config   ClientConfig
	logger   *zap.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	lastSeq atomic.Uint64
	events  chan domain.Event

	done chan struct{}
	wg   sync.WaitGroup
}

// Dial connects to a feed endpoint such as ws://host:8080/ws.
func Dial(ctx context.Context, endpoint string, config *ClientConfig) (*Client, error) {
	cfg := DefaultClientConfig()
	if config != nil {
		cfg = config.withDefaults()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger.Named("feed-client"),
		events:   make(chan domain.Event, 1024),
		done:     make(chan struct{}),
	}
	if cfg.FromSeq > 0 {
		c.lastSeq.Store(cfg.FromSeq - 1)
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// Events returns the delivery channel. It is closed by Close.
func (c *Client) Events() <-chan domain.Event {
	return c.events
}

// LastSeq returns the seq of the last delivered event.
func (c *Client) LastSeq() uint64 {
	return c.lastSeq.Load()
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	if !c.config.Token.IsZero() {
		q.Set("token", c.config.Token.String())
	}
	if last := c.lastSeq.Load(); last > 0 || c.config.FromSeq > 0 {
		q.Set("from", strconv.FormatUint(last+1, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) connect(ctx context.Context) error {
	target, err := c.dialURL()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed.Load() {
		conn.Close()
		return errClientClosed
	}
	c.conn = conn
	return nil
}

// Close closes the connection and the events channel.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.config.WriteTimeout))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	close(c.events)
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn("feed connection lost", zap.Uint64("last_seq", c.lastSeq.Load()), zap.Error(err))
			if !c.reconnect() {
				return
			}
			continue
		}

		// Duplicates appear when a backfill overlaps the live stream.
		if msg.Seq <= c.lastSeq.Load() {
			continue
		}
		ev, err := msg.Event()
		if err != nil {
			c.logger.Warn("skipping malformed event", zap.Error(err))
			continue
		}

		select {
		case c.events <- ev:
			c.lastSeq.Store(ev.Seq)
		case <-c.done:
			return
		}
	}
}

// reconnect redials with exponential backoff until it succeeds or the client closes.
func (c *Client) reconnect() bool {
	delay := c.config.ReconnectDelay

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	for {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.connect(ctx)
		cancel()
		if err == nil {
			c.logger.Info("feed reconnected", zap.Uint64("from_seq", c.lastSeq.Load()+1))
			return true
		}
		if errors.Is(err, errClientClosed) {
			return false
		}
		c.logger.Debug("reconnect failed", zap.Duration("delay", delay), zap.Error(err))

		delay *= 2
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
	}
}

func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
			}
			c.connMu.Unlock()
		}
	}
}
