package connection

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/smartlamp/lamplink/pkg/websocket/performance"
)

type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	State      ConnectionState `json:"state"`
	Endpoint   string          `json:"endpoint"`
	Retries    int             `json:"retries"`
	Generation uint64          `json:"generation"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// Option customizes a connection manager.
type Option func(*connectionManager)

// WithClock replaces the clock that drives reconnect timers and keepalive pings.
func WithClock(clock clockwork.Clock) Option {
	return func(cm *connectionManager) { cm.clock = clock }
}

// WithCodec replaces the JSON codec.
func WithCodec(codec Codec) Option {
	return func(cm *connectionManager) { cm.codec = codec }
}

// WithStrategy replaces the linear backoff built from Config.
func WithStrategy(strategy ReconnectionStrategy) Option {
	return func(cm *connectionManager) { cm.strategy = strategy }
}

// WithHeader sets extra headers sent with every handshake.
func WithHeader(header http.Header) Option {
	return func(cm *connectionManager) { cm.header = header.Clone() }
}

// connectionManager owns at most one physical connection at a time and
// re-establishes it after transport loss. Every attempt gets a new
// generation; anything tagged with an older generation is superseded and
// ignored.
type connectionManager struct {
	config   Config
	dialer   WebSocketDialer
	strategy ReconnectionStrategy
	codec    Codec
	clock    clockwork.Clock
	metrics  performance.Metrics
	logger   *zap.Logger
	header   http.Header

	mu         sync.Mutex
	state      ConnectionState
	generation uint64
	endpoint   string
	handlers   Handlers
	conn       WebSocketConn
	cancelDial context.CancelFunc
	retryTimer clockwork.Timer
	retries    int
	openedAt   time.Time

	// writeMu serializes frame writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex
	// deliverMu serializes callbacks. Lock order is deliverMu then mu.
	deliverMu sync.Mutex
}

func NewConnectionManager(
	config Config,
	dialer WebSocketDialer,
	logger *zap.Logger,
	metrics performance.Metrics,
	opts ...Option,
) ConnectionManager {
	config.ApplyDefaults()

	if dialer == nil {
		dialer = NewGorillaDialer(config)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = performance.NewNoopMetrics()
	}

	cm := &connectionManager{
		config:   config,
		dialer:   dialer,
		strategy: NewLinearBackoffStrategy(config.BaseDelay, config.MaxRetries),
		codec:    JSONCodec{},
		clock:    clockwork.NewRealClock(),
		metrics:  metrics,
		logger:   logger.Named("websocket"),
		header:   http.Header{},
		state:    StateIdle,
	}

	for _, opt := range opts {
		opt(cm)
	}

	cm.metrics.SetState(StateIdle.String())
	return cm
}

// Connect replaces any existing connection with a new one to endpoint and
// returns immediately; the dial happens in the background. An empty endpoint
// falls back to Config.URL.
func (cm *connectionManager) Connect(endpoint string, handlers Handlers) Handle {
	if endpoint == "" {
		endpoint = cm.config.URL
	}

	cm.mu.Lock()
	previous := cm.supersedeLocked()
	cm.endpoint = endpoint
	cm.handlers = handlers
	cm.retries = 0
	gen, ctx, cancel := cm.beginAttemptLocked()
	cm.mu.Unlock()

	if previous != nil {
		cm.logger.Debug("Closing previous connection before reconnecting")
		cm.closeConn(previous)
	}

	cm.logger.Info("Connecting", zap.String("endpoint", endpoint))
	go cm.dial(gen, ctx, cancel, endpoint)

	return cm
}

// Close terminates the connection, cancels any pending retry and returns the
// manager to idle. No callback fires for this, and no reconnect follows.
func (cm *connectionManager) Close() {
	cm.mu.Lock()
	previous := cm.supersedeLocked()
	wasIdle := cm.state == StateIdle
	cm.retries = 0
	cm.setStateLocked(StateIdle)
	cm.mu.Unlock()

	if previous != nil {
		cm.closeConn(previous)
	}

	if !wasIdle {
		cm.logger.Info("WebSocket closed by caller")
	}
}

// Send encodes v and writes it as one text frame. When the connection is not
// open the message is dropped, logged and ErrNotConnected is returned.
func (cm *connectionManager) Send(v any) error {
	cm.mu.Lock()
	conn := cm.conn
	state := cm.state
	cm.mu.Unlock()

	if state != StateOpen || conn == nil {
		cm.metrics.IncrementDropped()
		cm.logger.Warn("WebSocket not connected, dropping message", zap.Stringer("state", state))
		return ErrNotConnected
	}

	data, err := cm.codec.Encode(v)
	if err != nil {
		cm.metrics.IncrementDropped()
		cm.logger.Error("Failed to encode outbound message", zap.Error(err))
		return err
	}

	cm.writeMu.Lock()
	defer cm.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout)); err != nil {
		cm.metrics.IncrementDropped()
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		cm.metrics.IncrementDropped()
		cm.logger.Warn("WebSocket write failed", zap.Error(err))
		return &TransportError{Op: "write", Endpoint: cm.currentEndpoint(), Err: err}
	}

	cm.metrics.IncrementSent()
	cm.logger.Debug("Sent WebSocket message", zap.Int("bytes", len(data)))
	return nil
}

func (cm *connectionManager) State() ConnectionState {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.state
}

func (cm *connectionManager) Stats() Stats {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	return Stats{
		State:      cm.state,
		Endpoint:   cm.endpoint,
		Retries:    cm.retries,
		Generation: cm.generation,
		OpenedAt:   cm.openedAt,
	}
}

// supersedeLocked invalidates the current generation: it stops the retry
// timer, aborts an in-flight dial and detaches the open connection, which is
// returned for the caller to close outside the lock.
func (cm *connectionManager) supersedeLocked() WebSocketConn {
	cm.generation++

	if cm.retryTimer != nil {
		cm.retryTimer.Stop()
		cm.retryTimer = nil
	}

	if cm.cancelDial != nil {
		cm.cancelDial()
		cm.cancelDial = nil
	}

	conn := cm.conn
	cm.conn = nil
	return conn
}

func (cm *connectionManager) beginAttemptLocked() (uint64, context.Context, context.CancelFunc) {
	cm.generation++
	ctx, cancel := context.WithTimeout(context.Background(), cm.config.ConnectTimeout)
	cm.cancelDial = cancel
	cm.setStateLocked(StateConnecting)
	return cm.generation, ctx, cancel
}

func (cm *connectionManager) setStateLocked(state ConnectionState) {
	if cm.state == state {
		return
	}
	cm.state = state
	cm.metrics.SetState(state.String())
	cm.logger.Debug("Connection state changed", zap.Stringer("state", state))
}

func (cm *connectionManager) currentEndpoint() string {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.endpoint
}

func (cm *connectionManager) dial(gen uint64, ctx context.Context, cancel context.CancelFunc, endpoint string) {
	defer cancel()

	conn, _, err := cm.dialer.DialContext(ctx, endpoint, cm.header.Clone())
	if err != nil {
		if !cm.isCurrent(gen) {
			return
		}
		cm.metrics.IncrementConnectionError()
		cm.logger.Warn("WebSocket dial failed", zap.String("endpoint", endpoint), zap.Error(err))
		cm.reportError(gen, &TransportError{Op: "dial", Endpoint: endpoint, Err: err})
		cm.handleClosed(gen)
		return
	}

	cm.mu.Lock()
	if gen != cm.generation {
		cm.mu.Unlock()
		_ = conn.Close()
		return
	}
	cm.conn = conn
	cm.cancelDial = nil
	cm.retries = 0
	cm.openedAt = cm.clock.Now()
	cm.setStateLocked(StateOpen)
	cm.mu.Unlock()

	cm.logger.Info("WebSocket connected", zap.String("endpoint", endpoint))

	done := make(chan struct{})
	if cm.config.PingInterval > 0 {
		cm.armKeepalive(conn)
		go cm.keepalive(conn, done)
	}

	cm.notifyState(gen, StateOpen)
	cm.readLoop(gen, conn, endpoint, done)
}

func (cm *connectionManager) readLoop(gen uint64, conn WebSocketConn, endpoint string, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			cm.logger.Error("WebSocket read loop panic", zap.Any("panic", r))
			_ = conn.Close()
			cm.handleClosed(gen)
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !cm.isCurrent(gen) {
				// Closed locally by Close or a newer Connect.
				return
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cm.logger.Info("WebSocket closed by remote", zap.Error(err))
			} else {
				cm.metrics.IncrementConnectionError()
				cm.logger.Warn("WebSocket read failed", zap.Error(err))
				cm.reportError(gen, &TransportError{Op: "read", Endpoint: endpoint, Err: err})
			}

			_ = conn.Close()
			cm.handleClosed(gen)
			return
		}

		cm.metrics.IncrementReceived()

		data, err := cm.codec.Decode(message)
		if err != nil {
			cm.metrics.IncrementDecodeError()
			cm.logger.Warn("Dropping malformed WebSocket message", zap.Error(err))
			continue
		}

		cm.deliver(gen, data)
	}
}

// handleClosed runs when the transport for gen went away: it either
// schedules the next automatic attempt or gives up.
func (cm *connectionManager) handleClosed(gen uint64) {
	cm.deliverMu.Lock()
	defer cm.deliverMu.Unlock()

	cm.mu.Lock()
	if gen != cm.generation {
		cm.mu.Unlock()
		return
	}
	cm.conn = nil
	cm.cancelDial = nil
	handlers := cm.handlers

	if cm.retries >= cm.strategy.MaxAttempts() {
		attempts := cm.retries
		cm.setStateLocked(StateIdle)
		cm.mu.Unlock()

		cm.metrics.IncrementGiveUp()
		cm.logger.Error("Giving up on WebSocket reconnection", zap.Int("retries", attempts))

		if handlers.OnStateChange != nil {
			cm.invoke("OnStateChange", func() { handlers.OnStateChange(StateIdle) })
		}
		if handlers.OnGiveUp != nil {
			cm.invoke("OnGiveUp", func() { handlers.OnGiveUp(ErrRetriesExhausted) })
		}
		return
	}

	cm.retries++
	attempt := cm.retries
	delay := cm.strategy.NextDelay(attempt)
	cm.setStateLocked(StateClosed)
	cm.retryTimer = cm.clock.AfterFunc(delay, func() { cm.retry(gen) })
	cm.mu.Unlock()

	cm.logger.Info("WebSocket disconnected, scheduling reconnect",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))

	if handlers.OnStateChange != nil {
		cm.invoke("OnStateChange", func() { handlers.OnStateChange(StateClosed) })
	}
}

// retry fires from the reconnect timer. A timer belonging to a superseded
// generation does nothing.
func (cm *connectionManager) retry(gen uint64) {
	cm.deliverMu.Lock()

	cm.mu.Lock()
	if gen != cm.generation {
		cm.mu.Unlock()
		cm.deliverMu.Unlock()
		return
	}
	cm.retryTimer = nil
	attempt := cm.retries
	endpoint := cm.endpoint
	handlers := cm.handlers
	newGen, ctx, cancel := cm.beginAttemptLocked()
	cm.mu.Unlock()

	if handlers.OnStateChange != nil {
		cm.invoke("OnStateChange", func() { handlers.OnStateChange(StateConnecting) })
	}
	cm.deliverMu.Unlock()

	cm.metrics.IncrementReconnection()
	cm.logger.Info("Reconnecting", zap.Int("attempt", attempt), zap.String("endpoint", endpoint))

	go cm.dial(newGen, ctx, cancel, endpoint)
}

func (cm *connectionManager) deliver(gen uint64, data any) {
	cm.deliverMu.Lock()
	defer cm.deliverMu.Unlock()

	handlers, ok := cm.current(gen)
	if !ok || handlers.OnMessage == nil {
		return
	}
	cm.invoke("OnMessage", func() { handlers.OnMessage(data) })
}

func (cm *connectionManager) reportError(gen uint64, err error) {
	cm.deliverMu.Lock()
	defer cm.deliverMu.Unlock()

	handlers, ok := cm.current(gen)
	if !ok || handlers.OnError == nil {
		return
	}
	cm.invoke("OnError", func() { handlers.OnError(err) })
}

func (cm *connectionManager) notifyState(gen uint64, state ConnectionState) {
	cm.deliverMu.Lock()
	defer cm.deliverMu.Unlock()

	handlers, ok := cm.current(gen)
	if !ok || handlers.OnStateChange == nil {
		return
	}
	cm.invoke("OnStateChange", func() { handlers.OnStateChange(state) })
}

// invoke runs a caller callback, containing any panic it raises.
func (cm *connectionManager) invoke(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			cm.logger.Error("Callback panicked", zap.String("callback", name), zap.Any("panic", r))
		}
	}()
	fn()
}

func (cm *connectionManager) current(gen uint64) (Handlers, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.handlers, gen == cm.generation
}

func (cm *connectionManager) isCurrent(gen uint64) bool {
	_, ok := cm.current(gen)
	return ok
}

// closeConn sends a normal-closure frame and releases the socket.
func (cm *connectionManager) closeConn(conn WebSocketConn) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err := conn.Close(); err != nil {
		cm.logger.Debug("Error closing WebSocket", zap.Error(err))
	}
}

func (cm *connectionManager) armKeepalive(conn WebSocketConn) {
	window := cm.config.PingInterval + cm.config.PongTimeout
	_ = conn.SetReadDeadline(time.Now().Add(window))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(window))
	})
}

// keepalive pings the peer until the read loop for conn exits. A failed ping
// closes the socket so the read loop reports the loss.
func (cm *connectionManager) keepalive(conn WebSocketConn, done <-chan struct{}) {
	ticker := cm.clock.NewTicker(cm.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			deadline := time.Now().Add(cm.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				cm.logger.Debug("Keepalive ping failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}
