package connection_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smartlamp/lamplink/pkg/websocket/connection"
)

var errClosedConn = errors.New("use of closed network connection")

type inboundFrame struct {
	data []byte
	err  error
}

// fakeConn is an in-memory WebSocketConn. Frames pushed with Deliver are
// returned by ReadMessage; Close unblocks a pending read with an error.
type fakeConn struct {
	inbound   chan inboundFrame
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	written  []string
	controls []int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan inboundFrame, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Deliver(text string) {
	c.inbound <- inboundFrame{data: []byte(text)}
}

// Drop makes the next read fail with err, as a network failure would.
func (c *fakeConn) Drop(err error) {
	c.inbound <- inboundFrame{err: err}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, errClosedConn
	default:
	}

	select {
	case f := <-c.inbound:
		if f.err != nil {
			return 0, nil, f.err
		}
		return websocket.TextMessage, f.data, nil
	case <-c.closed:
		return 0, nil, errClosedConn
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if c.IsClosed() {
		return errClosedConn
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, string(data))
	return nil
}

func (c *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	if c.IsClosed() {
		return errClosedConn
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, messageType)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

func (c *fakeConn) Controls() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.controls...)
}

// fakeDialer hands out fakeConns, or fails every attempt while failing is set.
// With hold set, DialContext waits for Release or context cancellation.
type fakeDialer struct {
	mu        sync.Mutex
	attempts  int
	endpoints []string
	conns     []*fakeConn
	failing   bool
	hold      chan struct{}
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{}
}

func (d *fakeDialer) DialContext(ctx context.Context, urlStr string, _ http.Header) (connection.WebSocketConn, *http.Response, error) {
	d.mu.Lock()
	d.attempts++
	d.endpoints = append(d.endpoints, urlStr)
	failing := d.failing
	hold := d.hold
	d.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	if failing {
		return nil, nil, errors.New("dial tcp: connection refused")
	}

	conn := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil, nil
}

func (d *fakeDialer) SetFailing(failing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing = failing
}

func (d *fakeDialer) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hold = make(chan struct{})
}

func (d *fakeDialer) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hold != nil {
		close(d.hold)
		d.hold = nil
	}
}

func (d *fakeDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) Endpoints() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.endpoints...)
}

func (d *fakeDialer) Conns() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

func (d *fakeDialer) LastConn() *fakeConn {
	conns := d.Conns()
	if len(conns) == 0 {
		return nil
	}
	return conns[len(conns)-1]
}

// OpenConns counts connections that have not been closed.
func (d *fakeDialer) OpenConns() int {
	open := 0
	for _, c := range d.Conns() {
		if !c.IsClosed() {
			open++
		}
	}
	return open
}

// recorder captures every callback the manager makes.
type recorder struct {
	mu       sync.Mutex
	messages []any
	errs     []error
	states   []connection.ConnectionState
	giveUps  []error
}

func (r *recorder) Handlers() connection.Handlers {
	return connection.Handlers{
		OnMessage: func(data any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.messages = append(r.messages, data)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
		OnStateChange: func(state connection.ConnectionState) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, state)
		},
		OnGiveUp: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.giveUps = append(r.giveUps, err)
		},
	}
}

func (r *recorder) Messages() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.messages...)
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) States() []connection.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]connection.ConnectionState(nil), r.states...)
}

func (r *recorder) GiveUps() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.giveUps...)
}
