package connection

import (
	"time"
)

// Handle is what Connect hands back to callers that only need to talk to
// the device.
type Handle interface {
	Send(v any) error
	Close()
}

// ConnectionManager Interface defines WebSocket connection operations
type ConnectionManager interface {
	Handle
	Connect(endpoint string, handlers Handlers) Handle
	State() ConnectionState
	Stats() Stats
}

// ReconnectionStrategy Interface defines strategies for reconnection backoff
type ReconnectionStrategy interface {
	// NextDelay returns the wait before automatic retry number attempt (1-based).
	NextDelay(attempt int) time.Duration
	MaxAttempts() int
}

// Codec turns application values into frames and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// Handlers is the caller-supplied callback set. Only OnMessage is required.
//
// Callbacks are invoked one at a time, in arrival order, from the manager's
// own goroutines. Connect, Send and Close never invoke a callback, so it is
// safe to call them from inside one.
type Handlers struct {
	OnMessage func(data any)
	// OnError receives a *TransportError. It is advisory: recovery proceeds
	// whether or not the caller reacts.
	OnError func(err error)
	// OnStateChange reports transitions driven by the transport and the
	// reconnect timer. Caller-initiated Connect and Close are not reported.
	OnStateChange func(state ConnectionState)
	// OnGiveUp fires once with ErrRetriesExhausted when automatic retries
	// run out. Leaving it nil keeps retry exhaustion silent.
	OnGiveUp func(err error)
}
