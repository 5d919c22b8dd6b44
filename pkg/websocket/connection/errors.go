package connection

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send when no connection is open. The
	// message is dropped, not queued.
	ErrNotConnected = errors.New("websocket not connected")

	// ErrRetriesExhausted is handed to OnGiveUp once automatic reconnection stops.
	ErrRetriesExhausted = errors.New("websocket reconnect attempts exhausted")
)

// TransportError wraps a failure of the underlying socket: a failed dial, a
// read error or an abnormal close. It is delivered through OnError and never
// stops the retry machinery.
type TransportError struct {
	Op       string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("websocket %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError describes an inbound frame that could not be parsed. It is
// logged and counted, never surfaced to OnMessage.
type DecodeError struct {
	Size int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %d byte frame: %v", e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// JSONCodec encodes values with encoding/json and decodes frames into the
// generic JSON shapes (map[string]any, []any, float64, string, bool, nil).
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, &DecodeError{Size: len(data), Err: err}
	}
	return v, nil
}
