package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smartlamp/lamplink/internal/lamp"
	"github.com/smartlamp/lamplink/pkg/websocket/connection"
)

// fakeManager stands in for the connection manager. Tests drive the
// callbacks directly through Handlers().
type fakeManager struct {
	mu       sync.Mutex
	handlers connection.Handlers
	state    connection.ConnectionState
	sent     []any
	connects int
	closes   int
}

func (m *fakeManager) Connect(_ string, handlers connection.Handlers) connection.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = handlers
	m.state = connection.StateOpen
	m.connects++
	return m
}

func (m *fakeManager) Send(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != connection.StateOpen {
		return connection.ErrNotConnected
	}
	m.sent = append(m.sent, v)
	return nil
}

func (m *fakeManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = connection.StateIdle
	m.closes++
}

func (m *fakeManager) State() connection.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *fakeManager) Stats() connection.Stats {
	return connection.Stats{State: m.State()}
}

func (m *fakeManager) SetState(state connection.ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

func (m *fakeManager) Handlers() connection.Handlers {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers
}

func (m *fakeManager) Sent() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.sent...)
}

// mockFetcher is a testify mock of StatusFetcher.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchStatus(ctx context.Context) (*lamp.Status, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(*lamp.Status)
	return status, args.Error(1)
}

// frame decodes text the way the connection manager does.
func frame(t *testing.T, text string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(text), &v))
	return v
}

// nextEvent waits briefly for an event on ch.
func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s: %v", ev.Type, ev.Data)
	default:
	}
}
