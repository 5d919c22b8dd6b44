package connection_test

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/smartlamp/lamplink/pkg/websocket/connection"
)

const deviceURL = "ws://device/ws"

var _ = Describe("ConnectionManager - Lifecycle", func() {
	var (
		mgr    connection.ConnectionManager
		dialer *fakeDialer
		clock  *clockwork.FakeClock
		rec    *recorder
		logs   *observer.ObservedLogs
	)

	BeforeEach(func() {
		dialer = newFakeDialer()
		clock = clockwork.NewFakeClock()
		rec = &recorder{}

		core, observed := observer.New(zap.DebugLevel)
		logs = observed

		mgr = connection.NewConnectionManager(
			connection.TestConfig(deviceURL),
			dialer,
			zap.New(core),
			nil,
			connection.WithClock(clock),
		)
	})

	AfterEach(func() {
		mgr.Close()
	})

	Describe("Initial State", func() {
		It("should start Idle", func() {
			Expect(mgr.State()).To(Equal(connection.StateIdle))
			Expect(mgr.Stats().Retries).To(BeZero())
		})
	})

	Describe("Connect", func() {
		It("should dial the endpoint and open", func() {
			mgr.Connect(deviceURL, rec.Handlers())

			Eventually(mgr.State).Should(Equal(connection.StateOpen))
			Expect(dialer.Endpoints()).To(Equal([]string{deviceURL}))
			Eventually(rec.States).Should(ContainElement(connection.StateOpen))
		})

		It("should fall back to the configured URL when endpoint is empty", func() {
			mgr.Connect("", rec.Handlers())

			Eventually(dialer.Attempts).Should(Equal(1))
			Expect(dialer.Endpoints()[0]).To(Equal(deviceURL))
		})

		It("should return a handle bound to the manager", func() {
			handle := mgr.Connect(deviceURL, rec.Handlers())
			Eventually(mgr.State).Should(Equal(connection.StateOpen))

			Expect(handle.Send(map[string]string{"cmd": "toggle"})).To(Succeed())
			handle.Close()
			Expect(mgr.State()).To(Equal(connection.StateIdle))
		})

		It("should close the previous connection before opening a new one", func() {
			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(mgr.State).Should(Equal(connection.StateOpen))
			first := dialer.LastConn()

			mgr.Connect(deviceURL, rec.Handlers())

			Expect(first.IsClosed()).To(BeTrue())
			Expect(first.Controls()).To(ContainElement(websocket.CloseMessage))
			Eventually(dialer.Attempts).Should(Equal(2))
			Eventually(mgr.State).Should(Equal(connection.StateOpen))
			Expect(dialer.OpenConns()).To(Equal(1))
		})

		It("should never let a superseded connection schedule a retry", func() {
			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(mgr.State).Should(Equal(connection.StateOpen))

			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(mgr.State).Should(Equal(connection.StateOpen))

			clock.Advance(time.Hour)
			Consistently(dialer.Attempts, "200ms").Should(Equal(2))
			Expect(mgr.Stats().Retries).To(BeZero())
		})

		It("should discard a dial that completes after being superseded", func() {
			dialer.Hold()
			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(dialer.Attempts).Should(Equal(1))
			Expect(mgr.State()).To(Equal(connection.StateConnecting))

			dialer.Release()
			mgr.Connect("ws://other/ws", rec.Handlers())

			Eventually(mgr.State).Should(Equal(connection.StateOpen))
			Eventually(dialer.OpenConns).Should(Equal(1))
			Consistently(dialer.OpenConns, "200ms").Should(Equal(1))
			Expect(mgr.Stats().Endpoint).To(Equal("ws://other/ws"))
		})
	})

	Describe("Close", func() {
		It("should return to Idle and close the socket", func() {
			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(mgr.State).Should(Equal(connection.StateOpen))
			conn := dialer.LastConn()

			mgr.Close()

			Expect(mgr.State()).To(Equal(connection.StateIdle))
			Expect(conn.IsClosed()).To(BeTrue())
		})

		It("should be idempotent", func() {
			mgr.Close()
			mgr.Close()
			Expect(mgr.State()).To(Equal(connection.StateIdle))
		})

		It("should ignore the close event of the old socket", func() {
			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(mgr.State).Should(Equal(connection.StateOpen))

			mgr.Close()
			clock.Advance(time.Hour)

			Consistently(dialer.Attempts, "200ms").Should(Equal(1))
			Expect(mgr.State()).To(Equal(connection.StateIdle))
			Expect(rec.Errors()).To(BeEmpty())
		})

		It("should cancel a pending reconnect", func() {
			dialer.SetFailing(true)
			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(mgr.State).Should(Equal(connection.StateClosed))

			mgr.Close()
			dialer.SetFailing(false)
			clock.Advance(time.Hour)

			Consistently(dialer.Attempts, "200ms").Should(Equal(1))
			Expect(mgr.State()).To(Equal(connection.StateIdle))
		})

		It("may be called from inside a message handler", func() {
			var handle connection.Handle
			handle = mgr.Connect(deviceURL, connection.Handlers{
				OnMessage: func(any) { handle.Close() },
			})
			Eventually(mgr.State).Should(Equal(connection.StateOpen))

			dialer.LastConn().Deliver(`{"state":"off"}`)

			Eventually(mgr.State).Should(Equal(connection.StateIdle))
		})
	})

	Describe("Inbound messages", func() {
		It("should decode JSON frames and deliver them in order", func() {
			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(mgr.State).Should(Equal(connection.StateOpen))
			conn := dialer.LastConn()

			conn.Deliver(`{"seq":1}`)
			conn.Deliver(`{"seq":2}`)
			conn.Deliver(`[3]`)

			Eventually(rec.Messages).Should(HaveLen(3))
			Expect(rec.Messages()).To(Equal([]any{
				map[string]any{"seq": float64(1)},
				map[string]any{"seq": float64(2)},
				[]any{float64(3)},
			}))
		})

		It("should drop malformed frames without closing or counting a retry", func() {
			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(mgr.State).Should(Equal(connection.StateOpen))
			conn := dialer.LastConn()

			conn.Deliver(`{"state":`)
			conn.Deliver(`{"state":"on"}`)

			Eventually(rec.Messages).Should(Equal([]any{map[string]any{"state": "on"}}))
			Expect(mgr.State()).To(Equal(connection.StateOpen))
			Expect(mgr.Stats().Retries).To(BeZero())
			Expect(conn.IsClosed()).To(BeFalse())
			Expect(rec.Errors()).To(BeEmpty())
			Expect(logs.FilterMessage("Dropping malformed WebSocket message").Len()).To(Equal(1))
		})

		It("should never run handlers concurrently", func() {
			var active, maxActive, calls int32
			mgr.Connect(deviceURL, connection.Handlers{
				OnMessage: func(any) {
					defer atomic.AddInt32(&calls, 1)
					n := atomic.AddInt32(&active, 1)
					for {
						m := atomic.LoadInt32(&maxActive)
						if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					atomic.AddInt32(&active, -1)
				},
			})
			Eventually(mgr.State).Should(Equal(connection.StateOpen))
			conn := dialer.LastConn()

			for i := 0; i < 10; i++ {
				conn.Deliver(`{}`)
			}

			Eventually(func() int32 { return atomic.LoadInt32(&calls) }).Should(Equal(int32(10)))
			Expect(atomic.LoadInt32(&maxActive)).To(Equal(int32(1)))
		})

		It("should keep reading after a handler panics", func() {
			calls := int32(0)
			mgr.Connect(deviceURL, connection.Handlers{
				OnMessage: func(any) {
					if atomic.AddInt32(&calls, 1) == 1 {
						panic("boom")
					}
				},
			})
			Eventually(mgr.State).Should(Equal(connection.StateOpen))
			conn := dialer.LastConn()

			conn.Deliver(`{}`)
			conn.Deliver(`{}`)

			Eventually(func() int32 { return atomic.LoadInt32(&calls) }).Should(Equal(int32(2)))
			Expect(mgr.State()).To(Equal(connection.StateOpen))
		})
	})

	Describe("Transport errors", func() {
		It("should report read failures through OnError and reconnect", func() {
			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(mgr.State).Should(Equal(connection.StateOpen))

			dialer.LastConn().Drop(errors.New("connection reset by peer"))

			Eventually(mgr.State).Should(Equal(connection.StateClosed))
			Expect(rec.Errors()).To(HaveLen(1))

			var transportErr *connection.TransportError
			Expect(errors.As(rec.Errors()[0], &transportErr)).To(BeTrue())
			Expect(transportErr.Op).To(Equal("read"))
			Expect(transportErr.Endpoint).To(Equal(deviceURL))

			clock.Advance(3 * time.Second)
			Eventually(dialer.Attempts).Should(Equal(2))
			Eventually(mgr.State).Should(Equal(connection.StateOpen))
		})

		It("should treat a clean remote close as a close without an error", func() {
			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(mgr.State).Should(Equal(connection.StateOpen))

			dialer.LastConn().Drop(&websocket.CloseError{Code: websocket.CloseNormalClosure})

			Eventually(mgr.State).Should(Equal(connection.StateClosed))
			Expect(rec.Errors()).To(BeEmpty())
			Expect(mgr.Stats().Retries).To(Equal(1))
		})

		It("should report dial failures as transport errors", func() {
			dialer.SetFailing(true)
			mgr.Connect(deviceURL, rec.Handlers())

			Eventually(rec.Errors).Should(HaveLen(1))
			var transportErr *connection.TransportError
			Expect(errors.As(rec.Errors()[0], &transportErr)).To(BeTrue())
			Expect(transportErr.Op).To(Equal("dial"))
		})
	})
})
