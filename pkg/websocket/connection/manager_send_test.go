package connection_test

import (
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/smartlamp/lamplink/pkg/websocket/connection"
)

var _ = Describe("ConnectionManager - Send", func() {
	var (
		mgr    connection.ConnectionManager
		dialer *fakeDialer
		rec    *recorder
		logs   *observer.ObservedLogs
	)

	BeforeEach(func() {
		dialer = newFakeDialer()
		rec = &recorder{}

		core, observed := observer.New(zap.WarnLevel)
		logs = observed

		mgr = connection.NewConnectionManager(
			connection.TestConfig(deviceURL),
			dialer,
			zap.New(core),
			nil,
			connection.WithClock(clockwork.NewFakeClock()),
		)
	})

	AfterEach(func() {
		mgr.Close()
	})

	It("should write a JSON text frame when open", func() {
		mgr.Connect(deviceURL, rec.Handlers())
		Eventually(mgr.State).Should(Equal(connection.StateOpen))

		Expect(mgr.Send(map[string]string{"cmd": "toggle"})).To(Succeed())

		Expect(dialer.LastConn().Written()).To(Equal([]string{`{"cmd":"toggle"}`}))
	})

	It("should round-trip a command and its reply", func() {
		mgr.Connect(deviceURL, rec.Handlers())
		Eventually(mgr.State).Should(Equal(connection.StateOpen))
		conn := dialer.LastConn()

		Expect(mgr.Send(map[string]string{"cmd": "toggle"})).To(Succeed())
		conn.Deliver(`{"state":"on"}`)

		Eventually(rec.Messages).Should(Equal([]any{map[string]any{"state": "on"}}))
		Consistently(rec.Messages, "100ms").Should(HaveLen(1))
	})

	It("should drop and log when idle", func() {
		err := mgr.Send(map[string]string{"cmd": "toggle"})

		Expect(err).To(MatchError(connection.ErrNotConnected))
		Expect(logs.FilterMessage("WebSocket not connected, dropping message").Len()).To(Equal(1))
	})

	It("should drop rather than queue while connecting", func() {
		dialer.Hold()
		mgr.Connect(deviceURL, rec.Handlers())
		Eventually(dialer.Attempts).Should(Equal(1))

		Expect(mgr.Send(map[string]string{"cmd": "toggle"})).To(MatchError(connection.ErrNotConnected))

		dialer.Release()
		Eventually(mgr.State).Should(Equal(connection.StateOpen))
		Consistently(dialer.LastConn().Written, "100ms").Should(BeEmpty())
	})

	It("should drop while waiting to reconnect", func() {
		dialer.SetFailing(true)
		mgr.Connect(deviceURL, rec.Handlers())
		Eventually(mgr.State).Should(Equal(connection.StateClosed))

		Expect(mgr.Send("ping")).To(MatchError(connection.ErrNotConnected))
	})

	It("should drop after Close", func() {
		mgr.Connect(deviceURL, rec.Handlers())
		Eventually(mgr.State).Should(Equal(connection.StateOpen))
		mgr.Close()

		Expect(mgr.Send("ping")).To(MatchError(connection.ErrNotConnected))
	})

	It("should return encoding failures without writing", func() {
		mgr.Connect(deviceURL, rec.Handlers())
		Eventually(mgr.State).Should(Equal(connection.StateOpen))

		err := mgr.Send(make(chan int))

		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, connection.ErrNotConnected)).To(BeFalse())
		Expect(dialer.LastConn().Written()).To(BeEmpty())
	})

	It("should serialize concurrent writers", func() {
		mgr.Connect(deviceURL, rec.Handlers())
		Eventually(mgr.State).Should(Equal(connection.StateOpen))

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				defer GinkgoRecover()
				Expect(mgr.Send(map[string]int{"n": n})).To(Succeed())
			}(i)
		}
		wg.Wait()

		Expect(dialer.LastConn().Written()).To(HaveLen(20))
	})

	It("may be called from inside a message handler", func() {
		var handle connection.Handle
		handle = mgr.Connect(deviceURL, connection.Handlers{
			OnMessage: func(any) {
				_ = handle.Send(map[string]string{"ack": "1"})
			},
		})
		Eventually(mgr.State).Should(Equal(connection.StateOpen))
		conn := dialer.LastConn()

		conn.Deliver(`{"type":"status"}`)

		Eventually(conn.Written).Should(Equal([]string{`{"ack":"1"}`}))
	})
})
