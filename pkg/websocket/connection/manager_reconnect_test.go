package connection_test

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/smartlamp/lamplink/pkg/websocket/connection"
)

var _ = Describe("ConnectionManager - Reconnect", func() {
	const base = 3 * time.Second

	var (
		cfg    connection.Config
		mgr    connection.ConnectionManager
		dialer *fakeDialer
		clock  *clockwork.FakeClock
		rec    *recorder
	)

	newManager := func() {
		mgr = connection.NewConnectionManager(cfg, dialer, zap.NewNop(), nil, connection.WithClock(clock))
	}

	// waitForRetry blocks until attempt n has been made and its failure has
	// scheduled the next timer.
	waitForRetry := func(n int) {
		Eventually(dialer.Attempts).Should(Equal(n))
		Eventually(mgr.State).Should(Equal(connection.StateClosed))
	}

	BeforeEach(func() {
		cfg = connection.TestConfig(deviceURL)
		dialer = newFakeDialer()
		clock = clockwork.NewFakeClock()
		rec = &recorder{}
		newManager()
	})

	AfterEach(func() {
		mgr.Close()
	})

	Describe("Linear backoff", func() {
		It("should wait BaseDelay times the retry number", func() {
			dialer.SetFailing(true)
			mgr.Connect(deviceURL, rec.Handlers())
			waitForRetry(1)

			clock.Advance(base - time.Millisecond)
			Consistently(dialer.Attempts, "100ms").Should(Equal(1))
			clock.Advance(time.Millisecond)
			waitForRetry(2)

			clock.Advance(2*base - time.Millisecond)
			Consistently(dialer.Attempts, "100ms").Should(Equal(2))
			clock.Advance(time.Millisecond)
			waitForRetry(3)

			Expect(mgr.Stats().Retries).To(Equal(3))
		})

		It("should reset the retry counter after a successful open", func() {
			dialer.SetFailing(true)
			mgr.Connect(deviceURL, rec.Handlers())
			waitForRetry(1)

			dialer.SetFailing(false)
			clock.Advance(base)
			Eventually(mgr.State).Should(Equal(connection.StateOpen))
			Expect(mgr.Stats().Retries).To(BeZero())

			dialer.LastConn().Drop(errors.New("broken pipe"))
			waitForRetry(2)
			Expect(mgr.Stats().Retries).To(Equal(1))

			clock.Advance(base - time.Millisecond)
			Consistently(dialer.Attempts, "100ms").Should(Equal(2))
			clock.Advance(time.Millisecond)
			Eventually(dialer.Attempts).Should(Equal(3))
			Eventually(mgr.State).Should(Equal(connection.StateOpen))
		})

		It("should reset the retry counter on a caller Connect", func() {
			dialer.SetFailing(true)
			mgr.Connect(deviceURL, rec.Handlers())
			waitForRetry(1)
			clock.Advance(base)
			waitForRetry(2)
			Expect(mgr.Stats().Retries).To(Equal(2))

			mgr.Connect(deviceURL, rec.Handlers())
			waitForRetry(3)
			Expect(mgr.Stats().Retries).To(Equal(1))
		})
	})

	Describe("Retry exhaustion", func() {
		It("should make exactly MaxRetries automatic attempts and then give up", func() {
			dialer.SetFailing(true)
			mgr.Connect(deviceURL, rec.Handlers())

			for i := 1; i <= 5; i++ {
				waitForRetry(i)
				clock.Advance(base * time.Duration(i))
			}

			Eventually(mgr.State).Should(Equal(connection.StateIdle))
			Expect(dialer.Attempts()).To(Equal(6))
			Eventually(rec.GiveUps).Should(Equal([]error{connection.ErrRetriesExhausted}))

			clock.Advance(time.Hour)
			Consistently(dialer.Attempts, "200ms").Should(Equal(6))
		})

		It("should report transport-driven transitions only", func() {
			cfg.MaxRetries = 1
			newManager()
			dialer.SetFailing(true)

			mgr.Connect(deviceURL, rec.Handlers())
			waitForRetry(1)
			clock.Advance(base)

			Eventually(rec.GiveUps).Should(HaveLen(1))
			Expect(rec.States()).To(Equal([]connection.ConnectionState{
				connection.StateClosed,
				connection.StateConnecting,
				connection.StateIdle,
			}))
			Expect(rec.Errors()).To(HaveLen(2))
		})

		It("should never reconnect when MaxRetries is zero", func() {
			cfg.MaxRetries = 0
			newManager()

			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(mgr.State).Should(Equal(connection.StateOpen))
			dialer.LastConn().Drop(errors.New("reset"))

			Eventually(rec.GiveUps).Should(HaveLen(1))
			Expect(mgr.State()).To(Equal(connection.StateIdle))
			clock.Advance(time.Hour)
			Consistently(dialer.Attempts, "100ms").Should(Equal(1))
		})

		It("should stay silent when no give-up handler is supplied", func() {
			cfg.MaxRetries = 0
			newManager()
			dialer.SetFailing(true)

			mgr.Connect(deviceURL, connection.Handlers{OnMessage: func(any) {}})

			Eventually(mgr.State).Should(Equal(connection.StateIdle))
			Consistently(dialer.Attempts, "100ms").Should(Equal(1))
		})

		It("should accept a new Connect after giving up", func() {
			cfg.MaxRetries = 0
			newManager()
			dialer.SetFailing(true)
			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(rec.GiveUps).Should(HaveLen(1))

			dialer.SetFailing(false)
			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(mgr.State).Should(Equal(connection.StateOpen))
		})
	})

	Describe("Custom strategy", func() {
		It("should use the supplied strategy for delays", func() {
			mgr = connection.NewConnectionManager(cfg, dialer, zap.NewNop(), nil,
				connection.WithClock(clock),
				connection.WithStrategy(connection.NewLinearBackoffStrategy(time.Second, 1)))
			dialer.SetFailing(true)

			mgr.Connect(deviceURL, rec.Handlers())
			waitForRetry(1)
			clock.Advance(time.Second)

			Eventually(dialer.Attempts).Should(Equal(2))
			Eventually(mgr.State).Should(Equal(connection.StateIdle))
		})
	})

	Describe("Keepalive", func() {
		It("should ping the peer every interval", func() {
			cfg.PingInterval = time.Second
			newManager()

			mgr.Connect(deviceURL, rec.Handlers())
			Eventually(mgr.State).Should(Equal(connection.StateOpen))
			conn := dialer.LastConn()

			Eventually(func() []int {
				clock.Advance(time.Second)
				return conn.Controls()
			}).Should(ContainElement(websocket.PingMessage))
		})
	})
})

var _ = Describe("LinearBackoffStrategy", func() {
	It("should grow linearly with the attempt number", func() {
		strategy := connection.NewLinearBackoffStrategy(3*time.Second, 5)

		Expect(strategy.NextDelay(1)).To(Equal(3 * time.Second))
		Expect(strategy.NextDelay(2)).To(Equal(6 * time.Second))
		Expect(strategy.NextDelay(5)).To(Equal(15 * time.Second))
		Expect(strategy.MaxAttempts()).To(Equal(5))
	})

	It("should treat non-positive attempts as the first", func() {
		strategy := connection.NewLinearBackoffStrategy(time.Second, 1)
		Expect(strategy.NextDelay(0)).To(Equal(time.Second))
		Expect(strategy.NextDelay(-3)).To(Equal(time.Second))
	})
})
