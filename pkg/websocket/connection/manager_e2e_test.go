package connection_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/smartlamp/lamplink/pkg/websocket/connection"
)

// lampServer is a minimal device: it answers {"cmd":"toggle"} with the new
// power state and hangs up on {"cmd":"hangup"}.
func lampServer(connections *int32) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		atomic.AddInt32(connections, 1)

		on := false
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var cmd struct {
				Cmd string `json:"cmd"`
			}
			if err := json.Unmarshal(msg, &cmd); err != nil {
				continue
			}

			switch cmd.Cmd {
			case "toggle":
				on = !on
				state := "off"
				if on {
					state = "on"
				}
				_ = conn.WriteJSON(map[string]string{"state": state})
			case "garbage":
				_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
			case "hangup":
				return
			}
		}
	}))
}

var _ = Describe("ConnectionManager - End to end", func() {
	var (
		server      *httptest.Server
		connections int32
		mgr         connection.ConnectionManager
		rec         *recorder
	)

	BeforeEach(func() {
		atomic.StoreInt32(&connections, 0)
		server = lampServer(&connections)
		rec = &recorder{}

		cfg := connection.TestConfig("ws" + strings.TrimPrefix(server.URL, "http"))
		cfg.BaseDelay = 50 * time.Millisecond
		mgr = connection.NewConnectionManager(cfg, nil, zap.NewNop(), nil)
	})

	AfterEach(func() {
		mgr.Close()
		server.Close()
	})

	It("should exchange JSON messages with a real server", func() {
		mgr.Connect("", rec.Handlers())
		Eventually(mgr.State).Should(Equal(connection.StateOpen))

		Expect(mgr.Send(map[string]string{"cmd": "toggle"})).To(Succeed())

		Eventually(rec.Messages).Should(Equal([]any{map[string]any{"state": "on"}}))
	})

	It("should survive malformed frames from the server", func() {
		mgr.Connect("", rec.Handlers())
		Eventually(mgr.State).Should(Equal(connection.StateOpen))

		Expect(mgr.Send(map[string]string{"cmd": "garbage"})).To(Succeed())
		Expect(mgr.Send(map[string]string{"cmd": "toggle"})).To(Succeed())

		Eventually(rec.Messages).Should(Equal([]any{map[string]any{"state": "on"}}))
		Expect(mgr.State()).To(Equal(connection.StateOpen))
	})

	It("should reconnect after the server hangs up", func() {
		mgr.Connect("", rec.Handlers())
		Eventually(mgr.State).Should(Equal(connection.StateOpen))

		Expect(mgr.Send(map[string]string{"cmd": "hangup"})).To(Succeed())

		Eventually(func() int32 { return atomic.LoadInt32(&connections) }, "2s").Should(Equal(int32(2)))
		Eventually(mgr.State).Should(Equal(connection.StateOpen))
		Expect(mgr.Stats().Retries).To(BeZero())
		Expect(rec.States()).To(ContainElements(connection.StateClosed, connection.StateConnecting, connection.StateOpen))

		Expect(mgr.Send(map[string]string{"cmd": "toggle"})).To(Succeed())
		Eventually(rec.Messages).Should(HaveLen(1))
	})

	It("should give up when the server is gone", func() {
		server.Close()

		cfg := connection.TestConfig("ws" + strings.TrimPrefix(server.URL, "http"))
		cfg.BaseDelay = 10 * time.Millisecond
		cfg.MaxRetries = 2
		mgr = connection.NewConnectionManager(cfg, nil, zap.NewNop(), nil)

		mgr.Connect("", rec.Handlers())

		Eventually(rec.GiveUps, "2s").Should(Equal([]error{connection.ErrRetriesExhausted}))
		Expect(rec.Errors()).To(HaveLen(3))
		Expect(mgr.State()).To(Equal(connection.StateIdle))
	})
})
