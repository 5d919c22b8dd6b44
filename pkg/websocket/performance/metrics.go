package performance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ConnectionStates lists every value SetState may receive, so the state
// gauge always exports a full set of series.
var ConnectionStates = []string{"idle", "connecting", "open", "closed"}

type metrics struct {
	messagesReceived prometheus.Counter
	decodeErrors     prometheus.Counter
	messagesSent     prometheus.Counter
	messagesDropped  prometheus.Counter
	connectionErrors prometheus.Counter
	reconnections    prometheus.Counter
	giveUps          prometheus.Counter
	state            *prometheus.GaugeVec
}

// NewMetrics creates and registers the connection metrics on reg. A nil
// registerer falls back to the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer, namespace string) Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	subsystem := "websocket"

	m := &metrics{
		messagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_received_total",
			Help:      "Total number of frames read from the device",
		}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decode_errors_total",
			Help:      "Total number of inbound frames dropped as malformed",
		}),
		messagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_sent_total",
			Help:      "Total number of frames written to the device",
		}),
		messagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_dropped_total",
			Help:      "Total number of outbound messages dropped",
		}),
		connectionErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connection_errors_total",
			Help:      "Total number of transport errors",
		}),
		reconnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconnect_attempts_total",
			Help:      "Total number of automatic reconnect attempts",
		}),
		giveUps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconnect_exhausted_total",
			Help:      "Total number of times automatic reconnection gave up",
		}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connection_state",
			Help:      "1 for the current connection state, 0 otherwise",
		}, []string{"state"}),
	}

	for _, s := range ConnectionStates {
		m.state.WithLabelValues(s).Set(0)
	}

	return m
}

func (m *metrics) IncrementReceived()        { m.messagesReceived.Inc() }
func (m *metrics) IncrementDecodeError()     { m.decodeErrors.Inc() }
func (m *metrics) IncrementSent()            { m.messagesSent.Inc() }
func (m *metrics) IncrementDropped()         { m.messagesDropped.Inc() }
func (m *metrics) IncrementConnectionError() { m.connectionErrors.Inc() }
func (m *metrics) IncrementReconnection()    { m.reconnections.Inc() }
func (m *metrics) IncrementGiveUp()          { m.giveUps.Inc() }

func (m *metrics) SetState(state string) {
	for _, s := range ConnectionStates {
		if s == state {
			m.state.WithLabelValues(s).Set(1)
		} else {
			m.state.WithLabelValues(s).Set(0)
		}
	}
}

type noopMetrics struct{}

// NewNoopMetrics returns a Metrics that records nothing.
func NewNoopMetrics() Metrics {
	return noopMetrics{}
}

func (noopMetrics) IncrementReceived()        {}
func (noopMetrics) IncrementDecodeError()     {}
func (noopMetrics) IncrementSent()            {}
func (noopMetrics) IncrementDropped()         {}
func (noopMetrics) IncrementConnectionError() {}
func (noopMetrics) IncrementReconnection()    {}
func (noopMetrics) IncrementGiveUp()          {}
func (noopMetrics) SetState(string)           {}
