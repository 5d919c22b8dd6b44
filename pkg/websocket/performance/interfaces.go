package performance

// Metrics defines metrics collection operations for a connection manager
type Metrics interface {
	IncrementReceived()
	IncrementDecodeError()
	IncrementSent()
	IncrementDropped()
	IncrementConnectionError()
	IncrementReconnection()
	IncrementGiveUp()
	SetState(state string)
}
