package ports

import "time"

// Connection outcomes reported to ServerMetrics.
const (
	OutcomeServed = "served"
	OutcomeFailed = "failed"
)

// ServerMetrics receives connection lifecycle events from the supervisor.
type ServerMetrics interface {
	ConnectionOpened()
	// ConnectionClosed reports the end of a connection task. errorCode is empty
	// for served connections.
	ConnectionClosed(outcome, errorCode string, duration time.Duration)
	RequestServed(method string, statusCode int)
}

// NoopMetrics discards every event.
type NoopMetrics struct{}

func (NoopMetrics) ConnectionOpened()                              {}
func (NoopMetrics) ConnectionClosed(string, string, time.Duration) {}
func (NoopMetrics) RequestServed(string, int)                      {}
