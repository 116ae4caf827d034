package log

// Logger receives protocol events: bulk containers and class requests
// from pkg/transport, transactions from pkg/interaction, and session,
// transfer and error events from pkg/mtp.
//
// Log is called on the goroutine driving the device while the session is
// held, so a slow Logger slows the transfer. Implementations must be safe
// for concurrent use.
type Logger interface {
	Log(event Event)
}

// LoggerFunc adapts a function to a Logger.
type LoggerFunc func(Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }

// NoopLogger discards all events. The zero value is ready to use.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Enabled reports whether l records anything. nil and NoopLogger do not,
// which lets callers skip building events.
func Enabled(l Logger) bool {
	switch l.(type) {
	case nil, NoopLogger, *NoopLogger:
		return false
	}
	return true
}

var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
)
