package log

import (
	"testing"
	"time"

	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	logger := NoopLogger{}

	event := Event{
		Timestamp: time.Now(),
		SessionID: "test-session",
		Direction: DirectionIn,
		Layer:     LayerTransport,
		Category:  CategoryMessage,
	}
	logger.Log(event)

	event.Container = &ContainerEvent{Type: ptp.ContainerCommand, Code: uint16(ptp.OpOpenSession), Size: 16}
	logger.Log(event)

	event.Container = nil
	event.Transaction = &TransactionEvent{Operation: ptp.OpGetDeviceInfo, TransactionID: 1}
	logger.Log(event)

	event.Transaction = nil
	event.StateChange = &StateChangeEvent{Entity: StateEntitySession, NewState: "OPEN"}
	logger.Log(event)

	event.StateChange = nil
	event.Control = &ControlEvent{Type: ControlCancel, TransactionID: 4}
	logger.Log(event)

	event.Control = nil
	event.Error = &ErrorEventData{Message: "test error"}
	logger.Log(event)
}

func TestLoggerInterfaceSatisfaction(t *testing.T) {
	var _ Logger = NoopLogger{}
	var _ Logger = &NoopLogger{}
}

func TestNoopLoggerIsZeroValue(t *testing.T) {
	var logger NoopLogger
	logger.Log(Event{})
}

func TestEnabled(t *testing.T) {
	var none Logger
	tests := []struct {
		name   string
		logger Logger
		want   bool
	}{
		{"nil", none, false},
		{"noop", NoopLogger{}, false},
		{"noop pointer", &NoopLogger{}, false},
		{"func", LoggerFunc(func(Event) {}), true},
		{"multi", NewMultiLogger(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Enabled(tt.logger); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoggerFunc(t *testing.T) {
	var got []Event
	var l Logger = LoggerFunc(func(ev Event) { got = append(got, ev) })
	l.Log(Event{SessionID: "s1", Device: "0e8d:201d"})
	if len(got) != 1 || got[0].Device != "0e8d:201d" {
		t.Fatalf("got %+v", got)
	}
}
