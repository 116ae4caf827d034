package log

import (
	"testing"

	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

func TestDirectionString(t *testing.T) {
	tests := []struct {
		dir  Direction
		want string
	}{
		{DirectionIn, "IN"},
		{DirectionOut, "OUT"},
		{Direction(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.dir.String()
		if got != tt.want {
			t.Errorf("Direction(%d).String() = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func TestLayerString(t *testing.T) {
	tests := []struct {
		layer Layer
		want  string
	}{
		{LayerTransport, "TRANSPORT"},
		{LayerProtocol, "PROTOCOL"},
		{LayerSession, "SESSION"},
		{Layer(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.layer.String()
		if got != tt.want {
			t.Errorf("Layer(%d).String() = %q, want %q", tt.layer, got, tt.want)
		}
	}
}

func TestCategoryString(t *testing.T) {
	tests := []struct {
		cat  Category
		want string
	}{
		{CategoryMessage, "MESSAGE"},
		{CategoryControl, "CONTROL"},
		{CategoryState, "STATE"},
		{CategoryError, "ERROR"},
		{CategoryTransfer, "TRANSFER"},
		{Category(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.cat.String()
		if got != tt.want {
			t.Errorf("Category(%d).String() = %q, want %q", tt.cat, got, tt.want)
		}
	}
}

func TestStateEntityString(t *testing.T) {
	tests := []struct {
		entity StateEntity
		want   string
	}{
		{StateEntitySession, "SESSION"},
		{StateEntityTransfer, "TRANSFER"},
		{StateEntityStorage, "STORAGE"},
		{StateEntity(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.entity.String()
		if got != tt.want {
			t.Errorf("StateEntity(%d).String() = %q, want %q", tt.entity, got, tt.want)
		}
	}
}

func TestControlTypeString(t *testing.T) {
	tests := []struct {
		ct   ControlType
		want string
	}{
		{ControlCancel, "CANCEL"},
		{ControlDeviceStatus, "DEVICE_STATUS"},
		{ControlReset, "RESET"},
		{ControlType(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.ct.String()
		if got != tt.want {
			t.Errorf("ControlType(%d).String() = %q, want %q", tt.ct, got, tt.want)
		}
	}
}

func TestEnumValuesAreStable(t *testing.T) {
	// Values are persisted in .mtplog files.
	if DirectionIn != 0 || DirectionOut != 1 {
		t.Error("Direction values changed")
	}
	if LayerTransport != 0 || LayerProtocol != 1 || LayerSession != 2 {
		t.Error("Layer values changed")
	}
	if CategoryMessage != 0 || CategoryControl != 1 || CategoryState != 2 || CategoryError != 3 || CategoryTransfer != 4 {
		t.Error("Category values changed")
	}
	if StateEntitySession != 0 || StateEntityTransfer != 1 || StateEntityStorage != 2 {
		t.Error("StateEntity values changed")
	}
}

func TestEventOperation(t *testing.T) {
	tests := []struct {
		name   string
		event  Event
		wantOp ptp.OperationCode
		wantOK bool
	}{
		{
			name:   "transaction",
			event:  Event{Transaction: &TransactionEvent{Operation: ptp.OpDeleteObject}},
			wantOp: ptp.OpDeleteObject,
			wantOK: true,
		},
		{
			name:   "command container",
			event:  Event{Container: &ContainerEvent{Type: ptp.ContainerCommand, Code: uint16(ptp.OpSendObject)}},
			wantOp: ptp.OpSendObject,
			wantOK: true,
		},
		{
			name:  "response container",
			event: Event{Container: &ContainerEvent{Type: ptp.ContainerResponse, Code: uint16(ptp.RespOK)}},
		},
		{
			name:  "state change",
			event: Event{StateChange: &StateChangeEvent{NewState: "OPEN"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, ok := tt.event.Operation()
			if ok != tt.wantOK || op != tt.wantOp {
				t.Errorf("Operation() = %v, %v; want %v, %v", op, ok, tt.wantOp, tt.wantOK)
			}
		})
	}
}
