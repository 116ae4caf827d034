package ptp

import (
	"bytes"
	"errors"
	"testing"
)

func TestContainerEncode(t *testing.T) {
	c := Request(OpGetObjectHandles, 7, 0x00010001, FormatFilterAny, ParentFilterRoot)
	got, err := c.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := []byte{
		0x18, 0x00, 0x00, 0x00, // length 24
		0x01, 0x00, // command
		0x07, 0x10, // GetObjectHandles
		0x07, 0x00, 0x00, 0x00, // transaction 7
		0x01, 0x00, 0x01, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0xFF, 0xFF, 0xFF, 0xFF,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode = % X, want % X", got, want)
	}
}

func TestContainerEncodeTooManyParams(t *testing.T) {
	c := Request(OpOpenSession, 1, 1, 2, 3, 4, 5, 6)
	if _, err := c.Encode(); !errors.Is(err, ErrTooManyParams) {
		t.Errorf("expected ErrTooManyParams, got %v", err)
	}
}

func TestDecodeContainer(t *testing.T) {
	raw := []byte{
		0x10, 0x00, 0x00, 0x00,
		0x03, 0x00,
		0x01, 0x20,
		0x2A, 0x00, 0x00, 0x00,
		0x05, 0x00, 0x00, 0x00,
	}
	c, err := DecodeContainer(raw)
	if err != nil {
		t.Fatalf("DecodeContainer failed: %v", err)
	}
	if c.Type != ContainerResponse {
		t.Errorf("Type = %v, want RESPONSE", c.Type)
	}
	if !c.Response().IsSuccess() {
		t.Errorf("Response = %v, want OK", c.Response())
	}
	if c.TransactionID != 42 {
		t.Errorf("TransactionID = %d, want 42", c.TransactionID)
	}
	if c.Param(0) != 5 || c.Param(1) != 0 {
		t.Errorf("Params = %v", c.Params)
	}
}

func TestDecodeContainerErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"short", []byte{0x0C, 0x00, 0x00}, ErrShortContainer},
		{"length mismatch", []byte{0x20, 0, 0, 0, 3, 0, 1, 0x20, 1, 0, 0, 0}, ErrBadLength},
		{"partial param", []byte{0x0E, 0, 0, 0, 3, 0, 1, 0x20, 1, 0, 0, 0, 0, 0}, ErrBadLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeContainer(tt.raw); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDataHeader(t *testing.T) {
	h := DataHeader(uint16(OpSendObject), 3, 100)
	if h.Length != 112 || h.Type != ContainerData {
		t.Errorf("DataHeader(100) = %+v", h)
	}

	big := DataHeader(uint16(OpSendObject), 3, 5<<30)
	if big.Length != LengthUnknown {
		t.Errorf("DataHeader(5GiB).Length = 0x%X, want 0x%X", big.Length, LengthUnknown)
	}
}

func TestCodeStrings(t *testing.T) {
	if got := OpCopyObject.String(); got != "CopyObject" {
		t.Errorf("OpCopyObject.String() = %q", got)
	}
	if got := OperationCode(0x9999).String(); got != "OPERATION(0x9999)" {
		t.Errorf("unknown operation = %q", got)
	}
	if got := RespPartialDeletion.String(); got != "PARTIAL_DELETION" {
		t.Errorf("RespPartialDeletion.String() = %q", got)
	}
	if RespGeneralError.IsSuccess() {
		t.Error("GeneralError should not be success")
	}
}

func TestParseOperation(t *testing.T) {
	tests := []struct {
		in   string
		want OperationCode
	}{
		{"GetObjectHandles", OpGetObjectHandles},
		{"sendobject", OpSendObject},
		{"0x1019", OpMoveObject},
		{"0x9805", OperationCode(0x9805)},
	}
	for _, tt := range tests {
		got, err := ParseOperation(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseOperation(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseOperation("Frobnicate"); err == nil {
		t.Error("expected error for unknown name")
	}
}
