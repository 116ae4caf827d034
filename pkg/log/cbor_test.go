package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456789, time.UTC)
	original := Event{
		Timestamp: ts,
		SessionID: "abc12345-def6-7890-abcd-ef1234567890",
		Direction: DirectionOut,
		Layer:     LayerProtocol,
		Category:  CategoryMessage,
		Device:    "0e8d:201d",
		StorageID: 0x00010001,
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, original.Timestamp)
	}
	if decoded.SessionID != original.SessionID {
		t.Errorf("SessionID: got %q, want %q", decoded.SessionID, original.SessionID)
	}
	if decoded.Direction != original.Direction || decoded.Layer != original.Layer {
		t.Errorf("Direction/Layer: got %v/%v", decoded.Direction, decoded.Layer)
	}
	if decoded.Device != original.Device || decoded.StorageID != original.StorageID {
		t.Errorf("Device/StorageID: got %q/0x%X", decoded.Device, decoded.StorageID)
	}
}

func TestTransactionEventCBORRoundTrip(t *testing.T) {
	resp := ptp.RespStoreFull
	dur := 1500 * time.Microsecond
	original := Event{
		Timestamp: time.Now(),
		Layer:     LayerProtocol,
		Transaction: &TransactionEvent{
			Operation:     ptp.OpSendObjectInfo,
			TransactionID: 9,
			Params:        []uint32{0x00010001, 0},
			Response:      &resp,
			DataBytes:     170,
			Duration:      &dur,
		},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	tx := decoded.Transaction
	if tx == nil {
		t.Fatal("Transaction is nil")
	}
	if tx.Operation != ptp.OpSendObjectInfo || tx.TransactionID != 9 {
		t.Errorf("Operation/TransactionID: got %v/%d", tx.Operation, tx.TransactionID)
	}
	if tx.Response == nil || *tx.Response != ptp.RespStoreFull {
		t.Errorf("Response: got %v", tx.Response)
	}
	if tx.Duration == nil || *tx.Duration != dur {
		t.Errorf("Duration: got %v, want %v", tx.Duration, dur)
	}
	if len(tx.Params) != 2 || tx.Params[0] != 0x00010001 {
		t.Errorf("Params: got %v", tx.Params)
	}
}

func TestTransferEventCBORRoundTrip(t *testing.T) {
	digest := bytes.Repeat([]byte{0xAB}, 32)
	original := Event{
		Timestamp: time.Now(),
		Layer:     LayerSession,
		Category:  CategoryTransfer,
		Transfer: &TransferEvent{
			ObjectID: 42,
			Path:     "/Music/a.mp3",
			Bytes:    1 << 20,
			Total:    1 << 20,
			Digest:   digest,
			Duration: 2 * time.Second,
		},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if decoded.Transfer == nil {
		t.Fatal("Transfer is nil")
	}
	if decoded.Transfer.Path != "/Music/a.mp3" || decoded.Transfer.Bytes != 1<<20 {
		t.Errorf("Transfer: got %+v", decoded.Transfer)
	}
	if !bytes.Equal(decoded.Transfer.Digest, digest) {
		t.Error("Digest mismatch")
	}
}

func TestEventCBORUsesIntegerKeys(t *testing.T) {
	event := Event{
		Timestamp: time.Now(),
		SessionID: "session-123",
		Direction: DirectionIn,
		Layer:     LayerTransport,
		Category:  CategoryMessage,
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	var rawMap map[uint64]any
	if err := eventDecMode.Unmarshal(data, &rawMap); err != nil {
		t.Fatalf("failed to decode as map: %v", err)
	}
	for _, key := range []uint64{1, 2, 3, 4, 5} {
		if _, ok := rawMap[key]; !ok {
			t.Errorf("expected integer key %d not found in encoded data", key)
		}
	}

	var stringMap map[string]any
	if err := eventDecMode.Unmarshal(data, &stringMap); err == nil && len(stringMap) > 0 {
		t.Error("encoded data contains string keys, expected integer keys only")
	}
}

func TestDecodeEventRejectsDeepNesting(t *testing.T) {
	// {99: [[...[0]...]]}: key 99 is unknown and skipped, so only the
	// depth decides.
	record := func(depth int) []byte {
		data := []byte{0xA1, 0x18, 0x63}
		data = append(data, bytes.Repeat([]byte{0x81}, depth)...)
		return append(data, 0x00)
	}

	if _, err := DecodeEvent(record(2)); err != nil {
		t.Fatalf("shallow unknown field: %v", err)
	}
	if _, err := DecodeEvent(record(maxEventNesting + 2)); err == nil {
		t.Fatal("expected an error for a deeply nested record")
	}
}
