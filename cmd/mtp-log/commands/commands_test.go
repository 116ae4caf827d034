package commands

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luck-mtp/mtp-go/pkg/log"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

var base = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mtplog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()
	return path
}

// sampleEvents is a short session: a command container, the finished
// transaction, a failed transaction, a cancel, and a download.
func sampleEvents() []log.Event {
	ok := ptp.RespOK
	busy := ptp.RespDeviceBusy
	d := 3 * time.Millisecond
	return []log.Event{
		{
			Timestamp: base,
			SessionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction: log.DirectionOut,
			Layer:     log.LayerTransport,
			Category:  log.CategoryMessage,
			Device:    "0e8d:201d",
			Container: &log.ContainerEvent{
				Type:          ptp.ContainerCommand,
				Code:          uint16(ptp.OpGetObjectHandles),
				TransactionID: 7,
				Size:          24,
				Data:          []byte{0x18, 0x00, 0x00, 0x00},
				Truncated:     true,
			},
		},
		{
			Timestamp: base.Add(time.Millisecond),
			SessionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction: log.DirectionIn,
			Layer:     log.LayerProtocol,
			Category:  log.CategoryMessage,
			Device:    "0e8d:201d",
			Transaction: &log.TransactionEvent{
				Operation:     ptp.OpGetObjectHandles,
				TransactionID: 7,
				Params:        []uint32{0x00010001, 0, 0xFFFFFFFF},
				Response:      &ok,
				DataBytes:     40,
				Duration:      &d,
			},
		},
		{
			Timestamp: base.Add(2 * time.Millisecond),
			SessionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction: log.DirectionIn,
			Layer:     log.LayerProtocol,
			Category:  log.CategoryMessage,
			Device:    "0e8d:201d",
			Transaction: &log.TransactionEvent{
				Operation:     ptp.OpDeleteObject,
				TransactionID: 8,
				Response:      &busy,
			},
		},
		{
			Timestamp: base.Add(3 * time.Millisecond),
			SessionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction: log.DirectionOut,
			Layer:     log.LayerTransport,
			Category:  log.CategoryControl,
			Control:   &log.ControlEvent{Type: log.ControlCancel, TransactionID: 9},
		},
		{
			Timestamp: base.Add(time.Second),
			SessionID: "def67890",
			Direction: log.DirectionIn,
			Layer:     log.LayerSession,
			Category:  log.CategoryTransfer,
			Device:    "18d1:4ee1",
			StorageID: 0x00010001,
			Transfer: &log.TransferEvent{
				ObjectID: 4,
				Path:     "/Music/track01.mp3",
				Bytes:    1024,
				Total:    1024,
				Digest:   []byte{0xde, 0xad},
				Duration: 20 * time.Millisecond,
			},
		},
	}
}

func TestFormatEvent_Container(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sampleEvents()[0])
	output := buf.String()

	for _, want := range []string{
		"2026-01-28T10:15:32.123456Z",
		"[session:abc12345]",
		"OUT TRANSPORT Container COMMAND",
		"Device: 0e8d:201d",
		"Code: GetObjectHandles  TransactionID: 7",
		"Size: 24 bytes",
		"Data: 18000000 (truncated)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestFormatEvent_Transaction(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sampleEvents()[1])
	output := buf.String()

	assert.Contains(t, output, "IN  PROTOCOL Transaction")
	assert.Contains(t, output, "Params: 0x00010001 0x00000000 0xffffffff")
	assert.Contains(t, output, "Response: OK")
	assert.Contains(t, output, "Data: 40 bytes")
	assert.Contains(t, output, "Duration: 3.000ms")
}

func TestFormatEvent_ControlAndTransfer(t *testing.T) {
	events := sampleEvents()

	var buf bytes.Buffer
	formatEvent(&buf, events[3])
	assert.Contains(t, buf.String(), "OUT CTRL CANCEL")
	assert.Contains(t, buf.String(), "TransactionID: 9")

	buf.Reset()
	formatEvent(&buf, events[4])
	output := buf.String()
	assert.Contains(t, output, "SESSION Transfer")
	assert.Contains(t, output, "Storage: 0x00010001")
	assert.Contains(t, output, "Object: 4 /Music/track01.mp3")
	assert.Contains(t, output, "Bytes: 1024/1024")
	assert.Contains(t, output, "BLAKE2b-256: dead")
}

func TestFormatEvent_StateAndError(t *testing.T) {
	code := int(ptp.RespStoreFull)
	var buf bytes.Buffer
	formatEvent(&buf, log.Event{
		Timestamp:   base,
		Layer:       log.LayerSession,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{Entity: log.StateEntityTransfer, OldState: "TRANSFERRING", NewState: "FAILED", Reason: "store full"},
	})
	formatEvent(&buf, log.Event{
		Timestamp: base,
		Layer:     log.LayerProtocol,
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Layer: log.LayerProtocol, Message: "refused", Code: &code, Context: "upload"},
	})
	output := buf.String()
	assert.Contains(t, output, "TRANSFERRING -> FAILED")
	assert.Contains(t, output, "Reason: store full")
	assert.Contains(t, output, "Code: STORE_FULL")
	assert.Contains(t, output, "Context: upload")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.500us", formatDuration(1500*time.Nanosecond))
	assert.Equal(t, "2.500ms", formatDuration(2500*time.Microsecond))
	assert.Equal(t, "1.250s", formatDuration(1250*time.Millisecond))
}

func TestRunView_Filtered(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	filter, err := FilterOptions{Operation: "getobjecthandles"}.Filter()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, RunView(path, filter, &buf))

	output := buf.String()
	assert.Equal(t, 2, strings.Count(output, "[session:"))
	assert.NotContains(t, output, "DeleteObject")
}

func TestRunView_MissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "none.mtplog"), log.Filter{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "failed to open log file")
}

func TestFilterOptions(t *testing.T) {
	filter, err := FilterOptions{
		SessionID: "abc",
		Device:    "0E8D:201D",
		TimeStart: "2026-01-28T10:00:00Z",
		TimeEnd:   "2026-01-28T11:00:00Z",
		Layer:     "Protocol",
		Direction: "in",
		Category:  "transfer",
		Operation: "0x1009",
	}.Filter()
	require.NoError(t, err)
	assert.Equal(t, "0e8d:201d", filter.Device)
	assert.Equal(t, log.LayerProtocol, *filter.Layer)
	assert.Equal(t, log.DirectionIn, *filter.Direction)
	assert.Equal(t, log.CategoryTransfer, *filter.Category)
	assert.Equal(t, ptp.OpGetObject, *filter.Operation)
	assert.True(t, filter.TimeEnd.After(*filter.TimeStart))

	tests := []FilterOptions{
		{TimeStart: "yesterday"},
		{TimeEnd: "tomorrow"},
		{Layer: "wire"},
		{Direction: "sideways"},
		{Category: "snapshot"},
		{Operation: "Frobnicate"},
	}
	for _, opts := range tests {
		_, err := opts.Filter()
		assert.Error(t, err, "%+v", opts)
	}
}

func TestRunStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, log.Filter{}, &buf))
	output := buf.String()

	for _, want := range []string{
		"Total Events: 5",
		"TRANSPORT:   2",
		"PROTOCOL:    2",
		"SESSION:     1",
		"GetObjectHandles:    1 avg 3.000ms",
		"DeleteObject:        1 (1 failed)",
		"Transfers: 1 (1024 bytes)",
		"Cancel Requests: 1",
		"Sessions: 2",
		"[abc12345] 4 events, duration 3ms",
		"Device: 0e8d:201d",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
	assert.NotContains(t, output, "Errors:")
}

func TestRunStats_Empty(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, log.Filter{}, &buf))
	assert.Contains(t, buf.String(), "Total Events: 0")
	assert.Contains(t, buf.String(), "Sessions: 0")
	assert.NotContains(t, buf.String(), "Time Range")
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.mtplog")

	filter, err := FilterOptions{Device: "18d1:4ee1"}.Filter()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, RunFilter(path, out, filter, &buf))
	assert.Equal(t, "Filtered 1 events to "+out+"\n", buf.String())

	reader, err := log.NewReader(out)
	require.NoError(t, err)
	defer reader.Close()
	event, err := reader.Next()
	require.NoError(t, err)
	require.NotNil(t, event.Transfer)
	assert.Equal(t, "/Music/track01.mp3", event.Transfer.Path)
}

func TestRunExport_JSONL(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	require.NoError(t, RunExport(path, "jsonl", "", log.Filter{}, &buf))

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		var decoded log.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
		lines++
	}
	assert.Equal(t, 5, lines)
}

func TestRunExport_CSVToFile(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.csv")

	require.NoError(t, RunExport(path, "csv", out, log.Filter{}, &bytes.Buffer{}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"2026-01-28T10:15:32.123456Z",
		"abc12345-6789-0123-4567-890abcdef012",
		"OUT", "TRANSPORT", "MESSAGE", "0e8d:201d",
		"Container COMMAND", "GetObjectHandles", "7", "24",
	}, rows[1])
	assert.Equal(t, "1024", rows[5][9])
}

func TestRunExport_UnknownFormat(t *testing.T) {
	path := createTestLogFile(t, nil)
	err := RunExport(path, "xml", "", log.Filter{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown format")
}
