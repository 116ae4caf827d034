package interaction

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/luck-mtp/mtp-go/pkg/log"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
	"github.com/luck-mtp/mtp-go/pkg/transport"
)

// loopDevice connects a Client to a Server in-process.
type loopDevice struct {
	srv     *Server
	packet  int
	cancels []uint32
	sends   int
}

func (d *loopDevice) BulkSend(data []byte, _ time.Duration) (int, error) {
	d.sends++
	if err := d.srv.Receive(data); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (d *loopDevice) BulkReceive(buf []byte, _ time.Duration) (int, error) {
	n, ok := d.srv.Transmit(buf)
	if !ok {
		return 0, transport.ErrTimeout
	}
	return n, nil
}

func (d *loopDevice) Control(req transport.ControlRequest, data []byte, _ time.Duration) (int, error) {
	if req.Request == transport.RequestCancel {
		tid, err := transport.ParseCancelRequest(data)
		if err != nil {
			return 0, err
		}
		d.cancels = append(d.cancels, tid)
		d.srv.Cancel(tid)
	}
	return len(data), nil
}

func (d *loopDevice) MaxPacketSize() int { return d.packet }
func (d *loopDevice) Close() error       { return nil }

// objectStore is a minimal Handler holding object bytes by handle.
type objectStore struct {
	objects map[uint32][]byte
	names   map[uint32]string
	next    uint32
	staged  uint32
	tids    []uint32
}

func newObjectStore() *objectStore {
	return &objectStore{objects: map[uint32][]byte{}, names: map[uint32]string{}, next: 1}
}

func (s *objectStore) HandleOperation(req *Request) *Response {
	s.tids = append(s.tids, req.TransactionID)
	switch req.Op {
	case ptp.OpGetStorageIDs:
		return &Response{Code: ptp.RespOK, Data: EncodeUint32Array([]uint32{0x00010001, 0x00020001})}
	case ptp.OpGetObject:
		data, ok := s.objects[req.Param(0)]
		if !ok {
			return &Response{Code: ptp.RespInvalidObjectHandle}
		}
		return &Response{Code: ptp.RespOK, Data: data}
	case ptp.OpSendObjectInfo:
		var info ptp.ObjectInfo
		if err := info.UnmarshalBinary(req.Data); err != nil {
			return &Response{Code: ptp.RespInvalidDataset}
		}
		s.staged = s.next
		s.next++
		s.names[s.staged] = info.Filename
		return &Response{Code: ptp.RespOK, Params: []uint32{req.Param(0), req.Param(1), s.staged}}
	case ptp.OpSendObject:
		s.objects[s.staged] = append([]byte(nil), req.Data...)
		return &Response{Code: ptp.RespOK}
	case ptp.OpSetObjectPropValue:
		d := ptp.NewDecoder(req.Data)
		s.names[req.Param(0)] = d.String()
		return &Response{Code: ptp.RespOK}
	case ptp.OpDeleteObject:
		if _, ok := s.objects[req.Param(0)]; !ok {
			return &Response{Code: ptp.RespInvalidObjectHandle}
		}
		delete(s.objects, req.Param(0))
		return &Response{Code: ptp.RespOK}
	}
	return nil
}

func testDeviceInfo() *ptp.DeviceInfo {
	return &ptp.DeviceInfo{
		StandardVersion:     100,
		OperationsSupported: []ptp.OperationCode{ptp.OpGetDeviceInfo, ptp.OpOpenSession, ptp.OpGetObject},
		Manufacturer:        "Acme",
		Model:               "Loop",
	}
}

func newLoopClient(t *testing.T) (*Client, *loopDevice, *objectStore) {
	t.Helper()
	store := newObjectStore()
	dev := &loopDevice{srv: NewServer(store, testDeviceInfo, 512), packet: 512}
	return NewClient(dev), dev, store
}

func openLoopClient(t *testing.T) (*Client, *loopDevice, *objectStore) {
	t.Helper()
	c, dev, store := newLoopClient(t)
	if err := c.OpenSession(context.Background()); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	return c, dev, store
}

func TestClientGetDeviceInfoWithoutSession(t *testing.T) {
	c, _, _ := newLoopClient(t)

	info, err := c.GetDeviceInfo(context.Background())
	if err != nil {
		t.Fatalf("GetDeviceInfo failed: %v", err)
	}
	if info.Model != "Loop" || !info.Supports(ptp.OpGetObject) {
		t.Errorf("info = %+v", info)
	}
}

func TestClientRequiresSession(t *testing.T) {
	c, dev, _ := newLoopClient(t)

	_, err := c.GetStorageIDs(context.Background())
	if !errors.Is(err, ErrSessionNotOpen) {
		t.Fatalf("expected ErrSessionNotOpen, got %v", err)
	}
	if dev.sends != 0 {
		t.Errorf("sent %d transfers without a session", dev.sends)
	}
}

func TestClientTransactionIDs(t *testing.T) {
	c, _, store := openLoopClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.GetStorageIDs(ctx); err != nil {
			t.Fatalf("GetStorageIDs failed: %v", err)
		}
	}
	want := []uint32{1, 2, 3}
	if len(store.tids) != 3 {
		t.Fatalf("tids = %v", store.tids)
	}
	for i := range want {
		if store.tids[i] != want[i] {
			t.Errorf("tids = %v, want %v", store.tids, want)
			break
		}
	}
}

func TestClientTransactionIDWraps(t *testing.T) {
	c, _, _ := openLoopClient(t)
	c.nextTID = 0xFFFFFFFE
	if tid := c.allocTID(ptp.OpGetObject); tid != 1 {
		t.Errorf("allocTID after wrap = 0x%X, want 1", tid)
	}
}

func TestClientReopensStaleSession(t *testing.T) {
	c, dev, _ := newLoopClient(t)
	ctx := context.Background()
	if err := c.OpenSession(ctx); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	// A new client on the same device finds the session still open.
	c2 := NewClient(dev)
	if err := c2.OpenSession(ctx); err != nil {
		t.Fatalf("second OpenSession failed: %v", err)
	}
	if !c2.IsOpen() || !dev.srv.SessionOpen() {
		t.Error("expected session open after recovery")
	}
}

func TestClientGetStorageIDs(t *testing.T) {
	c, _, _ := openLoopClient(t)

	ids, err := c.GetStorageIDs(context.Background())
	if err != nil {
		t.Fatalf("GetStorageIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != 0x00010001 || ids[1] != 0x00020001 {
		t.Errorf("ids = %v", ids)
	}
}

func TestClientResponseError(t *testing.T) {
	c, _, _ := openLoopClient(t)

	err := c.DeleteObject(context.Background(), 99)
	var re *ResponseError
	if !errors.As(err, &re) {
		t.Fatalf("expected *ResponseError, got %v", err)
	}
	if re.Op != ptp.OpDeleteObject || re.Code != ptp.RespInvalidObjectHandle {
		t.Errorf("ResponseError = %+v", re)
	}
	if code, ok := ResponseCodeOf(err); !ok || code != ptp.RespInvalidObjectHandle {
		t.Errorf("ResponseCodeOf = %v, %v", code, ok)
	}
}

func TestClientUploadDownload(t *testing.T) {
	c, _, store := openLoopClient(t)
	c.SetChunkSize(4096)
	ctx := context.Background()

	payload := bytes.Repeat([]byte("0123456789abcdef"), 1000)
	_, _, handle, err := c.SendObjectInfo(ctx, 0x00010001, 0, &ptp.ObjectInfo{
		StorageID:      0x00010001,
		ObjectFormat:   ptp.FormatText,
		CompressedSize: uint32(len(payload)),
		Filename:       "a.txt",
	})
	if err != nil {
		t.Fatalf("SendObjectInfo failed: %v", err)
	}
	if store.names[handle] != "a.txt" {
		t.Errorf("name = %q", store.names[handle])
	}

	var sentChunks int
	sent, err := c.SendObject(ctx, bytes.NewReader(payload), uint64(len(payload)), func(int) error {
		sentChunks++
		return nil
	})
	if err != nil {
		t.Fatalf("SendObject failed: %v", err)
	}
	if sent != uint64(len(payload)) || sentChunks != 4 {
		t.Errorf("sent = %d in %d chunks", sent, sentChunks)
	}

	var got bytes.Buffer
	n, err := c.GetObject(ctx, handle, uint64(len(payload)), &got, nil)
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	if n != uint64(len(payload)) || !bytes.Equal(got.Bytes(), payload) {
		t.Errorf("downloaded %d bytes, mismatch", n)
	}
}

func TestClientSetObjectFileName(t *testing.T) {
	c, _, store := openLoopClient(t)
	store.names[7] = "old"

	if err := c.SetObjectFileName(context.Background(), 7, "new name"); err != nil {
		t.Fatalf("SetObjectFileName failed: %v", err)
	}
	if store.names[7] != "new name" {
		t.Errorf("name = %q", store.names[7])
	}
}

func TestClientHookCancelsDownload(t *testing.T) {
	c, dev, store := openLoopClient(t)
	c.SetChunkSize(1024)
	ctx := context.Background()
	store.objects[5] = bytes.Repeat([]byte{0xAA}, 10000)

	stop := errors.New("stop")
	_, err := c.GetObject(ctx, 5, 10000, &bytes.Buffer{}, func(int) error { return stop })
	if !errors.Is(err, stop) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if len(dev.cancels) != 1 {
		t.Fatalf("cancels = %v, want one", dev.cancels)
	}

	// The session stays usable.
	if _, err := c.GetStorageIDs(ctx); err != nil {
		t.Errorf("GetStorageIDs after cancel failed: %v", err)
	}
}

func TestClientContextCancelsUpload(t *testing.T) {
	c, dev, _ := openLoopClient(t)
	c.SetChunkSize(1024)
	ctx, cancel := context.WithCancel(context.Background())

	if _, _, _, err := c.SendObjectInfo(ctx, 0x00010001, 0, &ptp.ObjectInfo{Filename: "big.bin"}); err != nil {
		t.Fatalf("SendObjectInfo failed: %v", err)
	}

	chunks := 0
	_, err := c.SendObject(ctx, bytes.NewReader(make([]byte, 8000)), 8000, func(int) error {
		chunks++
		if chunks == 2 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(dev.cancels) != 1 {
		t.Errorf("cancels = %v, want one", dev.cancels)
	}
	if dev.srv.Busy() {
		t.Error("responder still mid-transaction after cancel")
	}
}

func TestClientLogsTransactions(t *testing.T) {
	c, _, _ := openLoopClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger, "session-x")

	if _, err := c.GetStorageIDs(context.Background()); err != nil {
		t.Fatalf("GetStorageIDs failed: %v", err)
	}

	var tx *log.TransactionEvent
	containers := 0
	for _, e := range logger.events {
		if e.SessionID != "session-x" {
			t.Errorf("event SessionID = %q", e.SessionID)
		}
		if e.Transaction != nil {
			tx = e.Transaction
		}
		if e.Container != nil {
			containers++
		}
	}
	if tx == nil || tx.Operation != ptp.OpGetStorageIDs || tx.Response == nil || *tx.Response != ptp.RespOK {
		t.Errorf("transaction event = %+v", tx)
	}
	if containers != 3 {
		t.Errorf("container events = %d, want 3 (command, data, response)", containers)
	}
}

type recordingLogger struct {
	events []log.Event
}

func (l *recordingLogger) Log(e log.Event) { l.events = append(l.events, e) }
