package interaction

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/luck-mtp/mtp-go/pkg/log"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
	"github.com/luck-mtp/mtp-go/pkg/transport"
)

// drainTimeout bounds the read of a stray response after a cancel.
const drainTimeout = 200 * time.Millisecond

// Client issues PTP transactions on one device.
type Client struct {
	dev transport.Device
	w   *transport.ContainerWriter
	r   *transport.ContainerReader

	timeout time.Duration
	nextTID uint32
	open    bool

	// Logging support (optional)
	logger    log.Logger
	sessionID string
}

// NewClient creates a client for an opened device. No session is open.
func NewClient(dev transport.Device) *Client {
	return &Client{
		dev:     dev,
		w:       transport.NewContainerWriter(dev),
		r:       transport.NewContainerReader(dev),
		timeout: transport.DefaultTimeout,
	}
}

// SetTimeout sets the per-transfer timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
	c.w.SetTimeout(timeout)
	c.r.SetTimeout(timeout)
}

// SetChunkSize sets the bulk transfer size for data phases and returns the
// effective, packet-aligned value.
func (c *Client) SetChunkSize(n int) int {
	c.w.SetChunkSize(n)
	c.r.SetBufferSize(n)
	return c.w.ChunkSize()
}

// ChunkSize returns the effective bulk transfer size.
func (c *Client) ChunkSize() int {
	return c.w.ChunkSize()
}

// SetLogger configures protocol logging for the client and its framing.
// Pass nil to disable logging.
func (c *Client) SetLogger(logger log.Logger, sessionID string) {
	c.logger = logger
	c.sessionID = sessionID
	c.w.SetLogger(logger, sessionID)
	c.r.SetLogger(logger, sessionID)
}

// IsOpen reports whether a session is open.
func (c *Client) IsOpen() bool {
	return c.open
}

// allocTID returns the transaction id for op. OpenSession and sessionless
// GetDeviceInfo use 0; ids wrap skipping 0 and 0xFFFFFFFF.
func (c *Client) allocTID(op ptp.OperationCode) uint32 {
	if op == ptp.OpOpenSession || !c.open {
		return 0
	}
	c.nextTID++
	if c.nextTID == 0 || c.nextTID == 0xFFFFFFFF {
		c.nextTID = 1
	}
	return c.nextTID
}

// request describes one transaction.
type request struct {
	op     ptp.OperationCode
	params []uint32

	// Host to device data phase.
	send     io.Reader
	sendSize uint64

	// Device to host data phase.
	recv      io.Writer
	recvLimit uint64

	onChunk transport.ChunkFunc
}

// do runs one transaction and returns the response container. A non-OK
// response is returned together with a *ResponseError.
func (c *Client) do(ctx context.Context, req request) (ptp.Container, error) {
	if err := ctx.Err(); err != nil {
		return ptp.Container{}, err
	}
	if !c.open && req.op != ptp.OpOpenSession && req.op != ptp.OpGetDeviceInfo {
		return ptp.Container{}, fmt.Errorf("%s: %w", req.op, ErrSessionNotOpen)
	}

	tid := c.allocTID(req.op)
	start := time.Now()

	if err := c.w.WriteContainer(ptp.Request(req.op, tid, req.params...)); err != nil {
		return ptp.Container{}, fmt.Errorf("%s: %w", req.op, err)
	}

	hook := chunkHook(ctx, req.onChunk)
	var dataBytes uint64
	var resp *ptp.Container

	if req.send != nil {
		n, err := c.w.WriteData(uint16(req.op), tid, req.send, req.sendSize, hook)
		dataBytes = n
		if err != nil {
			c.abort(tid, err)
			return ptp.Container{}, fmt.Errorf("%s: %w", req.op, err)
		}
	}
	if req.recv != nil {
		res, err := c.r.ReadData(req.recv, req.recvLimit, hook)
		dataBytes = res.Bytes
		if err != nil {
			c.abort(tid, err)
			return ptp.Container{}, fmt.Errorf("%s: %w", req.op, err)
		}
		resp = res.Response
	}
	if resp == nil {
		rc, err := c.r.ReadContainer()
		if err != nil {
			c.logTransaction(req, tid, nil, dataBytes, start)
			return ptp.Container{}, fmt.Errorf("%s: %w", req.op, err)
		}
		resp = &rc
	}

	code := resp.Response()
	c.logTransaction(req, tid, &code, dataBytes, start)

	if resp.Type != ptp.ContainerResponse {
		return *resp, fmt.Errorf("%s: %w: %s container", req.op, ErrUnexpectedReply, resp.Type)
	}
	if resp.TransactionID != tid {
		return *resp, fmt.Errorf("%s: %w: got %d, want %d", req.op, ErrTransactionMismatch, resp.TransactionID, tid)
	}
	if !code.IsSuccess() {
		return *resp, &ResponseError{Op: req.op, Code: code, Params: resp.Params}
	}
	return *resp, nil
}

// chunkHook checks ctx before handing the chunk to the caller's hook.
func chunkHook(ctx context.Context, onChunk transport.ChunkFunc) transport.ChunkFunc {
	return func(n int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if onChunk != nil {
			return onChunk(n)
		}
		return nil
	}
}

// abort cancels an interrupted data phase so the device returns to idle.
// Nothing is sent to a device that is gone.
func (c *Client) abort(tid uint32, cause error) {
	if errors.Is(cause, transport.ErrDisconnected) || errors.Is(cause, transport.ErrClosed) {
		return
	}
	if c.logger != nil {
		c.logger.Log(log.Event{
			Timestamp: time.Now(),
			SessionID: c.sessionID,
			Direction: log.DirectionOut,
			Layer:     log.LayerTransport,
			Category:  log.CategoryControl,
			Control:   &log.ControlEvent{Type: log.ControlCancel, TransactionID: tid},
		})
	}
	if err := transport.Cancel(c.dev, tid); err != nil {
		return
	}

	// Drain the TransactionCancelled response some devices queue.
	c.r.SetTimeout(drainTimeout)
	_, _ = c.r.ReadContainer()
	c.r.SetTimeout(c.timeout)
	c.r.Reset()
}

func (c *Client) logTransaction(req request, tid uint32, code *ptp.ResponseCode, dataBytes uint64, start time.Time) {
	if c.logger == nil {
		return
	}
	dur := time.Since(start)
	dir := log.DirectionOut
	if req.recv != nil {
		dir = log.DirectionIn
	}
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.sessionID,
		Direction: dir,
		Layer:     log.LayerProtocol,
		Category:  log.CategoryMessage,
		Transaction: &log.TransactionEvent{
			Operation:     req.op,
			TransactionID: tid,
			Params:        req.params,
			Response:      code,
			DataBytes:     dataBytes,
			Duration:      &dur,
		},
	})
}

// OpenSession opens session DefaultSessionID. A session left open by a
// previous process is closed and reopened.
func (c *Client) OpenSession(ctx context.Context) error {
	_, err := c.do(ctx, request{op: ptp.OpOpenSession, params: []uint32{ptp.DefaultSessionID}})
	if code, ok := ResponseCodeOf(err); ok && code == ptp.RespSessionAlreadyOpen {
		c.open = true
		if err := c.CloseSession(ctx); err != nil {
			return err
		}
		_, err = c.do(ctx, request{op: ptp.OpOpenSession, params: []uint32{ptp.DefaultSessionID}})
	}
	if err != nil {
		return err
	}
	c.open = true
	c.nextTID = 0
	return nil
}

// CloseSession closes the session. The client is closed afterwards even if
// the device reports an error.
func (c *Client) CloseSession(ctx context.Context) error {
	if !c.open {
		return nil
	}
	_, err := c.do(ctx, request{op: ptp.OpCloseSession})
	c.open = false
	return err
}

// GetDeviceInfo returns the device's DeviceInfo dataset. Works with or
// without an open session.
func (c *Client) GetDeviceInfo(ctx context.Context) (*ptp.DeviceInfo, error) {
	var info ptp.DeviceInfo
	if err := c.getDataset(ctx, ptp.OpGetDeviceInfo, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetStorageIDs lists the device's storages.
func (c *Client) GetStorageIDs(ctx context.Context) ([]uint32, error) {
	var buf bytes.Buffer
	if _, err := c.do(ctx, request{op: ptp.OpGetStorageIDs, recv: &buf}); err != nil {
		return nil, err
	}
	return decodeHandles(ptp.OpGetStorageIDs, buf.Bytes())
}

// GetStorageInfo returns the StorageInfo dataset of storage id.
func (c *Client) GetStorageInfo(ctx context.Context, id uint32) (*ptp.StorageInfo, error) {
	var info ptp.StorageInfo
	if err := c.getDataset(ctx, ptp.OpGetStorageInfo, []uint32{id}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetObjectHandles lists objects in storage under parent. Use
// ptp.ParentFilterRoot for root objects.
func (c *Client) GetObjectHandles(ctx context.Context, storage uint32, format ptp.ObjectFormat, parent uint32) ([]uint32, error) {
	var buf bytes.Buffer
	params := []uint32{storage, uint32(format), parent}
	if _, err := c.do(ctx, request{op: ptp.OpGetObjectHandles, params: params, recv: &buf}); err != nil {
		return nil, err
	}
	return decodeHandles(ptp.OpGetObjectHandles, buf.Bytes())
}

// GetObjectInfo returns the ObjectInfo dataset of handle.
func (c *Client) GetObjectInfo(ctx context.Context, handle uint32) (*ptp.ObjectInfo, error) {
	var info ptp.ObjectInfo
	if err := c.getDataset(ctx, ptp.OpGetObjectInfo, []uint32{handle}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetObject streams the object's bytes into w. size bounds data phases
// whose length field is unknown.
func (c *Client) GetObject(ctx context.Context, handle uint32, size uint64, w io.Writer, onChunk transport.ChunkFunc) (uint64, error) {
	cw := &countingWriter{w: w}
	_, err := c.do(ctx, request{
		op:        ptp.OpGetObject,
		params:    []uint32{handle},
		recv:      cw,
		recvLimit: size,
		onChunk:   onChunk,
	})
	return cw.n, err
}

// SendObjectInfo announces a new object under parent in storage. The
// device replies with the storage, parent and handle it assigned.
func (c *Client) SendObjectInfo(ctx context.Context, storage, parent uint32, info *ptp.ObjectInfo) (uint32, uint32, uint32, error) {
	data, err := info.MarshalBinary()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%s: %w", ptp.OpSendObjectInfo, err)
	}
	resp, err := c.do(ctx, request{
		op:       ptp.OpSendObjectInfo,
		params:   []uint32{storage, parent},
		send:     bytes.NewReader(data),
		sendSize: uint64(len(data)),
	})
	if err != nil {
		return 0, 0, 0, err
	}
	return resp.Param(0), resp.Param(1), resp.Param(2), nil
}

// SendObject streams size bytes from r as the object announced by the
// preceding SendObjectInfo.
func (c *Client) SendObject(ctx context.Context, r io.Reader, size uint64, onChunk transport.ChunkFunc) (uint64, error) {
	var sent uint64
	_, err := c.do(ctx, request{
		op:       ptp.OpSendObject,
		send:     r,
		sendSize: size,
		onChunk: func(n int) error {
			sent += uint64(n)
			if onChunk != nil {
				return onChunk(n)
			}
			return nil
		},
	})
	return sent, err
}

// DeleteObject deletes handle. Folders are deleted with their contents on
// devices that support it.
func (c *Client) DeleteObject(ctx context.Context, handle uint32) error {
	_, err := c.do(ctx, request{op: ptp.OpDeleteObject, params: []uint32{handle, 0}})
	return err
}

// MoveObject moves handle under parent in storage.
func (c *Client) MoveObject(ctx context.Context, handle, storage, parent uint32) error {
	_, err := c.do(ctx, request{op: ptp.OpMoveObject, params: []uint32{handle, storage, parent}})
	return err
}

// CopyObject copies handle under parent in storage and returns the new
// handle.
func (c *Client) CopyObject(ctx context.Context, handle, storage, parent uint32) (uint32, error) {
	resp, err := c.do(ctx, request{op: ptp.OpCopyObject, params: []uint32{handle, storage, parent}})
	if err != nil {
		return 0, err
	}
	return resp.Param(0), nil
}

// GetObjectPropValue returns the raw value of prop on handle.
func (c *Client) GetObjectPropValue(ctx context.Context, handle uint32, prop ptp.ObjectPropCode) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := c.do(ctx, request{op: ptp.OpGetObjectPropValue, params: []uint32{handle, uint32(prop)}, recv: &buf}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SetObjectPropValue sets prop on handle to the raw value.
func (c *Client) SetObjectPropValue(ctx context.Context, handle uint32, prop ptp.ObjectPropCode, value []byte) error {
	_, err := c.do(ctx, request{
		op:       ptp.OpSetObjectPropValue,
		params:   []uint32{handle, uint32(prop)},
		send:     bytes.NewReader(value),
		sendSize: uint64(len(value)),
	})
	return err
}

// SetObjectFileName renames handle.
func (c *Client) SetObjectFileName(ctx context.Context, handle uint32, name string) error {
	e := ptp.NewEncoder()
	e.String(name)
	value, err := e.Bytes()
	if err != nil {
		return fmt.Errorf("%s: %w", ptp.OpSetObjectPropValue, err)
	}
	return c.SetObjectPropValue(ctx, handle, ptp.PropObjectFileName, value)
}

// GetObjectSize returns the 64-bit object size property, for objects whose
// ObjectInfo size saturated at 4 GiB.
func (c *Client) GetObjectSize(ctx context.Context, handle uint32) (uint64, error) {
	value, err := c.GetObjectPropValue(ctx, handle, ptp.PropObjectSize)
	if err != nil {
		return 0, err
	}
	if len(value) < 8 {
		return 0, fmt.Errorf("%s: %w: size property %d bytes", ptp.OpGetObjectPropValue, ErrUnexpectedReply, len(value))
	}
	return binary.LittleEndian.Uint64(value), nil
}

// ResetDevice issues a class Device Reset. The session is gone afterwards.
func (c *Client) ResetDevice() error {
	c.open = false
	c.r.Reset()
	return transport.Reset(c.dev)
}

type binaryDataset interface {
	UnmarshalBinary([]byte) error
}

func (c *Client) getDataset(ctx context.Context, op ptp.OperationCode, params []uint32, v binaryDataset) error {
	var buf bytes.Buffer
	if _, err := c.do(ctx, request{op: op, params: params, recv: &buf}); err != nil {
		return err
	}
	if err := v.UnmarshalBinary(buf.Bytes()); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

func decodeHandles(op ptp.OperationCode, data []byte) ([]uint32, error) {
	d := ptp.NewDecoder(data)
	handles := d.Uint32Array()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	return handles, nil
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n)
	return n, err
}
