package transport

import (
	"fmt"
	"io"
	"time"

	"github.com/luck-mtp/mtp-go/pkg/log"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

// Framing constants.
const (
	// DefaultTimeout bounds a single bulk transfer.
	DefaultTimeout = 5 * time.Second

	// DefaultChunkSize is the default size of one bulk transfer (256 KiB).
	DefaultChunkSize = 256 * 1024

	// MinChunkSize is the smallest transfer size used for data phases.
	MinChunkSize = 512

	// MaxLogContainerDataSize is the maximum container data size to include
	// in logs (4 KB). Larger containers are truncated in log events.
	MaxLogContainerDataSize = 4096

	// maxZeroLengthSkips is how many stray zero-length packets a reader
	// tolerates before a container.
	maxZeroLengthSkips = 2
)

// ChunkFunc is called after each chunk of a data phase with the number of
// payload bytes it carried. A non-nil error aborts the phase.
type ChunkFunc func(n int) error

// AlignChunkSize rounds n down to a multiple of the max packet size, never
// below MinChunkSize or one packet.
func AlignChunkSize(n, packetSize int) int {
	if packetSize <= 0 {
		packetSize = MinChunkSize
	}
	if n < MinChunkSize {
		n = MinChunkSize
	}
	n -= n % packetSize
	if n < packetSize {
		n = packetSize
	}
	return n
}

// DataResult describes a received data phase.
type DataResult struct {
	// Header is the header of the first container received.
	Header ptp.Header

	// Bytes is the number of payload bytes written.
	Bytes uint64

	// Response is set when the device answered with a response container
	// instead of a data phase.
	Response *ptp.Container
}

// ContainerWriter sends containers over the bulk OUT pipe.
// Not safe for concurrent use.
type ContainerWriter struct {
	dev       Device
	timeout   time.Duration
	chunkSize int
	buf       []byte

	// Logging support (optional)
	logger    log.Logger
	sessionID string
}

// NewContainerWriter creates a writer with the default chunk size.
func NewContainerWriter(dev Device) *ContainerWriter {
	return &ContainerWriter{
		dev:       dev,
		timeout:   DefaultTimeout,
		chunkSize: AlignChunkSize(DefaultChunkSize, dev.MaxPacketSize()),
	}
}

// SetTimeout sets the per-transfer timeout.
func (cw *ContainerWriter) SetTimeout(d time.Duration) {
	cw.timeout = d
}

// SetChunkSize sets the transfer size for data phases, aligned with
// AlignChunkSize.
func (cw *ContainerWriter) SetChunkSize(n int) {
	cw.chunkSize = AlignChunkSize(n, cw.dev.MaxPacketSize())
	cw.buf = nil
}

// ChunkSize returns the effective transfer size.
func (cw *ContainerWriter) ChunkSize() int {
	return cw.chunkSize
}

// SetLogger configures logging for this writer.
// Pass nil to disable logging.
func (cw *ContainerWriter) SetLogger(logger log.Logger, sessionID string) {
	cw.logger = logger
	cw.sessionID = sessionID
}

// WriteContainer sends a command container in one transfer.
func (cw *ContainerWriter) WriteContainer(c ptp.Container) error {
	data, err := c.Encode()
	if err != nil {
		return err
	}
	if err := cw.send(data); err != nil {
		return err
	}
	if cw.logger != nil {
		cw.logger.Log(makeContainerEvent(cw.sessionID, log.DirectionOut, c.Type, c.Code, c.TransactionID, uint64(len(data)), data))
	}
	return nil
}

// WriteData sends a data phase of exactly size bytes read from r. The
// header travels with the first chunk. onChunk, if set, is called after
// every transfer that carried payload. Returns the payload bytes sent.
func (cw *ContainerWriter) WriteData(code uint16, tid uint32, r io.Reader, size uint64, onChunk ChunkFunc) (uint64, error) {
	if cw.buf == nil {
		cw.buf = make([]byte, cw.chunkSize)
	}
	buf := cw.buf

	h := ptp.DataHeader(code, tid, size)
	ptp.PutHeader(buf, h)

	first := min(uint64(len(buf)-ptp.HeaderSize), size)
	if _, err := io.ReadFull(r, buf[ptp.HeaderSize:ptp.HeaderSize+int(first)]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrShortData, err)
	}
	if err := cw.send(buf[:ptp.HeaderSize+int(first)]); err != nil {
		return 0, err
	}
	if cw.logger != nil {
		cw.logger.Log(makeContainerEvent(cw.sessionID, log.DirectionOut, ptp.ContainerData, code, tid, size+ptp.HeaderSize, buf[:ptp.HeaderSize+int(first)]))
	}

	sent := first
	if first > 0 && onChunk != nil {
		if err := onChunk(int(first)); err != nil {
			return sent, err
		}
	}

	for sent < size {
		n := int(min(uint64(len(buf)), size-sent))
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return sent, fmt.Errorf("%w: %v at %d of %d", ErrShortData, err, sent, size)
		}
		if err := cw.send(buf[:n]); err != nil {
			return sent, err
		}
		sent += uint64(n)
		if onChunk != nil {
			if err := onChunk(n); err != nil {
				return sent, err
			}
		}
	}

	if packet := uint64(cw.dev.MaxPacketSize()); packet > 0 && (size+ptp.HeaderSize)%packet == 0 {
		if err := cw.send(nil); err != nil {
			return sent, err
		}
	}
	return sent, nil
}

func (cw *ContainerWriter) send(data []byte) error {
	n, err := cw.dev.BulkSend(data, cw.timeout)
	if err != nil {
		return fmt.Errorf("bulk send: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("bulk send: %w: %d of %d bytes", io.ErrShortWrite, n, len(data))
	}
	return nil
}

// ContainerReader receives containers from the bulk IN pipe.
// Not safe for concurrent use.
type ContainerReader struct {
	dev     Device
	timeout time.Duration
	buf     []byte

	// pending holds bytes received past the end of the last container.
	pending []byte

	// Logging support (optional)
	logger    log.Logger
	sessionID string
}

// NewContainerReader creates a reader with a DefaultChunkSize buffer.
func NewContainerReader(dev Device) *ContainerReader {
	return &ContainerReader{
		dev:     dev,
		timeout: DefaultTimeout,
		buf:     make([]byte, AlignChunkSize(DefaultChunkSize, dev.MaxPacketSize())),
	}
}

// SetTimeout sets the per-transfer timeout.
func (cr *ContainerReader) SetTimeout(d time.Duration) {
	cr.timeout = d
}

// SetBufferSize sets the receive transfer size, aligned with AlignChunkSize.
func (cr *ContainerReader) SetBufferSize(n int) {
	cr.buf = make([]byte, AlignChunkSize(n, cr.dev.MaxPacketSize()))
}

// SetLogger configures logging for this reader.
// Pass nil to disable logging.
func (cr *ContainerReader) SetLogger(logger log.Logger, sessionID string) {
	cr.logger = logger
	cr.sessionID = sessionID
}

// Reset drops buffered bytes, used after a cancelled transaction.
func (cr *ContainerReader) Reset() {
	cr.pending = nil
}

// ReadContainer reads a response or event container.
func (cr *ContainerReader) ReadContainer() (ptp.Container, error) {
	b, err := cr.receiveNonEmpty()
	if err != nil {
		return ptp.Container{}, err
	}
	h, err := ptp.ParseHeader(b)
	if err != nil {
		return ptp.Container{}, fmt.Errorf("%w: %d bytes", ErrContainerTruncated, len(b))
	}
	if h.Type == ptp.ContainerData {
		return ptp.Container{}, fmt.Errorf("%w: data phase for %s while awaiting response", ErrUnexpectedContainer, ptp.OperationCode(h.Code))
	}
	return cr.decodeShort(b, h)
}

// ReadData reads a data phase into w. For phases with an unknown length
// (over 4 GiB) limit bounds the payload; a zero limit reads until a short
// transfer. If the device skips the data phase and responds directly, the
// response is returned in DataResult.Response.
func (cr *ContainerReader) ReadData(w io.Writer, limit uint64, onChunk ChunkFunc) (DataResult, error) {
	b, err := cr.receiveNonEmpty()
	if err != nil {
		return DataResult{}, err
	}
	h, err := ptp.ParseHeader(b)
	if err != nil {
		return DataResult{}, fmt.Errorf("%w: %d bytes", ErrContainerTruncated, len(b))
	}

	res := DataResult{Header: h}
	switch h.Type {
	case ptp.ContainerResponse:
		c, err := cr.decodeShort(b, h)
		if err != nil {
			return res, err
		}
		res.Response = &c
		return res, nil
	case ptp.ContainerData:
	default:
		return res, fmt.Errorf("%w: %s container while awaiting data", ErrUnexpectedContainer, h.Type)
	}
	if h.Length < ptp.HeaderSize {
		return res, fmt.Errorf("%w: data length %d", ErrContainerTruncated, h.Length)
	}

	total := limit
	if h.Length != ptp.LengthUnknown {
		total = uint64(h.Length) - ptp.HeaderSize
	}
	unbounded := h.Length == ptp.LengthUnknown && limit == 0
	if cr.logger != nil {
		cr.logger.Log(makeContainerEvent(cr.sessionID, log.DirectionIn, ptp.ContainerData, h.Code, h.TransactionID, total+ptp.HeaderSize, b))
	}

	payload := b[ptp.HeaderSize:]
	last := len(b)
	for {
		if len(payload) > 0 {
			if !unbounded && uint64(len(payload)) > total-res.Bytes {
				keep := total - res.Bytes
				cr.pending = append([]byte(nil), payload[keep:]...)
				payload = payload[:keep]
			}
			if _, err := w.Write(payload); err != nil {
				return res, fmt.Errorf("write data: %w", err)
			}
			res.Bytes += uint64(len(payload))
			if onChunk != nil && len(payload) > 0 {
				if err := onChunk(len(payload)); err != nil {
					return res, err
				}
			}
		}

		if unbounded {
			if last < len(cr.buf) {
				return res, nil
			}
		} else if res.Bytes >= total {
			return res, nil
		}

		n, err := cr.dev.BulkReceive(cr.buf, cr.timeout)
		if err != nil {
			return res, fmt.Errorf("bulk receive: %w", err)
		}
		if n == 0 {
			if unbounded {
				return res, nil
			}
			return res, fmt.Errorf("%w: data phase ended at %d of %d bytes", ErrContainerTruncated, res.Bytes, total)
		}
		payload = cr.buf[:n]
		last = n
	}
}

// decodeShort decodes a single-transfer container from b and keeps any
// trailing bytes for the next read.
func (cr *ContainerReader) decodeShort(b []byte, h ptp.Header) (ptp.Container, error) {
	if h.Length < ptp.HeaderSize || int(h.Length) > len(b) {
		return ptp.Container{}, fmt.Errorf("%w: header says %d, got %d", ErrContainerTruncated, h.Length, len(b))
	}
	if int(h.Length) < len(b) {
		cr.pending = append([]byte(nil), b[h.Length:]...)
	}
	c, err := ptp.DecodeContainer(b[:h.Length])
	if err != nil {
		return ptp.Container{}, err
	}
	if cr.logger != nil {
		cr.logger.Log(makeContainerEvent(cr.sessionID, log.DirectionIn, c.Type, c.Code, c.TransactionID, uint64(h.Length), b[:h.Length]))
	}
	return c, nil
}

func (cr *ContainerReader) receiveNonEmpty() ([]byte, error) {
	if len(cr.pending) > 0 {
		b := cr.pending
		cr.pending = nil
		return b, nil
	}
	for i := 0; ; i++ {
		n, err := cr.dev.BulkReceive(cr.buf, cr.timeout)
		if err != nil {
			return nil, fmt.Errorf("bulk receive: %w", err)
		}
		if n > 0 {
			return cr.buf[:n], nil
		}
		if i >= maxZeroLengthSkips {
			return nil, fmt.Errorf("%w: repeated zero-length packets", ErrContainerTruncated)
		}
	}
}

// makeContainerEvent creates a log event for a container.
func makeContainerEvent(sessionID string, direction log.Direction, typ ptp.ContainerType, code uint16, tid uint32, size uint64, data []byte) log.Event {
	truncated := uint64(len(data)) < size
	if len(data) > MaxLogContainerDataSize {
		data = data[:MaxLogContainerDataSize]
		truncated = true
	}
	return log.Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Direction: direction,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Container: &log.ContainerEvent{
			Type:          typ,
			Code:          code,
			TransactionID: tid,
			Size:          size,
			Data:          append([]byte(nil), data...),
			Truncated:     truncated,
		},
	}
}
