package interaction

import (
	"encoding/binary"
	"fmt"

	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

// Request is a command, with its data phase if the operation has one.
type Request struct {
	Op            ptp.OperationCode
	TransactionID uint32
	Params        []uint32
	Data          []byte
}

// Param returns parameter i, or 0 if absent.
func (r *Request) Param(i int) uint32 {
	if i < 0 || i >= len(r.Params) {
		return 0
	}
	return r.Params[i]
}

// Response is the device's answer. A nil Data means no data phase.
type Response struct {
	Code   ptp.ResponseCode
	Params []uint32
	Data   []byte
}

// Handler executes operations inside an open session.
type Handler interface {
	HandleOperation(req *Request) *Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req *Request) *Response

// HandleOperation calls f(req).
func (f HandlerFunc) HandleOperation(req *Request) *Response { return f(req) }

// hostDataOps are operations whose data phase flows host to device.
var hostDataOps = map[ptp.OperationCode]bool{
	ptp.OpSendObjectInfo:     true,
	ptp.OpSendObject:         true,
	ptp.OpSetObjectPropValue: true,
}

// HasHostData reports whether op carries a host to device data phase.
func HasHostData(op ptp.OperationCode) bool {
	return hostDataOps[op]
}

// Server is the responder side of the transaction model. It owns session
// state (OpenSession / CloseSession) and forwards every other operation to
// the Handler. GetDeviceInfo is answered with or without a session.
//
// Not safe for concurrent use.
type Server struct {
	handler    Handler
	deviceInfo func() *ptp.DeviceInfo
	packetSize int

	sessionOpen bool
	sessionID   uint32

	// Command waiting for its data phase.
	pending *Request
	// Declared payload length of the data phase in progress, -1 if the
	// header has not arrived.
	dataWant int64

	out [][]byte
}

// NewServer creates a responder. packetSize decides when a data phase is
// followed by a zero-length packet.
func NewServer(handler Handler, deviceInfo func() *ptp.DeviceInfo, packetSize int) *Server {
	return &Server{
		handler:    handler,
		deviceInfo: deviceInfo,
		packetSize: packetSize,
		dataWant:   -1,
	}
}

// SessionOpen reports whether a session is open.
func (s *Server) SessionOpen() bool {
	return s.sessionOpen
}

// Busy reports whether a transaction is between its command and its
// response.
func (s *Server) Busy() bool {
	return s.pending != nil
}

// Receive consumes one bulk OUT transfer.
func (s *Server) Receive(data []byte) error {
	if s.pending != nil && s.dataWant >= 0 {
		s.pending.Data = append(s.pending.Data, data...)
		s.maybeComplete()
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	h, err := ptp.ParseHeader(data)
	if err != nil {
		return err
	}

	switch h.Type {
	case ptp.ContainerCommand:
		c, err := ptp.DecodeContainer(data[:min(int(h.Length), len(data))])
		if err != nil {
			return err
		}
		req := &Request{Op: c.Operation(), TransactionID: c.TransactionID, Params: c.Params}
		if HasHostData(req.Op) {
			s.pending = req
			s.dataWant = -1
			return nil
		}
		s.dispatch(req)
		return nil

	case ptp.ContainerData:
		if s.pending == nil || h.TransactionID != s.pending.TransactionID {
			return fmt.Errorf("data phase for transaction %d without command", h.TransactionID)
		}
		if h.Length == ptp.LengthUnknown {
			return fmt.Errorf("data phase of unknown length not supported")
		}
		s.dataWant = int64(h.Length) - ptp.HeaderSize
		s.pending.Data = append(s.pending.Data[:0], data[ptp.HeaderSize:]...)
		s.maybeComplete()
		return nil

	default:
		return fmt.Errorf("unexpected %s container from host", h.Type)
	}
}

func (s *Server) maybeComplete() {
	if int64(len(s.pending.Data)) < s.dataWant {
		return
	}
	req := s.pending
	req.Data = req.Data[:s.dataWant]
	s.pending = nil
	s.dataWant = -1
	s.dispatch(req)
}

func (s *Server) dispatch(req *Request) {
	var resp *Response
	switch {
	case req.Op == ptp.OpGetDeviceInfo:
		data, err := s.deviceInfo().MarshalBinary()
		if err != nil {
			resp = &Response{Code: ptp.RespGeneralError}
		} else {
			resp = &Response{Code: ptp.RespOK, Data: data}
		}
	case req.Op == ptp.OpOpenSession:
		switch {
		case s.sessionOpen:
			resp = &Response{Code: ptp.RespSessionAlreadyOpen, Params: []uint32{s.sessionID}}
		case req.Param(0) == 0:
			resp = &Response{Code: ptp.RespInvalidParameter}
		default:
			s.sessionOpen = true
			s.sessionID = req.Param(0)
			resp = &Response{Code: ptp.RespOK}
		}
	case !s.sessionOpen:
		resp = &Response{Code: ptp.RespSessionNotOpen}
	case req.Op == ptp.OpCloseSession:
		s.sessionOpen = false
		resp = &Response{Code: ptp.RespOK}
	default:
		resp = s.handler.HandleOperation(req)
		if resp == nil {
			resp = &Response{Code: ptp.RespOperationNotSupported}
		}
	}
	s.queue(req, resp)
}

func (s *Server) queue(req *Request, resp *Response) {
	if resp.Data != nil {
		buf := make([]byte, ptp.HeaderSize+len(resp.Data))
		ptp.PutHeader(buf, ptp.DataHeader(uint16(req.Op), req.TransactionID, uint64(len(resp.Data))))
		copy(buf[ptp.HeaderSize:], resp.Data)
		s.out = append(s.out, buf)
		if s.packetSize > 0 && len(buf)%s.packetSize == 0 {
			s.out = append(s.out, []byte{})
		}
	}
	c := ptp.Container{
		Type:          ptp.ContainerResponse,
		Code:          uint16(resp.Code),
		TransactionID: req.TransactionID,
		Params:        resp.Params,
	}
	buf, err := c.Encode()
	if err != nil {
		buf, _ = ptp.Container{Type: ptp.ContainerResponse, Code: uint16(ptp.RespGeneralError), TransactionID: req.TransactionID}.Encode()
	}
	s.out = append(s.out, buf)
}

// Transmit copies the next bulk IN transfer into buf. A transfer never
// spans two containers. ok is false when nothing is queued.
func (s *Server) Transmit(buf []byte) (n int, ok bool) {
	if len(s.out) == 0 {
		return 0, false
	}
	next := s.out[0]
	n = copy(buf, next)
	if n < len(next) {
		s.out[0] = next[n:]
	} else {
		s.out = s.out[1:]
	}
	return n, true
}

// Pending returns the number of queued bulk IN transfers.
func (s *Server) Pending() int {
	return len(s.out)
}

// Cancel aborts transaction tid: partial data and queued output are
// dropped and a TransactionCancelled response is queued.
func (s *Server) Cancel(tid uint32) {
	s.pending = nil
	s.dataWant = -1
	s.out = nil
	buf, _ := ptp.Container{Type: ptp.ContainerResponse, Code: uint16(ptp.RespTransactionCancelled), TransactionID: tid}.Encode()
	s.out = append(s.out, buf)
}

// Reset returns the responder to idle and closes the session.
func (s *Server) Reset() {
	s.pending = nil
	s.dataWant = -1
	s.out = nil
	s.sessionOpen = false
}

// EncodeUint32Array encodes a counted u32 array, the payload of
// GetObjectHandles and GetStorageIDs.
func EncodeUint32Array(vs []uint32) []byte {
	buf := make([]byte, 4+4*len(vs))
	binary.LittleEndian.PutUint32(buf, uint32(len(vs)))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[4+4*i:], v)
	}
	return buf
}
