package interaction

import (
	"errors"
	"fmt"

	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

// Client errors.
var (
	ErrSessionNotOpen      = errors.New("session not open")
	ErrTransactionMismatch = errors.New("response for another transaction")
	ErrUnexpectedReply     = errors.New("unexpected reply")
)

// ResponseError is a non-OK response from the device.
type ResponseError struct {
	Op     ptp.OperationCode
	Code   ptp.ResponseCode
	Params []uint32
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

// ResponseCodeOf extracts the device response code from err.
func ResponseCodeOf(err error) (ptp.ResponseCode, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return 0, false
}
