package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// An .mtplog file is a plain sequence of CBOR-encoded Events, one data
// item per event, with no header. Struct fields are keyed by small
// integers (see the keyasint tags in event.go), so renaming a Go field
// never changes the file format.

// Decoding limits. The deepest event is Event > TransactionEvent > params
// and captured payloads are byte strings, so real files stay far below
// these; a corrupt file fails instead of allocating.
const (
	maxEventNesting  = 8
	maxEventPairs    = 64
	maxEventElements = 1024
)

var (
	eventEncMode cbor.EncMode
	eventDecMode cbor.DecMode
)

func init() {
	var err error

	// Canonical key order makes two captures of the same exchange
	// byte-comparable. Timestamps keep nanoseconds so container phases of
	// one transaction sort correctly.
	eventEncMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("mtplog: encoder mode: %v", err))
	}

	eventDecMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyQuiet,
		IndefLength:      cbor.IndefLengthAllowed,
		MaxNestedLevels:  maxEventNesting,
		MaxMapPairs:      maxEventPairs,
		MaxArrayElements: maxEventElements,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("mtplog: decoder mode: %v", err))
	}
}

// EncodeEvent encodes one .mtplog record.
func EncodeEvent(event Event) ([]byte, error) {
	return eventEncMode.Marshal(event)
}

// DecodeEvent decodes one .mtplog record. Keys this version does not
// know are skipped.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := eventDecMode.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("mtplog: %w", err)
	}
	return event, nil
}

// NewEncoder returns an encoder appending records to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return eventEncMode.NewEncoder(w)
}

// NewDecoder returns a decoder reading successive records from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return eventDecMode.NewDecoder(r)
}
