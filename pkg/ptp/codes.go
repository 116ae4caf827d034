package ptp

import (
	"fmt"
	"strconv"
	"strings"
)

// OperationCode identifies a PTP/MTP operation.
type OperationCode uint16

// Operation codes used by this client.
const (
	OpGetDeviceInfo      OperationCode = 0x1001
	OpOpenSession        OperationCode = 0x1002
	OpCloseSession       OperationCode = 0x1003
	OpGetStorageIDs      OperationCode = 0x1004
	OpGetStorageInfo     OperationCode = 0x1005
	OpGetNumObjects      OperationCode = 0x1006
	OpGetObjectHandles   OperationCode = 0x1007
	OpGetObjectInfo      OperationCode = 0x1008
	OpGetObject          OperationCode = 0x1009
	OpDeleteObject       OperationCode = 0x100B
	OpSendObjectInfo     OperationCode = 0x100C
	OpSendObject         OperationCode = 0x100D
	OpMoveObject         OperationCode = 0x1019
	OpCopyObject         OperationCode = 0x101A
	OpGetPartialObject   OperationCode = 0x101B
	OpGetObjectPropValue OperationCode = 0x9803
	OpSetObjectPropValue OperationCode = 0x9804
)

var operationNames = map[OperationCode]string{
	OpGetDeviceInfo:      "GetDeviceInfo",
	OpOpenSession:        "OpenSession",
	OpCloseSession:       "CloseSession",
	OpGetStorageIDs:      "GetStorageIDs",
	OpGetStorageInfo:     "GetStorageInfo",
	OpGetNumObjects:      "GetNumObjects",
	OpGetObjectHandles:   "GetObjectHandles",
	OpGetObjectInfo:      "GetObjectInfo",
	OpGetObject:          "GetObject",
	OpDeleteObject:       "DeleteObject",
	OpSendObjectInfo:     "SendObjectInfo",
	OpSendObject:         "SendObject",
	OpMoveObject:         "MoveObject",
	OpCopyObject:         "CopyObject",
	OpGetPartialObject:   "GetPartialObject",
	OpGetObjectPropValue: "GetObjectPropValue",
	OpSetObjectPropValue: "SetObjectPropValue",
}

// String returns the operation name.
func (o OperationCode) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OPERATION(0x%04X)", uint16(o))
}

// ParseOperation accepts an operation name, case-insensitive, or a hex
// code such as "0x1009".
func ParseOperation(s string) (OperationCode, error) {
	for code, name := range operationNames {
		if strings.EqualFold(name, s) {
			return code, nil
		}
	}
	if v, err := strconv.ParseUint(s, 0, 16); err == nil {
		return OperationCode(v), nil
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// ResponseCode is the status a device returns in a response container.
type ResponseCode uint16

// PTP response codes.
const (
	RespUndefined                        ResponseCode = 0x2000
	RespOK                               ResponseCode = 0x2001
	RespGeneralError                     ResponseCode = 0x2002
	RespSessionNotOpen                   ResponseCode = 0x2003
	RespInvalidTransactionID             ResponseCode = 0x2004
	RespOperationNotSupported            ResponseCode = 0x2005
	RespParameterNotSupported            ResponseCode = 0x2006
	RespIncompleteTransfer               ResponseCode = 0x2007
	RespInvalidStorageID                 ResponseCode = 0x2008
	RespInvalidObjectHandle              ResponseCode = 0x2009
	RespDevicePropNotSupported           ResponseCode = 0x200A
	RespInvalidObjectFormatCode          ResponseCode = 0x200B
	RespStoreFull                        ResponseCode = 0x200C
	RespObjectWriteProtected             ResponseCode = 0x200D
	RespStoreReadOnly                    ResponseCode = 0x200E
	RespAccessDenied                     ResponseCode = 0x200F
	RespNoThumbnailPresent               ResponseCode = 0x2010
	RespSelfTestFailed                   ResponseCode = 0x2011
	RespPartialDeletion                  ResponseCode = 0x2012
	RespStoreNotAvailable                ResponseCode = 0x2013
	RespSpecificationByFormatUnsupported ResponseCode = 0x2014
	RespNoValidObjectInfo                ResponseCode = 0x2015
	RespInvalidCodeFormat                ResponseCode = 0x2016
	RespUnknownVendorCode                ResponseCode = 0x2017
	RespCaptureAlreadyTerminated         ResponseCode = 0x2018
	RespDeviceBusy                       ResponseCode = 0x2019
	RespInvalidParentObject              ResponseCode = 0x201A
	RespInvalidDevicePropFormat          ResponseCode = 0x201B
	RespInvalidDevicePropValue           ResponseCode = 0x201C
	RespInvalidParameter                 ResponseCode = 0x201D
	RespSessionAlreadyOpen               ResponseCode = 0x201E
	RespTransactionCancelled             ResponseCode = 0x201F
	RespSpecificationOfDestUnsupported   ResponseCode = 0x2020
)

// MTP extension response codes.
const (
	RespInvalidObjectPropCode     ResponseCode = 0xA801
	RespInvalidObjectPropFormat   ResponseCode = 0xA802
	RespInvalidObjectPropValue    ResponseCode = 0xA803
	RespInvalidObjectReference    ResponseCode = 0xA804
	RespGroupNotSupported         ResponseCode = 0xA805
	RespInvalidDataset            ResponseCode = 0xA806
	RespSpecificationByGroupUnsup ResponseCode = 0xA807
	RespSpecificationByDepthUnsup ResponseCode = 0xA808
	RespObjectTooLarge            ResponseCode = 0xA809
	RespObjectPropNotSupported    ResponseCode = 0xA80A
)

var responseNames = map[ResponseCode]string{
	RespUndefined:                        "UNDEFINED",
	RespOK:                               "OK",
	RespGeneralError:                     "GENERAL_ERROR",
	RespSessionNotOpen:                   "SESSION_NOT_OPEN",
	RespInvalidTransactionID:             "INVALID_TRANSACTION_ID",
	RespOperationNotSupported:            "OPERATION_NOT_SUPPORTED",
	RespParameterNotSupported:            "PARAMETER_NOT_SUPPORTED",
	RespIncompleteTransfer:               "INCOMPLETE_TRANSFER",
	RespInvalidStorageID:                 "INVALID_STORAGE_ID",
	RespInvalidObjectHandle:              "INVALID_OBJECT_HANDLE",
	RespDevicePropNotSupported:           "DEVICE_PROP_NOT_SUPPORTED",
	RespInvalidObjectFormatCode:          "INVALID_OBJECT_FORMAT_CODE",
	RespStoreFull:                        "STORE_FULL",
	RespObjectWriteProtected:             "OBJECT_WRITE_PROTECTED",
	RespStoreReadOnly:                    "STORE_READ_ONLY",
	RespAccessDenied:                     "ACCESS_DENIED",
	RespNoThumbnailPresent:               "NO_THUMBNAIL_PRESENT",
	RespSelfTestFailed:                   "SELF_TEST_FAILED",
	RespPartialDeletion:                  "PARTIAL_DELETION",
	RespStoreNotAvailable:                "STORE_NOT_AVAILABLE",
	RespSpecificationByFormatUnsupported: "SPECIFICATION_BY_FORMAT_UNSUPPORTED",
	RespNoValidObjectInfo:                "NO_VALID_OBJECT_INFO",
	RespInvalidCodeFormat:                "INVALID_CODE_FORMAT",
	RespUnknownVendorCode:                "UNKNOWN_VENDOR_CODE",
	RespCaptureAlreadyTerminated:         "CAPTURE_ALREADY_TERMINATED",
	RespDeviceBusy:                       "DEVICE_BUSY",
	RespInvalidParentObject:              "INVALID_PARENT_OBJECT",
	RespInvalidDevicePropFormat:          "INVALID_DEVICE_PROP_FORMAT",
	RespInvalidDevicePropValue:           "INVALID_DEVICE_PROP_VALUE",
	RespInvalidParameter:                 "INVALID_PARAMETER",
	RespSessionAlreadyOpen:               "SESSION_ALREADY_OPEN",
	RespTransactionCancelled:             "TRANSACTION_CANCELLED",
	RespSpecificationOfDestUnsupported:   "SPECIFICATION_OF_DESTINATION_UNSUPPORTED",
	RespInvalidObjectPropCode:            "INVALID_OBJECT_PROP_CODE",
	RespInvalidObjectPropFormat:          "INVALID_OBJECT_PROP_FORMAT",
	RespInvalidObjectPropValue:           "INVALID_OBJECT_PROP_VALUE",
	RespInvalidObjectReference:           "INVALID_OBJECT_REFERENCE",
	RespGroupNotSupported:                "GROUP_NOT_SUPPORTED",
	RespInvalidDataset:                   "INVALID_DATASET",
	RespSpecificationByGroupUnsup:        "SPECIFICATION_BY_GROUP_UNSUPPORTED",
	RespSpecificationByDepthUnsup:        "SPECIFICATION_BY_DEPTH_UNSUPPORTED",
	RespObjectTooLarge:                   "OBJECT_TOO_LARGE",
	RespObjectPropNotSupported:           "OBJECT_PROP_NOT_SUPPORTED",
}

// String returns the response name.
func (r ResponseCode) String() string {
	if name, ok := responseNames[r]; ok {
		return name
	}
	return fmt.Sprintf("RESPONSE(0x%04X)", uint16(r))
}

// IsSuccess returns true if the response code is OK.
func (r ResponseCode) IsSuccess() bool {
	return r == RespOK
}

// EventCode identifies an asynchronous device event.
type EventCode uint16

// Events a device may raise on the interrupt pipe. They are logged but not
// acted upon; the catalog is invalidated by this client's own mutations.
const (
	EventCancelTransaction EventCode = 0x4001
	EventObjectAdded       EventCode = 0x4002
	EventObjectRemoved     EventCode = 0x4003
	EventStoreAdded        EventCode = 0x4004
	EventStoreRemoved      EventCode = 0x4005
	EventDeviceInfoChanged EventCode = 0x4008
	EventObjectInfoChanged EventCode = 0x4007
	EventStorageInfoChange EventCode = 0x400C
)

// ObjectPropCode identifies an MTP object property.
type ObjectPropCode uint16

// Object properties used by this client.
const (
	PropStorageID      ObjectPropCode = 0xDC01
	PropObjectFormat   ObjectPropCode = 0xDC02
	PropObjectSize     ObjectPropCode = 0xDC04
	PropObjectFileName ObjectPropCode = 0xDC07
	PropDateModified   ObjectPropCode = 0xDC09
	PropParentObject   ObjectPropCode = 0xDC0B
	PropName           ObjectPropCode = 0xDC44
)

// Well-known parameter values.
const (
	// HandleRoot is the parent handle of objects at the root of a storage.
	HandleRoot uint32 = 0x00000000

	// HandleRootAlt is the alternative root parent some devices report in
	// ObjectInfo. It is normalised to HandleRoot on decode.
	HandleRootAlt uint32 = 0xFFFFFFFF

	// ParentFilterRoot restricts GetObjectHandles to objects at the root.
	ParentFilterRoot uint32 = 0xFFFFFFFF

	// FormatFilterAny disables format filtering in GetObjectHandles.
	FormatFilterAny uint32 = 0x00000000

	// StorageAll selects all storages.
	StorageAll uint32 = 0xFFFFFFFF

	// DefaultSessionID is the session id this client opens.
	DefaultSessionID uint32 = 1
)
