// Package transport defines the USB transport capability an MTP session
// runs on, and the bulk container framing on top of it.
//
// The transport layer handles:
//   - Device enumeration and exclusive open
//   - Bulk container framing with multi-transfer data phases
//   - Still-image class control requests (cancel, status, reset)
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   PTP/MTP transactions         │
//	├────────────────────────────────┤
//	│   Generic containers (12B hdr) │
//	├────────────────────────────────┤
//	│   Bulk IN / Bulk OUT pipes     │
//	├────────────────────────────────┤
//	│   USB still-image class        │
//	└────────────────────────────────┘
//
// # Data Phases
//
// A data phase larger than one transfer is sent as a header-bearing first
// transfer followed by raw bulk transfers. Every transfer except the last
// is a multiple of the endpoint's max packet size. When the whole phase is
// an exact multiple, a zero-length packet terminates it.
//
// Phases above 4 GiB carry length 0xFFFFFFFF; the reader is bounded by the
// size the caller expects.
package transport
