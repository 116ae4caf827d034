// Package ptp defines the PTP/MTP wire format used over USB bulk pipes.
//
// MTP is a superset of PTP (ISO 15740). Every transaction is a sequence of
// containers, each carrying a 12-byte little-endian header:
//
//	┌────────────┬──────────┬──────────┬──────────────────┐
//	│ length u32 │ type u16 │ code u16 │ transaction u32  │
//	└────────────┴──────────┴──────────┴──────────────────┘
//
// followed by up to five u32 parameters (command and response containers)
// or an opaque payload (data containers).
//
// # Transaction Phases
//
//   - Command: host to device, operation code plus parameters
//   - Data (optional): in either direction, a single logical container
//     that may span many bulk transfers
//   - Response: device to host, response code plus parameters
//
// # Datasets
//
// Structured payloads (DeviceInfo, StorageInfo, ObjectInfo) are packed
// fields with no padding. Strings are a u8 character count (including the
// terminating NUL) followed by UTF-16LE code units. Arrays are a u32
// element count followed by the elements.
package ptp
