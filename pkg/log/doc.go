// Package log provides structured protocol logging for MTP sessions.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, protocol, session).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging device quirks.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	opts = append(opts, mtp.WithProtocolLogger(log.NewSlogAdapter(slog.Default())))
//
//	// For bug reports: write to binary file
//	fl, _ := log.NewFileLogger("session.mtplog")
//	opts = append(opts, mtp.WithProtocolLogger(fl))
//
//	// Both: use MultiLogger
//	log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: bulk containers (ContainerEvent)
//   - Protocol: completed transactions (TransactionEvent)
//   - Session: state changes and finished transfers
//
// Class control requests (cancel, status, reset) and errors have dedicated
// event types.
//
// # File Format
//
// Log files use CBOR encoding with .mtplog extension. The mtp-log CLI tool
// provides viewing, filtering, and export capabilities.
package log
