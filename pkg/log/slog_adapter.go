package log

import (
	"context"
	"encoding/hex"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful for development when you want to see protocol events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.Device != "" {
		attrs = append(attrs, slog.String("device", event.Device))
	}
	if event.StorageID != 0 {
		attrs = append(attrs, slog.Uint64("storage_id", uint64(event.StorageID)))
	}

	// Add type-specific attributes
	switch {
	case event.Container != nil:
		attrs = append(attrs,
			slog.String("container", event.Container.Type.String()),
			slog.String("code", containerCodeName(event.Container)),
			slog.Uint64("tid", uint64(event.Container.TransactionID)),
			slog.Uint64("size", event.Container.Size),
			slog.Bool("truncated", event.Container.Truncated),
		)
	case event.Transaction != nil:
		attrs = append(attrs,
			slog.String("operation", event.Transaction.Operation.String()),
			slog.Uint64("tid", uint64(event.Transaction.TransactionID)),
		)
		if event.Transaction.Response != nil {
			attrs = append(attrs, slog.String("response", event.Transaction.Response.String()))
		}
		if event.Transaction.DataBytes > 0 {
			attrs = append(attrs, slog.Uint64("data_bytes", event.Transaction.DataBytes))
		}
		if event.Transaction.Duration != nil {
			attrs = append(attrs, slog.Duration("duration", *event.Transaction.Duration))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Control != nil:
		attrs = append(attrs, slog.String("ctrl_type", event.Control.Type.String()))
		if event.Control.TransactionID != 0 {
			attrs = append(attrs, slog.Uint64("tid", uint64(event.Control.TransactionID)))
		}
	case event.Transfer != nil:
		attrs = append(attrs,
			slog.Uint64("object_id", uint64(event.Transfer.ObjectID)),
			slog.String("path", event.Transfer.Path),
			slog.Uint64("bytes", event.Transfer.Bytes),
			slog.Uint64("total", event.Transfer.Total),
		)
		if len(event.Transfer.Digest) > 0 {
			attrs = append(attrs, slog.String("digest", hex.EncodeToString(event.Transfer.Digest)))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
