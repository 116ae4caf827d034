package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/luck-mtp/mtp-go/pkg/log"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

// RunView writes the events of the log at path that match filter in
// human-readable form.
func RunView(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [session:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	layer := event.Layer.String()
	if event.Category == log.CategoryControl {
		layer = "CTRL"
	}
	fmt.Fprintf(w, "%s [session:%s] %-3s %s %s\n",
		ts, shortenSessionID(event.SessionID), event.Direction.String(), layer, eventType(event))
	if event.Device != "" {
		fmt.Fprintf(w, "  Device: %s\n", event.Device)
	}
	if event.StorageID != 0 {
		fmt.Fprintf(w, "  Storage: 0x%08x\n", event.StorageID)
	}

	switch {
	case event.Container != nil:
		formatContainerDetails(w, event.Container)
	case event.Transaction != nil:
		formatTransactionDetails(w, event.Transaction)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Control != nil:
		if event.Control.TransactionID != 0 {
			fmt.Fprintf(w, "  TransactionID: %d\n", event.Control.TransactionID)
		}
	case event.Transfer != nil:
		formatTransferDetails(w, event.Transfer)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// codeName renders a container code as an operation or response name.
func codeName(c *log.ContainerEvent) string {
	switch c.Type {
	case ptp.ContainerResponse:
		return ptp.ResponseCode(c.Code).String()
	case ptp.ContainerEvent:
		return fmt.Sprintf("0x%04X", c.Code)
	default:
		return ptp.OperationCode(c.Code).String()
	}
}

func formatContainerDetails(w io.Writer, c *log.ContainerEvent) {
	fmt.Fprintf(w, "  Code: %s  TransactionID: %d\n", codeName(c), c.TransactionID)
	fmt.Fprintf(w, "  Size: %d bytes\n", c.Size)
	if len(c.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(c.Data))
		if c.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatTransactionDetails(w io.Writer, tx *log.TransactionEvent) {
	fmt.Fprintf(w, "  Operation: %s  TransactionID: %d\n", tx.Operation.String(), tx.TransactionID)
	if len(tx.Params) > 0 {
		fmt.Fprint(w, "  Params:")
		for _, p := range tx.Params {
			fmt.Fprintf(w, " 0x%08x", p)
		}
		fmt.Fprintln(w)
	}
	if tx.Response != nil {
		fmt.Fprintf(w, "  Response: %s\n", tx.Response.String())
	} else {
		fmt.Fprintln(w, "  Response: none")
	}
	if tx.DataBytes > 0 {
		fmt.Fprintf(w, "  Data: %d bytes\n", tx.DataBytes)
	}
	if tx.Duration != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*tx.Duration))
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatTransferDetails(w io.Writer, tr *log.TransferEvent) {
	fmt.Fprintf(w, "  Object: %d %s\n", tr.ObjectID, tr.Path)
	fmt.Fprintf(w, "  Bytes: %d/%d\n", tr.Bytes, tr.Total)
	if tr.Duration > 0 {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(tr.Duration))
	}
	if len(tr.Digest) > 0 {
		fmt.Fprintf(w, "  BLAKE2b-256: %s\n", hex.EncodeToString(tr.Digest))
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %s\n", ptp.ResponseCode(*err.Code).String())
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
