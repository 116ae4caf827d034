package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/luck-mtp/mtp-go/pkg/log"
)

// RunExport exports the log file as jsonl or csv to output, or to w when
// output is empty.
func RunExport(path, format, output string, filter log.Filter, w io.Writer) error {
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

var csvHeader = []string{"timestamp", "session_id", "direction", "layer", "category", "device", "type", "code", "transaction_id", "bytes"}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		var code, tid, size string
		switch {
		case event.Container != nil:
			code = codeName(event.Container)
			tid = strconv.FormatUint(uint64(event.Container.TransactionID), 10)
			size = strconv.FormatUint(event.Container.Size, 10)
		case event.Transaction != nil:
			code = event.Transaction.Operation.String()
			tid = strconv.FormatUint(uint64(event.Transaction.TransactionID), 10)
			size = strconv.FormatUint(event.Transaction.DataBytes, 10)
		case event.Transfer != nil:
			size = strconv.FormatUint(event.Transfer.Bytes, 10)
		case event.Control != nil && event.Control.TransactionID != 0:
			tid = strconv.FormatUint(uint64(event.Control.TransactionID), 10)
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.SessionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.Device,
			eventType(event),
			code,
			tid,
			size,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
