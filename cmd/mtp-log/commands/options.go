// Package commands implements the mtp-log CLI commands.
package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/luck-mtp/mtp-go/pkg/log"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

// FilterOptions holds the event selection flags shared by all commands.
// Empty fields select everything.
type FilterOptions struct {
	SessionID string
	Device    string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
	Operation string
}

// Filter converts the flags into a log.Filter.
func (o FilterOptions) Filter() (log.Filter, error) {
	filter := log.Filter{
		SessionID: o.SessionID,
		Device:    strings.ToLower(o.Device),
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if o.Layer != "" {
		l, err := ParseLayer(o.Layer)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Layer = &l
	}
	if o.Direction != "" {
		d, err := ParseDirection(o.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}
	if o.Category != "" {
		c, err := ParseCategory(o.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}
	if o.Operation != "" {
		op, err := ptp.ParseOperation(o.Operation)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Operation = &op
	}
	return filter, nil
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "protocol":
		return log.LayerProtocol, nil
	case "session":
		return log.LayerSession, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, protocol, or session)", s)
	}
}

// ParseDirection parses a direction name (case-insensitive).
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	case "transfer":
		return log.CategoryTransfer, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, control, state, error, or transfer)", s)
	}
}

// eventType labels the payload an event carries.
func eventType(e log.Event) string {
	switch {
	case e.Container != nil:
		return "Container " + e.Container.Type.String()
	case e.Transaction != nil:
		return "Transaction"
	case e.StateChange != nil:
		return "State"
	case e.Control != nil:
		return e.Control.Type.String()
	case e.Transfer != nil:
		return "Transfer"
	case e.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

func shortenSessionID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
