package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wonny/movers/internal/contracts"
)

// ErrUnknownLayout is returned for an unsupported partition layout
var ErrUnknownLayout = errors.New("unknown partition layout")

// Layout decides artifact names for a partition
type Layout string

const (
	// LayoutDaily one artifact per date: YYYY-MM-DD.<ext>
	LayoutDaily Layout = "daily"
	// LayoutInstrument one artifact per date and instrument: YYYY-MM-DD/<ID>.<ext>
	LayoutInstrument Layout = "instrument"
)

// ParseLayout validates a layout name
func ParseLayout(s string) (Layout, error) {
	switch l := Layout(strings.ToLower(strings.TrimSpace(s))); l {
	case LayoutDaily, LayoutInstrument:
		return l, nil
	case "":
		return LayoutDaily, nil
	default:
		return "", fmt.Errorf("%w: %q (use daily or instrument)", ErrUnknownLayout, s)
	}
}

// DailyName is the artifact name of a whole-day partition
func DailyName(date contracts.Date, ext string) string {
	return date.String() + "." + ext
}

// InstrumentName is the artifact name of one instrument's slice of a day
func InstrumentName(date contracts.Date, id contracts.InstrumentID, ext string) string {
	return date.String() + "/" + string(id) + "." + ext
}
