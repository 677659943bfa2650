package report

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/wonny/movers/internal/contracts"
)

// ArtifactKey names the ranked table artifact
const ArtifactKey = "daily_top_stocks"

// Side of the report an entry belongs to
type Side string

const (
	SideGainer Side = "gainer"
	SideLoser  Side = "loser"
)

// Entry is one line of the ranked table
type Entry struct {
	Side       Side                   `json:"side"`
	Rank       int                    `json:"rank"`
	Instrument contracts.InstrumentID `json:"instrument"`
	Date       contracts.Date         `json:"date"`
	PctChange  decimal.Decimal        `json:"pct_change"`
}

// Table flattens a report into gainers then losers, ranks starting at 1
func Table(r contracts.MoverReport) []Entry {
	entries := make([]Entry, 0, len(r.TopGainers)+len(r.TopLosers))
	for i, m := range r.TopGainers {
		entries = append(entries, entryOf(SideGainer, i+1, m))
	}
	for i, m := range r.TopLosers {
		entries = append(entries, entryOf(SideLoser, i+1, m))
	}
	return entries
}

func entryOf(side Side, rank int, m contracts.Mover) Entry {
	return Entry{
		Side:       side,
		Rank:       rank,
		Instrument: m.Instrument,
		Date:       m.Date,
		PctChange:  m.PctChange,
	}
}

// Render formats the human-readable daily report
func Render(r contracts.MoverReport) string {
	var b strings.Builder

	if r.AsOf.IsZero() {
		b.WriteString("Daily report - no data\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Daily report - %s\n\n", r.AsOf)
	writeSide(&b, fmt.Sprintf("Top %d gainers", len(r.TopGainers)), r.TopGainers)
	b.WriteString("\n")
	writeSide(&b, fmt.Sprintf("Top %d losers", len(r.TopLosers)), r.TopLosers)
	return b.String()
}

func writeSide(b *strings.Builder, title string, movers []contracts.Mover) {
	fmt.Fprintf(b, "%s:\n", title)
	if len(movers) == 0 {
		b.WriteString("  (none)\n")
		return
	}

	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  Instrument\tChange")
	for _, m := range movers {
		fmt.Fprintf(tw, "  %s\t%s\n", m.Instrument, FormatPct(m.PctChange))
	}
	tw.Flush()
}

// FormatPct renders a fractional change as a signed percentage, e.g. +5.00%
func FormatPct(d decimal.Decimal) string {
	pct := d.Mul(decimal.NewFromInt(100)).StringFixed(2)
	if d.Sign() > 0 {
		pct = "+" + pct
	}
	return pct + "%"
}
