package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"portfoliowatch/internal/portfolio"
	"portfoliowatch/internal/pricefeed"
	"portfoliowatch/internal/valuation"
)

func trendMark(t valuation.Trend) string {
	if t == valuation.Loss {
		return "▼"
	}
	return "▲"
}

// printSummary writes the valuation table followed by totals and the feed
// status line.
func printSummary(w io.Writer, s valuation.Summary, st pricefeed.State, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "NAME\tSYMBOL\tINVESTED\tENTRY\tCURRENT\tQUANTITY\tVALUE\tP/L\tP/L %\t\t")
	for _, v := range s.Positions {
		price := valuation.FormatPrice(v.CurrentPrice)
		if !v.Live {
			price += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			v.Position.Name,
			v.Position.Symbol,
			valuation.FormatCurrency(v.Position.InvestedAmount),
			valuation.FormatPrice(v.Position.EntryPrice),
			price,
			valuation.FormatQuantity(v.Position.Quantity),
			valuation.FormatCurrency(v.CurrentValue),
			valuation.FormatSignedCurrency(v.ProfitLoss),
			valuation.FormatPercent(v.ProfitLossPercent),
			trendMark(v.Trend()),
		)
	}
	fmt.Fprintf(tw, "TOTAL\t\t%s\t\t\t\t%s\t%s\t%s\t%s\t\n",
		valuation.FormatCurrency(s.TotalInvested),
		valuation.FormatCurrency(s.TotalCurrentValue),
		valuation.FormatSignedCurrency(s.TotalProfitLoss),
		valuation.FormatPercent(s.TotalProfitLossPercent),
		trendMark(s.Trend()),
	)
	if err := tw.Flush(); err != nil {
		return err
	}

	status := "prices updated " + valuation.FormatRelative(st.LastUpdated, now)
	if st.LastUpdated.IsZero() {
		status = "prices never updated"
	}
	if st.Err != "" {
		status += " (last refresh failed: " + st.Err + ")"
	}
	for _, v := range s.Positions {
		if !v.Live {
			status += "; * entry price, no live quote"
			break
		}
	}
	_, err := fmt.Fprintln(w, status)
	return err
}

func printPositions(w io.Writer, positions []portfolio.Position) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSYMBOL\tINVESTED\tENTRY\tQUANTITY\tSTATUS")
	for _, p := range positions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Name, p.Symbol,
			valuation.FormatCurrency(p.InvestedAmount),
			valuation.FormatPrice(p.EntryPrice),
			valuation.FormatQuantity(p.Quantity),
			p.Status,
		)
	}
	return tw.Flush()
}
