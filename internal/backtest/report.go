package backtest

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// WriteReport renders a plain-text summary of a replay result.
func WriteReport(w io.Writer, res *Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BACKTEST RESULTS")
	fmt.Fprintln(tw, "----------------")
	fmt.Fprintf(tw, "starting balance\t$%.2f\n", res.StartingBalance)
	fmt.Fprintf(tw, "final balance\t$%.2f\n", res.FinalBalance)
	fmt.Fprintf(tw, "total return\t%.2f%%\n", res.TotalReturn())
	fmt.Fprintf(tw, "fills\t%d\n", len(res.Fills))
	fmt.Fprintf(tw, "win rate\t%.1f%%\n", res.WinRate()*100)
	fmt.Fprintf(tw, "sharpe ratio\t%.2f\n", res.SharpeRatio())
	fmt.Fprintf(tw, "max drawdown\t$%.2f\n", res.MaxDrawdown())

	open := 0
	for _, pos := range res.Positions {
		if pos.Quantity != 0 {
			open++
		}
	}
	fmt.Fprintf(tw, "open positions\t%d\n", open)

	byStrategy := make(map[string]int)
	names := make([]string, 0, 4)
	for _, f := range res.Fills {
		if _, seen := byStrategy[f.Strategy]; !seen {
			names = append(names, f.Strategy)
		}
		byStrategy[f.Strategy]++
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(tw, "fills (%s)\t%d\n", name, byStrategy[name])
	}
	return tw.Flush()
}
