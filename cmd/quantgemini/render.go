package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"quantgemini/pkg/quantgemini"
)

func printAnalysis(w io.Writer, r *quantgemini.AnalysisResult) {
	direction := "+"
	if r.IsNegativeChange() {
		direction = ""
	}
	fmt.Fprintf(w, "%s  %s\n", r.Ticker, r.Name)
	fmt.Fprintf(w, "%s  %s%s (%s)\n\n", r.CurrentPrice, direction, strings.TrimPrefix(r.PriceChange, "+"), r.PriceChangePercent)

	if r.TechnicalSummary != "" {
		fmt.Fprintf(w, "%s\n\n", r.TechnicalSummary)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "RSI\t%s\n", r.Indicators.RSI)
	fmt.Fprintf(tw, "MACD\t%s\n", r.Indicators.MACD)
	fmt.Fprintf(tw, "Moving averages\t%s\n", r.Indicators.MovingAverages)
	fmt.Fprintf(tw, "Volume\t%s\n", r.Indicators.VolumeProfile)
	fmt.Fprintf(tw, "Short interest\t%s\n", r.Indicators.ShortInterest)
	fmt.Fprintf(tw, "Momentum\t%s (%s)\n", r.Momentum.Trend, r.Momentum.Strength)
	fmt.Fprintf(tw, "Sentiment\t%s %.0f/100\n", r.Sentiment.Label, float64(r.Sentiment.Score))
	_ = tw.Flush()

	if len(r.Sentiment.Headlines) > 0 {
		fmt.Fprintln(w, "\nHeadlines")
		for _, h := range r.Sentiment.Headlines {
			fmt.Fprintf(w, "  [%s] %s (%s, %s)\n", orDash(h.Impact), h.Title, h.Source, h.Date)
		}
	}
	if r.Sentiment.ShortTermOutlook != "" {
		fmt.Fprintf(w, "\nOutlook: %s\n", r.Sentiment.ShortTermOutlook)
	}

	fmt.Fprintln(w, "\nStrategy")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  Entry\t%s\n", r.Strategy.EntryPoint)
	fmt.Fprintf(tw, "  Take profit\t%s\n", r.Strategy.TakeProfit)
	fmt.Fprintf(tw, "  Stop loss\t%s\n", r.Strategy.StopLoss)
	fmt.Fprintf(tw, "  Downside exit\t%s\n", r.Strategy.DownsideExit)
	_ = tw.Flush()
	if r.Strategy.Rationale != "" {
		fmt.Fprintf(w, "  %s\n", r.Strategy.Rationale)
	}

	fmt.Fprintln(w)
	if r.HistorySynthetic {
		fmt.Fprintln(w, "Price series (synthetic, for illustration only)")
	} else {
		fmt.Fprintln(w, "Price series")
	}
	printChart(w, r.History)

	if len(r.Sources) > 0 {
		fmt.Fprintln(w, "\nSources")
		for i, s := range r.Sources {
			fmt.Fprintf(w, "  %d. %s  %s\n", i+1, s.Title, s.URI)
		}
	}
}

func printChart(w io.Writer, points []quantgemini.HistoryPoint) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, p := range points {
		fmt.Fprintf(tw, "  %s\t%s\n", p.Time, p.Price.StringFixed(2))
	}
	_ = tw.Flush()
}

func printHistory(w io.Writer, results []quantgemini.AnalysisResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No stored analyses.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tPRICE\tTREND\tSENTIMENT\tMODEL")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %.0f\t%s\n",
			r.CreatedAt, r.CurrentPrice, r.Momentum.Trend, r.Sentiment.Label, float64(r.Sentiment.Score), r.Model)
	}
	_ = tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
