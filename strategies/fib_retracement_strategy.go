//! Fibonacci Retracement Strategy
//!
//! Long entries on upward crossings of the 50% retracement level between
//! the rolling swing low and swing high, exits at the swing high, with a
//! fixed fraction of the current account balance per position.

package strategies

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fib-backtest/services/engine"
)

// FibRetracementStrategy wires the indicator engine and the trade
// simulator together for one symbol's daily series.
type FibRetracementStrategy struct {
	// Params
	SwingLength     int
	RiskFraction    decimal.Decimal
	StartingBalance decimal.Decimal

	// State
	Bars      []engine.PriceBar
	Annotated []engine.AnnotatedBar
	State     *engine.SimulationState
	Events    *engine.EventLog

	Verbose bool
}

func NewFibRetracementStrategy() *FibRetracementStrategy {
	return &FibRetracementStrategy{
		SwingLength:     10,
		RiskFraction:    decimal.NewFromFloat(0.05),
		StartingBalance: decimal.NewFromFloat(10000.0),
		Events:          &engine.EventLog{},
	}
}

// TradeSummary contains the aggregated statistics of one run.
type TradeSummary struct {
	TotalTrades     int
	Wins            int
	Losses          int
	WinRate         decimal.Decimal
	StartingBalance decimal.Decimal
	EndingBalance   decimal.Decimal
	TotalPnl        decimal.Decimal
	TotalPnlPercent decimal.Decimal
	BestTrade       decimal.Decimal
	WorstTrade      decimal.Decimal
}

var csvDateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"}

// LoadCSV reads a daily series. Columns are resolved from the header when
// one is present (date/high/low/close, any casing; "Adj Close" serves as
// close and takes precedence when both appear); headerless files are
// assumed to be
// date,open,high,low,close[,volume]. Malformed rows are skipped, matching
// the exported-data quirks the cleaners tolerate.
func (s *FibRetracementStrategy) LoadCSV(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%s: no rows", filename)
	}

	dateIdx, highIdx, lowIdx, closeIdx := 0, 2, 3, 4
	rows := records
	if idx, ok := headerIndexes(records[0]); ok {
		dateIdx, highIdx, lowIdx, closeIdx = idx[0], idx[1], idx[2], idx[3]
		rows = records[1:]
	}

	s.Bars = s.Bars[:0]
	for _, rec := range rows {
		maxIdx := dateIdx
		for _, i := range []int{highIdx, lowIdx, closeIdx} {
			if i > maxIdx {
				maxIdx = i
			}
		}
		if len(rec) <= maxIdx {
			continue
		}
		date, ok := parseDate(strings.TrimPrefix(strings.TrimSpace(rec[dateIdx]), "\ufeff"))
		if !ok {
			continue
		}
		high, err1 := decimal.NewFromString(strings.TrimSpace(rec[highIdx]))
		low, err2 := decimal.NewFromString(strings.TrimSpace(rec[lowIdx]))
		closep, err3 := decimal.NewFromString(strings.TrimSpace(rec[closeIdx]))
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		s.Bars = append(s.Bars, engine.PriceBar{Date: date, High: high, Low: low, Close: closep})
	}
	if len(s.Bars) > 1 {
		sort.Slice(s.Bars, func(i, j int) bool { return s.Bars[i].Date.Before(s.Bars[j].Date) })
	}
	return nil
}

func headerIndexes(rec []string) ([4]int, bool) {
	idx := [4]int{-1, -1, -1, -1}
	adjClose := false
	for i, col := range rec {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))) {
		case "date":
			idx[0] = i
		case "high":
			idx[1] = i
		case "low":
			idx[2] = i
		case "adj close":
			// Adjusted close wins over raw close whatever the column order.
			idx[3] = i
			adjClose = true
		case "close":
			if !adjClose {
				idx[3] = i
			}
		}
	}
	if idx[0] < 0 {
		return idx, false
	}
	for _, i := range idx[1:] {
		if i < 0 {
			return idx, false
		}
	}
	return idx, true
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Run annotates the loaded series and simulates the strategy over it.
func (s *FibRetracementStrategy) Run() error {
	annotated, err := engine.Annotate(s.Bars, s.SwingLength)
	if err != nil {
		return err
	}
	s.Annotated = annotated

	if s.Verbose {
		log.Printf("Annotated %d of %d bars (swing length %d)", len(annotated), len(s.Bars), s.SwingLength)
	}

	sim := engine.NewSimulator(engine.SimConfig{
		StartingBalance: s.StartingBalance,
		RiskFraction:    s.RiskFraction,
	}, s.Events)
	state, err := sim.Run(annotated)
	if err != nil {
		return err
	}
	s.State = state

	if s.Verbose {
		for _, t := range state.Trades {
			log.Printf("Entered %s @ %s, exited %s @ %s, PnL %s (%s%%)",
				t.EntryDate.Format("2006-01-02"), t.EntryPrice.StringFixed(2),
				t.ExitDate.Format("2006-01-02"), t.ExitPrice.StringFixed(2),
				t.Pnl.StringFixed(2), t.PnlPercent.StringFixed(2))
		}
	}
	return nil
}

func (s *FibRetracementStrategy) GenerateSummary() TradeSummary {
	summary := TradeSummary{
		StartingBalance: s.StartingBalance,
		EndingBalance:   s.StartingBalance,
	}
	if s.State == nil {
		return summary
	}
	summary.EndingBalance = s.State.EndingBalance()
	summary.TotalPnl = s.State.TotalPnl
	summary.TotalPnlPercent = s.State.TotalPnlPercent
	summary.TotalTrades = len(s.State.Trades)

	for i, t := range s.State.Trades {
		if t.Pnl.IsNegative() {
			summary.Losses++
		} else {
			summary.Wins++
		}
		if i == 0 {
			summary.BestTrade, summary.WorstTrade = t.Pnl, t.Pnl
			continue
		}
		if t.Pnl.GreaterThan(summary.BestTrade) {
			summary.BestTrade = t.Pnl
		}
		if t.Pnl.LessThan(summary.WorstTrade) {
			summary.WorstTrade = t.Pnl
		}
	}
	if summary.TotalTrades > 0 {
		summary.WinRate = decimal.NewFromInt(int64(summary.Wins)).
			Div(decimal.NewFromInt(int64(summary.TotalTrades))).
			Mul(decimal.NewFromInt(100))
	}
	return summary
}

// ExportCSV writes one row per trade, header matching the trade fields,
// with a trailing summary block.
func (s *FibRetracementStrategy) ExportCSV(filename string) error {
	if s.State == nil {
		return fmt.Errorf("no simulation state; call Run first")
	}
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"entry_date", "entry_price", "exit_date", "exit_price", "shares",
		"pnl", "pnl_pct", "total_pnl", "total_pnl_pct", "account_balance",
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, t := range s.State.Trades {
		record := []string{
			t.EntryDate.Format("2006-01-02"),
			t.EntryPrice.String(),
			t.ExitDate.Format("2006-01-02"),
			t.ExitPrice.String(),
			t.Shares.String(),
			t.Pnl.String(),
			t.PnlPercent.String(),
			t.TotalPnl.String(),
			t.TotalPnlPercent.String(),
			t.AccountBalance.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	summary := s.GenerateSummary()
	summaryRows := [][]string{
		{""},
		{"# Summary"},
		{"starting_balance", summary.StartingBalance.String()},
		{"ending_balance", summary.EndingBalance.String()},
		{"total_pnl", summary.TotalPnl.String()},
		{"total_pnl_pct", summary.TotalPnlPercent.String()},
		{"total_trades", strconv.Itoa(summary.TotalTrades)},
		{"wins", strconv.Itoa(summary.Wins)},
		{"losses", strconv.Itoa(summary.Losses)},
		{"win_rate", summary.WinRate.String()},
	}
	for _, row := range summaryRows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportEventsCSV writes the signal trace recorded during the run.
func (s *FibRetracementStrategy) ExportEventsCSV(filename string) error {
	if s.Events == nil {
		return fmt.Errorf("event log not enabled")
	}
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"date", "event", "details"}); err != nil {
		return err
	}
	for _, e := range s.Events.Events {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+e.Details[k])
		}
		record := []string{e.Date.Format("2006-01-02"), e.Type.String(), strings.Join(parts, " ")}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (s *FibRetracementStrategy) PrintSummary() {
	summary := s.GenerateSummary()

	if summary.TotalTrades == 0 {
		fmt.Println("\nNo trades were executed for the selected parameters.")
	}
	fmt.Println("\n=== TRADE SUMMARY ===")
	fmt.Printf("Starting Balance: $%s\n", summary.StartingBalance.StringFixed(2))
	fmt.Printf("Ending Balance: $%s\n", summary.EndingBalance.StringFixed(2))
	fmt.Printf("Total P/L: $%s\n", summary.TotalPnl.StringFixed(2))
	fmt.Printf("Total P/L (%%): %s%%\n", summary.TotalPnlPercent.StringFixed(2))
	fmt.Printf("Total Trades: %d\n", summary.TotalTrades)
	fmt.Printf("Wins: %d\n", summary.Wins)
	fmt.Printf("Losses: %d\n", summary.Losses)
	fmt.Printf("Win Rate: %s%%\n", summary.WinRate.StringFixed(2))
	if summary.TotalTrades > 0 {
		fmt.Printf("Best Trade: $%s\n", summary.BestTrade.StringFixed(2))
		fmt.Printf("Worst Trade: $%s\n", summary.WorstTrade.StringFixed(2))
	}
	fmt.Println("===================")
}
