//! Fib Runner - Executable for the Fibonacci retracement strategy
//!
//! Runs the strategy over daily bars from a local CSV file or a
//! ClickHouse export and writes the trade log.

package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"fib-backtest/strategies"
)

func main() {
	var (
		csvFile  = flag.String("csv", "", "Path to local CSV with daily bars; if set, skip ClickHouse download")
		chURL    = flag.String("ch-url", "http://localhost:18123", "ClickHouse HTTP URL")
		db       = flag.String("db", "backtest", "ClickHouse database")
		table    = flag.String("table", "daily_bars", "ClickHouse table")
		user     = flag.String("ch-user", "default", "ClickHouse user")
		pass     = flag.String("ch-pass", "", "ClickHouse password")
		symbol   = flag.String("symbol", "AAPL", "Symbol to backtest")
		from     = flag.String("from", "2023-01-01", "Start date (YYYY-MM-DD)")
		to       = flag.String("to", "2024-01-01", "End date (YYYY-MM-DD)")
		swingLen = flag.Int("swing-length", 10, "Swing window width in bars")
		riskPct  = flag.Float64("risk-pct", 5.0, "Percentage of account balance per trade")
		balance  = flag.Float64("balance", 10000.0, "Starting account balance in USD")
		output   = flag.String("output", "trades.csv", "Output CSV file for trades")
		events   = flag.String("events", "", "Optional CSV file for the signal trace")
		tmpCSV   = flag.String("out", "./daily_bars.csv", "Temp CSV path for ClickHouse downloads")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	path := *csvFile
	if path == "" {
		if err := downloadBars(*chURL, *db, *table, *user, *pass, *symbol, *from, *to, *tmpCSV); err != nil {
			log.Fatalf("ClickHouse download failed: %v", err)
		}
		path = *tmpCSV
	}

	clean, err := cleanCSV(path)
	if err != nil {
		log.Fatalf("Failed to clean CSV: %v", err)
	}

	strategy := strategies.NewFibRetracementStrategy()
	strategy.SwingLength = *swingLen
	strategy.RiskFraction = decimal.NewFromFloat(*riskPct / 100.0)
	strategy.StartingBalance = decimal.NewFromFloat(*balance)
	strategy.Verbose = *verbose

	if err := strategy.LoadCSV(clean); err != nil {
		log.Fatalf("Failed to load CSV: %v", err)
	}
	log.Printf("Loaded %d bars from %s", len(strategy.Bars), path)

	if err := strategy.Run(); err != nil {
		log.Fatalf("Strategy execution failed: %v", err)
	}

	strategy.PrintSummary()

	if err := strategy.ExportCSV(*output); err != nil {
		log.Fatalf("Failed to export CSV: %v", err)
	}
	fmt.Printf("Trades exported to %s\n", *output)

	if *events != "" {
		if err := strategy.ExportEventsCSV(*events); err != nil {
			log.Fatalf("Failed to export events: %v", err)
		}
		fmt.Printf("Signal trace exported to %s\n", *events)
	}

	printSampleTrades(strategy)
}

// downloadBars exports the symbol's daily range via the ClickHouse HTTP
// interface into a headered CSV.
func downloadBars(chURL, db, table, user, pass, symbol, from, to, outCSV string) error {
	q := fmt.Sprintf(`
SELECT
    toString(date),
    toString(open),
    toString(high),
    toString(low),
    toString(close),
    toString(volume)
FROM %s.%s FINAL
WHERE symbol = '%s'
  AND date >= toDate('%s')
  AND date <= toDate('%s')
ORDER BY date
FORMAT CSV
`, db, table, symbol, from, to)

	endpoint := fmt.Sprintf("%s/?%s", strings.TrimRight(chURL, "/"), url.Values{
		"query":    {q},
		"user":     {user},
		"password": {pass},
	}.Encode())

	if err := os.MkdirAll(filepath.Dir(outCSV), 0o755); err != nil {
		return err
	}
	resp, err := http.Get(endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("clickhouse export error %d: %s", resp.StatusCode, string(b))
	}
	outFile, err := os.Create(outCSV)
	if err != nil {
		return err
	}
	defer outFile.Close()
	w := bufio.NewWriter(outFile)
	w.WriteString("date,open,high,low,close,volume\n")
	if _, err := io.Copy(w, resp.Body); err != nil {
		return err
	}
	return w.Flush()
}

// cleanCSV strips UTF-16 encodings, BOMs and stray quotes that vendor
// exports tend to carry, writing a .clean.csv next to the input.
func cleanCSV(path string) (string, error) {
	clean := path + ".clean.csv"
	inF, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer inF.Close()
	outF, err := os.Create(clean)
	if err != nil {
		return "", err
	}
	defer outF.Close()
	w := bufio.NewWriter(outF)

	var reader io.Reader
	br := bufio.NewReader(inF)
	b1, _ := br.Peek(2)
	if len(b1) >= 2 && ((b1[0] == 0xFF && b1[1] == 0xFE) || (b1[0] == 0xFE && b1[1] == 0xFF)) {
		inF.Seek(0, 0)
		reader = transform.NewReader(inF, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	} else {
		reader = br
	}
	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "\ufeff")
		line = strings.ReplaceAll(line, "\"", "")
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return clean, nil
}

func printSampleTrades(s *strategies.FibRetracementStrategy) {
	trades := s.State.Trades
	if len(trades) == 0 {
		return
	}

	fmt.Println("\nSample trades:")
	fmt.Println("Entry      | Exit       | Entry Px | Exit Px  | Shares   | PnL      | PnL%")
	fmt.Println("-----------|------------|----------|----------|----------|----------|------")

	limit := 5
	if len(trades) < limit {
		limit = len(trades)
	}
	for i := 0; i < limit; i++ {
		t := trades[i]
		fmt.Printf("%-10s | %-10s | %-8s | %-8s | %-8s | %-8s | %s\n",
			t.EntryDate.Format("2006-01-02"),
			t.ExitDate.Format("2006-01-02"),
			t.EntryPrice.StringFixed(2),
			t.ExitPrice.StringFixed(2),
			t.Shares.StringFixed(4),
			t.Pnl.StringFixed(2),
			t.PnlPercent.StringFixed(2),
		)
	}
	if len(trades) > 5 {
		fmt.Printf("... and %d more trades\n", len(trades)-5)
	}
}
