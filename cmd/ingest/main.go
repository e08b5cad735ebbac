// One-shot installer for daily bar CSVs → ClickHouse with dedup guarantees.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chstore "fib-backtest/services/clickhouse"
	"fib-backtest/services/config"
)

func main() {
	var (
		csvFile = flag.String("csv", "", "Path to a single CSV file of daily bars")
		symbol  = flag.String("symbol", "", "Symbol for -csv (required with -csv)")
		dir     = flag.String("dir", "", "Directory of SYMBOL.csv files to ingest")
	)
	flag.Parse()

	if *csvFile == "" && *dir == "" {
		fmt.Println("Error: either -csv with -symbol or -dir is required")
		flag.Usage()
		os.Exit(1)
	}
	if *csvFile != "" && *symbol == "" {
		log.Fatal("-symbol is required with -csv")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	client, err := chstore.NewClient(ctx, chstore.Config{
		Addr:     cfg.ClickHouse.Addr,
		Database: cfg.ClickHouse.Database,
		Table:    cfg.ClickHouse.Table,
		Username: cfg.ClickHouse.User,
		Password: cfg.ClickHouse.Password,
	})
	if err != nil {
		log.Fatalf("ClickHouse connect failed: %v", err)
	}
	defer client.Close()

	if err := client.EnsureSchema(ctx); err != nil {
		log.Fatalf("Schema setup failed: %v", err)
	}

	files := map[string]string{}
	if *csvFile != "" {
		files[*symbol] = *csvFile
	} else {
		entries, err := os.ReadDir(*dir)
		if err != nil {
			log.Fatalf("Read dir: %v", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
				continue
			}
			sym := strings.ToUpper(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
			files[sym] = filepath.Join(*dir, e.Name())
		}
	}

	total := 0
	for sym, path := range files {
		bars, err := readDailyCSV(path, sym)
		if err != nil {
			// Non-fatal: continue with the other files.
			fmt.Printf("WARN: %s ingest failed: %v\n", sym, err)
			continue
		}
		n, err := client.InsertDailyBars(ctx, bars)
		if err != nil {
			fmt.Printf("WARN: %s insert failed: %v\n", sym, err)
			continue
		}
		fmt.Printf("==> %s: inserted %d rows from %s\n", sym, n, path)
		total += n
	}
	fmt.Printf("Done. %d rows installed with dedup safeguards.\n", total)
}

// readDailyCSV parses date,open,high,low,close[,volume] rows, skipping a
// header line and anything malformed.
func readDailyCSV(path, symbol string) ([]chstore.DailyBar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var bars []chstore.DailyBar
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		if len(rec) < 5 {
			continue
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(strings.TrimPrefix(rec[0], "\ufeff")))
		if err != nil {
			continue
		}
		open, err1 := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		high, err2 := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		low, err3 := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		closep, err4 := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		vol := 0.0
		if len(rec) > 5 {
			vol, _ = strconv.ParseFloat(strings.TrimSpace(rec[5]), 64)
		}
		bars = append(bars, chstore.DailyBar{
			Symbol: symbol,
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closep,
			Volume: vol,
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no parseable rows in %s", path)
	}
	return bars, nil
}
